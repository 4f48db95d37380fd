package kafka

import (
	"testing"

	"chainqa-go/internal/config"
	"chainqa-go/pkg/notify"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRoundTrip(t *testing.T) {
	ev, err := notify.NewEvent(notify.TopicAnswerCreated, map[string]int{"id": 3, "questionId": 7})
	require.NoError(t, err)

	msg, err := encodeMessage(ev)
	require.NoError(t, err)
	assert.Equal(t, []byte(notify.TopicAnswerCreated), msg.Key)

	decoded, err := decodeMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, ev.Topic, decoded.Topic)
	assert.JSONEq(t, string(ev.Payload), string(decoded.Payload))
	assert.True(t, ev.PublishedAt.Equal(decoded.PublishedAt))
}

func TestDecodeMessageRejectsGarbage(t *testing.T) {
	_, err := decodeMessage(kafka.Message{Value: []byte("not json")})
	assert.Error(t, err)
	_, err = decodeMessage(kafka.Message{Value: []byte(`{"payload":{}}`)})
	assert.Error(t, err)
}

func TestGroupID(t *testing.T) {
	assert.Equal(t, "fixed", groupID(config.KafkaConfig{GroupID: "fixed"}))
	assert.Contains(t, groupID(config.KafkaConfig{}), "chainqa-events-")
}
