// Package notify 提供回答创建等领域事件的发布与订阅。
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// TopicAnswerCreated 在回答创建并完成链上同步后发布。
const TopicAnswerCreated = "answer:created"

// Event 是在发布者、事件总线和订阅者之间传递的事件信封。
type Event struct {
	Topic       string          `json:"topic"`
	Payload     json.RawMessage `json:"payload"`
	PublishedAt time.Time       `json:"publishedAt"`
}

// Publisher 发布事件。实现不能阻塞等待订阅者，调用方不依赖返回值之外的任何投递保证。
type Publisher interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
}

// NewEvent 编码负载并生成事件信封。
func NewEvent(topic string, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", topic, err)
	}
	return Event{Topic: topic, Payload: data, PublishedAt: time.Now().UTC()}, nil
}
