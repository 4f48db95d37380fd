// Package kafka 提供了基于 Kafka 的事件总线，用于在多个实例之间广播领域事件。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"chainqa-go/internal/config"
	"chainqa-go/pkg/log"
	"chainqa-go/pkg/notify"

	"github.com/segmentio/kafka-go"
)

// EventSink 接收从总线上读取的事件，notify.Hub 实现了该接口。
type EventSink interface {
	Deliver(ev notify.Event)
}

// Publisher 把事件异步写入 Kafka，实现 notify.Publisher。
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher 初始化 Kafka 生产者。写入是异步的，失败只记录日志。
func NewPublisher(cfg config.KafkaConfig) *Publisher {
	w := &kafka.Writer{
		Addr:     kafka.TCP(cfg.BrokerList()...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
		Async:    true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Errorf("[KafkaPublisher] 写入 %d 条事件失败: %v", len(messages), err)
			}
		},
	}
	log.Info("Kafka 生产者初始化成功")
	return &Publisher{writer: w}
}

// Publish 实现 notify.Publisher。
func (p *Publisher) Publish(ctx context.Context, topic string, payload interface{}) error {
	ev, err := notify.NewEvent(topic, payload)
	if err != nil {
		return err
	}
	msg, err := encodeMessage(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

// Close 刷新并关闭生产者。
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func encodeMessage(ev notify.Event) (kafka.Message, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event: %w", err)
	}
	return kafka.Message{Key: []byte(ev.Topic), Value: value, Time: ev.PublishedAt}, nil
}

func decodeMessage(m kafka.Message) (notify.Event, error) {
	var ev notify.Event
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		return notify.Event{}, err
	}
	if ev.Topic == "" {
		return notify.Event{}, errors.New("event has no topic")
	}
	return ev, nil
}

// groupID 默认每个实例使用独立的消费组，保证每个实例都能收到全部事件。
func groupID(cfg config.KafkaConfig) string {
	if cfg.GroupID != "" {
		return cfg.GroupID
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "local"
	}
	return "chainqa-events-" + host
}

// StartConsumer 启动一个 Kafka 消费者，把事件转发给本实例的 sink，直到 ctx 取消。
// 事件投递后才提交 offset，语义为至少一次。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, sink EventSink) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.BrokerList(),
		Topic:    cfg.Topic,
		GroupID:  groupID(cfg),
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("从 Kafka 读取消息失败", err)
			}
			break
		}

		ev, err := decodeMessage(m)
		if err != nil {
			// 消息格式错误，直接提交，避免阻塞队列
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		} else {
			sink.Deliver(ev)
		}

		if err := r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}

	if err := r.Close(); err != nil {
		log.Errorf("关闭 Kafka 消费者失败: %v", err)
	}
	log.Info("Kafka 消费者已退出")
}
