package notify

import (
	"context"
	"sync"

	"chainqa-go/pkg/log"
)

const defaultBufferSize = 64

// Hub 是进程内的事件分发中心，websocket 和 SSE 连接通过它订阅事件。
type Hub struct {
	mu         sync.RWMutex
	subs       map[*Subscription]struct{}
	bufferSize int
}

// Subscription 是一个订阅者。C 在 Close 之后会被关闭。
type Subscription struct {
	C <-chan Event

	ch     chan Event
	topics map[string]struct{}
	hub    *Hub
	once   sync.Once
}

// NewHub 创建一个 Hub，bufferSize 是每个订阅者的缓冲区大小。
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Hub{subs: make(map[*Subscription]struct{}), bufferSize: bufferSize}
}

// Subscribe 订阅指定主题，不传主题表示订阅全部。
func (h *Hub) Subscribe(topics ...string) *Subscription {
	ch := make(chan Event, h.bufferSize)
	sub := &Subscription{C: ch, ch: ch, hub: h}
	if len(topics) > 0 {
		sub.topics = make(map[string]struct{}, len(topics))
		for _, t := range topics {
			sub.topics[t] = struct{}{}
		}
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Close 取消订阅，可以重复调用。
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		close(s.ch)
		s.hub.mu.Unlock()
	})
}

func (s *Subscription) wants(topic string) bool {
	if s.topics == nil {
		return true
	}
	_, ok := s.topics[topic]
	return ok
}

// Publish 实现 Publisher。
func (h *Hub) Publish(ctx context.Context, topic string, payload interface{}) error {
	ev, err := NewEvent(topic, payload)
	if err != nil {
		return err
	}
	h.Deliver(ev)
	return nil
}

// Deliver 把已编码的事件投递给所有匹配的订阅者。缓冲区已满的订阅者会丢弃该事件。
func (h *Hub) Deliver(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if !sub.wants(ev.Topic) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			log.Warnw("[Hub] 订阅者缓冲区已满，丢弃事件", "topic", ev.Topic)
		}
	}
}

// Len 返回当前订阅者数量。
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
