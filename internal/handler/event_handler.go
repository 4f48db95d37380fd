package handler

import (
	"io"
	"net/http"
	"strings"
	"time"

	"chainqa-go/pkg/log"
	"chainqa-go/pkg/notify"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	defaultHeartbeat = 25 * time.Second
	writeWait        = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// EventHandler 把本实例 Hub 上的事件推送给 websocket 和 SSE 客户端。
type EventHandler struct {
	hub       *notify.Hub
	heartbeat time.Duration
}

// NewEventHandler 创建一个新的 EventHandler。
func NewEventHandler(hub *notify.Hub) *EventHandler {
	return &EventHandler{hub: hub, heartbeat: defaultHeartbeat}
}

// parseTopics 解析 ?topics=a,b，为空表示订阅全部主题。
func parseTopics(c *gin.Context) []string {
	var topics []string
	for _, t := range strings.Split(c.Query("topics"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

// WebSocket 处理一个事件订阅的 websocket 连接。
func (h *EventHandler) WebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe(parseTopics(c)...)
	defer sub.Close()
	log.Infof("[EventHandler.WebSocket] 订阅已建立, remote: %s", c.ClientIP())

	// 客户端不发送业务消息，读循环只用于发现连接关闭
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				log.Warnf("[EventHandler.WebSocket] 写入事件失败: %v", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

// Stream 以 Server-Sent Events 的方式推送事件。
func (h *EventHandler) Stream(c *gin.Context) {
	sub := h.hub.Subscribe(parseTopics(c)...)
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	// 先把响应头发给客户端，第一条事件可能很久之后才到
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return false
			}
			c.SSEvent(ev.Topic, ev)
			return true
		case t := <-ticker.C:
			c.SSEvent("ping", t.UTC().Format(time.RFC3339))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
