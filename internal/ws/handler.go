package ws

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/net/websocket"

	"github.com/hendo420/P2PLendingPlatform/internal/http/middleware"
)

type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

type subscribeMessage struct {
	Action     string `json:"action"`
	Channel    string `json:"channel"`
	PositionID uint64 `json:"positionId"`
}

// HandleWebSocket expects RequireAuth to have run; the caller may only
// subscribe to its own account channel.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	account := c.GetString(middleware.ContextUserID)
	websocket.Handler(func(conn *websocket.Conn) {
		client := NewClient(conn, account)
		go h.writer(client)
		h.reader(client)
	}).ServeHTTP(c.Writer, c.Request)
}

func (h *Handler) reader(client *Client) {
	defer func() {
		h.hub.UnsubscribeAll(client)
		client.close()
		_ = client.conn.Close()
	}()

	for {
		var raw string
		if err := websocket.Message.Receive(client.conn, &raw); err != nil {
			return
		}
		var msg subscribeMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			continue
		}
		topic := subscriptionTopic(msg, client.account)
		if topic == "" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(msg.Action)) {
		case "subscribe":
			h.hub.Subscribe(topic, client)
			client.send(ack("subscribed", topic))
		case "unsubscribe":
			h.hub.Unsubscribe(topic, client)
			client.send(ack("unsubscribed", topic))
		}
	}
}

func (h *Handler) writer(client *Client) {
	for payload := range client.out {
		if err := websocket.Message.Send(client.conn, string(payload)); err != nil {
			return
		}
	}
}

func ack(event, channel string) []byte {
	out, _ := json.Marshal(map[string]string{"event": event, "channel": channel})
	return out
}

func subscriptionTopic(msg subscribeMessage, account string) string {
	switch strings.ToLower(strings.TrimSpace(msg.Channel)) {
	case "lending":
		return positionChannel("lending", msg.PositionID)
	case "loan":
		return positionChannel("loan", msg.PositionID)
	case "position":
		return positionChannel("position", msg.PositionID)
	case "account":
		if account == "" {
			return ""
		}
		return AccountChannel(account)
	default:
		return ""
	}
}

func positionChannel(kind string, id uint64) string {
	if id == 0 {
		return ""
	}
	return kind + ":" + strconv.FormatUint(id, 10)
}

func AccountChannel(account string) string {
	return "account:" + account
}
