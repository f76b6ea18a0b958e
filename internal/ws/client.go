package ws

import (
	"sync"

	"golang.org/x/net/websocket"
)

type Client struct {
	conn    *websocket.Conn
	account string
	out     chan []byte

	mu       sync.RWMutex
	closed   bool
	channels map[string]struct{}
}

func NewClient(conn *websocket.Conn, account string) *Client {
	return &Client{
		conn:     conn,
		account:  account,
		out:      make(chan []byte, 64),
		channels: map[string]struct{}{},
	}
}

// send drops slow consumers by closing their connection.
func (c *Client) send(payload []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.out <- payload:
	default:
		if c.conn != nil {
			_ = c.conn.Close()
		}
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.out)
}

func (c *Client) addChannel(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[channel] = struct{}{}
}

func (c *Client) removeChannel(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.channels, channel)
}

func (c *Client) listChannels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		out = append(out, ch)
	}
	return out
}
