package ws

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gofiber/websocket/v2"
)

type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	channel string
	id      string
	send    chan []byte
}

// enqueue delivers payload to the client's send queue. A slow consumer
// loses its oldest queued frame rather than the connection.
func (c *Client) enqueue(payload []byte, logger *slog.Logger) {
	select {
	case c.send <- payload:
		return
	default:
	}

	select {
	case <-c.send:
		logger.Warn("send queue full, dropping oldest frame", "channel", c.channel, "client_id", c.id)
	default:
	}

	select {
	case c.send <- payload:
	default:
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		c.handleMessage(raw)
	}
}

func (c *Client) handleMessage(raw []byte) {
	var msg struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(raw, &msg)

	switch msg.Type {
	case "ping":
		c.reply(Envelope{
			Type:      FramePong,
			Message:   "pong",
			Timestamp: time.Now().UTC(),
		})
	case "get_stats":
		c.reply(Envelope{
			Type:      FrameStats,
			Timestamp: time.Now().UTC(),
			Data:      c.hub.Stats(),
		})
	default:
		var original interface{}
		if err := json.Unmarshal(raw, &original); err != nil {
			original = string(raw)
		}
		c.reply(Envelope{
			Type:      FrameEcho,
			Timestamp: time.Now().UTC(),
			Original:  original,
		})
	}
}

func (c *Client) reply(env Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		return
	}
	c.enqueue(payload, c.hub.logger)
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}
