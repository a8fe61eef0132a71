package ws

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// Handler upgrades /ws/:channel connections and runs the client pumps.
// Unknown channels are closed with a policy-violation close frame.
func Handler(hub *Hub) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		channel := c.Params("channel")
		if !hub.Allowed(channel) {
			msg := websocket.FormatCloseMessage(
				websocket.ClosePolicyViolation,
				fmt.Sprintf("unknown channel %q", channel),
			)
			_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			_ = c.Close()
			return
		}

		clientID := c.Query("client_id")
		if clientID == "" {
			clientID = "client_" + uuid.NewString()[:8]
		}

		client := &Client{
			hub:     hub,
			conn:    c,
			channel: channel,
			id:      clientID,
			send:    make(chan []byte, 256),
		}

		hub.register <- client

		go client.WritePump()
		client.ReadPump()
	})
}

func UpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}
