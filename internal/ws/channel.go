package ws

import (
	"encoding/json"
	"time"
)

// Channel is a named handle onto the hub that publishes model
// lifecycle frames.
type Channel struct {
	hub  *Hub
	name string
}

func NewChannel(hub *Hub, name string) *Channel {
	return &Channel{hub: hub, name: name}
}

func (ch *Channel) Name() string { return ch.name }

func (ch *Channel) publish(frameType string, data interface{}) {
	payload, err := json.Marshal(Envelope{
		Type:      frameType,
		Model:     ch.name,
		Channel:   ch.name,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		ch.hub.logger.Warn("encode broadcast frame", "channel", ch.name, "error", err)
		return
	}
	ch.hub.Broadcast(ch.name, nil, payload)
}

func (ch *Channel) BroadcastCreated(data interface{}) {
	ch.publish(FrameCreated, data)
}

func (ch *Channel) BroadcastUpdated(data interface{}) {
	ch.publish(FrameUpdated, data)
}

func (ch *Channel) BroadcastDeleted(id int64) {
	ch.publish(FrameDeleted, map[string]int64{"id": id})
}

// BroadcastCustom publishes an application-defined frame type.
func (ch *Channel) BroadcastCustom(frameType string, data interface{}) {
	ch.publish(frameType, data)
}
