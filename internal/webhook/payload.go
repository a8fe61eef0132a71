package webhook

import (
	"time"

	"github.com/google/uuid"
)

const payloadVersion = "1.0"

// Payload is the body delivered to every subscriber of an event. The
// event id and timestamp are fixed when the event fires, so every
// subscriber and every retry sees the same payload.
type Payload struct {
	EventType string      `json:"event_type"`
	EventID   string      `json:"event_id"`
	Timestamp string      `json:"timestamp"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Data      interface{} `json:"data"`
}

func NewPayload(eventType, source string, data interface{}) Payload {
	return Payload{
		EventType: eventType,
		EventID:   uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Source:    source,
		Version:   payloadVersion,
		Data:      data,
	}
}
