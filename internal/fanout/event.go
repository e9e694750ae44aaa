package fanout

import (
	"encoding/json"
	"time"
)

// Event kinds carried on the websocket wire.
const (
	EventPing         = "ping"
	EventPong         = "pong"
	EventSubscribed   = "subscribed"
	EventHealthUpdate = "health_update"
	EventAlert        = "alert"
)

// Event is the JSON envelope for every server-to-client frame. Transient;
// never persisted.
type Event struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Channel   string      `json:"channel,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// NewEvent builds an event of the given kind stamped with the current UTC time.
func NewEvent(kind string, data interface{}) Event {
	return Event{
		Type:      kind,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// Encode marshals the event to its wire form.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}
