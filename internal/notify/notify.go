// Package notify defines the realtime publish capability used by the order
// service, plus sinks that carry events beyond the local websocket hub.
//
// Delivery is at-most-once everywhere. Publish never blocks the caller and
// never reports failure; the order store stays the source of truth.
package notify

import (
	"encoding/json"
	"strings"

	"github.com/campus-canteen/api/internal/enum"
)

// Event is a single realtime message.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Notifier publishes an event to every subscriber of channel.
type Notifier interface {
	Publish(channel string, event Event)
}

// OrderChannel is the room a customer joins to follow one order.
func OrderChannel(orderID string) string {
	return enum.ChannelOrderPrefix + orderID
}

// OrderIDFromChannel returns the order id of an order channel.
func OrderIDFromChannel(channel string) (string, bool) {
	id, ok := strings.CutPrefix(channel, enum.ChannelOrderPrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// Multi publishes to every notifier in order.
type Multi []Notifier

func (m Multi) Publish(channel string, event Event) {
	for _, n := range m {
		n.Publish(channel, event)
	}
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(string, Event) {}
