package audit

import (
	"context"

	"github.com/dukerupert/intake/internal/websocket"
)

// HubSink streams entries to live websocket subscribers.
type HubSink struct {
	hub *websocket.Hub
}

func NewHubSink(hub *websocket.Hub) *HubSink {
	return &HubSink{hub: hub}
}

func (s *HubSink) Emit(_ context.Context, e Entry) error {
	_, err := s.hub.Broadcast(websocket.Message{Type: "audit", Data: e})
	return err
}
