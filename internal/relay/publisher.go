// Package relay streams capture events to live clients over SSE and websocket.
package relay

import (
	"encoding/json"
	"log/slog"

	"github.com/dgnsrekt/netwatch/internal/types"
)

// Publisher is a capture observer that forwards every store change to a Broker.
type Publisher struct {
	broker *Broker
	// omitBodies strips request and response bodies from streamed records.
	omitBodies bool
}

func NewPublisher(broker *Broker, omitBodies bool) *Publisher {
	return &Publisher{broker: broker, omitBodies: omitBodies}
}

// Observe implements capture.Observer.
func (p *Publisher) Observe(ev types.CaptureEvent) {
	if p.omitBodies {
		ev.Record.RequestBody = nil
		ev.Record.ResponseBody = nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("relay: failed to encode capture event", "record_id", ev.Record.ID, "error", err)
		return
	}
	p.broker.Publish(Event{Feed: ev.ContextID, Type: ev.Type, Payload: string(payload)})
}
