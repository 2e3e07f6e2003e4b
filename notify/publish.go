// Package notify republishes label change events to NATS subjects so
// out-of-process consumers (UI gateways, automation services) can react
// to structural changes. In-process consumers subscribe to the bus
// directly; this bridge is for everyone else.
package notify

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360studio/labelgraph/bus"
	"github.com/c360studio/labelgraph/label"
)

// Subjects for label change notifications.
const (
	SubjectAncestryUpdated = "labels.ancestry.updated"
	SubjectExtraUpdated    = "labels.extra.updated"
)

// ChangeMessage is the wire format for a change notification. Like the
// in-process events, it carries no diff: consumers re-derive fully.
type ChangeMessage struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher bridges bus events onto NATS subjects.
type Publisher struct {
	nc     *nats.Conn
	logger *slog.Logger
	subs   []*bus.Subscription
}

// NewPublisher creates a publisher on an established NATS connection.
func NewPublisher(nc *nats.Conn, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{nc: nc, logger: logger}
}

// Attach subscribes the publisher to both structural-change events.
func (p *Publisher) Attach(b *bus.Bus) {
	p.subs = append(p.subs,
		b.Subscribe(label.EventAncestryUpdated, func(e bus.Event) {
			p.publish(SubjectAncestryUpdated, e.Name)
		}),
		b.Subscribe(label.EventExtraUpdated, func(e bus.Event) {
			p.publish(SubjectExtraUpdated, e.Name)
		}),
	)
}

// Detach removes the bus subscriptions.
func (p *Publisher) Detach() {
	for _, sub := range p.subs {
		sub.Unsubscribe()
	}
	p.subs = nil
}

func (p *Publisher) publish(subject, event string) {
	msg := ChangeMessage{Event: event, Timestamp: time.Now()}
	data, err := json.Marshal(msg)
	if err != nil {
		p.logger.Error("Marshal change message", "subject", subject, "error", err)
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		// Notification delivery is best-effort; the authoritative state
		// lives in the registry and consumers can always re-query.
		p.logger.Warn("Publish change message", "subject", subject, "error", err)
	}
}
