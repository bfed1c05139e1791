package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"qrpos-order-services/internal/realtime"

	"go.uber.org/zap"
)

const EventsExchange = "qrpos.events"

// Publisher is the slice of Client the event and job producers need.
type Publisher interface {
	PublishJSON(ctx context.Context, exchange, routingKey string, payload any) error
}

func EnsureEventsTopology(qc *Client) error {
	if qc == nil {
		return nil
	}
	return qc.EnsureExchange(EventsExchange)
}

// EventPublisher is a realtime sink that forwards events to the topic
// exchange with the event name as routing key.
type EventPublisher struct {
	pub Publisher
}

func NewEventPublisher(pub Publisher) *EventPublisher {
	return &EventPublisher{pub: pub}
}

func (p *EventPublisher) Publish(ctx context.Context, evt realtime.Event) error {
	if p == nil || p.pub == nil {
		return nil
	}
	return p.pub.PublishJSON(ctx, EventsExchange, evt.Name, evt)
}

// Relay hands events published by other instances to a local sink, so
// websocket clients connected here see changes made elsewhere.
type Relay struct {
	origin string
	local  realtime.Sink
	logger *zap.Logger
}

func NewRelay(origin string, local realtime.Sink, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{origin: origin, local: local, logger: logger}
}

// Handle decodes one delivery. Events from this instance were already
// delivered locally and are dropped; undecodable bodies are dropped too
// since retrying cannot fix them.
func (r *Relay) Handle(ctx context.Context, body []byte) error {
	var evt realtime.Event
	if err := json.Unmarshal(body, &evt); err != nil {
		r.logger.Warn("relay dropped malformed event", zap.Error(err))
		return nil
	}
	if evt.Name == "" || evt.Origin == r.origin {
		return nil
	}
	if err := r.local.Publish(ctx, evt); err != nil {
		return fmt.Errorf("relay %s: %w", evt.Name, err)
	}
	return nil
}

// Run binds an exclusive queue to every event and relays until ctx ends.
func (r *Relay) Run(ctx context.Context, qc *Client) error {
	q, err := qc.EnsureExclusiveQueue()
	if err != nil {
		return err
	}
	if err := qc.BindQueue(q.Name, EventsExchange, "#"); err != nil {
		return err
	}
	r.logger.Info("event relay started", zap.String("queue", q.Name), zap.String("origin", r.origin))
	return qc.ConsumeWithRetry(ctx, q.Name, r.Handle, 0, 0)
}
