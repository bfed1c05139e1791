// Package realtime fans order and payment events out to websocket rooms and
// the message broker. Events only say that something changed; consumers
// refetch the order to learn what.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"qrpos-order-services/internal/order"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusUpdated = "order.status.updated"
	EventPaymentUpdated     = "payment.updated"
)

type Event struct {
	ID            string    `json:"id"`
	Name          string    `json:"event"`
	OutletID      int64     `json:"outletId"`
	OrderID       int64     `json:"orderId"`
	OrderCode     string    `json:"orderCode"`
	PaymentID     int64     `json:"paymentId,omitempty"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"paymentStatus"`
	Origin        string    `json:"origin,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

func NewEvent(name string, o order.Order, p order.Payment) Event {
	return Event{
		Name:          name,
		OutletID:      o.OutletID,
		OrderID:       o.ID,
		OrderCode:     o.Code,
		PaymentID:     p.ID,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
	}
}

type Sink interface {
	Publish(ctx context.Context, evt Event) error
}

type SinkFunc func(ctx context.Context, evt Event) error

func (f SinkFunc) Publish(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

type namedSink struct {
	name string
	sink Sink
}

type Notifier struct {
	mu     sync.RWMutex
	sinks  []namedSink
	origin string
	logger *zap.Logger
}

// NewNotifier stamps every event with origin so instances can skip their own
// events when they come back through the broker.
func NewNotifier(origin string, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{origin: origin, logger: logger}
}

func (n *Notifier) Origin() string {
	return n.origin
}

func (n *Notifier) AddSink(name string, sink Sink) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sinks = append(n.sinks, namedSink{name: name, sink: sink})
}

// Publish hands evt to every sink. A failing sink is logged and reported in
// the joined error but never stops the others.
func (n *Notifier) Publish(ctx context.Context, evt Event) error {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Origin == "" {
		evt.Origin = n.origin
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}

	n.mu.RLock()
	sinks := append([]namedSink(nil), n.sinks...)
	n.mu.RUnlock()

	var errs []error
	for _, s := range sinks {
		if err := s.sink.Publish(ctx, evt); err != nil {
			n.logger.Warn("realtime publish failed",
				zap.String("sink", s.name),
				zap.String("event", evt.Name),
				zap.Int64("outletId", evt.OutletID),
				zap.Int64("orderId", evt.OrderID),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

// Recorder is an in-memory sink that keeps every event it sees.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *Recorder) Count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, evt := range r.events {
		if evt.Name == name {
			n++
		}
	}
	return n
}
