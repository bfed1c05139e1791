package queue

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"qrpos-order-services/internal/realtime"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	EventsQueue              = "qrpos.notifications"
	NotificationJobsExchange = "qrpos.notification_jobs"
	NotificationJobsQueue    = "qrpos.notification_jobs.process"
	NotificationJobsDLQ      = "qrpos.notification_jobs.dlq"
	NotificationJobsRK       = "process"
	NotificationJobsDeadRK   = "dead"
)

const (
	JobCustomerOrderStatus = "push.customer_order_status"
	JobPaymentConfirmed    = "push.payment_confirmed"
	JobPaymentRefunded     = "push.payment_refunded"
)

type NotificationPayload struct {
	OutletID  int64  `json:"outletId"`
	OrderID   int64  `json:"orderId"`
	OrderCode string `json:"orderCode"`
	Status    string `json:"status"`
}

type NotificationJob struct {
	Kind      string              `json:"kind"`
	Payload   NotificationPayload `json:"payload"`
	EventID   string              `json:"eventId"`
	CreatedAt string              `json:"createdAt"`
	Attempt   int                 `json:"attempt"`
}

// EnsureNotificationJobsTopology declares the job exchange with its work
// queue and dead-letter queue, plus the durable queue that collects the
// events jobs are derived from.
func EnsureNotificationJobsTopology(qc *Client) error {
	if qc == nil {
		return nil
	}

	if err := qc.EnsureExchangeKind(NotificationJobsExchange, "direct"); err != nil {
		return err
	}

	if _, err := qc.EnsureQueue(NotificationJobsDLQ); err != nil {
		return err
	}
	if err := qc.BindQueue(NotificationJobsDLQ, NotificationJobsExchange, NotificationJobsDeadRK); err != nil {
		return err
	}

	_, err := qc.EnsureQueueWithArgs(NotificationJobsQueue, amqp.Table{
		"x-dead-letter-exchange":    NotificationJobsExchange,
		"x-dead-letter-routing-key": NotificationJobsDeadRK,
	})
	if err != nil {
		return err
	}
	if err := qc.BindQueue(NotificationJobsQueue, NotificationJobsExchange, NotificationJobsRK); err != nil {
		return err
	}

	if _, err := qc.EnsureQueue(EventsQueue); err != nil {
		return err
	}
	for _, rk := range []string{realtime.EventOrderStatusUpdated, realtime.EventPaymentUpdated} {
		if err := qc.BindQueue(EventsQueue, EventsExchange, rk); err != nil {
			return err
		}
	}
	return nil
}

// JobsForEvent decides which customer notifications an event warrants. Only
// states a customer acts on produce a job.
func JobsForEvent(evt realtime.Event, now time.Time) []NotificationJob {
	kind, status := "", ""
	switch evt.Name {
	case realtime.EventOrderStatusUpdated:
		status = mapOrderStatusToPushStatus(evt.Status)
		if status != "" {
			kind = JobCustomerOrderStatus
		}
	case realtime.EventPaymentUpdated:
		switch strings.ToUpper(evt.PaymentStatus) {
		case "PAID":
			kind, status = JobPaymentConfirmed, "PAID"
		case "REFUNDED":
			kind, status = JobPaymentRefunded, "REFUNDED"
		}
	}
	if kind == "" {
		return nil
	}
	return []NotificationJob{{
		Kind: kind,
		Payload: NotificationPayload{
			OutletID:  evt.OutletID,
			OrderID:   evt.OrderID,
			OrderCode: evt.OrderCode,
			Status:    status,
		},
		EventID:   evt.ID,
		CreatedAt: now.UTC().Format(time.RFC3339),
		Attempt:   1,
	}}
}

// ProcessEventToJobs translates one delivery from EventsQueue. Undecodable
// bodies are dropped like the relay drops them; only publish failures are
// returned for retry.
func ProcessEventToJobs(ctx context.Context, pub Publisher, logger *zap.Logger, body []byte) error {
	if pub == nil {
		return nil
	}

	var evt realtime.Event
	if err := json.Unmarshal(body, &evt); err != nil {
		if logger != nil {
			logger.Warn("notification translator dropped malformed event", zap.Int("bytes", len(body)), zap.Error(err))
		}
		return nil
	}
	for _, job := range JobsForEvent(evt, time.Now()) {
		if err := pub.PublishJSON(ctx, NotificationJobsExchange, NotificationJobsRK, job); err != nil {
			return err
		}
	}
	return nil
}

func mapOrderStatusToPushStatus(status string) string {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "READY":
		return "READY"
	case "SERVED":
		return "SERVED"
	case "CANCELLED":
		return "CANCELLED"
	default:
		return ""
	}
}
