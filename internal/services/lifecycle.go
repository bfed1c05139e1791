package services

import (
	"context"
	"time"

	"qrpos-order-services/internal/order"
	"qrpos-order-services/internal/realtime"

	"go.uber.org/zap"
)

func (s *OrderService) GetOrder(ctx context.Context, outletID, orderID int64) (OrderResult, error) {
	o, p, err := s.repo.GetOrder(ctx, outletID, orderID)
	if err != nil {
		return OrderResult{}, lookupErr(err, "Order")
	}
	return OrderResult{Order: o, Payment: p}, nil
}

func (s *OrderService) GetOrderByCode(ctx context.Context, outletID int64, code string) (OrderResult, error) {
	o, p, err := s.repo.GetOrderByCode(ctx, outletID, code)
	if err != nil {
		return OrderResult{}, lookupErr(err, "Order")
	}
	return OrderResult{Order: o, Payment: p}, nil
}

func (s *OrderService) ActiveOrders(ctx context.Context, outletID int64) ([]order.Order, error) {
	orders, err := s.repo.ListActiveOrders(ctx, outletID)
	if err != nil {
		return nil, lookupErr(err, "Orders")
	}
	return orders, nil
}

func (s *OrderService) KitchenBoard(ctx context.Context, outletID int64) (order.Board, error) {
	orders, err := s.ActiveOrders(ctx, outletID)
	if err != nil {
		return order.Board{}, err
	}
	return order.KitchenBoard(orders), nil
}

// UpdateStatus moves an order along its fulfillment path. Repeating the
// current status succeeds without emitting anything.
func (s *OrderService) UpdateStatus(ctx context.Context, outletID, orderID int64, to order.Status, actor string) (OrderResult, error) {
	var changed bool
	o, p, err := s.repo.MutateOrder(ctx, outletID, orderID, func(o *order.Order, p *order.Payment) (bool, error) {
		var err error
		changed, err = o.Transition(to)
		if err != nil {
			return false, err
		}
		if changed {
			o.UpdatedAt = s.now()
		}
		return changed, nil
	})
	if err != nil {
		return OrderResult{}, lookupErr(err, "Order")
	}

	if changed {
		s.logger.Info("order status updated",
			zap.Int64("outletId", outletID),
			zap.Int64("orderId", orderID),
			zap.String("status", string(o.Status)),
			zap.String("actor", actor),
		)
		s.publish(ctx, realtime.EventOrderStatusUpdated, o, p)
	}
	return OrderResult{Order: o, Payment: p}, nil
}

func (s *OrderService) ConfirmPayment(ctx context.Context, outletID, paymentID int64, actor string) (OrderResult, error) {
	payment, err := s.repo.GetPayment(ctx, outletID, paymentID)
	if err != nil {
		return OrderResult{}, lookupErr(err, "Payment")
	}
	return s.ConfirmPaymentByOrder(ctx, outletID, payment.OrderID, actor)
}

// ConfirmPaymentByOrder marks the order's payment PAID. Concurrent callers
// queue on the order lock; only the first one changes anything or emits
// events, the rest see the PAID result.
func (s *OrderService) ConfirmPaymentByOrder(ctx context.Context, outletID, orderID int64, actor string) (OrderResult, error) {
	var out order.Outcome
	o, p, err := s.repo.MutateOrder(ctx, outletID, orderID, func(o *order.Order, p *order.Payment) (bool, error) {
		var err error
		out, err = order.ConfirmOrderPayment(o, p, actor, s.now())
		if err != nil {
			return false, err
		}
		return out.PaymentChanged || out.StatusChanged, nil
	})
	if err != nil {
		return OrderResult{}, lookupErr(err, "Order")
	}

	if out.PaymentChanged {
		s.logger.Info("payment confirmed",
			zap.Int64("outletId", outletID),
			zap.Int64("orderId", orderID),
			zap.Int64("paymentId", p.ID),
			zap.String("actor", actor),
		)
	}
	s.emitOutcome(ctx, out, o, p)
	return OrderResult{Order: o, Payment: p}, nil
}

// MarkPaymentSubmitted records the customer's claim that they paid.
func (s *OrderService) MarkPaymentSubmitted(ctx context.Context, outletID int64, orderCode string) (OrderResult, error) {
	current, _, err := s.repo.GetOrderByCode(ctx, outletID, orderCode)
	if err != nil {
		return OrderResult{}, lookupErr(err, "Order")
	}

	var out order.Outcome
	o, p, err := s.repo.MutateOrder(ctx, outletID, current.ID, func(o *order.Order, p *order.Payment) (bool, error) {
		var err error
		out, err = order.SubmitOrderPayment(o, p, s.now())
		if err != nil {
			return false, err
		}
		return out.PaymentChanged, nil
	})
	if err != nil {
		return OrderResult{}, lookupErr(err, "Order")
	}
	s.emitOutcome(ctx, out, o, p)
	return OrderResult{Order: o, Payment: p}, nil
}

// AttachPaymentProof stores the location of an uploaded transfer receipt on
// the payment and treats the upload as a payment submission. It returns the
// proof URL it replaced, read under the order lock, so the caller can remove
// that object once the new one is committed.
func (s *OrderService) AttachPaymentProof(ctx context.Context, outletID, orderID int64, proofURL string) (OrderResult, string, error) {
	var (
		out      order.Outcome
		replaced string
	)
	o, p, err := s.repo.MutateOrder(ctx, outletID, orderID, func(o *order.Order, p *order.Payment) (bool, error) {
		if err := order.CheckProofUpload(*o, *p); err != nil {
			return false, err
		}
		var err error
		out, err = order.SubmitOrderPayment(o, p, s.now())
		if err != nil {
			return false, err
		}
		if p.ProofURL != nil && *p.ProofURL != proofURL {
			replaced = *p.ProofURL
		}
		url := proofURL
		p.ProofURL = &url
		p.UpdatedAt = s.now()
		out.PaymentChanged = true
		return true, nil
	})
	if err != nil {
		return OrderResult{}, "", lookupErr(err, "Order")
	}
	s.emitOutcome(ctx, out, o, p)
	return OrderResult{Order: o, Payment: p}, replaced, nil
}

func (s *OrderService) RefundPayment(ctx context.Context, outletID, paymentID int64, actor string) (OrderResult, error) {
	payment, err := s.repo.GetPayment(ctx, outletID, paymentID)
	if err != nil {
		return OrderResult{}, lookupErr(err, "Payment")
	}

	var out order.Outcome
	o, p, err := s.repo.MutateOrder(ctx, outletID, payment.OrderID, func(o *order.Order, p *order.Payment) (bool, error) {
		var err error
		out, err = order.RefundOrderPayment(o, p, actor, s.now())
		if err != nil {
			return false, err
		}
		return out.PaymentChanged || out.StatusChanged, nil
	})
	if err != nil {
		return OrderResult{}, lookupErr(err, "Order")
	}
	if out.PaymentChanged {
		s.logger.Info("payment refunded",
			zap.Int64("outletId", outletID),
			zap.Int64("orderId", o.ID),
			zap.Int64("paymentId", p.ID),
			zap.String("status", string(o.Status)),
			zap.String("actor", actor),
		)
	}
	s.emitOutcome(ctx, out, o, p)
	return OrderResult{Order: o, Payment: p}, nil
}

// ExpireStaleOrders cancels NEW orders whose payment never arrived within
// ttl. Each order is re-checked under its lock, so a confirmation that lands
// between listing and cancelling wins.
func (s *OrderService) ExpireStaleOrders(ctx context.Context, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		return 0, nil
	}
	stale, err := s.repo.ListStaleOrders(ctx, s.now().Add(-ttl), 200)
	if err != nil {
		return 0, lookupErr(err, "Orders")
	}

	expired := 0
	for _, candidate := range stale {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		var changed bool
		o, p, err := s.repo.MutateOrder(ctx, candidate.OutletID, candidate.ID, func(o *order.Order, p *order.Payment) (bool, error) {
			if o.Status != order.StatusNew || p.Status == order.PaymentPaid || p.Status == order.PaymentRefunded {
				return false, nil
			}
			var err error
			changed, err = o.Transition(order.StatusCancelled)
			if changed {
				o.UpdatedAt = s.now()
			}
			return changed, err
		})
		if err != nil {
			s.logger.Warn("expire order failed", zap.Int64("orderId", candidate.ID), zap.Error(err))
			continue
		}
		if changed {
			expired++
			s.publish(ctx, realtime.EventOrderStatusUpdated, o, p)
		}
	}
	if expired > 0 {
		s.logger.Info("expired unpaid orders", zap.Int("count", expired), zap.Duration("ttl", ttl))
	}
	return expired, nil
}

// emitOutcome publishes payment.updated before order.status.updated.
func (s *OrderService) emitOutcome(ctx context.Context, out order.Outcome, o order.Order, p order.Payment) {
	if out.PaymentChanged {
		s.publish(ctx, realtime.EventPaymentUpdated, o, p)
	}
	if out.StatusChanged {
		s.publish(ctx, realtime.EventOrderStatusUpdated, o, p)
	}
}
