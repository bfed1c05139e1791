package order

import (
	"strings"
	"time"
)

type Status string

const (
	StatusNew        Status = "NEW"
	StatusAccepted   Status = "ACCEPTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusReady      Status = "READY"
	StatusServed     Status = "SERVED"
	StatusClosed     Status = "CLOSED"
	StatusCancelled  Status = "CANCELLED"
)

// rank orders the forward path. CANCELLED sits outside it.
var rank = map[Status]int{
	StatusNew:        1,
	StatusAccepted:   2,
	StatusInProgress: 3,
	StatusReady:      4,
	StatusServed:     5,
	StatusClosed:     6,
}

func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToUpper(strings.TrimSpace(value)))
	if status == StatusCancelled {
		return status, true
	}
	if _, ok := rank[status]; ok {
		return status, true
	}
	return "", false
}

func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusCancelled
}

// Cancellable reports whether CANCELLED is still reachable from s.
func (s Status) Cancellable() bool {
	switch s {
	case StatusNew, StatusAccepted, StatusInProgress, StatusReady:
		return true
	}
	return false
}

// NeedsPayment reports whether entering s requires a PAID payment.
func (s Status) NeedsPayment() bool {
	r, ok := rank[s]
	return ok && r >= rank[StatusInProgress]
}

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "UNPAID"
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// Transition moves the fulfillment status to the requested value. Repeating the
// current status is a no-op and reports changed=false.
func (o *Order) Transition(to Status) (bool, error) {
	if _, ok := ParseStatus(string(to)); !ok {
		return false, Validation("Unknown order status: " + string(to))
	}
	from := o.Status
	if from == to {
		return false, nil
	}
	if from.Terminal() {
		return false, IllegalTransition(string(from), string(to))
	}

	switch to {
	case StatusCancelled:
		if !from.Cancellable() {
			return false, IllegalTransition(string(from), string(to))
		}
	case StatusClosed:
		if from != StatusServed {
			return false, IllegalTransition(string(from), string(to))
		}
	default:
		if rank[to] <= rank[from] {
			return false, IllegalTransition(string(from), string(to))
		}
		if to.NeedsPayment() && o.PaymentStatus != PaymentPaid {
			err := IllegalTransition(string(from), string(to))
			err.Message = "Payment must be confirmed before the order can move to " + string(to)
			err.Details["paymentStatus"] = string(o.PaymentStatus)
			return false, err
		}
	}

	o.Status = to
	return true, nil
}

// Confirm marks the payment as PAID. A payment that is already PAID is left
// untouched.
func (p *Payment) Confirm(actor string, at time.Time) (bool, error) {
	switch p.Status {
	case PaymentPaid:
		return false, nil
	case PaymentUnpaid, PaymentPending:
		p.Status = PaymentPaid
		p.ConfirmedAt = &at
		p.ConfirmedBy = &actor
		p.UpdatedAt = at
		return true, nil
	}
	return false, IllegalTransition(string(p.Status), string(PaymentPaid))
}

// MarkPending records that the customer reports having paid. It never moves
// a payment backwards out of PAID.
func (p *Payment) MarkPending(at time.Time) (bool, error) {
	switch p.Status {
	case PaymentUnpaid:
		p.Status = PaymentPending
		p.UpdatedAt = at
		return true, nil
	case PaymentPending, PaymentPaid:
		return false, nil
	}
	return false, IllegalTransition(string(p.Status), string(PaymentPending))
}

func (p *Payment) Refund(actor string, at time.Time) (bool, error) {
	switch p.Status {
	case PaymentRefunded:
		return false, nil
	case PaymentPaid:
		p.Status = PaymentRefunded
		p.RefundedAt = &at
		p.RefundedBy = &actor
		p.UpdatedAt = at
		return true, nil
	}
	return false, IllegalTransition(string(p.Status), string(PaymentRefunded))
}

// Outcome reports which of the two axes a mutation changed.
type Outcome struct {
	PaymentChanged bool
	StatusChanged  bool
}

// ConfirmOrderPayment applies a cashier confirmation to an order and its
// payment together. A NEW order is accepted so it shows up in the kitchen
// incoming column.
func ConfirmOrderPayment(o *Order, p *Payment, actor string, at time.Time) (Outcome, error) {
	var out Outcome
	if p.Status == PaymentPaid {
		o.PaymentStatus = PaymentPaid
		return out, nil
	}
	if o.Status == StatusCancelled {
		return out, InvalidOperation("Order is already cancelled")
	}

	changed, err := p.Confirm(actor, at)
	if err != nil {
		return out, err
	}
	out.PaymentChanged = changed
	o.PaymentStatus = p.Status

	if o.Status == StatusNew {
		if _, err := o.Transition(StatusAccepted); err != nil {
			return out, err
		}
		out.StatusChanged = true
	}
	if out.PaymentChanged || out.StatusChanged {
		o.UpdatedAt = at
	}
	return out, nil
}

// RefundOrderPayment refunds a PAID payment. An order still in the kitchen is
// cancelled and a served order is closed, so no order in the kitchen path is
// left without a PAID payment.
func RefundOrderPayment(o *Order, p *Payment, actor string, at time.Time) (Outcome, error) {
	var out Outcome
	changed, err := p.Refund(actor, at)
	if err != nil {
		return out, err
	}
	if !changed {
		return out, nil
	}
	out.PaymentChanged = true
	o.PaymentStatus = p.Status

	switch {
	case o.Status.Cancellable():
		o.Status = StatusCancelled
		out.StatusChanged = true
	case o.Status == StatusServed:
		o.Status = StatusClosed
		out.StatusChanged = true
	}
	o.UpdatedAt = at
	return out, nil
}

// SubmitOrderPayment handles the customer's "I have paid" signal.
func SubmitOrderPayment(o *Order, p *Payment, at time.Time) (Outcome, error) {
	var out Outcome
	if o.Status == StatusCancelled {
		return out, InvalidOperation("Order is already cancelled")
	}
	changed, err := p.MarkPending(at)
	if err != nil {
		return out, err
	}
	if changed {
		out.PaymentChanged = true
		o.PaymentStatus = p.Status
		o.UpdatedAt = at
	}
	return out, nil
}

// CheckProofUpload reports whether the payment still takes a transfer
// proof: not cash, not settled and not on a cancelled order.
func CheckProofUpload(o Order, p Payment) error {
	switch {
	case p.Method == MethodCash:
		return InvalidOperation("Cash payments do not take a payment proof")
	case o.Status == StatusCancelled:
		return InvalidOperation("Order is already cancelled")
	case p.Status == PaymentPaid || p.Status == PaymentRefunded:
		return InvalidOperation("Payment is already settled")
	}
	return nil
}
