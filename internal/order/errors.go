package order

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	CodeEmptyOrder              ErrorCode = "EMPTY_ORDER"
	CodeInvalidOrderItem        ErrorCode = "INVALID_ORDER_ITEM"
	CodeInvalidDiscount         ErrorCode = "INVALID_DISCOUNT"
	CodeValidation              ErrorCode = "VALIDATION_ERROR"
	CodeNotFound                ErrorCode = "NOT_FOUND"
	CodePaymentMethodNotEnabled ErrorCode = "PAYMENT_METHOD_NOT_ENABLED"
	CodeChannelNotEnabled       ErrorCode = "CHANNEL_NOT_ENABLED"
	CodeIllegalStateTransition  ErrorCode = "ILLEGAL_STATE_TRANSITION"
	CodeInvalidOperation        ErrorCode = "INVALID_OPERATION"
)

// Kind separates input problems from state conflicts so callers can offer
// "fix your input" versus "refresh and retry".
type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindConflict
)

type Error struct {
	Code    ErrorCode
	Kind    Kind
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches on the error code so callers can compare against the sentinels
// below with errors.Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

var (
	ErrEmptyOrder              = &Error{Code: CodeEmptyOrder, Kind: KindValidation, Message: "Order must have at least one item"}
	ErrInvalidOrderItem        = &Error{Code: CodeInvalidOrderItem, Kind: KindValidation, Message: "Invalid order item"}
	ErrInvalidDiscount         = &Error{Code: CodeInvalidDiscount, Kind: KindValidation, Message: "Invalid discount"}
	ErrNotFound                = &Error{Code: CodeNotFound, Kind: KindNotFound, Message: "Not found"}
	ErrPaymentMethodNotEnabled = &Error{Code: CodePaymentMethodNotEnabled, Kind: KindValidation, Message: "Payment method is not enabled for this outlet"}
	ErrChannelNotEnabled       = &Error{Code: CodeChannelNotEnabled, Kind: KindValidation, Message: "Ordering channel is not enabled for this outlet"}
	ErrIllegalStateTransition  = &Error{Code: CodeIllegalStateTransition, Kind: KindConflict, Message: "Illegal state transition"}
	ErrInvalidOperation        = &Error{Code: CodeInvalidOperation, Kind: KindConflict, Message: "Invalid operation"}
)

func Validation(message string) *Error {
	return &Error{Code: CodeValidation, Kind: KindValidation, Message: message}
}

func InvalidItem(message string, index int) *Error {
	return &Error{
		Code:    CodeInvalidOrderItem,
		Kind:    KindValidation,
		Message: message,
		Details: map[string]any{"index": index},
	}
}

func NotFound(what string) *Error {
	return &Error{Code: CodeNotFound, Kind: KindNotFound, Message: what + " not found"}
}

func IllegalTransition(from, to string) *Error {
	return &Error{
		Code:    CodeIllegalStateTransition,
		Kind:    KindConflict,
		Message: fmt.Sprintf("Cannot transition from %s to %s", from, to),
		Details: map[string]any{"from": from, "to": to},
	}
}

func InvalidOperation(message string) *Error {
	return &Error{Code: CodeInvalidOperation, Kind: KindConflict, Message: message}
}

// AsError unwraps err into an *Error when it carries one.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
