package handlers

import (
	"net/http"

	"qrpos-order-services/internal/order"
	"qrpos-order-services/pkg/response"
)

// PaymentConfirm marks a payment PAID. Repeating it is harmless: the second
// call returns the already confirmed payment.
func (h *Handler) PaymentConfirm(w http.ResponseWriter, r *http.Request) {
	ac, ok := staffContext(w, r)
	if !ok {
		return
	}
	paymentID, err := readPathInt64(r, "paymentId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, string(order.CodeValidation), "Payment ID is required")
		return
	}
	result, err := h.Orders.ConfirmPayment(r.Context(), ac.OutletID, paymentID, ac.UserID)
	if err != nil {
		h.writeError(w, r, err, false)
		return
	}
	response.Success(w, result)
}

func (h *Handler) PaymentConfirmByOrder(w http.ResponseWriter, r *http.Request) {
	ac, ok := staffContext(w, r)
	if !ok {
		return
	}
	orderID, err := readPathInt64(r, "orderId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, string(order.CodeValidation), "Order ID is required")
		return
	}
	result, err := h.Orders.ConfirmPaymentByOrder(r.Context(), ac.OutletID, orderID, ac.UserID)
	if err != nil {
		h.writeError(w, r, err, false)
		return
	}
	response.Success(w, result)
}

func (h *Handler) PaymentRefund(w http.ResponseWriter, r *http.Request) {
	ac, ok := staffContext(w, r)
	if !ok {
		return
	}
	paymentID, err := readPathInt64(r, "paymentId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, string(order.CodeValidation), "Payment ID is required")
		return
	}
	result, err := h.Orders.RefundPayment(r.Context(), ac.OutletID, paymentID, ac.UserID)
	if err != nil {
		h.writeError(w, r, err, false)
		return
	}
	response.Success(w, result)
}
