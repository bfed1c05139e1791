package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"qrpos-order-services/internal/order"
	"qrpos-order-services/internal/services"
	"qrpos-order-services/internal/storage"
	"qrpos-order-services/internal/utils"
	"qrpos-order-services/pkg/response"
)

type publicOrderCreated struct {
	services.QROrderResult
	TrackingToken string `json:"trackingToken"`
}

// PublicOrderCreate places an order from a table QR code.
func (h *Handler) PublicOrderCreate(w http.ResponseWriter, r *http.Request) {
	var req services.QROrderRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err, true)
		return
	}

	result, err := h.Orders.CreateQROrder(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err, true)
		return
	}

	response.Created(w, publicOrderCreated{
		QROrderResult: result,
		TrackingToken: utils.CreateOrderTrackingToken(h.Config.OrderTrackingTokenSecret, result.Order.OutletID, result.Order.Code),
	})
}

// trackedOrder resolves {orderCode} with the outletId and token query
// parameters. A bad token looks exactly like a missing order.
func (h *Handler) trackedOrder(w http.ResponseWriter, r *http.Request) (services.OrderResult, bool) {
	code := strings.ToUpper(readPathString(r, "orderCode"))
	outletID, err := readQueryInt64(r, "outletId")
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if code == "" || err != nil || token == "" {
		response.Error(w, http.StatusBadRequest, string(order.CodeValidation), "Order code, outletId and token are required")
		return services.OrderResult{}, false
	}
	if !utils.VerifyOrderTrackingToken(h.Config.OrderTrackingTokenSecret, token, outletID, code) {
		response.Error(w, http.StatusNotFound, string(order.CodeNotFound), "Order not found")
		return services.OrderResult{}, false
	}
	result, err := h.Orders.GetOrderByCode(r.Context(), outletID, code)
	if err != nil {
		h.writeError(w, r, err, true)
		return services.OrderResult{}, false
	}
	return result, true
}

func (h *Handler) PublicOrderDetail(w http.ResponseWriter, r *http.Request) {
	result, ok := h.trackedOrder(w, r)
	if !ok {
		return
	}
	response.Success(w, result)
}

// PublicOrderPaymentSubmitted records that the customer says they paid.
func (h *Handler) PublicOrderPaymentSubmitted(w http.ResponseWriter, r *http.Request) {
	current, ok := h.trackedOrder(w, r)
	if !ok {
		return
	}
	result, err := h.Orders.MarkPaymentSubmitted(r.Context(), current.Order.OutletID, current.Order.Code)
	if err != nil {
		h.writeError(w, r, err, true)
		return
	}
	response.Success(w, result)
}

// PublicOrderUploadProof accepts a transfer receipt image as multipart field
// "file".
func (h *Handler) PublicOrderUploadProof(w http.ResponseWriter, r *http.Request) {
	current, ok := h.trackedOrder(w, r)
	if !ok {
		return
	}
	if current.Payment.Method == order.MethodCash {
		response.Error(w, http.StatusBadRequest, string(order.CodeInvalidOperation), "Cash payments do not take a payment proof")
		return
	}
	if err := order.CheckProofUpload(current.Order, current.Payment); err != nil {
		h.writeError(w, r, err, true)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.Config.MaxFileSizeBytes+1024*1024)
	if err := r.ParseMultipartForm(h.Config.MaxFileSizeBytes); err != nil {
		response.Error(w, http.StatusBadRequest, string(order.CodeValidation), "File is too large or the form is invalid")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		response.Error(w, http.StatusBadRequest, string(order.CodeValidation), "File is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.Config.MaxFileSizeBytes+1))
	if err != nil {
		response.Error(w, http.StatusBadRequest, string(order.CodeValidation), "Failed to read file")
		return
	}
	if int64(len(data)) > h.Config.MaxFileSizeBytes {
		response.Error(w, http.StatusBadRequest, string(order.CodeValidation), "File is too large")
		return
	}
	if !utils.IsProofContentType(utils.DetectContentType(data)) {
		response.Error(w, http.StatusBadRequest, string(order.CodeValidation), "Payment proof must be an image")
		return
	}

	ctx := r.Context()
	stored, err := h.Proofs.SaveProof(ctx, current.Order.OutletID, current.Order.Code, data)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrProofStoreDisabled):
			response.Error(w, http.StatusServiceUnavailable, "UPLOAD_DISABLED", "Payment proof upload is not available")
		case errors.Is(err, utils.ErrUnsupportedImage):
			response.Error(w, http.StatusBadRequest, string(order.CodeValidation), "Payment proof must be an image")
		default:
			h.writeError(w, r, err, true)
		}
		return
	}

	result, replaced, err := h.Orders.AttachPaymentProof(ctx, current.Order.OutletID, current.Order.ID, stored.URL)
	if err != nil {
		// The payment still points at its old proof; only the new object goes.
		h.Proofs.Discard(context.WithoutCancel(ctx), stored.URL)
		h.writeError(w, r, err, true)
		return
	}
	h.Proofs.Discard(context.WithoutCancel(ctx), replaced)
	response.Success(w, result)
}
