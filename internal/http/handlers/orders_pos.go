package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"qrpos-order-services/internal/order"
	"qrpos-order-services/internal/receipt"
	"qrpos-order-services/internal/services"
	"qrpos-order-services/internal/utils"
	"qrpos-order-services/pkg/response"
)

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) POSOrderCreate(w http.ResponseWriter, r *http.Request) {
	ac, ok := staffContext(w, r)
	if !ok {
		return
	}
	var req services.POSOrderRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err, false)
		return
	}

	result, err := h.Orders.CreatePOSOrder(r.Context(), ac.OutletID, req, ac.UserID)
	if err != nil {
		h.writeError(w, r, err, false)
		return
	}
	response.Created(w, result)
}

// POSOrderList returns the outlet's open orders, oldest first. Screens poll
// it as a fallback when the websocket drops.
func (h *Handler) POSOrderList(w http.ResponseWriter, r *http.Request) {
	ac, ok := staffContext(w, r)
	if !ok {
		return
	}
	orders, err := h.Orders.ActiveOrders(r.Context(), ac.OutletID)
	if err != nil {
		h.writeError(w, r, err, false)
		return
	}
	response.Success(w, orders)
}

func (h *Handler) POSOrderDetail(w http.ResponseWriter, r *http.Request) {
	ac, ok := staffContext(w, r)
	if !ok {
		return
	}
	orderID, err := readPathInt64(r, "orderId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, string(order.CodeValidation), "Order ID is required")
		return
	}
	result, err := h.Orders.GetOrder(r.Context(), ac.OutletID, orderID)
	if err != nil {
		h.writeError(w, r, err, false)
		return
	}
	response.Success(w, result)
}

func (h *Handler) POSOrderStatus(w http.ResponseWriter, r *http.Request) {
	h.updateStatus(w, r, nil)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request, allowed map[order.Status]bool) {
	ac, ok := staffContext(w, r)
	if !ok {
		return
	}
	orderID, err := readPathInt64(r, "orderId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, string(order.CodeValidation), "Order ID is required")
		return
	}
	var req statusRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err, false)
		return
	}
	to, ok := order.ParseStatus(req.Status)
	if !ok {
		response.Error(w, http.StatusBadRequest, string(order.CodeValidation), "Unknown status: "+req.Status)
		return
	}
	if allowed != nil && !allowed[to] {
		response.Error(w, http.StatusForbidden, "FORBIDDEN", "This screen cannot move orders to "+string(to))
		return
	}

	result, err := h.Orders.UpdateStatus(r.Context(), ac.OutletID, orderID, to, ac.UserID)
	if err != nil {
		h.writeError(w, r, err, false)
		return
	}
	response.Success(w, result)
}

func (h *Handler) POSOrderReceiptPDF(w http.ResponseWriter, r *http.Request) {
	ac, ok := staffContext(w, r)
	if !ok {
		return
	}
	orderID, err := readPathInt64(r, "orderId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, string(order.CodeValidation), "Order ID is required")
		return
	}
	ctx := r.Context()
	result, err := h.Orders.GetOrder(ctx, ac.OutletID, orderID)
	if err != nil {
		h.writeError(w, r, err, false)
		return
	}
	outlet, err := h.Repo.GetOutlet(ctx, ac.OutletID)
	if err != nil {
		h.writeError(w, r, repoErr(err, "Outlet"), false)
		return
	}
	data := receipt.Data{Outlet: outlet, Order: result.Order, Payment: result.Payment}
	if result.Order.TableID != nil {
		if table, err := h.Repo.GetTable(ctx, ac.OutletID, *result.Order.TableID); err == nil {
			data.TableLabel = table.Label
		}
	}

	pdf, err := receipt.RenderPDF(data)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to generate receipt")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=\"%s\"", receipt.Filename(outlet, result.Order)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

// POSTableQR renders the QR sticker for a table. ?size= sets the edge in
// pixels.
func (h *Handler) POSTableQR(w http.ResponseWriter, r *http.Request) {
	ac, ok := staffContext(w, r)
	if !ok {
		return
	}
	tableID, err := readPathInt64(r, "tableId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, string(order.CodeValidation), "Table ID is required")
		return
	}
	size := 512
	if raw := r.URL.Query().Get("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 128 || parsed > 2048 {
			response.Error(w, http.StatusBadRequest, string(order.CodeValidation), "size must be between 128 and 2048")
			return
		}
		size = parsed
	}

	table, err := h.Repo.GetTable(r.Context(), ac.OutletID, tableID)
	if err != nil {
		h.writeError(w, r, repoErr(err, "Table"), false)
		return
	}
	png, err := utils.GenerateQRPNG(utils.TableOrderURL(h.Config.PublicMenuBaseURL, ac.OutletID, table.ID, table.QRToken), size)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to generate QR code")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
