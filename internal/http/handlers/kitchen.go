package handlers

import (
	"net/http"

	"qrpos-order-services/internal/order"
	"qrpos-order-services/pkg/response"
)

var kitchenTargets = map[order.Status]bool{
	order.StatusInProgress: true,
	order.StatusReady:      true,
	order.StatusServed:     true,
}

// KDSBoard returns the paid, unfinished orders split into the three kitchen
// columns.
func (h *Handler) KDSBoard(w http.ResponseWriter, r *http.Request) {
	ac, ok := staffContext(w, r)
	if !ok {
		return
	}
	board, err := h.Orders.KitchenBoard(r.Context(), ac.OutletID)
	if err != nil {
		h.writeError(w, r, err, false)
		return
	}
	response.Success(w, board)
}

func (h *Handler) KDSOrderStatus(w http.ResponseWriter, r *http.Request) {
	h.updateStatus(w, r, kitchenTargets)
}
