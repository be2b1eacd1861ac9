package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/burgershop/order-service/internal/domain/order"
)

// PlaceOrder handles POST /api/orders.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	caller := identity(r)

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return
	}

	res, err := h.orders.PlaceOrder(r.Context(), caller, req.toDomain())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if res.CouponFault != nil {
		// Already logged by the service; the order itself succeeded.
		zctx.From(r.Context()).Debug("Order placed with coupon fault",
			zap.String("order_id", res.Order.ID),
		)
	}

	writeJSON(w, http.StatusCreated, placeOrderResponse{
		Message: "Order placed successfully.",
		OrderID: res.Order.ID,
	})
}

// ListOrders handles GET /api/orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListAll(r.Context(), identity(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderList(orders))
}

// ListUserOrders handles GET /api/users/{userID}/orders.
func (h *Handler) ListUserOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListByUser(r.Context(), identity(r), chi.URLParam(r, "userID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderList(orders))
}

// GetOrder handles GET /api/orders/{orderID}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), identity(r), chi.URLParam(r, "orderID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// UpdateStatus handles PUT /api/orders/{orderID}/status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return
	}

	id := chi.URLParam(r, "orderID")
	o, err := h.orders.UpdateStatus(r.Context(), identity(r), id, req.target())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updateStatusResponse{
		Message: fmt.Sprintf("Order %s status updated to %s.", o.ID, o.Status),
		Order:   toOrderResponse(o),
	})
}

// DeleteOrder handles DELETE /api/orders/{orderID}.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Delete(r.Context(), identity(r), chi.URLParam(r, "orderID")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Order deleted successfully."})
}
