package handler

import (
	"encoding/json"
	"net/http"
	"strings"
)

// ApplyCoupon handles POST /api/coupons/apply. It previews the discount and
// never consumes the coupon.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req applyCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "code is required")
		return
	}
	if !req.CartTotal.Valid || req.CartTotal.Decimal.IsNegative() {
		writeError(w, http.StatusBadRequest, "invalid_input", "cartTotal must be a non-negative amount")
		return
	}

	d, err := h.coupons.Preview(r.Context(), code, identity(r).UserID, req.CartTotal.Decimal)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplyCouponResponse(d))
}
