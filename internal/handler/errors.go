package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/burgershop/order-service/internal/domain/auth"
	"github.com/burgershop/order-service/internal/domain/coupon"
	"github.com/burgershop/order-service/internal/domain/order"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// writeDomainError maps err onto the API error taxonomy. Unknown errors are
// logged and reported without detail.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := classify(err)
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}
	writeError(w, status, code, message)
}

func classify(err error) (status int, code, message string) {
	var inErr *order.InvalidInputError
	switch {
	case errors.As(err, &inErr):
		return http.StatusBadRequest, "invalid_input", inErr.Error()
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated", "missing or invalid api key"
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, "not_authorized", "not authorized"
	case errors.Is(err, coupon.ErrNotAssigned):
		return http.StatusForbidden, "not_authorized", coupon.ErrNotAssigned.Error()
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, "not_found", order.ErrNotFound.Error()
	case errors.Is(err, coupon.ErrNotFound):
		return http.StatusNotFound, "not_found", coupon.ErrNotFound.Error()
	case errors.Is(err, coupon.ErrAlreadyUsed):
		return http.StatusConflict, "coupon_already_used", coupon.ErrAlreadyUsed.Error()
	case errors.Is(err, coupon.ErrExpired):
		return http.StatusGone, "coupon_expired", coupon.ErrExpired.Error()
	case errors.Is(err, order.ErrFinalized):
		return http.StatusConflict, "order_finalized", order.ErrFinalized.Error()
	default:
		return http.StatusInternalServerError, "internal", "internal server error"
	}
}
