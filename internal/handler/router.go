package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes holds the handlers mounted by NewRouter.
type Routes struct {
	Handler       *Handler
	Authenticator *Authenticator
	// Events is the WebSocket push channel, mounted at /ws when set.
	Events http.Handler
	// Live and Ready are the health probes.
	Live  http.HandlerFunc
	Ready http.HandlerFunc
	// RateLimit guards the authenticated API when set.
	RateLimit func(http.Handler) http.Handler
}

// NewRouter builds the service router.
func NewRouter(rt Routes) chi.Router {
	r := chi.NewRouter()

	if rt.Live != nil {
		r.Get("/livez", rt.Live)
	}
	if rt.Ready != nil {
		r.Get("/readyz", rt.Ready)
	}

	h := rt.Handler
	r.Route("/api", func(r chi.Router) {
		if rt.RateLimit != nil {
			r.Use(rt.RateLimit)
		}
		r.Use(rt.Authenticator.Middleware(false))

		r.Post("/coupons/apply", h.ApplyCoupon)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.PlaceOrder)
			r.Get("/", h.ListOrders)
			r.Route("/{orderID}", func(r chi.Router) {
				r.Get("/", h.GetOrder)
				r.Delete("/", h.DeleteOrder)
				r.Put("/status", h.UpdateStatus)
				r.Patch("/status", h.UpdateStatus)
			})
		})
		r.Get("/users/{userID}/orders", h.ListUserOrders)
	})

	if rt.Events != nil {
		r.With(rt.Authenticator.Middleware(true)).Handle("/ws", rt.Events)
	}

	return r
}
