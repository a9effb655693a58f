package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/kart-checkout/pkg/httpmiddleware"
)

// RouteLimits guards the endpoints that reach the payment provider. Nil
// fields disable limiting for that endpoint.
type RouteLimits struct {
	// Pay guards POST /cart/pay.
	Pay httpmiddleware.Middleware
	// Sessions guards POST /api/checkout, which pay also calls over HTTP.
	Sessions httpmiddleware.Middleware
}

// NewRouteLimits gives each visitor maxRequests pay attempts per window,
// keyed by cart cookie. /api/checkout gets the same budget per client IP,
// except for the server's own loopback calls made on behalf of pay, which
// were already counted against the visitor.
func (h *Handler) NewRouteLimits(ctx context.Context, maxRequests int, window time.Duration) RouteLimits {
	return RouteLimits{
		Pay: httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:     maxRequests,
			Window:  window,
			KeyFunc: httpmiddleware.CookieKey(h.cartCookie),
		}),
		Sessions: httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:    maxRequests,
			Window: window,
			Skip:   httpmiddleware.FromLoopback,
		}),
	}
}

// Routes mounts every endpoint on a chi router.
func (h *Handler) Routes(limits RouteLimits) http.Handler {
	r := chi.NewRouter()

	r.Get("/", h.Catalog)
	r.Get("/cart", h.ViewCart)
	r.Post("/cart/items", h.AddItem)
	r.Post("/cart/items/{id}/remove", h.RemoveItem)
	r.Get("/checkout", h.CheckoutDetails)
	r.With(orPass(limits.Pay)).Post("/cart/pay", h.Pay)

	r.Route("/api", func(r chi.Router) {
		r.Get("/product", h.ListProducts)
		r.With(orPass(limits.Sessions)).Post("/checkout", h.CreateCheckoutSession)
	})

	return r
}

func orPass(m httpmiddleware.Middleware) httpmiddleware.Middleware {
	if m == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return m
}
