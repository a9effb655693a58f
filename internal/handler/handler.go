package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/payment"
	"github.com/xenking/kart-checkout/internal/stripecheckout"
	"github.com/xenking/kart-checkout/internal/view"
)

// DefaultCartCookie names the cookie carrying the visitor's cart ID.
const DefaultCartCookie = "kart_cart"

// SessionProvider creates provider-side checkout sessions for the
// session-creation endpoint.
type SessionProvider interface {
	Create(ctx context.Context, items []checkout.LineItem) (*stripecheckout.Session, error)
}

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// CartCookie is the cookie name for cart IDs. Defaults to DefaultCartCookie.
	CartCookie string
	// SecureCookie marks the cart cookie Secure (HTTPS only).
	SecureCookie bool
}

// Handler serves the storefront pages, the pay action and the JSON API.
type Handler struct {
	products  product.Repository
	carts     *cart.Registry
	initiator *checkout.Initiator
	payments  *payment.Loader
	sessions  SessionProvider
	views     *view.Renderer

	cartCookie   string
	secureCookie bool
}

// NewHandler constructs a Handler with the required dependencies.
func NewHandler(
	cfg HandlerConfig,
	products product.Repository,
	carts *cart.Registry,
	initiator *checkout.Initiator,
	payments *payment.Loader,
	sessions SessionProvider,
	views *view.Renderer,
) *Handler {
	if cfg.CartCookie == "" {
		cfg.CartCookie = DefaultCartCookie
	}
	return &Handler{
		products:     products,
		carts:        carts,
		initiator:    initiator,
		payments:     payments,
		sessions:     sessions,
		views:        views,
		cartCookie:   cfg.CartCookie,
		secureCookie: cfg.SecureCookie,
	}
}

// lookupCart returns the visitor's cart, or nil if they have none yet.
func (h *Handler) lookupCart(r *http.Request) *cart.Store {
	c, err := r.Cookie(h.cartCookie)
	if err != nil {
		return nil
	}
	s, ok := h.carts.Get(c.Value)
	if !ok {
		return nil
	}
	return s
}

// ensureCart returns the visitor's cart, creating it and setting the cookie
// when missing or expired.
func (h *Handler) ensureCart(w http.ResponseWriter, r *http.Request) *cart.Store {
	if s := h.lookupCart(r); s != nil {
		return s
	}
	id, s := h.carts.Create()
	http.SetCookie(w, &http.Cookie{
		Name:     h.cartCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return s
}

// snapshot returns the current items of the visitor's cart.
func (h *Handler) snapshot(r *http.Request) []cart.Item {
	if s := h.lookupCart(r); s != nil {
		return s.Items()
	}
	return nil
}

// writeJSONError replies {"code":N,"message":"..."} with status code.
func writeJSONError(w http.ResponseWriter, code int, msg string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(code)
	e.FieldStart("message")
	e.Str(msg)
	e.ObjEnd()
	writeJSON(w, code, e.Bytes())
}

func writeJSON(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}
