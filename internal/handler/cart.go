package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/view"
)

// Catalog renders the product list with "Add to cart" forms.
func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		zctx.From(r.Context()).Error("List products", zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	h.renderPage(w, r, func(w http.ResponseWriter) error {
		return h.views.Catalog(w, view.CatalogPage{Products: products})
	})
}

// ViewCart renders the cart contents and the summary.
func (h *Handler) ViewCart(w http.ResponseWriter, r *http.Request) {
	page := view.NewCartPage(h.snapshot(r))
	h.renderPage(w, r, func(w http.ResponseWriter) error {
		return h.views.Cart(w, page)
	})
}

// CheckoutDetails renders the order details page linked from the summary.
func (h *Handler) CheckoutDetails(w http.ResponseWriter, r *http.Request) {
	page := view.NewCheckoutPage(h.snapshot(r))
	h.renderPage(w, r, func(w http.ResponseWriter) error {
		return h.views.Checkout(w, page)
	})
}

// AddItem adds count units of the product id to the visitor's cart.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	count := 1
	if v := r.PostForm.Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "count must be a positive integer", http.StatusBadRequest)
			return
		}
		count = n
	}

	p, err := h.products.GetByID(r.Context(), r.PostForm.Get("id"))
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			http.Error(w, "product not found", http.StatusNotFound)
			return
		}
		zctx.From(r.Context()).Error("Get product", zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.ensureCart(w, r).Add(cart.Item{
		ID:    p.ID,
		Title: p.Title,
		Price: p.Price,
		Count: count,
	})
	http.Redirect(w, r, "/cart", http.StatusSeeOther)
}

// RemoveItem drops an item from the visitor's cart. Unknown items and
// visitors without a cart are redirected back unchanged.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if s := h.lookupCart(r); s != nil {
		s.Remove(chi.URLParam(r, "id"))
	}
	http.Redirect(w, r, "/cart", http.StatusSeeOther)
}

func (h *Handler) renderPage(w http.ResponseWriter, r *http.Request, render func(http.ResponseWriter) error) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := render(w); err != nil {
		zctx.From(r.Context()).Error("Render page", zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
