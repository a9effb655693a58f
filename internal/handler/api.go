package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/checkoutapi"
)

const maxCheckoutBody = 1 << 20

// ListProducts serves GET /api/product.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		zctx.From(r.Context()).Error("List products", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	var e jx.Encoder
	e.ArrStart()
	for _, p := range products {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(p.ID)
		e.FieldStart("title")
		e.Str(p.Title)
		e.FieldStart("price")
		e.RawStr(p.Price.String())
		e.ObjEnd()
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, e.Bytes())
}

// CreateCheckoutSession serves POST /api/checkout: the body is the
// line-item array, the reply is {"session":{...}} from the provider.
func (h *Handler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCheckoutBody))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	items, err := checkoutapi.DecodeLineItems(jx.DecodeBytes(body))
	if err != nil {
		msg := "malformed line items"
		if errors.Is(err, checkoutapi.ErrNotArray) {
			msg = err.Error()
		}
		writeJSONError(w, http.StatusBadRequest, msg)
		return
	}

	s, err := h.sessions.Create(ctx, items)
	if err != nil {
		zctx.From(ctx).Error("Create checkout session",
			zap.Int("line_items", len(items)),
			zap.Error(err),
		)
		writeJSONError(w, http.StatusBadGateway, "checkout session could not be created")
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("session")
	e.ObjStart()
	e.FieldStart("id")
	e.Str(s.ID)
	e.FieldStart("object")
	e.Str("checkout.session")
	e.FieldStart("url")
	e.Str(s.URL)
	e.FieldStart("status")
	e.Str(s.Status)
	e.FieldStart("currency")
	e.Str(s.Currency)
	e.FieldStart("amount_total")
	e.Int64(s.AmountTotal)
	e.ObjEnd()
	e.ObjEnd()
	writeJSON(w, http.StatusOK, e.Bytes())
}
