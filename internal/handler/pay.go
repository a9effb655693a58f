package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/payment"
)

// Pay starts checkout for a snapshot of the visitor's cart and, on success,
// answers with a 303 to the hosted checkout page.
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	items := h.snapshot(r)

	nav := payment.NavigatorFunc(func(target string) {
		http.Redirect(w, r, target, http.StatusSeeOther)
	})
	acquire := func(ctx context.Context) (checkout.PaymentClient, error) {
		c, err := h.payments.Load(ctx, nav)
		if err != nil {
			return nil, err
		}
		return c, nil
	}

	if err := h.initiator.Pay(ctx, acquire, items); err != nil {
		code := payErrorStatus(err)
		zctx.From(ctx).Error("Checkout failed",
			zap.Int("items", len(items)),
			zap.Int("status", code),
			zap.Error(err),
		)
		http.Error(w, http.StatusText(code), code)
		return
	}

	zctx.From(ctx).Info("Checkout handed off", zap.Int("items", len(items)))
}

// payErrorStatus maps a Pay failure to an HTTP status. A missing payment
// client is our own configuration problem; anything later failed upstream.
func payErrorStatus(err error) int {
	if errors.Is(err, checkout.ErrPaymentClientUnavailable) {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}
