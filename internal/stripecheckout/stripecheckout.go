// Package stripecheckout creates hosted Checkout Sessions through the Stripe
// API.
package stripecheckout

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"

	"github.com/xenking/kart-checkout/internal/domain/checkout"
)

// Config holds the Stripe credentials and return URLs.
type Config struct {
	SecretKey  string
	SuccessURL string
	CancelURL  string
	// Backend overrides the Stripe API backend. When nil the default API
	// backend is used.
	Backend stripe.Backend
}

// Session is the subset of a Stripe Checkout Session exposed to callers.
type Session struct {
	ID          string
	URL         string
	Status      string
	Currency    string
	AmountTotal int64
}

// Service creates Checkout Sessions in payment mode.
type Service struct {
	client     *session.Client
	successURL string
	cancelURL  string
}

// New creates a Service from cfg.
func New(cfg Config) *Service {
	backend := cfg.Backend
	if backend == nil {
		backend = stripe.GetBackend(stripe.APIBackend)
	}
	return &Service{
		client:     &session.Client{B: backend, Key: cfg.SecretKey},
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
	}
}

// Create opens a Checkout Session for items. Amounts, currencies and
// quantities are forwarded untouched; Stripe validates them.
func (s *Service) Create(ctx context.Context, items []checkout.LineItem) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(s.successURL),
		CancelURL:  stripe.String(s.cancelURL),
		LineItems:  make([]*stripe.CheckoutSessionLineItemParams, len(items)),
	}
	params.Context = ctx

	for i, item := range items {
		params.LineItems[i] = &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(item.PriceData.Currency),
				UnitAmount: stripe.Int64(item.PriceData.UnitAmount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.PriceData.ProductData.Name),
				},
			},
			Quantity: stripe.Int64(int64(item.Quantity)),
		}
	}

	cs, err := s.client.New(params)
	if err != nil {
		return nil, errors.Wrap(err, "create stripe checkout session")
	}

	return &Session{
		ID:          cs.ID,
		URL:         cs.URL,
		Status:      string(cs.Status),
		Currency:    string(cs.Currency),
		AmountTotal: cs.AmountTotal,
	}, nil
}
