// Package checkout turns a cart snapshot into a payment checkout session and
// hands the session off to the provider's hosted payment page.
package checkout

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrPaymentClientUnavailable is returned when no payment client handle could
// be acquired. Pay gives up immediately in that case.
var ErrPaymentClientUnavailable = errors.New("payment client unavailable")

// LineItem is the wire representation of a cart item sent to create a
// checkout session.
type LineItem struct {
	PriceData PriceData
	Quantity  int
}

// PriceData describes the unit price of a line item.
type PriceData struct {
	Currency string
	// UnitAmount is the price in minor currency units (e.g. pence).
	UnitAmount  int64
	ProductData ProductData
}

// ProductData names the product being paid for.
type ProductData struct {
	Name string
}

// Session is a checkout session issued by the session-creation endpoint.
type Session struct {
	ID string
}

// SessionCreator creates checkout sessions from a list of line items.
type SessionCreator interface {
	CreateSession(ctx context.Context, items []LineItem) (*Session, error)
}

// PaymentClient hands a checkout session off to the hosted payment page.
type PaymentClient interface {
	RedirectToCheckout(ctx context.Context, sessionID string) error
}

// ClientFunc acquires a payment client handle.
type ClientFunc func(ctx context.Context) (PaymentClient, error)
