// Package payment is the client-side handle of the payment provider: it
// sends the visitor to the provider's hosted checkout page for a session.
package payment

import (
	"context"
	"net/url"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-checkout/internal/domain/checkout"
)

var _ checkout.PaymentClient = (*Client)(nil)

var (
	// ErrUnavailable is returned by Load when the provider cannot be used,
	// e.g. because no publishable key is configured.
	ErrUnavailable = errors.New("payment provider unavailable")
	// ErrMissingSessionID is returned by RedirectToCheckout for an empty ID.
	ErrMissingSessionID = errors.New("missing checkout session id")
)

// Navigator performs a full navigation of the visitor's browser.
type Navigator interface {
	Navigate(target string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(target string)

// Navigate calls f(target).
func (f NavigatorFunc) Navigate(target string) { f(target) }

// LoaderConfig configures the payment provider handle.
type LoaderConfig struct {
	// PublishableKey identifies the merchant to the hosted checkout page.
	PublishableKey string
	// CheckoutURL is the base URL of the hosted checkout page; the session ID
	// is appended as the last path segment.
	CheckoutURL string
}

// Loader hands out payment clients bound to a single navigation target.
type Loader struct {
	publishableKey string
	checkoutURL    string
}

// NewLoader creates a Loader from cfg.
func NewLoader(cfg LoaderConfig) *Loader {
	return &Loader{
		publishableKey: cfg.PublishableKey,
		checkoutURL:    strings.TrimSuffix(cfg.CheckoutURL, "/"),
	}
}

// Load returns a client that navigates through nav.
func (l *Loader) Load(_ context.Context, nav Navigator) (*Client, error) {
	if l.publishableKey == "" {
		return nil, errors.Wrap(ErrUnavailable, "publishable key is not configured")
	}
	if l.checkoutURL == "" {
		return nil, errors.Wrap(ErrUnavailable, "checkout URL is not configured")
	}
	return &Client{checkoutURL: l.checkoutURL, nav: nav}, nil
}

// Client redirects to the hosted checkout page.
type Client struct {
	checkoutURL string
	nav         Navigator
}

// CheckoutURL returns the hosted page address for sessionID.
func (c *Client) CheckoutURL(sessionID string) string {
	return c.checkoutURL + "/" + url.PathEscape(sessionID)
}

// RedirectToCheckout navigates to the hosted checkout page of sessionID.
func (c *Client) RedirectToCheckout(_ context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrMissingSessionID
	}
	c.nav.Navigate(c.CheckoutURL(sessionID))
	return nil
}
