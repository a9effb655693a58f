package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/kart-checkout/internal/domain/cart"
)

const instrumentationName = "github.com/xenking/kart-checkout/internal/domain/checkout"

// Handoff outcomes recorded on the kart.checkout.handoffs counter.
const (
	outcomeRedirected  = "redirected"
	outcomeUnavailable = "client_unavailable"
	outcomeSession     = "session_failed"
	outcomeRedirect    = "redirect_failed"
)

// InitiatorConfig holds non-dependency configuration for the Initiator.
type InitiatorConfig struct {
	// Currency is the ISO code attached to every line item, e.g. "GBP".
	Currency string
}

// Initiator converts a cart snapshot into a checkout session and hands it
// to the payment client. Every call is a linear one-shot sequence without
// retries.
type Initiator struct {
	sessions SessionCreator
	currency string

	tracer   trace.Tracer
	handoffs metric.Int64Counter
}

// NewInitiator creates an Initiator that creates sessions through sessions.
func NewInitiator(
	cfg InitiatorConfig,
	sessions SessionCreator,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) (*Initiator, error) {
	handoffs, err := mp.Meter(instrumentationName).Int64Counter("kart.checkout.handoffs",
		metric.WithDescription("Checkout attempts by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create handoffs counter")
	}
	return &Initiator{
		sessions: sessions,
		currency: cfg.Currency,
		tracer:   tp.Tracer(instrumentationName),
		handoffs: handoffs,
	}, nil
}

// Pay acquires a payment client, creates a checkout session for items and
// redirects to it. items must be a snapshot; Pay does not observe later cart
// changes. The redirect is invoked only when every earlier step succeeded.
func (i *Initiator) Pay(ctx context.Context, acquire ClientFunc, items []cart.Item) (rerr error) {
	ctx, span := i.tracer.Start(ctx, "checkout.Pay",
		trace.WithAttributes(attribute.Int("checkout.items", len(items))),
	)
	outcome := outcomeRedirected
	defer func() {
		i.handoffs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	client, err := acquire(ctx)
	if err != nil || client == nil {
		outcome = outcomeUnavailable
		if err != nil {
			return &unavailableError{cause: err}
		}
		return ErrPaymentClientUnavailable
	}

	lineItems := BuildLineItems(items, i.currency)

	session, err := i.sessions.CreateSession(ctx, lineItems)
	if err != nil {
		outcome = outcomeSession
		return errors.Wrap(err, "create session")
	}

	var sessionID string
	if session != nil {
		sessionID = session.ID
	}
	span.SetAttributes(attribute.String("checkout.session_id", sessionID))

	if err := client.RedirectToCheckout(ctx, sessionID); err != nil {
		outcome = outcomeRedirect
		return errors.Wrap(err, "redirect to checkout")
	}
	return nil
}

// unavailableError matches ErrPaymentClientUnavailable and keeps the
// acquisition failure as its cause.
type unavailableError struct {
	cause error
}

func (e *unavailableError) Error() string {
	return ErrPaymentClientUnavailable.Error() + ": " + e.cause.Error()
}

func (e *unavailableError) Is(target error) bool { return target == ErrPaymentClientUnavailable }

func (e *unavailableError) Unwrap() error { return e.cause }
