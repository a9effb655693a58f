// Package checkoutapi talks to the checkout-session-creation endpoint.
package checkoutapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-checkout/internal/domain/checkout"
)

var _ checkout.SessionCreator = (*Client)(nil)

// maxErrorBody caps how much of a failed response is kept in StatusError.
const maxErrorBody = 4 << 10

// StatusError is returned when the endpoint replies with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("checkout endpoint returned %d: %s", e.Code, e.Body)
}

// Client creates checkout sessions by POSTing line items to the endpoint URL.
// Requests are never retried and carry no timeout of their own; cancellation
// comes from the request context.
type Client struct {
	url  string
	http *http.Client
}

// NewClient creates a Client for the endpoint at url. A nil httpClient uses
// http.DefaultClient.
func NewClient(url string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{url: url, http: httpClient}
}

// CreateSession sends items as a JSON array and returns the session found
// under "session.id" in the reply. A reply without that field yields a
// session with an empty ID.
func (c *Client) CreateSession(ctx context.Context, items []checkout.LineItem) (*checkout.Session, error) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	EncodeLineItems(e, items)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(e.Bytes()))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "send request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}

	id, err := decodeSessionID(jx.DecodeBytes(body))
	if err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	return &checkout.Session{ID: id}, nil
}

// decodeSessionID extracts session.id, skipping every other field.
func decodeSessionID(d *jx.Decoder) (string, error) {
	var id string
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "session" || d.Next() != jx.Object {
			return d.Skip()
		}
		return d.Obj(func(d *jx.Decoder, key string) error {
			if key != "id" || d.Next() != jx.String {
				return d.Skip()
			}
			v, err := d.Str()
			if err != nil {
				return err
			}
			id = v
			return nil
		})
	})
	return id, err
}
