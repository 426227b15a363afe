// Package providers implements delivery-provider adapters over their native
// transports, normalized to a single create/status capability interface.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"parcelhub/internal/model"
)

// Credentials is a decrypted credential bundle; shape varies per provider.
type Credentials map[string]string

// Config is the decrypted per-tenant configuration handed to an adapter.
type Config struct {
	TenantID string
	Slug     string
	BaseURL  string
	APIType  string
	Creds    Credentials
	Timeout  time.Duration
}

// Outcome classifies a create call. Unknown means the true result could not be
// established (timeout, unparseable body); the parcel may or may not exist, so
// retries must go through the same idempotency reference.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeAccepted
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeRejected:
		return "rejected"
	}
	return "unknown"
}

// CreateResult is the normalized result of a create-parcel call.
type CreateResult struct {
	Outcome        Outcome
	TrackingNumber string
	Message        string // provider's message, verbatim
	Raw            []byte
	Err            error // set when Outcome == OutcomeUnknown
}

// StatusResult is the normalized result of a status query.
type StatusResult struct {
	OK      bool
	Native  string       // provider's own status vocabulary
	Status  model.Status // canonical mapping, valid when Mapped
	Mapped  bool
	History []model.StatusEvent
	Raw     []byte
	Err     error
}

// Adapter is the capability interface every provider integration implements.
// CreateParcel must not fail on business-level refusal; that is OutcomeRejected.
// CreateParcel must be safe to call twice for the same order: adapters either
// pass the order number as an idempotency reference the provider keys on, or
// rely on the caller's duplicate controls.
type Adapter interface {
	Slug() string
	CreateParcel(ctx context.Context, o model.Order) CreateResult
	CheckStatus(ctx context.Context, trackingNumber string) StatusResult
}

// Error taxonomy. Transport and protocol failures are retryable; auth and
// rejection are not (they need operator action).

type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: transport: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

type ProtocolError struct {
	Op     string
	Detail string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: protocol: %s: %v", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: protocol: %s", e.Op, e.Detail)
}
func (e *ProtocolError) Unwrap() error { return e.Err }

type AuthError struct {
	Slug   string
	Detail string
}

func (e *AuthError) Error() string { return fmt.Sprintf("%s: authentication failed: %s", e.Slug, e.Detail) }

// ErrNotConfigured is returned when a tenant has not enabled the provider.
var ErrNotConfigured = errors.New("provider not configured")

// Retryable reports whether err may succeed on a later attempt.
func Retryable(err error) bool {
	var te *TransportError
	var pe *ProtocolError
	return errors.As(err, &te) || errors.As(err, &pe)
}

// firstJSONObject extracts the first JSON value from body. Some providers glue
// two JSON objects into one response; only the first carries the result.
func firstJSONObject(body []byte) (json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	var first json.RawMessage
	if err := dec.Decode(&first); err != nil {
		return nil, err
	}
	return first, nil
}

const maxResponseBytes = 1 << 20

// do runs req, classifying network errors and 5xx into TransportError and
// returning the response body capped at 1 MiB.
func do(client *http.Client, req *http.Request, op string) (int, []byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, &TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, &TransportError{Op: op, Err: err}
	}
	if resp.StatusCode >= 500 {
		return resp.StatusCode, body, &TransportError{Op: op, Err: fmt.Errorf("http %d", resp.StatusCode)}
	}
	return resp.StatusCode, body, nil
}

// joinProductNames renders the item list the way provider forms expect.
func joinProductNames(items []model.OrderItem, sep string) string {
	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, it.ProductName)
	}
	return strings.Join(names, sep)
}

func totalQuantity(items []model.OrderItem) int {
	n := 0
	for _, it := range items {
		n += it.Quantity
	}
	return n
}

// unknown builds the CreateResult for an ambiguous failure.
func unknown(err error) CreateResult {
	return CreateResult{Outcome: OutcomeUnknown, Err: err, Message: err.Error()}
}
