package stripe_webhook

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const (
	SignatureHeader  = "Stripe-Signature"
	DefaultTolerance = webhook.DefaultTolerance
)

var (
	ErrMissingSecret = errors.New("stripe webhook secret is not configured")
	ErrMissingHeader = errors.New("missing Stripe-Signature header")
	// ErrSignature wraps every signature failure reported by stripe-go
	// (webhook.ErrInvalidHeader, ErrNoValidSignature, ErrTooOld, ErrNotSigned).
	ErrSignature      = errors.New("stripe webhook signature rejected")
	ErrInvalidPayload = errors.New("webhook payload is not a stripe event")
)

// Event is a verified Stripe event.
type Event struct {
	stripe.Event
}

// TypeName is the event type as a plain string, e.g. "checkout.session.completed".
func (e *Event) TypeName() string { return string(e.Type) }

// CheckoutSession is a Checkout Session carried by an event.
type CheckoutSession struct {
	stripe.CheckoutSession
}

// Paid reports whether funds are captured.
func (s *CheckoutSession) Paid() bool {
	return s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
		s.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired
}

// Email prefers metadata, then customer_email, then customer_details.
func (s *CheckoutSession) Email() string {
	if e := strings.TrimSpace(s.Metadata["email"]); e != "" {
		return e
	}
	if e := strings.TrimSpace(s.CustomerEmail); e != "" {
		return e
	}
	if s.CustomerDetails != nil {
		return strings.TrimSpace(s.CustomerDetails.Email)
	}
	return ""
}

// CheckoutSession decodes data.object as a Checkout Session.
func (e *Event) CheckoutSession() (*CheckoutSession, error) {
	if e.Data == nil || len(e.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: event %s has no data.object", ErrInvalidPayload, e.ID)
	}
	var s CheckoutSession
	if err := json.Unmarshal(e.Data.Raw, &s.CheckoutSession); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if s.ID == "" {
		return nil, fmt.Errorf("%w: checkout session id is empty", ErrInvalidPayload)
	}
	return &s, nil
}

// Verifier checks Stripe-Signature headers with stripe-go and decodes the
// event. Events are accepted whatever API version the account is pinned to.
type Verifier struct {
	secret    string
	tolerance time.Duration
}

func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{secret: secret, tolerance: tolerance}
}

// ConstructEvent verifies header against payload and decodes the event.
// Signature failures wrap ErrSignature; a signed body that is not an event
// wraps ErrInvalidPayload.
func (v *Verifier) ConstructEvent(payload []byte, header string) (*Event, error) {
	if err := v.precheck(header); err != nil {
		return nil, err
	}
	ev, err := webhook.ConstructEventWithOptions(payload, header, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return nil, fmt.Errorf("%w: %w", ErrSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if ev.ID == "" || ev.Type == "" {
		return nil, fmt.Errorf("%w: missing id or type", ErrInvalidPayload)
	}
	return &Event{Event: ev}, nil
}

// Verify checks the signature only.
func (v *Verifier) Verify(payload []byte, header string) error {
	if err := v.precheck(header); err != nil {
		return err
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, header, v.secret, v.tolerance); err != nil {
		return fmt.Errorf("%w: %w", ErrSignature, err)
	}
	return nil
}

func (v *Verifier) precheck(header string) error {
	if v.secret == "" {
		return ErrMissingSecret
	}
	if strings.TrimSpace(header) == "" {
		return ErrMissingHeader
	}
	return nil
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

// SignatureHeaderValue builds a header Stripe would send for payload at ts.
func SignatureHeaderValue(secret string, payload []byte, ts time.Time) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: ts,
	}).Header
}

// SignatureHex is the hex v1 signature of payload at ts.
func SignatureHex(secret string, payload []byte, ts time.Time) string {
	return hex.EncodeToString(webhook.ComputeSignature(ts, payload, secret))
}
