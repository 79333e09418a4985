package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/fatflowers/yachtclub/internal/models"
	"github.com/fatflowers/yachtclub/internal/platform/stripe/stripe_webhook"
	"github.com/fatflowers/yachtclub/pkg/logctx"
	"github.com/fatflowers/yachtclub/pkg/types"

	notificationlog "github.com/fatflowers/yachtclub/internal/app/service/notification_log"
)

// Webhook outcomes, also used as metric labels.
const (
	OutcomeMinted   = "minted"
	OutcomeReplayed = "replayed"
	OutcomeFailed   = "failed"
	OutcomeExpired  = "expired"
	OutcomeAwaiting = "awaiting_payment"
	OutcomeIgnored  = "ignored"
	OutcomeRejected = "rejected"
)

// WebhookResult describes what one delivery did.
type WebhookResult struct {
	EventID   string  `json:"event_id"`
	EventType string  `json:"event_type"`
	Outcome   string  `json:"outcome"`
	Session   *Result `json:"session,omitempty"`
}

// HandleWebhook verifies and dispatches one payment processor delivery.
// Signature failures return ErrInvalidSignature without touching any state.
// Unknown event types are acknowledged and ignored.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) (res *WebhookResult, resErr error) {
	lg := logctx.FromCtx(ctx, s.log)
	provider := string(types.PaymentProviderStripe)

	ev, err := s.verifier.ConstructEvent(payload, signatureHeader)
	if err != nil {
		if errors.Is(err, stripe_webhook.ErrInvalidPayload) {
			s.metrics.IncWebhook("unknown", OutcomeRejected)
			_ = s.notifLog.Save(ctx, &models.PaymentNotificationLog{
				ProviderID: provider,
				Data:       rawJSON(payload),
				Result:     notificationlog.Result(map[string]string{"error": err.Error()}),
				Status:     models.PaymentNotificationLogStatusRejected,
			})
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		s.metrics.IncWebhook("unknown", OutcomeRejected)
		lg.Warnw("webhook signature rejected", "err", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	evType := ev.TypeName()
	res = &WebhookResult{EventID: ev.ID, EventType: evType}
	var sessionID string
	if cs, err := ev.CheckoutSession(); err == nil {
		sessionID = cs.ID
	}
	received := time.Unix(ev.Created, 0).UTC()
	if ev.Created == 0 {
		received = time.Now().UTC()
	}
	_ = s.notifLog.Save(ctx, &models.PaymentNotificationLog{
		ProviderID:       provider,
		EventID:          ev.ID,
		EventType:        evType,
		SessionID:        sessionID,
		NotificationTime: received,
		Data:             rawJSON(payload),
		Status:           models.PaymentNotificationLogStatusReceived,
	})

	defer func() {
		resMap := map[string]any{"result": res}
		status := models.PaymentNotificationLogStatusHandled
		if resErr != nil {
			resMap["error"] = resErr.Error()
			status = models.PaymentNotificationLogStatusHandleFailed
			s.metrics.IncWebhook(evType, OutcomeFailed)
		} else {
			s.metrics.IncWebhook(evType, res.Outcome)
		}
		_ = s.notifLog.Save(ctx, &models.PaymentNotificationLog{
			ProviderID: provider,
			EventID:    ev.ID,
			EventType:  evType,
			SessionID:  sessionID,
			Data:       rawJSON(payload),
			Result:     notificationlog.Result(resMap),
			Status:     status,
		})
	}()

	switch evType {
	case types.EventCheckoutSessionCompleted, types.EventCheckoutSessionAsyncPaymentSucceeded:
		cs, err := ev.CheckoutSession()
		if err != nil {
			return res, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if evType == types.EventCheckoutSessionCompleted && !cs.Paid() {
			// Delayed payment methods complete later with async_payment_succeeded.
			lg.Infow("checkout completed without captured payment", "session_id", cs.ID, "payment_status", cs.PaymentStatus)
			res.Outcome = OutcomeAwaiting
			return res, nil
		}
		completed, err := checkoutFromSession(cs)
		if err != nil {
			return res, err
		}
		out, err := s.HandleCheckoutCompleted(ctx, completed)
		if err != nil {
			return res, err
		}
		res.Session = out
		res.Outcome = OutcomeMinted
		if out.Replayed {
			res.Outcome = OutcomeReplayed
		}
		return res, nil

	case types.EventCheckoutSessionExpired, types.EventCheckoutSessionAsyncPaymentFailed:
		cs, err := ev.CheckoutSession()
		if err != nil {
			return res, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		changed, err := s.FailSession(ctx, cs.ID, evType)
		if err != nil {
			return res, err
		}
		lg.Infow("checkout session closed without payment", "session_id", cs.ID, "event_type", evType, "changed", changed)
		res.Outcome = OutcomeExpired
		return res, nil

	default:
		lg.Debugw("webhook event ignored", "event_type", evType, "event_id", ev.ID)
		res.Outcome = OutcomeIgnored
		return res, nil
	}
}

// checkoutFromSession reads the trusted metadata attached at checkout.
func checkoutFromSession(cs *stripe_webhook.CheckoutSession) (CheckoutCompleted, error) {
	md := cs.Metadata
	wallet := strings.TrimSpace(md["walletAddress"])
	if wallet == "" {
		wallet = strings.TrimSpace(md["wallet_address"])
	}
	if wallet == "" {
		return CheckoutCompleted{}, fmt.Errorf("%w: session %s has no walletAddress metadata", ErrInvalidPayload, cs.ID)
	}
	tier, err := types.ParseTier(md["tier"])
	if err != nil {
		return CheckoutCompleted{}, fmt.Errorf("%w: session %s: %v", ErrInvalidPayload, cs.ID, err)
	}
	return CheckoutCompleted{
		SessionID:     cs.ID,
		Tier:          tier,
		WalletAddress: wallet,
		Email:         cs.Email(),
		Amount:        cs.AmountTotal,
		Currency:      string(cs.Currency),
	}, nil
}

func rawJSON(payload []byte) datatypes.JSON {
	if len(payload) == 0 {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(payload)
}
