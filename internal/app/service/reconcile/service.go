package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/yachtclub/internal/app/service/ledger"
	"github.com/fatflowers/yachtclub/internal/app/service/notifier"
	notificationlog "github.com/fatflowers/yachtclub/internal/app/service/notification_log"
	"github.com/fatflowers/yachtclub/internal/app/service/registry"
	"github.com/fatflowers/yachtclub/internal/models"
	"github.com/fatflowers/yachtclub/internal/platform/stripe/stripe_webhook"
	"github.com/fatflowers/yachtclub/pkg/logctx"
	"github.com/fatflowers/yachtclub/pkg/metrics"
	"github.com/fatflowers/yachtclub/pkg/tracing"
	"github.com/fatflowers/yachtclub/pkg/types"
)

var (
	ErrInvalidSignature = errors.New("webhook signature verification failed")
	ErrInvalidPayload   = errors.New("webhook payload is malformed")
	ErrInvalidCheckout  = errors.New("checkout request is malformed")
	ErrSessionNotFound  = errors.New("payment session not found")
)

// Registry is the part of the membership registry reconciliation drives.
type Registry interface {
	MintMembership(ctx context.Context, caller string, req registry.MintRequest) (*registry.MintResult, error)
	Confirm(ctx context.Context, receipt *ledger.Receipt) error
	MintReceipt(ctx context.Context, tok *models.MembershipToken) (*ledger.Receipt, error)
	GetTokenIDByMember(ctx context.Context, addr string) (int64, error)
	TokenByReference(ctx context.Context, reference string) (*models.MembershipToken, error)
}

// Service turns paid checkouts into minted memberships, exactly once per
// payment session.
type Service struct {
	db       *gorm.DB
	registry Registry
	minter   string
	tiers    *types.TierTable
	verifier *stripe_webhook.Verifier
	notifLog *notificationlog.Service
	notifier *notifier.Notifier
	metrics  *metrics.Business
	log      *zap.SugaredLogger
	tracer   trace.Tracer

	inflight singleflight.Group
}

type Params struct {
	DB       *gorm.DB
	Registry Registry
	// Minter is the identity this service mints as. It must match the
	// registry's authorized minter for mints to succeed.
	Minter string
	Tiers    *types.TierTable
	Verifier *stripe_webhook.Verifier
	NotifLog *notificationlog.Service
	Notifier *notifier.Notifier
	Metrics  *metrics.Business
	Log      *zap.SugaredLogger
}

func New(p Params) *Service {
	tiers := p.Tiers
	if tiers == nil {
		tiers = types.NewTierTable()
	}
	return &Service{
		db:       p.DB,
		registry: p.Registry,
		minter:   strings.ToLower(strings.TrimSpace(p.Minter)),
		tiers:    tiers,
		verifier: p.Verifier,
		notifLog: p.NotifLog,
		notifier: p.Notifier,
		metrics:  p.Metrics,
		log:      p.Log,
		tracer:   tracing.Tracer("reconcile"),
	}
}

// CheckoutRequest opens a payment session before redirecting to the processor.
type CheckoutRequest struct {
	SessionID     string     `json:"session_id" binding:"required"`
	Email         string     `json:"email"`
	WalletAddress string     `json:"wallet_address" binding:"required"`
	Tier          types.Tier `json:"tier"`
}

// RecordCheckout creates the pending session for req. Recording the same
// session id again returns the stored session unchanged.
func (s *Service) RecordCheckout(ctx context.Context, req CheckoutRequest) (*models.PaymentSession, error) {
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", ErrInvalidCheckout)
	}
	wallet, err := types.NormalizeAddress(req.WalletAddress)
	if err != nil || types.IsZeroAddress(wallet) {
		return nil, registry.ErrInvalidAddress
	}
	def, ok := s.tiers.Get(req.Tier)
	if !ok {
		return nil, registry.ErrInvalidTier
	}
	held, err := s.registry.GetTokenIDByMember(ctx, wallet)
	if err != nil {
		return nil, err
	}
	if held != 0 {
		return nil, registry.ErrAlreadyMember
	}

	sess := &models.PaymentSession{
		SessionID:     req.SessionID,
		Email:         strings.TrimSpace(req.Email),
		WalletAddress: wallet,
		Tier:          req.Tier,
		Amount:        def.Price,
		Currency:      def.Currency,
		Status:        types.PaymentSessionStatusPending,
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(sess).Error; err != nil {
		return nil, fmt.Errorf("create payment session: %w", err)
	}
	return s.GetSession(ctx, req.SessionID)
}

// CheckoutCompleted is the trusted content of a paid checkout event.
type CheckoutCompleted struct {
	SessionID     string
	Tier          types.Tier
	WalletAddress string
	Email         string
	Amount        int64
	Currency      string
}

// Result is the outcome of reconciling one session.
type Result struct {
	SessionID string                     `json:"session_id"`
	Status    types.PaymentSessionStatus `json:"status"`
	TokenID   *int64                     `json:"token_id,omitempty"`
	// Replayed is set when the session was already completed and nothing
	// was minted by this call.
	Replayed bool            `json:"replayed"`
	Receipt  *ledger.Receipt `json:"receipt,omitempty"`
}

// HandleCheckoutCompleted mints the membership paid for by ev and marks the
// session completed. Replays return the stored result without minting.
// Concurrent calls for one session share a single attempt. A failed mint
// leaves the session pending with the failure recorded, and is returned.
func (s *Service) HandleCheckoutCompleted(ctx context.Context, ev CheckoutCompleted) (*Result, error) {
	ev.SessionID = strings.TrimSpace(ev.SessionID)
	if ev.SessionID == "" {
		return nil, fmt.Errorf("%w: session id is empty", ErrInvalidPayload)
	}
	wallet, err := types.NormalizeAddress(ev.WalletAddress)
	if err != nil || types.IsZeroAddress(wallet) {
		return nil, fmt.Errorf("%w: wallet address %q", ErrInvalidPayload, ev.WalletAddress)
	}
	if !ev.Tier.Valid() {
		return nil, fmt.Errorf("%w: tier %d", ErrInvalidPayload, ev.Tier)
	}
	ev.WalletAddress = wallet
	ev.Email = strings.TrimSpace(ev.Email)

	ran := false
	v, err, shared := s.inflight.Do(ev.SessionID, func() (any, error) {
		ran = true
		return s.completeCheckout(ctx, ev)
	})
	if err != nil {
		return nil, err
	}
	res := *v.(*Result)
	if shared && !ran {
		res.Replayed = true
		res.Receipt = nil
	}
	return &res, nil
}

func (s *Service) completeCheckout(ctx context.Context, ev CheckoutCompleted) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "reconcile.complete_checkout", trace.WithAttributes(attribute.String("session.id", ev.SessionID)))
	defer span.End()
	lg := logctx.FromCtx(ctx, s.log).With("session_id", ev.SessionID)

	sess, err := s.loadOrCreateSession(ctx, ev)
	if err != nil {
		return nil, err
	}
	if sess.Status == types.PaymentSessionStatusCompleted {
		lg.Infow("checkout replay, session already completed", "token_id", sess.TokenID)
		return &Result{SessionID: sess.SessionID, Status: sess.Status, TokenID: sess.TokenID, Replayed: true}, nil
	}

	tokenID, receipt, err := s.mintOnce(ctx, ev)
	if err != nil {
		span.RecordError(err)
		s.recordFailure(ctx, ev.SessionID, err)
		lg.Errorw("mint for checkout failed, session left pending", "wallet", ev.WalletAddress, "err", err)
		return nil, fmt.Errorf("mint for session %s: %w", ev.SessionID, err)
	}

	res := s.db.WithContext(ctx).Model(&models.PaymentSession{}).
		Where("session_id = ? AND status <> ?", ev.SessionID, types.PaymentSessionStatusCompleted).
		Updates(map[string]any{
			"status":         types.PaymentSessionStatusCompleted,
			"token_id":       tokenID,
			"failure_reason": nil,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("persist completed session %s: %w", ev.SessionID, res.Error)
	}
	if res.RowsAffected == 0 {
		winner, err := s.GetSession(ctx, ev.SessionID)
		if err != nil {
			return nil, err
		}
		lg.Infow("checkout completed concurrently", "token_id", winner.TokenID)
		return &Result{SessionID: winner.SessionID, Status: winner.Status, TokenID: winner.TokenID, Replayed: true}, nil
	}

	lg.Infow("checkout reconciled", "token_id", tokenID, "tier", ev.Tier.String())
	span.SetAttributes(attribute.Int64("token.id", tokenID))
	if def, ok := s.tiers.Get(ev.Tier); ok {
		s.notifier.MembershipConfirmed(ctx, notifier.Membership{
			Email:         ev.Email,
			WalletAddress: ev.WalletAddress,
			TokenID:       tokenID,
			Tier:          def,
		})
	}
	return &Result{SessionID: ev.SessionID, Status: types.PaymentSessionStatusCompleted, TokenID: &tokenID, Receipt: receipt}, nil
}

// mintOnce returns the confirmed token minted for the session, minting it if
// no token carries the session as its reference yet. A token found by
// reference was minted by an earlier attempt that crashed or timed out before
// persisting the session; its mint must still reach the confirmation depth.
func (s *Service) mintOnce(ctx context.Context, ev CheckoutCompleted) (int64, *ledger.Receipt, error) {
	if tok, err := s.registry.TokenByReference(ctx, ev.SessionID); err != nil {
		return 0, nil, err
	} else if tok != nil {
		return s.adopt(ctx, ev.SessionID, tok)
	}

	minted, err := s.registry.MintMembership(ctx, s.minter, registry.MintRequest{
		To:        ev.WalletAddress,
		Tier:      ev.Tier,
		Email:     ev.Email,
		Reference: ev.SessionID,
	})
	if errors.Is(err, registry.ErrReferenceUsed) {
		tok, lookupErr := s.registry.TokenByReference(ctx, ev.SessionID)
		if lookupErr != nil {
			return 0, nil, lookupErr
		}
		if tok != nil {
			return s.adopt(ctx, ev.SessionID, tok)
		}
	}
	s.metrics.IncMint(err)
	if err != nil {
		return 0, nil, err
	}

	// The write is committed; only its confirmation is awaited. A timeout
	// leaves the session pending and a redelivery waits again via adopt.
	if err := s.registry.Confirm(ctx, minted.Receipt); err != nil {
		return 0, nil, err
	}
	got, err := s.registry.GetTokenIDByMember(ctx, ev.WalletAddress)
	if err != nil {
		return 0, nil, err
	}
	if got != minted.TokenID {
		logctx.FromCtx(ctx, s.log).Warnw("token read back differs from mint result", "minted", minted.TokenID, "read", got)
	}
	return minted.TokenID, minted.Receipt, nil
}

func (s *Service) adopt(ctx context.Context, sessionID string, tok *models.MembershipToken) (int64, *ledger.Receipt, error) {
	logctx.FromCtx(ctx, s.log).Warnw("adopting token minted by an earlier attempt", "session_id", sessionID, "token_id", tok.TokenID, "height", tok.MintHeight)
	receipt, err := s.registry.MintReceipt(ctx, tok)
	if err != nil {
		return 0, nil, err
	}
	if err := s.registry.Confirm(ctx, receipt); err != nil {
		return 0, nil, err
	}
	return tok.TokenID, receipt, nil
}

func (s *Service) loadOrCreateSession(ctx context.Context, ev CheckoutCompleted) (*models.PaymentSession, error) {
	var sess models.PaymentSession
	err := s.db.WithContext(ctx).
		Where(models.PaymentSession{SessionID: ev.SessionID}).
		Attrs(models.PaymentSession{
			Email:         ev.Email,
			WalletAddress: ev.WalletAddress,
			Tier:          ev.Tier,
			Amount:        ev.Amount,
			Currency:      ev.Currency,
			Status:        types.PaymentSessionStatusPending,
		}).
		FirstOrCreate(&sess).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return s.GetSession(ctx, ev.SessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("load payment session %s: %w", ev.SessionID, err)
	}
	return &sess, nil
}

func (s *Service) recordFailure(ctx context.Context, sessionID string, cause error) {
	reason := cause.Error()
	err := s.db.WithContext(ctx).Model(&models.PaymentSession{}).
		Where("session_id = ? AND status <> ?", sessionID, types.PaymentSessionStatusCompleted).
		Update("failure_reason", reason).Error
	if err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("record session failure", "session_id", sessionID, "err", err)
	}
}

// FailSession marks a still-pending session failed, e.g. when the checkout
// expired. It reports whether the session changed.
func (s *Service) FailSession(ctx context.Context, sessionID, reason string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.PaymentSession{}).
		Where("session_id = ? AND status = ?", sessionID, types.PaymentSessionStatusPending).
		Updates(map[string]any{"status": types.PaymentSessionStatusFailed, "failure_reason": reason})
	if res.Error != nil {
		return false, fmt.Errorf("fail session %s: %w", sessionID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (*models.PaymentSession, error) {
	var sess models.PaymentSession
	if err := s.db.WithContext(ctx).First(&sess, "session_id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load payment session %s: %w", sessionID, err)
	}
	return &sess, nil
}

var sessionColumns = []string{"session_id", "email", "wallet_address", "tier", "amount", "currency", "status", "token_id", "created_at", "updated_at"}

type ScanSessionsRequest struct {
	Filters   types.CommonFilters `json:"filters"`
	From      int                 `json:"from"`
	Size      int                 `json:"size"`
	SortBy    string              `json:"sort_by"`
	SortOrder string              `json:"sort_order"`
}

type ScanSessionsResponse struct {
	Items []*models.PaymentSession `json:"items"`
	Total int64                    `json:"total"`
}

// ScanSessions lists sessions for the admin console.
func (s *Service) ScanSessions(ctx context.Context, req *ScanSessionsRequest) (*ScanSessionsResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if err := req.Filters.Validate(sessionColumns...); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCheckout, err)
	}
	if req.SortBy != "" && !lo.Contains(sessionColumns, req.SortBy) {
		return nil, fmt.Errorf("%w: cannot sort by %q", ErrInvalidCheckout, req.SortBy)
	}
	if req.Size <= 0 {
		req.Size = 10
	}
	if req.From < 0 {
		req.From = 0
	}

	tx := s.db.WithContext(ctx).Model(&models.PaymentSession{})
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{req.Filters}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}

	q := tx.Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	sortBy := req.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: sortBy}, Desc: req.SortOrder != "asc"}}})

	var rows []*models.PaymentSession
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return &ScanSessionsResponse{Items: rows, Total: total}, nil
}
