package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/yachtclub/internal/app/service/ledger"
	"github.com/fatflowers/yachtclub/internal/models"
	"github.com/fatflowers/yachtclub/pkg/logctx"
	"github.com/fatflowers/yachtclub/pkg/tracing"
	"github.com/fatflowers/yachtclub/pkg/types"
)

// Registry is the membership state machine. Every mutation runs through the
// ledger gateway; reads observe committed state only.
type Registry struct {
	gw           *ledger.Gateway
	log          *zap.SugaredLogger
	tracer       trace.Tracer
	tokenURIBase string
	now          func() time.Time
}

func New(gw *ledger.Gateway, tokenURIBase string, log *zap.SugaredLogger) *Registry {
	return &Registry{
		gw:           gw,
		log:          log,
		tracer:       tracing.Tracer("registry"),
		tokenURIBase: tokenURIBase,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Confirm waits until a write reaches the configured confirmation depth.
func (r *Registry) Confirm(ctx context.Context, receipt *ledger.Receipt) error {
	return r.gw.WaitForConfirmations(ctx, receipt, r.gw.Confirmations())
}

func normalizeCaller(caller string) string {
	return strings.ToLower(strings.TrimSpace(caller))
}

func isOwner(caller string, state *models.RegistryState) bool {
	return !types.IsZeroAddress(caller) && types.SameAddress(caller, state.Owner)
}

// ownerWrite runs fn as an owner-only registry write.
func (r *Registry) ownerWrite(ctx context.Context, caller, method string, args any, fn ledger.MutateFunc) (*ledger.Receipt, error) {
	caller = normalizeCaller(caller)
	receipt, err := r.gw.Execute(ctx, ledger.Call{Method: method, Caller: caller, Args: args}, func(tx *gorm.DB, state *models.RegistryState) error {
		if !isOwner(caller, state) {
			return ErrOwnableUnauthorizedAccount
		}
		return fn(tx, state)
	})
	r.logWrite(ctx, method, caller, receipt, err)
	return receipt, err
}

func (r *Registry) logWrite(ctx context.Context, method, caller string, receipt *ledger.Receipt, err error) {
	lg := logctx.FromCtx(ctx, r.log)
	switch {
	case err != nil && KindOf(err) == KindInternal:
		lg.Errorw("registry_write_failed", "method", method, "caller", caller, "err", err)
	case err != nil:
		lg.Infow("registry_write_rejected", "method", method, "caller", caller, "reason", err.Error())
	case receipt == nil:
		lg.Infow("registry_write_noop", "method", method, "caller", caller)
	default:
		lg.Infow("registry_write", "method", method, "caller", caller, "height", receipt.Height, "anchored", receipt.Anchored())
	}
}

func loadToken(tx *gorm.DB, tokenID int64) (*models.MembershipToken, error) {
	var tok models.MembershipToken
	if err := tx.First(&tok, "token_id = ?", tokenID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("load token %d: %w", tokenID, err)
	}
	return &tok, nil
}

// linkedCard returns the card linked to tokenID, or nil.
func linkedCard(tx *gorm.DB, tokenID int64) (*models.NFCCard, error) {
	var cards []models.NFCCard
	if err := tx.Where("token_id = ?", tokenID).Limit(1).Find(&cards).Error; err != nil {
		return nil, fmt.Errorf("load card of token %d: %w", tokenID, err)
	}
	if len(cards) == 0 {
		return nil, nil
	}
	return &cards[0], nil
}

func tokenByOwner(tx *gorm.DB, owner string) (*models.MembershipToken, error) {
	var toks []models.MembershipToken
	if err := tx.Where("owner = ?", owner).Limit(1).Find(&toks).Error; err != nil {
		return nil, fmt.Errorf("load token of %s: %w", owner, err)
	}
	if len(toks) == 0 {
		return nil, nil
	}
	return &toks[0], nil
}

func (r *Registry) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "registry."+name, trace.WithAttributes(attrs...))
}

// CardInfo is the public view of a linked card.
type CardInfo struct {
	CardID       string     `json:"card_id"`
	SerialNumber string     `json:"serial_number"`
	CardType     string     `json:"card_type"`
	IsActive     bool       `json:"is_active"`
	LinkedAt     *time.Time `json:"linked_at"`
}

// MemberInfo is the public view of one membership token.
type MemberInfo struct {
	TokenID  int64      `json:"token_id"`
	Owner    string     `json:"owner"`
	Tier     types.Tier `json:"tier"`
	Email    string     `json:"email"`
	TokenURI string     `json:"token_uri"`
	MintedAt time.Time  `json:"minted_at"`
	Active   bool       `json:"active"`
	Card     *CardInfo  `json:"card,omitempty"`
}

func (r *Registry) GetMemberInfo(ctx context.Context, tokenID int64) (*MemberInfo, error) {
	ctx, span := r.span(ctx, "get_member_info", attribute.Int64("token.id", tokenID))
	defer span.End()

	db := r.gw.Read(ctx)
	tok, err := loadToken(db, tokenID)
	if err != nil {
		return nil, err
	}
	info := &MemberInfo{
		TokenID:  tok.TokenID,
		Owner:    tok.Owner,
		Tier:     tok.Tier,
		Email:    tok.Email,
		TokenURI: tok.TokenURI,
		MintedAt: tok.MintedAt,
		Active:   tok.Active,
	}
	card, err := linkedCard(db, tokenID)
	if err != nil {
		return nil, err
	}
	if card != nil {
		info.Card = &CardInfo{CardID: card.CardID, SerialNumber: card.SerialNumber, CardType: card.CardType, IsActive: card.IsActive, LinkedAt: card.LinkedAt}
	}
	return info, nil
}

// GetTokenIDByMember returns the token held by addr, or 0 when it holds none.
func (r *Registry) GetTokenIDByMember(ctx context.Context, addr string) (int64, error) {
	owner, err := types.NormalizeAddress(addr)
	if err != nil {
		return 0, ErrInvalidAddress
	}
	tok, err := tokenByOwner(r.gw.Read(ctx), owner)
	if err != nil || tok == nil {
		return 0, err
	}
	return tok.TokenID, nil
}

// IsMember reports whether addr holds an active membership token.
func (r *Registry) IsMember(ctx context.Context, addr string) (bool, error) {
	owner, err := types.NormalizeAddress(addr)
	if err != nil {
		return false, ErrInvalidAddress
	}
	tok, err := tokenByOwner(r.gw.Read(ctx), owner)
	if err != nil {
		return false, err
	}
	return tok != nil && tok.Active, nil
}

func (r *Registry) OwnerOf(ctx context.Context, tokenID int64) (string, error) {
	tok, err := loadToken(r.gw.Read(ctx), tokenID)
	if err != nil {
		return "", err
	}
	return tok.Owner, nil
}

func (r *Registry) TotalSupply(ctx context.Context) (int64, error) {
	var n int64
	if err := r.gw.Read(ctx).Model(&models.MembershipToken{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count tokens: %w", err)
	}
	return n, nil
}

// TokenByReference returns the token minted for a payment reference, or nil.
func (r *Registry) TokenByReference(ctx context.Context, reference string) (*models.MembershipToken, error) {
	if reference == "" {
		return nil, nil
	}
	var toks []models.MembershipToken
	if err := r.gw.Read(ctx).Where("mint_reference = ?", reference).Limit(1).Find(&toks).Error; err != nil {
		return nil, fmt.Errorf("load token by reference: %w", err)
	}
	if len(toks) == 0 {
		return nil, nil
	}
	return &toks[0], nil
}

// MintReceipt rebuilds the journal receipt of the write that minted tok.
func (r *Registry) MintReceipt(ctx context.Context, tok *models.MembershipToken) (*ledger.Receipt, error) {
	if tok.MintHeight <= 0 {
		return nil, fmt.Errorf("token %d: mint height not recorded", tok.TokenID)
	}
	return r.gw.ReceiptAt(ctx, tok.MintHeight)
}

// CardOf returns the card linked to tokenID, or nil.
func (r *Registry) CardOf(ctx context.Context, tokenID int64) (*models.NFCCard, error) {
	return linkedCard(r.gw.Read(ctx), tokenID)
}

// Settings returns registry-wide settings and the journal head.
func (r *Registry) Settings(ctx context.Context) (*models.RegistryState, error) {
	return r.gw.State(ctx)
}

func (r *Registry) ApprovedMarketplaces(ctx context.Context) ([]string, error) {
	var addrs []string
	if err := r.gw.Read(ctx).Model(&models.ApprovedMarketplace{}).
		Where("approved = ?", true).Order("address").Pluck("address", &addrs).Error; err != nil {
		return nil, fmt.Errorf("list marketplaces: %w", err)
	}
	return addrs, nil
}

func isApprovedMarketplace(tx *gorm.DB, addr string) (bool, error) {
	if types.IsZeroAddress(addr) {
		return false, nil
	}
	var n int64
	if err := tx.Model(&models.ApprovedMarketplace{}).
		Where("address = ? AND approved = ?", addr, true).Count(&n).Error; err != nil {
		return false, fmt.Errorf("check marketplace: %w", err)
	}
	return n > 0, nil
}
