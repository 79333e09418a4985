package registry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/fatflowers/yachtclub/internal/app/service/ledger"
	"github.com/fatflowers/yachtclub/internal/models"
	"github.com/fatflowers/yachtclub/pkg/types"
)

type MintRequest struct {
	To       string     `json:"to"`
	Tier     types.Tier `json:"tier"`
	Email    string     `json:"email"`
	TokenURI string     `json:"token_uri,omitempty"`
	// Reference is the payment session id that paid for the mint. Unique
	// across tokens when set.
	Reference string `json:"reference,omitempty"`
}

type MintResult struct {
	TokenID int64           `json:"token_id"`
	Receipt *ledger.Receipt `json:"receipt"`
}

// MintMembership creates a new active token for req.To. Only the authorized
// minter may call it, and a wallet may hold one token at most.
func (r *Registry) MintMembership(ctx context.Context, caller string, req MintRequest) (*MintResult, error) {
	ctx, span := r.span(ctx, "mint_membership", attribute.String("tier", req.Tier.String()))
	defer span.End()

	caller = normalizeCaller(caller)
	to, err := types.NormalizeAddress(req.To)
	if err != nil || types.IsZeroAddress(to) {
		return nil, ErrInvalidAddress
	}
	if !req.Tier.Valid() {
		return nil, ErrInvalidTier
	}
	req.To = to
	req.Email = strings.TrimSpace(req.Email)

	var tokenID int64
	receipt, err := r.gw.Execute(ctx, ledger.Call{Method: "mintMembership", Caller: caller, Args: req}, func(tx *gorm.DB, state *models.RegistryState) error {
		if types.IsZeroAddress(caller) || !types.SameAddress(caller, state.AuthorizedMinter) {
			return ErrUnauthorized
		}
		held, err := tokenByOwner(tx, to)
		if err != nil {
			return err
		}
		if held != nil {
			return ErrAlreadyMember
		}
		var ref *string
		if req.Reference != "" {
			var n int64
			if err := tx.Model(&models.MembershipToken{}).Where("mint_reference = ?", req.Reference).Count(&n).Error; err != nil {
				return fmt.Errorf("check mint reference: %w", err)
			}
			if n > 0 {
				return ErrReferenceUsed
			}
			ref = &req.Reference
		}

		tokenID = state.NextTokenID
		uri := req.TokenURI
		if uri == "" {
			uri = r.tokenURIBase + strconv.FormatInt(tokenID, 10)
		}
		tok := &models.MembershipToken{
			TokenID:       tokenID,
			Owner:         to,
			Tier:          req.Tier,
			Email:         req.Email,
			TokenURI:      uri,
			MintedAt:      r.now(),
			Active:        true,
			MintReference: ref,
			// Execute journals this write at the next height.
			MintHeight: state.Height + 1,
		}
		if err := tx.Create(tok).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyMember
			}
			return fmt.Errorf("create token: %w", err)
		}
		state.NextTokenID++
		return nil
	})
	r.logWrite(ctx, "mintMembership", caller, receipt, err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int64("token.id", tokenID))
	return &MintResult{TokenID: tokenID, Receipt: receipt}, nil
}
