package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/fatflowers/yachtclub/internal/app/service/ledger"
	"github.com/fatflowers/yachtclub/internal/models"
	"github.com/fatflowers/yachtclub/pkg/types"
)

type linkArgs struct {
	TokenID      int64  `json:"token_id"`
	CardID       string `json:"card_id"`
	SerialNumber string `json:"serial_number"`
	CardType     string `json:"card_type"`
}

type tokenArgs struct {
	TokenID int64 `json:"token_id"`
}

// LinkNFCCard attaches cardID to tokenID as an active card. A card linked
// anywhere fails with ErrCardAlreadyLinked, and a token that already has a
// card fails with ErrTokenAlreadyHasCard: replacing a card is unlink + link.
func (r *Registry) LinkNFCCard(ctx context.Context, caller string, tokenID int64, cardID, serialNumber, cardType string) (*ledger.Receipt, error) {
	cardID, err := types.NormalizeCardID(cardID)
	if err != nil {
		return nil, ErrInvalidCardID
	}
	args := linkArgs{TokenID: tokenID, CardID: cardID, SerialNumber: serialNumber, CardType: cardType}
	return r.ownerWrite(ctx, caller, "linkNFCCard", args, func(tx *gorm.DB, _ *models.RegistryState) error {
		if _, err := loadToken(tx, tokenID); err != nil {
			return err
		}
		var card models.NFCCard
		found := true
		if err := tx.First(&card, "card_id = ?", cardID).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("load card: %w", err)
			}
			found = false
		}
		if found && card.Linked() {
			return ErrCardAlreadyLinked
		}
		current, err := linkedCard(tx, tokenID)
		if err != nil {
			return err
		}
		if current != nil {
			return ErrTokenAlreadyHasCard
		}

		now := r.now()
		card.CardID = cardID
		card.SerialNumber = serialNumber
		card.CardType = cardType
		card.IsActive = true
		card.TokenID = &tokenID
		card.LinkedAt = &now
		card.UnlinkedAt = nil
		if found {
			err = tx.Save(&card).Error
		} else {
			err = tx.Create(&card).Error
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrCardAlreadyLinked
		}
		return err
	})
}

// UnlinkNFCCard clears the token's card link. Unlinking a token without a
// card is a no-op and returns a nil receipt.
func (r *Registry) UnlinkNFCCard(ctx context.Context, caller string, tokenID int64) (*ledger.Receipt, error) {
	return r.ownerWrite(ctx, caller, "unlinkNFCCard", tokenArgs{TokenID: tokenID}, func(tx *gorm.DB, _ *models.RegistryState) error {
		if _, err := loadToken(tx, tokenID); err != nil {
			return err
		}
		card, err := linkedCard(tx, tokenID)
		if err != nil {
			return err
		}
		if card == nil {
			return ledger.ErrNoop
		}
		now := r.now()
		card.TokenID = nil
		card.IsActive = false
		card.UnlinkedAt = &now
		return tx.Save(card).Error
	})
}

func (r *Registry) DeactivateNFCCard(ctx context.Context, caller string, tokenID int64) (*ledger.Receipt, error) {
	return r.setCardActive(ctx, caller, "deactivateNFCCard", tokenID, false)
}

func (r *Registry) ReactivateNFCCard(ctx context.Context, caller string, tokenID int64) (*ledger.Receipt, error) {
	return r.setCardActive(ctx, caller, "reactivateNFCCard", tokenID, true)
}

func (r *Registry) setCardActive(ctx context.Context, caller, method string, tokenID int64, active bool) (*ledger.Receipt, error) {
	return r.ownerWrite(ctx, caller, method, tokenArgs{TokenID: tokenID}, func(tx *gorm.DB, _ *models.RegistryState) error {
		if _, err := loadToken(tx, tokenID); err != nil {
			return err
		}
		card, err := linkedCard(tx, tokenID)
		if err != nil {
			return err
		}
		if card == nil {
			return ErrNoCardLinked
		}
		return tx.Model(card).Update("is_active", active).Error
	})
}

// VerifyResult is what an access terminal learns about a tapped card.
type VerifyResult struct {
	IsValid       bool       `json:"is_valid"`
	MemberAddress string     `json:"member_address"`
	Tier          types.Tier `json:"tier"`
	TokenID       int64      `json:"token_id,omitempty"`
}

func invalidCard() *VerifyResult {
	return &VerifyResult{MemberAddress: types.ZeroAddress, Tier: types.TierStandard}
}

// VerifyNFCCard is valid iff the card is linked, the card is active and the
// linked token is active. Unknown or unlinked cards are reported invalid,
// never as errors; only storage failures return an error.
func (r *Registry) VerifyNFCCard(ctx context.Context, cardID string) (*VerifyResult, error) {
	ctx, span := r.span(ctx, "verify_nfc_card")
	defer span.End()

	db := r.gw.Read(ctx)
	var cards []models.NFCCard
	if err := db.Where("card_id = ?", strings.TrimSpace(cardID)).Limit(1).Find(&cards).Error; err != nil {
		return nil, fmt.Errorf("load card: %w", err)
	}
	if len(cards) == 0 || !cards[0].Linked() || !cards[0].IsActive {
		span.SetAttributes(attribute.Bool("card.valid", false))
		return invalidCard(), nil
	}
	tok, err := loadToken(db, *cards[0].TokenID)
	if errors.Is(err, ErrTokenNotFound) {
		return invalidCard(), nil
	}
	if err != nil {
		return nil, err
	}
	if !tok.Active {
		span.SetAttributes(attribute.Bool("card.valid", false))
		return invalidCard(), nil
	}
	span.SetAttributes(attribute.Bool("card.valid", true), attribute.Int64("token.id", tok.TokenID))
	return &VerifyResult{IsValid: true, MemberAddress: tok.Owner, Tier: tok.Tier, TokenID: tok.TokenID}, nil
}
