package registry

import (
	"context"
	"math/big"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/fatflowers/yachtclub/internal/app/service/ledger"
	"github.com/fatflowers/yachtclub/internal/models"
	"github.com/fatflowers/yachtclub/pkg/types"
)

type transferArgs struct {
	From    string `json:"from"`
	To      string `json:"to"`
	TokenID int64  `json:"token_id"`
}

// TransferFrom moves tokenID from its holder to `to` on behalf of operator.
//
// The operator must be the holder or an approved marketplace. While
// transfers are restricted only approved marketplaces may move tokens.
// The receiving wallet must not already hold a token. A linked card is
// deactivated, since the physical card stays with the previous holder.
func (r *Registry) TransferFrom(ctx context.Context, operator, from, to string, tokenID int64) (*ledger.Receipt, error) {
	ctx, span := r.span(ctx, "transfer_from", attribute.Int64("token.id", tokenID))
	defer span.End()

	operator = normalizeCaller(operator)
	fromAddr, err := types.NormalizeAddress(from)
	if err != nil {
		return nil, ErrInvalidAddress
	}
	toAddr, err := types.NormalizeAddress(to)
	if err != nil || types.IsZeroAddress(toAddr) {
		return nil, ErrInvalidAddress
	}

	args := transferArgs{From: fromAddr, To: toAddr, TokenID: tokenID}
	receipt, err := r.gw.Execute(ctx, ledger.Call{Method: "transferFrom", Caller: operator, Args: args}, func(tx *gorm.DB, state *models.RegistryState) error {
		tok, err := loadToken(tx, tokenID)
		if err != nil {
			return err
		}
		if !types.SameAddress(tok.Owner, fromAddr) {
			return ErrNotTokenOwner
		}
		approved, err := isApprovedMarketplace(tx, operator)
		if err != nil {
			return err
		}
		if !approved && !types.SameAddress(operator, tok.Owner) {
			return ErrNotTokenOwner
		}
		if state.TransfersRestricted && !approved {
			return ErrTransferRestricted
		}
		held, err := tokenByOwner(tx, toAddr)
		if err != nil {
			return err
		}
		if held != nil {
			return ErrAlreadyMember
		}
		if err := tx.Model(tok).Update("owner", toAddr).Error; err != nil {
			return err
		}
		return tx.Model(&models.NFCCard{}).Where("token_id = ?", tokenID).Update("is_active", false).Error
	})
	r.logWrite(ctx, "transferFrom", operator, receipt, err)
	if err != nil {
		span.RecordError(err)
	}
	return receipt, err
}

// Royalty is the payout owed on a secondary sale.
type Royalty struct {
	Recipient string   `json:"recipient"`
	Amount    *big.Int `json:"amount"`
}

// ComputeRoyalty returns salePrice * fraction / 10000 with integer division.
func ComputeRoyalty(salePrice *big.Int, fraction int64) *big.Int {
	amount := new(big.Int).Mul(salePrice, big.NewInt(fraction))
	return amount.Quo(amount, big.NewInt(types.RoyaltyDenominator))
}

// RoyaltyInfo computes the royalty for a sale of tokenID at salePrice. It is
// the same for every token.
func (r *Registry) RoyaltyInfo(ctx context.Context, tokenID int64, salePrice *big.Int) (*Royalty, error) {
	if salePrice == nil || salePrice.Sign() < 0 {
		return nil, ErrInvalidPrice
	}
	state, err := r.gw.State(ctx)
	if err != nil {
		return nil, err
	}
	return &Royalty{Recipient: state.RoyaltyRecipient, Amount: ComputeRoyalty(salePrice, state.RoyaltyFraction)}, nil
}
