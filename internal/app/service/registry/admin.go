package registry

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/yachtclub/internal/app/service/ledger"
	"github.com/fatflowers/yachtclub/internal/models"
	"github.com/fatflowers/yachtclub/pkg/types"
)

type tierArgs struct {
	TokenID int64      `json:"token_id"`
	Tier    types.Tier `json:"tier"`
}

type emailArgs struct {
	TokenID int64  `json:"token_id"`
	Email   string `json:"email"`
}

type royaltyArgs struct {
	Recipient string `json:"recipient"`
	Fraction  int64  `json:"fraction"`
}

type restrictArgs struct {
	Restricted bool `json:"restricted"`
}

type marketplaceArgs struct {
	Marketplace string `json:"marketplace"`
	Approved    bool   `json:"approved"`
}

type addressArgs struct {
	Address string `json:"address"`
}

func (r *Registry) UpdateMemberTier(ctx context.Context, caller string, tokenID int64, tier types.Tier) (*ledger.Receipt, error) {
	if !tier.Valid() {
		return nil, ErrInvalidTier
	}
	return r.ownerWrite(ctx, caller, "updateMemberTier", tierArgs{TokenID: tokenID, Tier: tier}, func(tx *gorm.DB, _ *models.RegistryState) error {
		tok, err := loadToken(tx, tokenID)
		if err != nil {
			return err
		}
		return tx.Model(tok).Update("tier", tier).Error
	})
}

func (r *Registry) UpdateMemberEmail(ctx context.Context, caller string, tokenID int64, email string) (*ledger.Receipt, error) {
	email = strings.TrimSpace(email)
	return r.ownerWrite(ctx, caller, "updateMemberEmail", emailArgs{TokenID: tokenID, Email: email}, func(tx *gorm.DB, _ *models.RegistryState) error {
		tok, err := loadToken(tx, tokenID)
		if err != nil {
			return err
		}
		return tx.Model(tok).Update("email", email).Error
	})
}

// DeactivateMembership suspends a token. The token and its card link stay;
// verification and IsMember report false until reactivated.
func (r *Registry) DeactivateMembership(ctx context.Context, caller string, tokenID int64) (*ledger.Receipt, error) {
	return r.setMembershipActive(ctx, caller, "deactivateMembership", tokenID, false)
}

func (r *Registry) ReactivateMembership(ctx context.Context, caller string, tokenID int64) (*ledger.Receipt, error) {
	return r.setMembershipActive(ctx, caller, "reactivateMembership", tokenID, true)
}

func (r *Registry) setMembershipActive(ctx context.Context, caller, method string, tokenID int64, active bool) (*ledger.Receipt, error) {
	return r.ownerWrite(ctx, caller, method, tokenArgs{TokenID: tokenID}, func(tx *gorm.DB, _ *models.RegistryState) error {
		tok, err := loadToken(tx, tokenID)
		if err != nil {
			return err
		}
		return tx.Model(tok).Update("active", active).Error
	})
}

// SetRoyaltyInfo sets the secondary-sale royalty. fraction is in basis points.
func (r *Registry) SetRoyaltyInfo(ctx context.Context, caller, recipient string, fraction int64) (*ledger.Receipt, error) {
	if fraction < 0 || fraction > types.RoyaltyDenominator {
		return nil, ErrInvalidRoyalty
	}
	addr, err := types.NormalizeAddress(recipient)
	if err != nil || types.IsZeroAddress(addr) {
		return nil, ErrInvalidAddress
	}
	return r.ownerWrite(ctx, caller, "setRoyaltyInfo", royaltyArgs{Recipient: addr, Fraction: fraction}, func(_ *gorm.DB, state *models.RegistryState) error {
		state.RoyaltyRecipient = addr
		state.RoyaltyFraction = fraction
		return nil
	})
}

func (r *Registry) SetTransferRestricted(ctx context.Context, caller string, restricted bool) (*ledger.Receipt, error) {
	return r.ownerWrite(ctx, caller, "setTransferRestricted", restrictArgs{Restricted: restricted}, func(_ *gorm.DB, state *models.RegistryState) error {
		state.TransfersRestricted = restricted
		return nil
	})
}

func (r *Registry) SetMarketplaceApproval(ctx context.Context, caller, marketplace string, approved bool) (*ledger.Receipt, error) {
	addr, err := types.NormalizeAddress(marketplace)
	if err != nil || types.IsZeroAddress(addr) {
		return nil, ErrInvalidAddress
	}
	return r.ownerWrite(ctx, caller, "setMarketplaceApproval", marketplaceArgs{Marketplace: addr, Approved: approved}, func(tx *gorm.DB, _ *models.RegistryState) error {
		row := &models.ApprovedMarketplace{Address: addr, Approved: approved}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "address"}},
			DoUpdates: clause.AssignmentColumns([]string{"approved", "updated_at"}),
		}).Create(row).Error
	})
}

// TransferOwnership hands administrative control to newOwner.
func (r *Registry) TransferOwnership(ctx context.Context, caller, newOwner string) (*ledger.Receipt, error) {
	addr, err := types.NormalizeAddress(newOwner)
	if err != nil || types.IsZeroAddress(addr) {
		return nil, ErrInvalidAddress
	}
	return r.ownerWrite(ctx, caller, "transferOwnership", addressArgs{Address: addr}, func(_ *gorm.DB, state *models.RegistryState) error {
		state.Owner = addr
		return nil
	})
}

func (r *Registry) SetAuthorizedMinter(ctx context.Context, caller, minter string) (*ledger.Receipt, error) {
	addr, err := types.NormalizeAddress(minter)
	if err != nil || types.IsZeroAddress(addr) {
		return nil, ErrInvalidAddress
	}
	return r.ownerWrite(ctx, caller, "setAuthorizedMinter", addressArgs{Address: addr}, func(_ *gorm.DB, state *models.RegistryState) error {
		state.AuthorizedMinter = addr
		return nil
	})
}
