package models

import "time"

// RegistryStateID is the primary key of the only registry_state row.
const RegistryStateID = 1

// RegistryState holds registry-wide settings and the journal head. Every
// write locks this row, which is what totally orders registry mutations.
type RegistryState struct {
	ID                  int64     `gorm:"column:id;primaryKey;autoIncrement:false" json:"-"`
	Owner               string    `gorm:"column:owner;type:varchar(42);not null" json:"owner"`
	AuthorizedMinter    string    `gorm:"column:authorized_minter;type:varchar(42);not null" json:"authorized_minter"`
	NextTokenID         int64     `gorm:"column:next_token_id;not null" json:"next_token_id"`
	Height              int64     `gorm:"column:height;not null" json:"height"`
	HeadHash            string    `gorm:"column:head_hash;type:varchar(64);not null" json:"head_hash"`
	RoyaltyRecipient    string    `gorm:"column:royalty_recipient;type:varchar(42);not null" json:"royalty_recipient"`
	RoyaltyFraction     int64     `gorm:"column:royalty_fraction;not null" json:"royalty_fraction"`
	TransfersRestricted bool      `gorm:"column:transfers_restricted;not null" json:"transfers_restricted"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (RegistryState) TableName() string { return "registry_state" }

// ApprovedMarketplace is an operator allowed to move tokens while transfers
// are restricted.
type ApprovedMarketplace struct {
	Address   string    `gorm:"column:address;type:varchar(42);primaryKey" json:"address"`
	Approved  bool      `gorm:"column:approved;not null" json:"approved"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ApprovedMarketplace) TableName() string { return "approved_marketplace" }
