package models

import (
	"time"

	"github.com/fatflowers/yachtclub/pkg/types"
)

// MembershipToken is one member's right to club access. TokenID and MintedAt
// never change after mint; Owner is unique so a wallet holds at most one token.
type MembershipToken struct {
	TokenID  int64      `gorm:"column:token_id;primaryKey;autoIncrement:false" json:"token_id"`
	Owner    string     `gorm:"column:owner;type:varchar(42);not null;uniqueIndex" json:"owner"`
	Tier     types.Tier `gorm:"column:tier;type:smallint;not null;default:0" json:"tier"`
	Email    string     `gorm:"column:email;type:varchar(320)" json:"email"`
	TokenURI string     `gorm:"column:token_uri;type:text" json:"token_uri"`
	MintedAt time.Time  `gorm:"column:minted_at;not null" json:"minted_at"`
	Active   bool       `gorm:"column:active;not null" json:"active"`
	// MintReference is the payment session that paid for this token, if any.
	MintReference *string `gorm:"column:mint_reference;type:varchar(255);uniqueIndex" json:"mint_reference,omitempty"`
	// MintHeight is the journal height of the mint write.
	MintHeight int64     `gorm:"column:mint_height;not null;default:0" json:"mint_height"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (MembershipToken) TableName() string { return "membership_token" }
