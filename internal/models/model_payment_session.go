package models

import (
	"time"

	"github.com/fatflowers/yachtclub/pkg/types"
)

// PaymentSession bridges one checkout to at most one mint. Only the
// reconciliation service writes it; status leaves pending exactly once.
type PaymentSession struct {
	SessionID     string                     `gorm:"column:session_id;type:varchar(255);primaryKey" json:"session_id"`
	Email         string                     `gorm:"column:email;type:varchar(320)" json:"email"`
	WalletAddress string                     `gorm:"column:wallet_address;type:varchar(42);not null;index" json:"wallet_address"`
	Tier          types.Tier                 `gorm:"column:tier;type:smallint;not null" json:"tier"`
	Amount        int64                      `gorm:"column:amount;not null" json:"amount"`
	Currency      string                     `gorm:"column:currency;type:varchar(8)" json:"currency"`
	Status        types.PaymentSessionStatus `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	TokenID       *int64                     `gorm:"column:token_id" json:"token_id"`
	FailureReason *string                    `gorm:"column:failure_reason;type:text" json:"failure_reason,omitempty"`
	CreatedAt     time.Time                  `json:"created_at"`
	UpdatedAt     time.Time                  `json:"updated_at"`
}

func (PaymentSession) TableName() string { return "payment_session" }
