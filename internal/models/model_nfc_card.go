package models

import "time"

// NFCCard is a physical access card. Rows are never deleted: unlinking
// clears TokenID and stamps UnlinkedAt so link history stays readable.
type NFCCard struct {
	CardID       string     `gorm:"column:card_id;type:varchar(64);primaryKey" json:"card_id"`
	SerialNumber string     `gorm:"column:serial_number;type:varchar(128)" json:"serial_number"`
	CardType     string     `gorm:"column:card_type;type:varchar(64)" json:"card_type"`
	IsActive     bool       `gorm:"column:is_active;not null" json:"is_active"`
	TokenID      *int64     `gorm:"column:token_id;uniqueIndex" json:"token_id"`
	LinkedAt     *time.Time `gorm:"column:linked_at" json:"linked_at"`
	UnlinkedAt   *time.Time `gorm:"column:unlinked_at" json:"unlinked_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (NFCCard) TableName() string { return "nfc_card" }

func (c *NFCCard) Linked() bool { return c != nil && c.TokenID != nil }
