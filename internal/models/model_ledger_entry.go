package models

import (
	"time"

	"gorm.io/datatypes"
)

// LedgerEntry is one committed registry write. Hash chains over PrevHash so
// the journal can be replayed and checked.
type LedgerEntry struct {
	Height          int64          `gorm:"column:height;primaryKey;autoIncrement:false" json:"height"`
	Hash            string         `gorm:"column:hash;type:varchar(64);not null;uniqueIndex" json:"hash"`
	PrevHash        string         `gorm:"column:prev_hash;type:varchar(64);not null" json:"prev_hash"`
	Method          string         `gorm:"column:method;type:varchar(64);not null;index" json:"method"`
	Caller          string         `gorm:"column:caller;type:varchar(42);not null" json:"caller"`
	Payload         datatypes.JSON `gorm:"column:payload;type:json" json:"payload"`
	AnchorSignature *string        `gorm:"column:anchor_signature;type:varchar(128)" json:"anchor_signature,omitempty"`
	AnchoredAt      *time.Time     `gorm:"column:anchored_at" json:"anchored_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

func (LedgerEntry) TableName() string { return "ledger_entry" }
