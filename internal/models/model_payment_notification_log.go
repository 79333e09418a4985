package models

import (
	"time"

	"gorm.io/datatypes"
)

type PaymentNotificationLogStatus string

const (
	PaymentNotificationLogStatusReceived     PaymentNotificationLogStatus = "received"
	PaymentNotificationLogStatusHandled      PaymentNotificationLogStatus = "handled"
	PaymentNotificationLogStatusHandleFailed PaymentNotificationLogStatus = "handle_failed"
	PaymentNotificationLogStatusRejected     PaymentNotificationLogStatus = "rejected"
)

// PaymentNotificationLog is the audit trail of webhook deliveries, one row per
// stage of handling.
type PaymentNotificationLog struct {
	ID               string                       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ProviderID       string                       `gorm:"column:provider_id;type:varchar(64);not null" json:"provider_id"`
	EventID          string                       `gorm:"column:event_id;type:varchar(128);index" json:"event_id"`
	EventType        string                       `gorm:"column:event_type;type:varchar(128)" json:"event_type"`
	SessionID        string                       `gorm:"column:session_id;type:varchar(255);index" json:"session_id"`
	TraceID          string                       `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	NotificationTime time.Time                    `gorm:"column:notification_time" json:"notification_time"`
	Data             datatypes.JSON               `gorm:"column:data;type:jsonb" json:"data"`
	Result           *datatypes.JSON              `gorm:"column:result;type:jsonb" json:"result"`
	Status           PaymentNotificationLogStatus `gorm:"column:status;type:varchar(64);not null" json:"status"`
	CreatedAt        time.Time                    `json:"created_at"`
	UpdatedAt        time.Time                    `json:"updated_at"`
}

func (PaymentNotificationLog) TableName() string { return "payment_notification_log" }

// All lists every model for AutoMigrate.
func All() []any {
	return []any{
		&RegistryState{},
		&MembershipToken{},
		&NFCCard{},
		&ApprovedMarketplace{},
		&LedgerEntry{},
		&PaymentSession{},
		&PaymentNotificationLog{},
	}
}
