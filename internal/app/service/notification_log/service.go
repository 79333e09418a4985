package notification_log

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fatflowers/yachtclub/internal/models"
	"github.com/fatflowers/yachtclub/pkg/logctx"
	"github.com/fatflowers/yachtclub/pkg/tool"
)

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// Save persists a payment notification log row. Nil input is ignored. Errors
// are logged and returned; callers treat the audit trail as best-effort.
func (s *Service) Save(ctx context.Context, log *models.PaymentNotificationLog) error {
	if log == nil {
		return nil
	}
	if log.ID == "" {
		log.ID = tool.GenerateUUIDV7()
	}
	if log.TraceID == "" {
		log.TraceID = logctx.TraceID(ctx)
	}
	if log.NotificationTime.IsZero() {
		log.NotificationTime = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Save(log).Error; err != nil {
		logctx.FromCtx(ctx, s.log).Errorf("failed to save notification log: %v", err)
		return err
	}
	return nil
}

// Result marshals v into a log result column value.
func Result(v any) *datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(map[string]string{"marshal_error": err.Error()})
	}
	j := datatypes.JSON(b)
	return &j
}

// ListBySession returns every log row for a payment session, oldest first.
func (s *Service) ListBySession(ctx context.Context, sessionID string) ([]*models.PaymentNotificationLog, error) {
	var rows []*models.PaymentNotificationLog
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("created_at, id").Find(&rows).Error
	return rows, err
}

var Module = fx.Options(
	fx.Provide(New),
)
