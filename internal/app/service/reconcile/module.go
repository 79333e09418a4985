package reconcile

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/yachtclub/internal/app/service/notifier"
	notificationlog "github.com/fatflowers/yachtclub/internal/app/service/notification_log"
	"github.com/fatflowers/yachtclub/internal/app/service/registry"
	"github.com/fatflowers/yachtclub/internal/platform/stripe/stripe_webhook"
	"github.com/fatflowers/yachtclub/pkg/config"
	"github.com/fatflowers/yachtclub/pkg/metrics"
)

func provideService(db *gorm.DB, reg *registry.Registry, cfg *config.Config, notifLog *notificationlog.Service, n *notifier.Notifier, m *metrics.Business, log *zap.SugaredLogger) *Service {
	if cfg.Stripe.WebhookSecret == "" {
		log.Warnw("stripe webhook secret not set, all deliveries will be rejected")
	}
	return New(Params{
		DB:       db,
		Registry: reg,
		Minter:   cfg.Registry.AuthorizedMinter,
		Tiers:    cfg.TierDefinitions(),
		Verifier: stripe_webhook.NewVerifier(cfg.Stripe.WebhookSecret, cfg.Stripe.Tolerance),
		NotifLog: notifLog,
		Notifier: n,
		Metrics:  m,
		Log:      log,
	})
}

var Module = fx.Options(
	fx.Provide(provideService),
)
