package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/fatflowers/yachtclub/internal/app/api/server"
	"github.com/fatflowers/yachtclub/internal/app/service/ledger"
	"github.com/fatflowers/yachtclub/internal/app/service/notifier"
	notificationlog "github.com/fatflowers/yachtclub/internal/app/service/notification_log"
	"github.com/fatflowers/yachtclub/internal/app/service/reconcile"
	"github.com/fatflowers/yachtclub/internal/app/service/registry"
	"github.com/fatflowers/yachtclub/internal/app/service/statistics"
	"github.com/fatflowers/yachtclub/internal/app/service/verification"
	"github.com/fatflowers/yachtclub/internal/platform/db"
	"github.com/fatflowers/yachtclub/pkg/config"
	"github.com/fatflowers/yachtclub/pkg/logger"
	"github.com/fatflowers/yachtclub/pkg/metrics"
	"github.com/fatflowers/yachtclub/pkg/tracing"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

// Core is config, logging and a migrated database.
var Core = fx.Options(
	config.Module,
	logger.Module,
	db.Module,
)

var Module = fx.Options(
	Core,
	tracing.Module,
	metrics.Module,
	ledger.Module,
	registry.Module,
	notifier.Module,
	notificationlog.Module,
	reconcile.Module,
	verification.Module,
	statistics.Module,
	server.Module,
)
