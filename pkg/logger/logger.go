package logger

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fatflowers/yachtclub/pkg/config"
)

// New builds the process logger. Production JSON output everywhere; dev
// additionally logs at debug level.
func New(cfg *config.Config) (*zap.SugaredLogger, error) {
	zc := zap.NewProductionConfig()
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.EncoderConfig.TimeKey = "time"
	if cfg != nil && cfg.Env == config.EnvDev {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	l, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar().With("service", serviceName(cfg)), nil
}

func serviceName(cfg *config.Config) string {
	if cfg == nil || cfg.Tracing.ServiceName == "" {
		return "yachtclub-api"
	}
	return cfg.Tracing.ServiceName
}

func registerSync(lc fx.Lifecycle, l *zap.SugaredLogger) {
	lc.Append(fx.StopHook(func() { _ = l.Sync() }))
}

var Module = fx.Options(
	fx.Provide(New),
	fx.Invoke(registerSync),
)
