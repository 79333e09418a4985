package registry

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/yachtclub/internal/app/service/ledger"
	"github.com/fatflowers/yachtclub/pkg/config"
)

func provideRegistry(gw *ledger.Gateway, cfg *config.Config, log *zap.SugaredLogger) *Registry {
	return New(gw, cfg.Registry.TokenURIBase, log)
}

var Module = fx.Options(
	fx.Provide(provideRegistry),
)
