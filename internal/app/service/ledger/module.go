package ledger

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/yachtclub/pkg/config"
	"github.com/fatflowers/yachtclub/pkg/metrics"
	"github.com/fatflowers/yachtclub/pkg/types"
)

func provideGateway(db *gorm.DB, anchor Anchor, cfg *config.Config, m *metrics.Business, log *zap.SugaredLogger) *Gateway {
	return NewGateway(db, anchor, OptionsFromConfig(cfg), m, log)
}

// GenesisFromConfig normalizes the configured registry identities. Empty
// identities become the zero address, which no caller can match.
func GenesisFromConfig(cfg *config.Config) (Genesis, error) {
	norm := func(field, addr string) (string, error) {
		if addr == "" {
			return types.ZeroAddress, nil
		}
		a, err := types.NormalizeAddress(addr)
		if err != nil {
			return "", fmt.Errorf("registry.%s: %w", field, err)
		}
		return a, nil
	}
	var (
		gen Genesis
		err error
	)
	if gen.Owner, err = norm("owner", cfg.Registry.Owner); err != nil {
		return gen, err
	}
	if gen.AuthorizedMinter, err = norm("authorized_minter", cfg.Registry.AuthorizedMinter); err != nil {
		return gen, err
	}
	if gen.RoyaltyRecipient, err = norm("royalty_recipient", cfg.Registry.RoyaltyRecipient); err != nil {
		return gen, err
	}
	if types.IsZeroAddress(gen.RoyaltyRecipient) {
		gen.RoyaltyRecipient = gen.Owner
	}
	gen.RoyaltyFraction = cfg.Registry.RoyaltyFraction
	return gen, nil
}

func seedState(lc fx.Lifecycle, g *Gateway, cfg *config.Config, log *zap.SugaredLogger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			gen, err := GenesisFromConfig(cfg)
			if err != nil {
				return err
			}
			state, err := g.EnsureState(ctx, gen)
			if err != nil {
				return err
			}
			if types.IsZeroAddress(state.Owner) {
				log.Warnw("registry owner is unset, administrative writes are disabled")
			}
			log.Infow("registry state ready", "height", state.Height, "next_token_id", state.NextTokenID, "owner", state.Owner)
			return nil
		},
	})
}

var Module = fx.Options(
	fx.Provide(NewAnchor),
	fx.Provide(provideGateway),
	fx.Invoke(seedState),
)
