package verification

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/yachtclub/internal/app/service/registry"
	"github.com/fatflowers/yachtclub/pkg/logctx"
	"github.com/fatflowers/yachtclub/pkg/metrics"
	"github.com/fatflowers/yachtclub/pkg/types"
)

var ErrInvalidCardID = registry.ErrInvalidCardID

const (
	OutcomeValid     = "valid"
	OutcomeInvalid   = "invalid"
	OutcomeMalformed = "malformed"
)

// CardVerifier answers whether a card currently grants access.
type CardVerifier interface {
	VerifyNFCCard(ctx context.Context, cardID string) (*registry.VerifyResult, error)
}

// Service is the read path access terminals call on every tap.
type Service struct {
	cards   CardVerifier
	metrics *metrics.Business
	log     *zap.SugaredLogger
}

func New(cards CardVerifier, m *metrics.Business, log *zap.SugaredLogger) *Service {
	return &Service{cards: cards, metrics: m, log: log}
}

// Verify reports whether cardID opens doors. Malformed ids fail with
// ErrInvalidCardID; unknown or inactive cards are an invalid result, not an
// error.
func (s *Service) Verify(ctx context.Context, cardID string) (*registry.VerifyResult, error) {
	cardID, err := types.NormalizeCardID(cardID)
	if err != nil {
		s.metrics.IncCardVerify(OutcomeMalformed)
		return nil, ErrInvalidCardID
	}
	res, err := s.cards.VerifyNFCCard(ctx, cardID)
	if err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("card verification failed", "card_id", cardID, "err", err)
		return nil, err
	}
	outcome := OutcomeInvalid
	if res.IsValid {
		outcome = OutcomeValid
	}
	s.metrics.IncCardVerify(outcome)
	logctx.FromCtx(ctx, s.log).Infow("card_verified", "card_id", cardID, "valid", res.IsValid, "token_id", res.TokenID)
	return res, nil
}

func provideService(reg *registry.Registry, m *metrics.Business, log *zap.SugaredLogger) *Service {
	return New(reg, m, log)
}

var Module = fx.Options(
	fx.Provide(provideService),
)
