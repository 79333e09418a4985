package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

var ledgerWriteDur = &Metric{ID: "ledgerWriteDur", Name: "ledger_write_dur_ms", Description: "Ledger write latency in milliseconds, by method and result.", Type: "histogram_vec", Args: []string{"method", "result"}}

var cardVerifyCnt = &Metric{ID: "cardVerifyCnt", Name: "card_verify_total", Description: "Card verifications, by outcome (valid, invalid, malformed).", Type: "counter_vec", Args: []string{"outcome"}}

var webhookCnt = &Metric{ID: "webhookCnt", Name: "payment_webhook_total", Description: "Payment webhook deliveries, by event type and outcome.", Type: "counter_vec", Args: []string{"event_type", "outcome"}}

var mintCnt = &Metric{ID: "mintCnt", Name: "membership_mint_total", Description: "Membership mints attempted by reconciliation, by result.", Type: "counter_vec", Args: []string{"result"}}

// Business holds domain metrics. A nil *Business is valid and records nothing.
type Business struct {
	ledgerWriteDur *prometheus.HistogramVec
	cardVerify     *prometheus.CounterVec
	webhook        *prometheus.CounterVec
	mint           *prometheus.CounterVec
}

func NewBusiness(reg prometheus.Registerer) *Business {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	const subsystem = "yachtclub"
	return &Business{
		ledgerWriteDur: register(reg, NewMetric(ledgerWriteDur, subsystem)).(*prometheus.HistogramVec),
		cardVerify:     register(reg, NewMetric(cardVerifyCnt, subsystem)).(*prometheus.CounterVec),
		webhook:        register(reg, NewMetric(webhookCnt, subsystem)).(*prometheus.CounterVec),
		mint:           register(reg, NewMetric(mintCnt, subsystem)).(*prometheus.CounterVec),
	}
}

func (b *Business) ObserveLedgerWrite(method string, start time.Time, err error) {
	if b == nil {
		return
	}
	b.ledgerWriteDur.WithLabelValues(method, resultLabel(err)).Observe(MillisecondsSince(start))
}

func (b *Business) IncCardVerify(outcome string) {
	if b == nil {
		return
	}
	b.cardVerify.WithLabelValues(outcome).Inc()
}

func (b *Business) IncWebhook(eventType, outcome string) {
	if b == nil {
		return
	}
	b.webhook.WithLabelValues(eventType, outcome).Inc()
}

func (b *Business) IncMint(err error) {
	if b == nil {
		return
	}
	b.mint.WithLabelValues(resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func newDefaultBusiness() *Business { return NewBusiness(prometheus.DefaultRegisterer) }

var Module = fx.Options(
	fx.Provide(newDefaultBusiness),
)
