package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/yachtclub/internal/models"
	"github.com/fatflowers/yachtclub/pkg/config"
	"github.com/fatflowers/yachtclub/pkg/logctx"
	"github.com/fatflowers/yachtclub/pkg/metrics"
	"github.com/fatflowers/yachtclub/pkg/tool"
	"github.com/fatflowers/yachtclub/pkg/tracing"
)

var (
	ErrNotInitialized      = errors.New("ledger: registry state not initialized")
	ErrConfirmationTimeout = errors.New("ledger: timed out waiting for confirmations")
	ErrEntryNotFound       = errors.New("ledger: entry not found")
	ErrChainBroken         = errors.New("ledger: journal hash chain broken")

	// ErrNoop may be returned by a MutateFunc to roll back without journaling.
	// Execute then returns a nil receipt and a nil error.
	ErrNoop = errors.New("ledger: no-op")
)

const (
	defaultConfirmations  = 2
	defaultConfirmTimeout = 60 * time.Second
	defaultPollInterval   = 2 * time.Second
)

// Call identifies one registry write for the journal.
type Call struct {
	Method string
	Caller string
	Args   any
}

// Receipt describes a committed write.
type Receipt struct {
	Height      int64     `json:"height"`
	Hash        string    `json:"hash"`
	Method      string    `json:"method"`
	Signature   string    `json:"signature,omitempty"`
	CommittedAt time.Time `json:"committed_at"`
}

func (r *Receipt) Anchored() bool { return r != nil && r.Signature != "" }

// MutateFunc applies a write inside the gateway transaction. state is locked
// for the duration; changes made to it are persisted with the journal entry.
type MutateFunc func(tx *gorm.DB, state *models.RegistryState) error

type Options struct {
	Confirmations  int
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return Options{}
	}
	return Options{
		Confirmations:  cfg.Ledger.Confirmations,
		ConfirmTimeout: cfg.Ledger.ConfirmTimeout,
		PollInterval:   cfg.Ledger.PollInterval,
	}
}

// Gateway serializes every registry write and journals it. Writes are
// all-or-nothing; reads go straight to the database and see committed state.
type Gateway struct {
	db      *gorm.DB
	anchor  Anchor
	opts    Options
	log     *zap.SugaredLogger
	metrics *metrics.Business
	tracer  trace.Tracer

	mu  sync.Mutex
	now func() time.Time
}

// NewGateway builds a gateway. A nil anchor means committed entries are final.
func NewGateway(db *gorm.DB, anchor Anchor, opts Options, m *metrics.Business, log *zap.SugaredLogger) *Gateway {
	if opts.Confirmations <= 0 {
		opts.Confirmations = defaultConfirmations
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = defaultConfirmTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &Gateway{
		db:      db,
		anchor:  anchor,
		opts:    opts,
		log:     log,
		metrics: m,
		tracer:  tracing.Tracer("ledger"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Confirmations is the configured durability threshold.
func (g *Gateway) Confirmations() int { return g.opts.Confirmations }

// Read returns a handle for committed-state reads.
func (g *Gateway) Read(ctx context.Context) *gorm.DB {
	return g.db.WithContext(ctx)
}

// Execute runs fn under the registry lock and appends a journal entry in the
// same transaction. The entry is anchored after commit; anchoring failures are
// logged and leave the receipt unanchored.
func (g *Gateway) Execute(ctx context.Context, call Call, fn MutateFunc) (*Receipt, error) {
	ctx, span := g.tracer.Start(ctx, "ledger.execute", trace.WithAttributes(
		attribute.String("ledger.method", call.Method),
		attribute.String("ledger.caller", call.Caller),
	))
	defer span.End()

	payload, err := json.Marshal(call.Args)
	if err != nil {
		return nil, fmt.Errorf("marshal %s args: %w", call.Method, err)
	}

	start := time.Now()
	var entry *models.LedgerEntry

	g.mu.Lock()
	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var state models.RegistryState
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&state, models.RegistryStateID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotInitialized
			}
			return fmt.Errorf("lock registry state: %w", err)
		}
		if err := fn(tx, &state); err != nil {
			return err
		}

		height := state.Height + 1
		entry = &models.LedgerEntry{
			Height:    height,
			PrevHash:  state.HeadHash,
			Method:    call.Method,
			Caller:    call.Caller,
			Payload:   datatypes.JSON(payload),
			CreatedAt: g.now(),
		}
		entry.Hash = EntryHash(entry)
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("append journal entry: %w", err)
		}
		state.Height = height
		state.HeadHash = entry.Hash
		if err := tx.Save(&state).Error; err != nil {
			return fmt.Errorf("advance registry state: %w", err)
		}
		return nil
	})
	g.mu.Unlock()

	if errors.Is(err, ErrNoop) {
		span.SetAttributes(attribute.Bool("ledger.noop", true))
		return nil, nil
	}
	g.metrics.ObserveLedgerWrite(call.Method, start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	receipt := &Receipt{Height: entry.Height, Hash: entry.Hash, Method: entry.Method, CommittedAt: entry.CreatedAt}
	span.SetAttributes(attribute.Int64("ledger.height", entry.Height))
	if sig, err := g.submitAnchor(ctx, entry); err != nil {
		logctx.FromCtx(ctx, g.log).Warnw("ledger_anchor_failed", "height", entry.Height, "method", entry.Method, "err", err)
	} else {
		receipt.Signature = sig
	}
	return receipt, nil
}

func (g *Gateway) submitAnchor(ctx context.Context, entry *models.LedgerEntry) (string, error) {
	if g.anchor == nil {
		return "", nil
	}
	sig, err := g.anchor.Submit(ctx, entry)
	if err != nil {
		return "", err
	}
	now := g.now()
	if err := g.db.WithContext(ctx).Model(&models.LedgerEntry{}).
		Where("height = ?", entry.Height).
		Updates(map[string]any{"anchor_signature": sig, "anchored_at": now}).Error; err != nil {
		return "", fmt.Errorf("record anchor signature: %w", err)
	}
	entry.AnchorSignature = &sig
	entry.AnchoredAt = &now
	return sig, nil
}

// WaitForConfirmations blocks until the receipt's entry has at least n
// confirmations on the anchor chain, bounded by the configured timeout. An
// unanchored entry is anchored again, as is an entry whose anchor transaction
// failed on chain (once per call); the registry write itself is never
// resubmitted. Without an anchor, committed entries are already final.
func (g *Gateway) WaitForConfirmations(ctx context.Context, receipt *Receipt, n int) error {
	if receipt == nil || g.anchor == nil || n <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, g.opts.ConfirmTimeout)
	defer cancel()
	ctx, span := g.tracer.Start(ctx, "ledger.wait_confirmations", trace.WithAttributes(
		attribute.Int64("ledger.height", receipt.Height),
		attribute.Int("ledger.confirmations", n),
	))
	defer span.End()
	lg := logctx.FromCtx(ctx, g.log)

	if receipt.Signature == "" {
		entry, err := g.Entry(ctx, receipt.Height)
		if err != nil {
			return err
		}
		if entry.AnchorSignature != nil && *entry.AnchorSignature != "" {
			receipt.Signature = *entry.AnchorSignature
		} else if err := g.reanchor(ctx, receipt); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(g.opts.PollInterval)
	defer ticker.Stop()
	reanchored := false
	for {
		st, err := g.anchor.Status(ctx, receipt.Signature)
		switch {
		case errors.Is(err, ErrAnchorRejected):
			if reanchored {
				span.SetStatus(codes.Error, "anchor rejected")
				return fmt.Errorf("height %d: %w", receipt.Height, err)
			}
			lg.Warnw("ledger_anchor_rejected", "height", receipt.Height, "signature", receipt.Signature, "err", err)
			reanchored = true
			if err := g.reanchor(ctx, receipt); err != nil {
				return err
			}
			continue
		case err != nil:
			lg.Warnw("ledger_anchor_status_failed", "height", receipt.Height, "err", err)
		case st.Finalized || st.Confirmations >= uint64(n):
			span.SetAttributes(attribute.Int64("ledger.observed_confirmations", int64(st.Confirmations)))
			return nil
		}
		select {
		case <-ctx.Done():
			span.SetStatus(codes.Error, "confirmation timeout")
			return fmt.Errorf("%w: height %d", ErrConfirmationTimeout, receipt.Height)
		case <-ticker.C:
		}
	}
}

// reanchor submits the receipt's entry to the anchor again and records the
// new signature.
func (g *Gateway) reanchor(ctx context.Context, receipt *Receipt) error {
	entry, err := g.Entry(ctx, receipt.Height)
	if err != nil {
		return err
	}
	receipt.Signature = ""
	sig, err := g.submitAnchor(ctx, entry)
	if err != nil {
		return fmt.Errorf("re-anchor height %d: %w", receipt.Height, err)
	}
	receipt.Signature = sig
	return nil
}

// ReceiptAt rebuilds the receipt of a committed entry, so a later process
// can wait on a write it did not make.
func (g *Gateway) ReceiptAt(ctx context.Context, height int64) (*Receipt, error) {
	e, err := g.Entry(ctx, height)
	if err != nil {
		return nil, err
	}
	r := &Receipt{Height: e.Height, Hash: e.Hash, Method: e.Method, CommittedAt: e.CreatedAt}
	if e.AnchorSignature != nil {
		r.Signature = *e.AnchorSignature
	}
	return r, nil
}

// Entry loads one journal entry.
func (g *Gateway) Entry(ctx context.Context, height int64) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	if err := g.db.WithContext(ctx).First(&e, "height = ?", height).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return &e, nil
}

// State returns the committed registry state.
func (g *Gateway) State(ctx context.Context) (*models.RegistryState, error) {
	var s models.RegistryState
	if err := g.db.WithContext(ctx).First(&s, models.RegistryStateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotInitialized
		}
		return nil, err
	}
	return &s, nil
}

// Genesis seeds the registry state row when it does not exist yet.
type Genesis struct {
	Owner            string
	AuthorizedMinter string
	RoyaltyRecipient string
	RoyaltyFraction  int64
}

// EnsureState creates the registry state row on first start. An existing row
// is left untouched.
func (g *Gateway) EnsureState(ctx context.Context, gen Genesis) (*models.RegistryState, error) {
	state := &models.RegistryState{
		ID:                  models.RegistryStateID,
		Owner:               gen.Owner,
		AuthorizedMinter:    gen.AuthorizedMinter,
		NextTokenID:         1,
		RoyaltyRecipient:    gen.RoyaltyRecipient,
		RoyaltyFraction:     gen.RoyaltyFraction,
		TransfersRestricted: true,
	}
	if err := g.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(state).Error; err != nil {
		return nil, fmt.Errorf("seed registry state: %w", err)
	}
	return g.State(ctx)
}

// VerifyChain recomputes every entry hash and checks the links up to the head.
func (g *Gateway) VerifyChain(ctx context.Context) (int64, error) {
	state, err := g.State(ctx)
	if err != nil {
		return 0, err
	}
	prev := ""
	var checked int64
	var batch []models.LedgerEntry
	res := g.db.WithContext(ctx).Order("height").FindInBatches(&batch, 500, func(tx *gorm.DB, _ int) error {
		for i := range batch {
			e := &batch[i]
			if e.Height != checked+1 || e.PrevHash != prev || EntryHash(e) != e.Hash {
				return fmt.Errorf("%w at height %d", ErrChainBroken, e.Height)
			}
			prev = e.Hash
			checked++
		}
		return nil
	})
	if res.Error != nil {
		return checked, res.Error
	}
	if checked != state.Height || prev != state.HeadHash {
		return checked, fmt.Errorf("%w: head at %d, journal ends at %d", ErrChainBroken, state.Height, checked)
	}
	return checked, nil
}

// EntryHash is sha256(prev_hash | height | method | caller | payload), hex encoded.
func EntryHash(e *models.LedgerEntry) string {
	sep := []byte{'|'}
	return tool.SHA256Hex(
		[]byte(e.PrevHash), sep,
		[]byte(strconv.FormatInt(e.Height, 10)), sep,
		[]byte(e.Method), sep,
		[]byte(e.Caller), sep,
		[]byte(e.Payload),
	)
}
