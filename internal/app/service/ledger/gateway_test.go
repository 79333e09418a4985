package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	solanatypes "github.com/blocto/solana-go-sdk/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/yachtclub/internal/models"
	"github.com/fatflowers/yachtclub/internal/platform/db/dbtest"
	"github.com/fatflowers/yachtclub/pkg/config"
	"github.com/fatflowers/yachtclub/pkg/types"
)

const testOwner = "0x00000000000000000000000000000000000000a1"

type fakeAnchor struct {
	mu          sync.Mutex
	submits     int
	failSubmits int
	statusCalls int
	// confirmations reported on the n-th Status call is n*step.
	step uint64
}

func (f *fakeAnchor) Submit(_ context.Context, entry *models.LedgerEntry) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	if f.failSubmits > 0 {
		f.failSubmits--
		return "", errors.New("rpc unavailable")
	}
	return fmt.Sprintf("sig-%d", entry.Height), nil
}

func (f *fakeAnchor) Status(context.Context, string) (AnchorStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	return AnchorStatus{Confirmations: uint64(f.statusCalls) * f.step}, nil
}

func newTestGateway(t *testing.T, anchor Anchor, opts Options) *Gateway {
	t.Helper()
	g := NewGateway(dbtest.New(t), anchor, opts, nil, zap.NewNop().Sugar())
	_, err := g.EnsureState(context.Background(), Genesis{Owner: testOwner, AuthorizedMinter: testOwner, RoyaltyRecipient: testOwner, RoyaltyFraction: 500})
	require.NoError(t, err)
	return g
}

func bump(_ *gorm.DB, state *models.RegistryState) error {
	state.NextTokenID++
	return nil
}

func TestExecute_AppendsChainedEntries(t *testing.T) {
	g := newTestGateway(t, nil, Options{})
	ctx := context.Background()

	r1, err := g.Execute(ctx, Call{Method: "bump", Caller: testOwner, Args: map[string]int{"n": 1}}, bump)
	require.NoError(t, err)
	r2, err := g.Execute(ctx, Call{Method: "bump", Caller: testOwner, Args: map[string]int{"n": 2}}, bump)
	require.NoError(t, err)

	require.Equal(t, int64(1), r1.Height)
	require.Equal(t, int64(2), r2.Height)
	require.False(t, r1.Anchored())

	e2, err := g.Entry(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, r1.Hash, e2.PrevHash)
	require.JSONEq(t, `{"n":2}`, string(e2.Payload))

	state, err := g.State(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), state.NextTokenID)
	require.Equal(t, r2.Hash, state.HeadHash)

	n, err := g.VerifyChain(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	require.NoError(t, g.WaitForConfirmations(ctx, r2, 2), "no anchor means committed is final")
}

func TestExecute_FailedMutationRollsBack(t *testing.T) {
	g := newTestGateway(t, nil, Options{})
	ctx := context.Background()
	boom := errors.New("precondition failed")

	receipt, err := g.Execute(ctx, Call{Method: "bump"}, func(tx *gorm.DB, state *models.RegistryState) error {
		state.NextTokenID = 99
		if err := tx.Create(&models.ApprovedMarketplace{Address: testOwner, Approved: true}).Error; err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Nil(t, receipt)

	state, err := g.State(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), state.NextTokenID)
	require.Zero(t, state.Height)

	var n int64
	require.NoError(t, g.Read(ctx).Model(&models.ApprovedMarketplace{}).Count(&n).Error)
	require.Zero(t, n)
}

func TestExecute_Noop(t *testing.T) {
	g := newTestGateway(t, nil, Options{})
	ctx := context.Background()

	receipt, err := g.Execute(ctx, Call{Method: "noop"}, func(*gorm.DB, *models.RegistryState) error { return ErrNoop })
	require.NoError(t, err)
	require.Nil(t, receipt)

	state, err := g.State(ctx)
	require.NoError(t, err)
	require.Zero(t, state.Height)
}

func TestExecute_NotInitialized(t *testing.T) {
	g := NewGateway(dbtest.New(t), nil, Options{}, nil, zap.NewNop().Sugar())
	_, err := g.Execute(context.Background(), Call{Method: "bump"}, bump)
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestExecute_SerializesConcurrentWrites(t *testing.T) {
	g := newTestGateway(t, nil, Options{})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Execute(ctx, Call{Method: "bump"}, bump)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	state, err := g.State(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(8), state.Height)
	require.Equal(t, int64(9), state.NextTokenID)
	_, err = g.VerifyChain(ctx)
	require.NoError(t, err)
}

func TestExecute_AnchorsAfterCommit(t *testing.T) {
	anchor := &fakeAnchor{step: 1}
	g := newTestGateway(t, anchor, Options{PollInterval: time.Millisecond, ConfirmTimeout: time.Second})
	ctx := context.Background()

	receipt, err := g.Execute(ctx, Call{Method: "bump"}, bump)
	require.NoError(t, err)
	require.Equal(t, "sig-1", receipt.Signature)

	e, err := g.Entry(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, e.AnchorSignature)
	require.Equal(t, "sig-1", *e.AnchorSignature)
	require.NotNil(t, e.AnchoredAt)

	require.NoError(t, g.WaitForConfirmations(ctx, receipt, 2))
	require.Equal(t, 2, anchor.statusCalls)
}

func TestWaitForConfirmations_ReanchorsWithoutRewriting(t *testing.T) {
	anchor := &fakeAnchor{step: 2, failSubmits: 1}
	g := newTestGateway(t, anchor, Options{PollInterval: time.Millisecond, ConfirmTimeout: time.Second})
	ctx := context.Background()

	receipt, err := g.Execute(ctx, Call{Method: "bump"}, bump)
	require.NoError(t, err, "anchor failures do not fail a committed write")
	require.False(t, receipt.Anchored())

	require.NoError(t, g.WaitForConfirmations(ctx, receipt, 2))
	require.Equal(t, "sig-1", receipt.Signature)
	require.Equal(t, 2, anchor.submits)

	state, err := g.State(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), state.Height)
}

func TestWaitForConfirmations_Timeout(t *testing.T) {
	anchor := &fakeAnchor{step: 0}
	g := newTestGateway(t, anchor, Options{PollInterval: 5 * time.Millisecond, ConfirmTimeout: 40 * time.Millisecond})
	ctx := context.Background()

	receipt, err := g.Execute(ctx, Call{Method: "bump"}, bump)
	require.NoError(t, err)

	err = g.WaitForConfirmations(ctx, receipt, 2)
	require.ErrorIs(t, err, ErrConfirmationTimeout)
	require.Equal(t, 1, anchor.submits)
}

// rejectingAnchor reports the first reject signatures it hands out as failed
// on chain and confirms the rest.
type rejectingAnchor struct {
	mu      sync.Mutex
	submits int
	reject  int
}

func (a *rejectingAnchor) Submit(_ context.Context, entry *models.LedgerEntry) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.submits++
	return fmt.Sprintf("sig-%d-%d", entry.Height, a.submits), nil
}

func (a *rejectingAnchor) Status(_ context.Context, signature string) (AnchorStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var n int
	if _, err := fmt.Sscanf(signature, "sig-1-%d", &n); err == nil && n <= a.reject {
		return AnchorStatus{}, fmt.Errorf("%w: InstructionError", ErrAnchorRejected)
	}
	return AnchorStatus{Confirmations: 32}, nil
}

func TestWaitForConfirmations_ReanchorsRejectedTransaction(t *testing.T) {
	anchor := &rejectingAnchor{reject: 1}
	g := newTestGateway(t, anchor, Options{PollInterval: time.Millisecond, ConfirmTimeout: time.Second})
	ctx := context.Background()

	receipt, err := g.Execute(ctx, Call{Method: "bump"}, bump)
	require.NoError(t, err)
	require.Equal(t, "sig-1-1", receipt.Signature)

	require.NoError(t, g.WaitForConfirmations(ctx, receipt, 2))
	require.Equal(t, "sig-1-2", receipt.Signature)
	require.Equal(t, 2, anchor.submits)

	e, err := g.Entry(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "sig-1-2", *e.AnchorSignature)

	state, err := g.State(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), state.Height, "the registry write is not repeated")
}

func TestWaitForConfirmations_GivesUpAfterSecondRejection(t *testing.T) {
	anchor := &rejectingAnchor{reject: 10}
	g := newTestGateway(t, anchor, Options{PollInterval: time.Millisecond, ConfirmTimeout: time.Second})
	ctx := context.Background()

	receipt, err := g.Execute(ctx, Call{Method: "bump"}, bump)
	require.NoError(t, err)

	err = g.WaitForConfirmations(ctx, receipt, 2)
	require.ErrorIs(t, err, ErrAnchorRejected)
	require.NotErrorIs(t, err, ErrConfirmationTimeout)
	require.Equal(t, 2, anchor.submits)
}

func TestReceiptAt(t *testing.T) {
	anchor := &fakeAnchor{step: 2}
	g := newTestGateway(t, anchor, Options{PollInterval: time.Millisecond, ConfirmTimeout: time.Second})
	ctx := context.Background()

	committed, err := g.Execute(ctx, Call{Method: "bump"}, bump)
	require.NoError(t, err)

	rebuilt, err := g.ReceiptAt(ctx, committed.Height)
	require.NoError(t, err)
	require.Equal(t, committed.Hash, rebuilt.Hash)
	require.Equal(t, committed.Method, rebuilt.Method)
	require.Equal(t, "sig-1", rebuilt.Signature)
	require.NoError(t, g.WaitForConfirmations(ctx, rebuilt, 2))

	_, err = g.ReceiptAt(ctx, 9)
	require.ErrorIs(t, err, ErrEntryNotFound)
}

func TestVerifyChain_DetectsTampering(t *testing.T) {
	g := newTestGateway(t, nil, Options{})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := g.Execute(ctx, Call{Method: "bump", Args: i}, bump)
		require.NoError(t, err)
	}

	require.NoError(t, g.Read(ctx).Model(&models.LedgerEntry{}).Where("height = ?", 2).
		Update("payload", []byte(`99`)).Error)

	_, err := g.VerifyChain(ctx)
	require.ErrorIs(t, err, ErrChainBroken)
}

func TestEnsureState_KeepsExistingRow(t *testing.T) {
	g := newTestGateway(t, nil, Options{})
	state, err := g.EnsureState(context.Background(), Genesis{Owner: "0x00000000000000000000000000000000000000ff"})
	require.NoError(t, err)
	require.Equal(t, testOwner, state.Owner)
	require.True(t, state.TransfersRestricted)
}

func TestEntry_NotFound(t *testing.T) {
	g := newTestGateway(t, nil, Options{})
	_, err := g.Entry(context.Background(), 7)
	require.ErrorIs(t, err, ErrEntryNotFound)
}

func TestGenesisFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Registry.Owner = "0x00000000000000000000000000000000000000AA"
	cfg.Registry.RoyaltyFraction = 250

	gen, err := GenesisFromConfig(cfg)
	require.NoError(t, err)
	require.Equal(t, "0x00000000000000000000000000000000000000aa", gen.Owner)
	require.Equal(t, types.ZeroAddress, gen.AuthorizedMinter)
	require.Equal(t, gen.Owner, gen.RoyaltyRecipient)
	require.Equal(t, int64(250), gen.RoyaltyFraction)

	cfg.Registry.AuthorizedMinter = "nope"
	_, err = GenesisFromConfig(cfg)
	require.Error(t, err)
}

func TestAccountFromSecret(t *testing.T) {
	acc := solanatypes.NewAccount()
	ints := make([]int, len(acc.PrivateKey))
	for i, b := range acc.PrivateKey {
		ints[i] = int(b)
	}
	raw, err := json.Marshal(ints)
	require.NoError(t, err)

	got, err := accountFromSecret(raw)
	require.NoError(t, err)
	require.Equal(t, acc.PublicKey, got.PublicKey)

	_, err = accountFromSecret([]byte("[1,2,300]"))
	require.Error(t, err)
}
