package watcher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/custodia/exchange-middleware/pkg/ledger"
	"github.com/custodia/exchange-middleware/pkg/token"
	"github.com/custodia/exchange-middleware/pkg/txlog"
	"github.com/custodia/exchange-middleware/pkg/wallet"
)

const (
	walletA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	walletB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	usdcCtr = "0x2222222222222222222222222222222222222222"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type mockChain struct {
	NativeBalanceFunc func(ctx context.Context, address string) (decimal.Decimal, error)
	TokenBalanceFunc  func(ctx context.Context, contractAddress, holder string, decimals int32) (decimal.Decimal, error)
}

func (m *mockChain) NativeBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	if m.NativeBalanceFunc == nil {
		return decimal.Zero, nil
	}
	return m.NativeBalanceFunc(ctx, address)
}

func (m *mockChain) TokenBalance(ctx context.Context, contractAddress, holder string, decimals int32) (decimal.Decimal, error) {
	if m.TokenBalanceFunc == nil {
		return decimal.Zero, nil
	}
	return m.TokenBalanceFunc(ctx, contractAddress, holder, decimals)
}

type fixture struct {
	watcher *Watcher
	wallets wallet.Store
	ledger  ledger.Ledger
	txlog   txlog.Store
}

func newFixture(t *testing.T, chain BalanceQuerier) *fixture {
	t.Helper()

	registry, err := token.NewRegistry(context.Background(), token.NewMemoryStore(
		&token.Token{ID: 1, Symbol: "ETH", Name: "Ether", Decimals: 18},
		&token.Token{ID: 2, Symbol: "USDC", Name: "USD Coin", ContractAddress: usdcCtr, Decimals: 6},
	))
	require.NoError(t, err)

	wallets := wallet.NewMemoryStore()
	l := ledger.NewMemory(nil)
	log := txlog.NewMemoryStore()

	return &fixture{
		watcher: New(nil, wallets, registry, l, log, chain, zap.NewNop()),
		wallets: wallets,
		ledger:  l,
		txlog:   log,
	}
}

func (f *fixture) track(t *testing.T, userID int64, address string) {
	t.Helper()
	require.NoError(t, f.wallets.CreateWallet(context.Background(), &wallet.Wallet{
		UserID:  userID,
		Address: address,
	}))
}

func TestPollOnce_CreditsDelta(t *testing.T) {
	chain := &mockChain{
		NativeBalanceFunc: func(_ context.Context, address string) (decimal.Decimal, error) {
			return dec("8"), nil
		},
	}
	f := newFixture(t, chain)
	f.track(t, 1, walletA)
	require.NoError(t, f.wallets.SetWatermark(context.Background(), walletA, 1, dec("5")))

	require.NoError(t, f.watcher.PollOnce(context.Background()))

	got, err := f.ledger.GetBalance(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.True(t, got.Equal(dec("3")))

	wm, err := f.wallets.GetWatermark(context.Background(), walletA, 1)
	require.NoError(t, err)
	assert.True(t, wm.Balance.Equal(dec("8")))

	entries, err := f.txlog.List(context.Background(), txlog.WithUserID(1), txlog.WithType(txlog.TypeDeposit))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, txlog.StatusCompleted, entries[0].Status)
	assert.True(t, strings.HasPrefix(entries[0].TxHash, "SIMULATED_DEPOSIT_"))
	assert.True(t, entries[0].Amount.Equal(dec("3")))
}

func TestPollOnce_Idempotent(t *testing.T) {
	chain := &mockChain{
		NativeBalanceFunc: func(_ context.Context, address string) (decimal.Decimal, error) {
			return dec("8"), nil
		},
	}
	f := newFixture(t, chain)
	f.track(t, 1, walletA)

	require.NoError(t, f.watcher.PollOnce(context.Background()))
	require.NoError(t, f.watcher.PollOnce(context.Background()))

	got, err := f.ledger.GetBalance(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.True(t, got.Equal(dec("8")))

	entries, err := f.txlog.List(context.Background(), txlog.WithType(txlog.TypeDeposit))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

type flakyAuditLog struct {
	txlog.Store
	failures int
}

func (f *flakyAuditLog) Record(ctx context.Context, e *txlog.Entry) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("audit store unavailable")
	}
	return f.Store.Record(ctx, e)
}

func TestPollOnce_AuditFailureDoesNotDoubleCredit(t *testing.T) {
	chain := &mockChain{
		NativeBalanceFunc: func(_ context.Context, address string) (decimal.Decimal, error) {
			return dec("8"), nil
		},
	}

	registry, err := token.NewRegistry(context.Background(), token.NewMemoryStore(
		&token.Token{ID: 1, Symbol: "ETH", Name: "Ether", Decimals: 18},
	))
	require.NoError(t, err)

	wallets := wallet.NewMemoryStore()
	l := ledger.NewMemory(nil)
	log := &flakyAuditLog{Store: txlog.NewMemoryStore(), failures: 1}
	w := New(nil, wallets, registry, l, log, chain, zap.NewNop())

	require.NoError(t, wallets.CreateWallet(context.Background(), &wallet.Wallet{
		UserID: 1, Address: walletA,
	}))

	// First pass: the audit write fails, the credit is rolled back and
	// the watermark stays behind.
	require.NoError(t, w.PollOnce(context.Background()))

	got, err := l.GetBalance(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.True(t, got.IsZero(), "compensated credit must not remain, got %s", got)

	_, err = wallets.GetWatermark(context.Background(), walletA, 1)
	assert.ErrorIs(t, err, wallet.ErrWatermarkNotFound)

	// Second and third passes: the delta is credited exactly once.
	require.NoError(t, w.PollOnce(context.Background()))
	require.NoError(t, w.PollOnce(context.Background()))

	got, err = l.GetBalance(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.True(t, got.Equal(dec("8")), "expected 8, got %s", got)

	entries, err := log.List(context.Background(), txlog.WithType(txlog.TypeDeposit))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Amount.Equal(dec("8")))
}

func TestPollOnce_FirstObservationCreditsFromZero(t *testing.T) {
	chain := &mockChain{
		NativeBalanceFunc: func(_ context.Context, address string) (decimal.Decimal, error) {
			return dec("2.5"), nil
		},
	}
	f := newFixture(t, chain)
	f.track(t, 1, walletA)

	require.NoError(t, f.watcher.PollOnce(context.Background()))

	got, err := f.ledger.GetBalance(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.True(t, got.Equal(dec("2.5")))
}

func TestPollOnce_TokenDeposit(t *testing.T) {
	chain := &mockChain{
		TokenBalanceFunc: func(_ context.Context, contractAddress, holder string, decimals int32) (decimal.Decimal, error) {
			assert.Equal(t, usdcCtr, contractAddress)
			assert.Equal(t, int32(6), decimals)
			return dec("120"), nil
		},
	}
	f := newFixture(t, chain)
	f.track(t, 1, walletA)

	require.NoError(t, f.watcher.PollOnce(context.Background()))

	got, err := f.ledger.GetBalance(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.True(t, got.Equal(dec("120")))
}

func TestPollOnce_BalanceDecreaseLowersWatermark(t *testing.T) {
	chain := &mockChain{
		NativeBalanceFunc: func(_ context.Context, address string) (decimal.Decimal, error) {
			return dec("3"), nil
		},
	}
	f := newFixture(t, chain)
	f.track(t, 1, walletA)
	require.NoError(t, f.wallets.SetWatermark(context.Background(), walletA, 1, dec("5")))

	require.NoError(t, f.watcher.PollOnce(context.Background()))

	// No credit for a decrease.
	got, err := f.ledger.GetBalance(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	// The watermark follows the chain down so the next deposit
	// credits its exact amount.
	wm, err := f.wallets.GetWatermark(context.Background(), walletA, 1)
	require.NoError(t, err)
	assert.True(t, wm.Balance.Equal(dec("3")))
}

func TestPollOnce_WalletFailureIsolated(t *testing.T) {
	chain := &mockChain{
		NativeBalanceFunc: func(_ context.Context, address string) (decimal.Decimal, error) {
			if address == walletA {
				return decimal.Zero, errors.New("rpc unreachable")
			}
			return dec("4"), nil
		},
	}
	f := newFixture(t, chain)
	f.track(t, 1, walletA)
	f.track(t, 2, walletB)

	require.NoError(t, f.watcher.PollOnce(context.Background()))

	// Wallet B is still reconciled despite wallet A failing.
	got, err := f.ledger.GetBalance(context.Background(), 2, 1)
	require.NoError(t, err)
	assert.True(t, got.Equal(dec("4")))
}

func TestPollOnce_UnownedWalletSkipped(t *testing.T) {
	chain := &mockChain{
		NativeBalanceFunc: func(_ context.Context, address string) (decimal.Decimal, error) {
			return dec("4"), nil
		},
	}
	f := newFixture(t, chain)
	f.track(t, 0, walletA)

	require.NoError(t, f.watcher.PollOnce(context.Background()))

	entries, err := f.txlog.List(context.Background(), txlog.WithType(txlog.TypeDeposit))
	require.NoError(t, err)
	assert.Empty(t, entries)

	// The watermark must not advance either, so the deposit is
	// credited once the wallet gains an owner.
	_, err = f.wallets.GetWatermark(context.Background(), walletA, 1)
	assert.ErrorIs(t, err, wallet.ErrWatermarkNotFound)
}

func TestPollOnce_SingleFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	chain := &mockChain{
		NativeBalanceFunc: func(_ context.Context, address string) (decimal.Decimal, error) {
			once.Do(func() {
				close(entered)
				<-release
			})
			return dec("1"), nil
		},
	}
	f := newFixture(t, chain)
	f.track(t, 1, walletA)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.watcher.PollOnce(context.Background())
	}()

	<-entered
	// A second pass while the first is blocked returns immediately
	// without touching anything.
	require.NoError(t, f.watcher.PollOnce(context.Background()))
	close(release)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("first pass did not finish")
	}

	entries, err := f.txlog.List(context.Background(), txlog.WithType(txlog.TypeDeposit))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStartStop(t *testing.T) {
	var mu sync.Mutex
	polls := 0
	chain := &mockChain{
		NativeBalanceFunc: func(_ context.Context, address string) (decimal.Decimal, error) {
			mu.Lock()
			polls++
			mu.Unlock()
			return dec("1"), nil
		},
	}
	f := newFixture(t, chain)
	f.track(t, 1, walletA)
	f.watcher.opts.PollingInterval = 10 * time.Millisecond

	f.watcher.Start()
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return polls > 0
	}, 5*time.Second, 5*time.Millisecond)
	f.watcher.Stop()
}
