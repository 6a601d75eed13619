// Package watcher runs the deposit reconciliation loop. Each pass
// polls the on-chain balance of every tracked wallet and token pair,
// credits the owning user for any increase, and advances the stored
// watermark.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/creasty/defaults"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/custodia/exchange-middleware/internal/metrics"
	"github.com/custodia/exchange-middleware/pkg/ledger"
	"github.com/custodia/exchange-middleware/pkg/token"
	"github.com/custodia/exchange-middleware/pkg/txlog"
	"github.com/custodia/exchange-middleware/pkg/wallet"
)

// BalanceQuerier reads live balances from the chain.
type BalanceQuerier interface {
	NativeBalance(ctx context.Context, address string) (decimal.Decimal, error)
	TokenBalance(ctx context.Context, contractAddress, holder string, decimals int32) (decimal.Decimal, error)
}

// Options controls polling cadence.
type Options struct {
	PollingInterval time.Duration `default:"60s"`
	PollTimeout     time.Duration `default:"10s"`
}

// Watcher polls tracked wallets and reconciles deposits into the
// ledger.
type Watcher struct {
	opts    *Options
	wallets wallet.Store
	tokens  *token.Registry
	ledger  ledger.Ledger
	txlog   txlog.Store
	chain   BalanceQuerier
	logger  *zap.Logger

	// pollMu makes ticks single flight: a tick that fires while the
	// previous pass is still running is skipped.
	pollMu sync.Mutex

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(
	opts *Options,
	wallets wallet.Store,
	tokens *token.Registry,
	l ledger.Ledger,
	log txlog.Store,
	chain BalanceQuerier,
	logger *zap.Logger,
) *Watcher {
	if opts == nil {
		opts = &Options{}
	}
	if err := defaults.Set(opts); err != nil {
		panic(err)
	}

	return &Watcher{
		opts:    opts,
		wallets: wallets,
		tokens:  tokens,
		ledger:  l,
		txlog:   log,
		chain:   chain,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
}

// Start launches the background polling loop.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ticker := time.NewTicker(w.opts.PollingInterval)
		defer ticker.Stop()

		w.logger.Info("Started deposit watcher",
			zap.Duration("interval", w.opts.PollingInterval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), w.opts.PollTimeout)
				if err := w.PollOnce(ctx); err != nil {
					w.logger.Error("Deposit poll failed", zap.Error(err))
				}
				cancel()
			case <-w.stopCh:
				w.logger.Info("Stopping deposit watcher")
				return
			}
		}
	}()
}

// Stop stops the polling loop and waits for an in-flight pass.
// Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// PollOnce runs a single reconciliation pass. Failures on individual
// wallet and token pairs are logged and do not abort the pass.
func (w *Watcher) PollOnce(ctx context.Context) error {
	if !w.pollMu.TryLock() {
		w.logger.Debug("Skipping poll, previous pass still running")
		return nil
	}
	defer w.pollMu.Unlock()

	start := time.Now()
	defer func() {
		metrics.WatcherTickDuration.Observe(time.Since(start).Seconds())
	}()

	wallets, err := w.wallets.ListWallets(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tracked wallets: %w", err)
	}

	var credited int
	for _, wlt := range wallets {
		for _, symbol := range w.tokens.Symbols() {
			tok, err := w.tokens.BySymbol(symbol)
			if err != nil {
				w.logger.Warn("Token disappeared from registry",
					zap.String("token", symbol), zap.Error(err))
				continue
			}
			if w.checkPair(ctx, wlt, tok) {
				credited++
			}
		}
	}

	w.logger.Debug("Deposit poll completed",
		zap.Int("wallets", len(wallets)),
		zap.Int("deposits_credited", credited),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// checkPair reconciles one wallet and token pair. It returns true
// when a deposit was credited.
func (w *Watcher) checkPair(ctx context.Context, wlt *wallet.Wallet, tok *token.Token) bool {
	var current decimal.Decimal
	var err error
	if tok.IsNative() {
		current, err = w.chain.NativeBalance(ctx, wlt.Address)
	} else {
		current, err = w.chain.TokenBalance(ctx, tok.ContractAddress, wlt.Address, int32(tok.Decimals))
	}
	if err != nil {
		w.logger.Warn("Failed to query on-chain balance",
			zap.String("address", wlt.Address),
			zap.String("token", tok.Symbol),
			zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("watcher", "balance_query").Inc()
		return false
	}

	last := decimal.Zero
	wm, err := w.wallets.GetWatermark(ctx, wlt.Address, tok.ID)
	if err != nil && !errors.Is(err, wallet.ErrWatermarkNotFound) {
		w.logger.Warn("Failed to read watermark",
			zap.String("address", wlt.Address),
			zap.String("token", tok.Symbol),
			zap.Error(err))
		return false
	}
	if wm != nil {
		last = wm.Balance
	}

	delta := current.Sub(last)
	switch {
	case delta.IsZero():
		return false
	case delta.IsNegative():
		// Funds left the wallet outside our control. Persist the
		// lower value so the next real deposit credits its exact
		// amount instead of being swallowed by the gap.
		w.logger.Warn("On-chain balance decreased below watermark",
			zap.String("address", wlt.Address),
			zap.String("token", tok.Symbol),
			zap.String("watermark", last.String()),
			zap.String("current", current.String()))
		metrics.WatermarkRegressions.WithLabelValues(tok.Symbol).Inc()
		if err := w.wallets.SetWatermark(ctx, wlt.Address, tok.ID, current); err != nil {
			w.logger.Warn("Failed to persist lowered watermark",
				zap.String("address", wlt.Address),
				zap.String("token", tok.Symbol),
				zap.Error(err))
		}
		return false
	}

	if wlt.UserID == 0 {
		w.logger.Warn("Deposit detected on wallet with no owning user",
			zap.String("address", wlt.Address),
			zap.String("token", tok.Symbol),
			zap.String("amount", delta.String()))
		return false
	}

	if err := w.credit(ctx, wlt, tok, delta); err != nil {
		if !errors.Is(err, errCreditStands) {
			// Credit and audit entry were both rolled back; the
			// unchanged watermark makes the next pass retry cleanly.
			w.logger.Warn("Failed to credit deposit",
				zap.String("address", wlt.Address),
				zap.String("token", tok.Symbol),
				zap.String("amount", delta.String()),
				zap.Error(err))
			metrics.ErrorsTotal.WithLabelValues("watcher", "credit").Inc()
			return false
		}
		// The credit is committed but could not be audited or
		// reversed. Advance the watermark anyway: re-crediting the
		// same delta would double the user's funds.
		metrics.ErrorsTotal.WithLabelValues("watcher", "credit_unrecorded").Inc()
	}

	if err := w.wallets.SetWatermark(ctx, wlt.Address, tok.ID, current); err != nil {
		// The credit stands. Leaving the watermark behind means the
		// same delta would be credited again on the next pass, so
		// this is the one failure worth escalating.
		w.logger.Error("Deposit credited but watermark not advanced",
			zap.String("address", wlt.Address),
			zap.String("token", tok.Symbol),
			zap.String("amount", delta.String()),
			zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("watcher", "watermark").Inc()
		return true
	}

	w.logger.Info("Deposit credited",
		zap.Int64("user_id", wlt.UserID),
		zap.String("address", wlt.Address),
		zap.String("token", tok.Symbol),
		zap.String("amount", delta.String()))
	metrics.DepositsDetected.WithLabelValues(tok.Symbol).Inc()
	return true
}

// errCreditStands marks an audit failure whose compensating debit also
// failed, leaving the credited funds in place.
var errCreditStands = errors.New("deposit credited without audit entry")

// credit applies the deposit to the ledger and records its audit
// entry. A failed audit write is compensated by debiting the credit
// back, so the pair either fully lands or leaves no trace.
func (w *Watcher) credit(ctx context.Context, wlt *wallet.Wallet, tok *token.Token, delta decimal.Decimal) error {
	if _, err := w.ledger.AddToBalance(ctx, wlt.UserID, tok.ID, delta); err != nil {
		return fmt.Errorf("failed to add deposit to ledger: %w", err)
	}

	entry := &txlog.Entry{
		UserID:    wlt.UserID,
		TokenID:   tok.ID,
		Type:      txlog.TypeDeposit,
		Amount:    delta,
		Status:    txlog.StatusCompleted,
		TxHash:    fmt.Sprintf("SIMULATED_DEPOSIT_%s", uuid.NewString()),
		ToAddress: wlt.Address,
	}
	if err := w.txlog.Record(ctx, entry); err != nil {
		if _, debitErr := w.ledger.SubtractFromBalance(ctx, wlt.UserID, tok.ID, delta); debitErr != nil {
			w.logger.Error("Deposit audit write failed and the compensating debit failed too",
				zap.Int64("user_id", wlt.UserID),
				zap.String("address", wlt.Address),
				zap.String("token", tok.Symbol),
				zap.String("amount", delta.String()),
				zap.NamedError("audit_error", err),
				zap.Error(debitErr))
			return errCreditStands
		}
		return fmt.Errorf("failed to record deposit entry: %w", err)
	}
	return nil
}
