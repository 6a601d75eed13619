// Package withdraw implements the withdrawal pipeline: validate the
// request, pass rate limit admission, reserve funds on the ledger,
// submit the external transfer with bounded retries, then finalize or
// compensate.
package withdraw

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/creasty/defaults"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/custodia/exchange-middleware/internal/metrics"
	apperrors "github.com/custodia/exchange-middleware/pkg/app/errors"
	"github.com/custodia/exchange-middleware/pkg/ethereum"
	"github.com/custodia/exchange-middleware/pkg/ledger"
	"github.com/custodia/exchange-middleware/pkg/token"
	"github.com/custodia/exchange-middleware/pkg/txlog"
)

var addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// Transferor submits transfers to the external chain.
type Transferor interface {
	SendNative(ctx context.Context, toAddress string, amount decimal.Decimal) (string, error)
	SendToken(ctx context.Context, contractAddress, toAddress string, amount decimal.Decimal, decimals int32) (string, error)
}

// Admitter grants one admission token per withdrawal attempt.
type Admitter interface {
	Allow() bool
}

// Request is a withdrawal submitted by a user.
type Request struct {
	UserID      int64
	TokenSymbol string
	ToAddress   string
	Amount      decimal.Decimal
}

// Result is the success payload of a processed withdrawal.
type Result struct {
	TransactionID string
	TxHash        string
	LogEntryID    int64
	Status        txlog.Status
}

// Outcome resolves an asynchronous withdrawal with either a result or
// a typed failure.
type Outcome struct {
	Result *Result
	Err    error
}

// Options controls retry and worker pool behaviour. FromAddress, when
// set, is recorded on every withdrawal's audit entry as the sending
// wallet.
type Options struct {
	MaxRetries    int           `default:"3"`
	RetryDelay    time.Duration `default:"1s"`
	Workers       int           `default:"4"`
	QueueSize     int           `default:"64"`
	SubmitTimeout time.Duration `default:"30s"`
	FromAddress   string
}

type job struct {
	request *Request
	outcome chan *Outcome
}

// Pipeline processes withdrawals. Submit queues a request onto the
// worker pool; ProcessSync runs the same steps on the caller's
// goroutine.
type Pipeline struct {
	opts       *Options
	ledger     ledger.Ledger
	txlog      txlog.Store
	tokens     *token.Registry
	limiter    Admitter
	transferor Transferor
	logger     *zap.Logger

	jobs     chan job
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewPipeline(
	opts *Options,
	l ledger.Ledger,
	log txlog.Store,
	tokens *token.Registry,
	limiter Admitter,
	transferor Transferor,
	logger *zap.Logger,
) *Pipeline {
	if opts == nil {
		opts = &Options{}
	}
	if err := defaults.Set(opts); err != nil {
		panic(err)
	}

	return &Pipeline{
		opts:       opts,
		ledger:     l,
		txlog:      log,
		tokens:     tokens,
		limiter:    limiter,
		transferor: transferor,
		logger:     logger,
		jobs:       make(chan job, opts.QueueSize),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the worker pool.
func (p *Pipeline) Start() {
	workerDone := make(chan struct{}, p.opts.Workers)
	for i := 0; i < p.opts.Workers; i++ {
		go func() {
			defer func() { workerDone <- struct{}{} }()
			for {
				select {
				case <-p.stopCh:
					return
				case j := <-p.jobs:
					p.run(j)
				}
			}
		}()
	}

	go func() {
		for i := 0; i < p.opts.Workers; i++ {
			<-workerDone
		}
		close(p.done)
	}()

	p.logger.Info("Withdrawal pipeline started",
		zap.Int("workers", p.opts.Workers),
		zap.Int("queue_size", p.opts.QueueSize))
}

// Stop shuts the worker pool down and waits for in-flight withdrawals
// to finish. Queued but unstarted requests are resolved as failed.
// Safe to call more than once.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	<-p.done

	for {
		select {
		case j := <-p.jobs:
			j.outcome <- &Outcome{Err: apperrors.GeneralError(errors.New("withdrawal pipeline stopped"))}
			close(j.outcome)
		default:
			p.logger.Info("Withdrawal pipeline stopped")
			return
		}
	}
}

func (p *Pipeline) run(j job) {
	result, err := p.ProcessSync(context.Background(), j.request)
	j.outcome <- &Outcome{Result: result, Err: err}
	close(j.outcome)
}

// Submit queues a withdrawal for asynchronous processing. The caller
// receives a channel resolved with exactly one Outcome.
func (p *Pipeline) Submit(request *Request) (<-chan *Outcome, error) {
	outcome := make(chan *Outcome, 1)
	select {
	case p.jobs <- job{request: request, outcome: outcome}:
		return outcome, nil
	default:
		return nil, apperrors.RateLimitedError("withdrawal queue is full")
	}
}

// ProcessSync runs the full pipeline and blocks until the withdrawal
// is finalized or fails.
func (p *Pipeline) ProcessSync(ctx context.Context, request *Request) (*Result, error) {
	start := time.Now()

	tok, err := p.validate(request)
	if err != nil {
		return nil, err
	}

	if !p.limiter.Allow() {
		metrics.RateLimitRejections.Inc()
		return nil, apperrors.RateLimitedError("withdrawal rate limit exceeded")
	}

	entry, err := p.reserve(ctx, request, tok)
	if err != nil {
		return nil, err
	}

	result, err := p.submitAndFinalize(ctx, request, tok, entry)
	if err != nil {
		return nil, err
	}

	metrics.WithdrawalsTotal.WithLabelValues(tok.Symbol, "completed").Inc()
	metrics.WithdrawalDuration.WithLabelValues(tok.Symbol).Observe(time.Since(start).Seconds())
	return result, nil
}

// Validate runs the side-effect-free request checks without touching
// the ledger or the rate limiter. Callers queueing a request can
// reject malformed input up front instead of in the background.
func (p *Pipeline) Validate(request *Request) error {
	_, err := p.validate(request)
	return err
}

func (p *Pipeline) validate(request *Request) (*token.Token, error) {
	if !addressPattern.MatchString(request.ToAddress) {
		return nil, apperrors.New(apperrors.CodeInvalidAddress, nil,
			fmt.Sprintf("invalid destination address: %s", request.ToAddress))
	}
	if request.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, apperrors.New(apperrors.CodeInvalidAmount, nil, "withdrawal amount must be positive")
	}

	tok, err := p.tokens.BySymbol(request.TokenSymbol)
	if err != nil {
		if errors.Is(err, token.ErrTokenNotFound) {
			return nil, apperrors.New(apperrors.CodeInvalidToken, err,
				fmt.Sprintf("unsupported token: %s", request.TokenSymbol))
		}
		return nil, apperrors.GeneralError(err)
	}
	return tok, nil
}

// reserve debits the ledger and records the durable PENDING entry.
// After this point the funds are held and any failure path must either
// complete or compensate.
func (p *Pipeline) reserve(ctx context.Context, request *Request, tok *token.Token) (*txlog.Entry, error) {
	_, err := p.ledger.SubtractFromBalance(ctx, request.UserID, tok.ID, request.Amount)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientBalance):
			return nil, apperrors.InsufficientBalanceError(err,
				fmt.Sprintf("insufficient %s balance for user %d", tok.Symbol, request.UserID))
		case errors.Is(err, ledger.ErrNoBalanceRecord):
			return nil, apperrors.New(apperrors.CodeBalanceNotFound, err,
				fmt.Sprintf("no %s balance for user %d", tok.Symbol, request.UserID))
		case errors.Is(err, ledger.ErrUnknownUser):
			return nil, apperrors.New(apperrors.CodeUnknownUser, err,
				fmt.Sprintf("unknown user %d", request.UserID))
		case errors.Is(err, ledger.ErrInvalidAmount):
			return nil, apperrors.New(apperrors.CodeInvalidAmount, nil, "withdrawal amount must be positive")
		default:
			return nil, apperrors.GeneralError(err)
		}
	}

	entry := &txlog.Entry{
		UserID:      request.UserID,
		TokenID:     tok.ID,
		Type:        txlog.TypeWithdrawal,
		Amount:      request.Amount,
		Status:      txlog.StatusPending,
		FromAddress: p.opts.FromAddress,
		ToAddress:   request.ToAddress,
	}
	if err := p.txlog.Record(ctx, entry); err != nil {
		// The reservation must not be left without its audit entry.
		if _, creditErr := p.ledger.AddToBalance(ctx, request.UserID, tok.ID, request.Amount); creditErr != nil {
			p.logger.Error("Failed to compensate reservation after audit write failure",
				zap.Int64("user_id", request.UserID),
				zap.String("token", tok.Symbol),
				zap.String("amount", request.Amount.String()),
				zap.Error(creditErr))
		}
		return nil, apperrors.GeneralError(err)
	}
	return entry, nil
}

func (p *Pipeline) submitAndFinalize(ctx context.Context, request *Request, tok *token.Token, entry *txlog.Entry) (*Result, error) {
	txHash, submitErr := p.submitWithRetry(ctx, request, tok)

	if submitErr != nil {
		if errors.Is(submitErr, ethereum.ErrAmbiguousSubmit) {
			// The transfer may have reached the chain. Keep the
			// reservation and the PENDING entry for manual
			// reconciliation.
			p.logger.Error("Withdrawal submission outcome unknown, manual reconciliation required",
				zap.Int64("log_entry_id", entry.ID),
				zap.Int64("user_id", request.UserID),
				zap.String("token", tok.Symbol),
				zap.String("amount", request.Amount.String()),
				zap.Error(submitErr))
			metrics.WithdrawalsTotal.WithLabelValues(tok.Symbol, "ambiguous").Inc()
			return nil, apperrors.New(apperrors.CodeAmbiguousExternalResult, submitErr,
				"transfer submission outcome unknown, withdrawal held for reconciliation")
		}
		return nil, p.compensate(ctx, request, tok, entry, submitErr)
	}

	if err := p.txlog.UpdateStatus(ctx, entry.ID, txlog.StatusCompleted, txHash, ""); err != nil {
		p.logger.Error("Failed to mark withdrawal completed",
			zap.Int64("log_entry_id", entry.ID),
			zap.String("tx_hash", txHash),
			zap.Error(err))
		return nil, apperrors.GeneralError(err)
	}

	p.logger.Info("Withdrawal completed",
		zap.Int64("user_id", request.UserID),
		zap.String("token", tok.Symbol),
		zap.String("amount", request.Amount.String()),
		zap.String("tx_hash", txHash))

	return &Result{
		TransactionID: fmt.Sprintf("WD_%d_%s", request.UserID, uuid.NewString()),
		TxHash:        txHash,
		LogEntryID:    entry.ID,
		Status:        txlog.StatusCompleted,
	}, nil
}

func (p *Pipeline) submitWithRetry(ctx context.Context, request *Request, tok *token.Token) (string, error) {
	delay := p.opts.RetryDelay
	var lastErr error

	for attempt := 1; attempt <= p.opts.MaxRetries; attempt++ {
		submitCtx, cancel := context.WithTimeout(ctx, p.opts.SubmitTimeout)
		var txHash string
		var err error
		if tok.IsNative() {
			txHash, err = p.transferor.SendNative(submitCtx, request.ToAddress, request.Amount)
		} else {
			txHash, err = p.transferor.SendToken(submitCtx, tok.ContractAddress, request.ToAddress, request.Amount, int32(tok.Decimals))
		}
		cancel()

		if err == nil {
			return txHash, nil
		}
		lastErr = err

		if errors.Is(err, ethereum.ErrAmbiguousSubmit) || !ethereum.IsRetryable(err) {
			return "", err
		}
		if attempt == p.opts.MaxRetries {
			break
		}

		p.logger.Warn("Withdrawal submission failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		metrics.ExternalSubmitRetries.Inc()

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("withdrawal aborted: %w", ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}

	return "", fmt.Errorf("external transfer failed after %d attempts: %w", p.opts.MaxRetries, lastErr)
}

// compensate returns reserved funds and marks the audit entry FAILED.
func (p *Pipeline) compensate(ctx context.Context, request *Request, tok *token.Token, entry *txlog.Entry, cause error) error {
	if _, err := p.ledger.AddToBalance(ctx, request.UserID, tok.ID, request.Amount); err != nil {
		p.logger.Error("Failed to return reserved funds",
			zap.Int64("log_entry_id", entry.ID),
			zap.Int64("user_id", request.UserID),
			zap.String("token", tok.Symbol),
			zap.String("amount", request.Amount.String()),
			zap.Error(err))
		return apperrors.GeneralError(fmt.Errorf("failed to compensate withdrawal: %w", err))
	}

	if err := p.txlog.UpdateStatus(ctx, entry.ID, txlog.StatusFailed, "", cause.Error()); err != nil {
		p.logger.Error("Failed to mark withdrawal failed",
			zap.Int64("log_entry_id", entry.ID),
			zap.Error(err))
	}

	p.logger.Warn("Withdrawal failed, funds returned",
		zap.Int64("user_id", request.UserID),
		zap.String("token", tok.Symbol),
		zap.String("amount", request.Amount.String()),
		zap.Error(cause))
	metrics.WithdrawalsTotal.WithLabelValues(tok.Symbol, "failed").Inc()

	return apperrors.New(apperrors.CodeExternalTransferFailed, cause,
		fmt.Sprintf("external transfer failed: %s", cause.Error()))
}

// RecoverPending reports withdrawals left PENDING by an earlier run.
// These need manual reconciliation against the chain and are only
// surfaced, never replayed.
func (p *Pipeline) RecoverPending(ctx context.Context) error {
	pending, err := p.txlog.List(ctx,
		txlog.WithType(txlog.TypeWithdrawal),
		txlog.WithStatus(txlog.StatusPending))
	if err != nil {
		return fmt.Errorf("failed to list pending withdrawals: %w", err)
	}

	for _, entry := range pending {
		p.logger.Warn("Found pending withdrawal from earlier run, manual reconciliation required",
			zap.Int64("log_entry_id", entry.ID),
			zap.Int64("user_id", entry.UserID),
			zap.Int64("token_id", entry.TokenID),
			zap.String("amount", entry.Amount.String()),
			zap.Time("created_at", entry.CreatedAt))
		metrics.PendingAnomalies.Inc()
	}

	if len(pending) > 0 {
		p.logger.Warn("Pending withdrawal recovery finished",
			zap.Int("count", len(pending)))
	}
	return nil
}
