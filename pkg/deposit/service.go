// Package deposit credits user balances directly, used for manual
// credits and simulated deposits in test environments. Real on-chain
// deposits arrive through the watcher instead.
package deposit

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/custodia/exchange-middleware/pkg/app/errors"
	"github.com/custodia/exchange-middleware/pkg/ledger"
	"github.com/custodia/exchange-middleware/pkg/token"
	"github.com/custodia/exchange-middleware/pkg/txlog"
)

// Request is a direct deposit credit.
type Request struct {
	UserID      int64
	TokenSymbol string
	Amount      decimal.Decimal
}

// Result reports the credited deposit.
type Result struct {
	LogEntryID int64
	Reference  string
	NewBalance decimal.Decimal
}

type Service struct {
	ledger ledger.Ledger
	txlog  txlog.Store
	tokens *token.Registry
	logger *zap.Logger
}

func NewService(l ledger.Ledger, log txlog.Store, tokens *token.Registry, logger *zap.Logger) *Service {
	return &Service{
		ledger: l,
		txlog:  log,
		tokens: tokens,
		logger: logger,
	}
}

// Deposit credits the user's balance and records the audit entry.
func (s *Service) Deposit(ctx context.Context, request *Request) (*Result, error) {
	if request.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, apperrors.New(apperrors.CodeInvalidAmount, nil, "deposit amount must be positive")
	}

	tok, err := s.tokens.BySymbol(request.TokenSymbol)
	if err != nil {
		if errors.Is(err, token.ErrTokenNotFound) {
			return nil, apperrors.TokenNotFoundError(err,
				fmt.Sprintf("unsupported token: %s", request.TokenSymbol))
		}
		return nil, apperrors.GeneralError(err)
	}

	newBalance, err := s.ledger.AddToBalance(ctx, request.UserID, tok.ID, request.Amount)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrUnknownUser):
			return nil, apperrors.New(apperrors.CodeUnknownUser, err,
				fmt.Sprintf("unknown user %d", request.UserID))
		case errors.Is(err, ledger.ErrInvalidAmount):
			return nil, apperrors.New(apperrors.CodeInvalidAmount, err, "deposit amount must be positive")
		default:
			return nil, apperrors.GeneralError(err)
		}
	}

	entry := &txlog.Entry{
		UserID:  request.UserID,
		TokenID: tok.ID,
		Type:    txlog.TypeDeposit,
		Amount:  request.Amount,
		Status:  txlog.StatusCompleted,
		TxHash:  fmt.Sprintf("SIMULATED_DEPOSIT_%s", uuid.NewString()),
	}
	if err := s.txlog.Record(ctx, entry); err != nil {
		// Roll the credit back so the failed request leaves no
		// unaudited balance change behind.
		if _, debitErr := s.ledger.SubtractFromBalance(ctx, request.UserID, tok.ID, request.Amount); debitErr != nil {
			s.logger.Error("Deposit audit write failed and the compensating debit failed too",
				zap.Int64("user_id", request.UserID),
				zap.String("token", tok.Symbol),
				zap.String("amount", request.Amount.String()),
				zap.NamedError("audit_error", err),
				zap.Error(debitErr))
		}
		return nil, apperrors.GeneralError(err)
	}

	s.logger.Info("Deposit credited",
		zap.Int64("user_id", request.UserID),
		zap.String("token", tok.Symbol),
		zap.String("amount", request.Amount.String()),
		zap.String("reference", entry.TxHash))

	return &Result{
		LogEntryID: entry.ID,
		Reference:  entry.TxHash,
		NewBalance: newBalance,
	}, nil
}
