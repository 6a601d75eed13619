// Package transfer moves funds between two users' ledger balances
// without touching the chain.
package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/custodia/exchange-middleware/pkg/app/errors"
	"github.com/custodia/exchange-middleware/pkg/ledger"
	"github.com/custodia/exchange-middleware/pkg/token"
	"github.com/custodia/exchange-middleware/pkg/txlog"
)

// Request is an internal transfer between two users.
type Request struct {
	FromUserID  int64
	ToUserID    int64
	TokenSymbol string
	Amount      decimal.Decimal
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

// Transfer atomically debits the sender and credits the recipient,
// then records one audit entry per side.
func (s *Service) Transfer(ctx context.Context, request *Request) error {
	if request.Amount.LessThanOrEqual(decimal.Zero) {
		return apperrors.New(apperrors.CodeInvalidAmount, nil, "transfer amount must be positive")
	}
	if request.FromUserID == request.ToUserID {
		return apperrors.InvalidRequestError(nil, "cannot transfer to the same user")
	}

	tok, err := s.tokens.BySymbol(request.TokenSymbol)
	if err != nil {
		if errors.Is(err, token.ErrTokenNotFound) {
			return apperrors.TokenNotFoundError(err,
				fmt.Sprintf("unsupported token: %s", request.TokenSymbol))
		}
		return apperrors.GeneralError(err)
	}

	err = s.ledger.TransferBalance(ctx, request.FromUserID, request.ToUserID, tok.ID, request.Amount)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientBalance):
			return apperrors.InsufficientBalanceError(err,
				fmt.Sprintf("insufficient %s balance for user %d", tok.Symbol, request.FromUserID))
		case errors.Is(err, ledger.ErrNoBalanceRecord):
			return apperrors.New(apperrors.CodeBalanceNotFound, err,
				fmt.Sprintf("no %s balance for user %d", tok.Symbol, request.FromUserID))
		case errors.Is(err, ledger.ErrUnknownUser):
			return apperrors.New(apperrors.CodeUnknownUser, err, "unknown user")
		case errors.Is(err, ledger.ErrInvalidAmount):
			return apperrors.New(apperrors.CodeInvalidAmount, err, "transfer amount must be positive")
		default:
			return apperrors.GeneralError(err)
		}
	}

	// The recipient's entry mirrors the sender's. Both carry the
	// counterparty ids as user: addresses.
	fromAddr := fmt.Sprintf("user:%d", request.FromUserID)
	toAddr := fmt.Sprintf("user:%d", request.ToUserID)
	out := &txlog.Entry{
		UserID:      request.FromUserID,
		TokenID:     tok.ID,
		Type:        txlog.TypeTransferOut,
		Amount:      request.Amount,
		Status:      txlog.StatusCompleted,
		FromAddress: fromAddr,
		ToAddress:   toAddr,
	}
	in := &txlog.Entry{
		UserID:      request.ToUserID,
		TokenID:     tok.ID,
		Type:        txlog.TypeTransferIn,
		Amount:      request.Amount,
		Status:      txlog.StatusCompleted,
		FromAddress: fromAddr,
		ToAddress:   toAddr,
	}
	entries := []*txlog.Entry{out, in}
	for i, entry := range entries {
		if err := s.txlog.Record(ctx, entry); err != nil {
			s.compensate(ctx, request, tok, entries[:i], err)
			return apperrors.GeneralError(err)
		}
	}

	s.logger.Info("Internal transfer completed",
		zap.Int64("from_user_id", request.FromUserID),
		zap.Int64("to_user_id", request.ToUserID),
		zap.String("token", tok.Symbol),
		zap.String("amount", request.Amount.String()))
	return nil
}

// compensate reverses an applied transfer whose audit entries could
// not all be written, and marks any entry that did land as FAILED.
func (s *Service) compensate(ctx context.Context, request *Request, tok *token.Token, recorded []*txlog.Entry, cause error) {
	if err := s.ledger.TransferBalance(ctx, request.ToUserID, request.FromUserID, tok.ID, request.Amount); err != nil {
		s.logger.Error("Transfer audit write failed and the reversing transfer failed too",
			zap.Int64("from_user_id", request.FromUserID),
			zap.Int64("to_user_id", request.ToUserID),
			zap.String("token", tok.Symbol),
			zap.String("amount", request.Amount.String()),
			zap.NamedError("audit_error", cause),
			zap.Error(err))
		return
	}
	for _, entry := range recorded {
		if err := s.txlog.UpdateStatus(ctx, entry.ID, txlog.StatusFailed, "", cause.Error()); err != nil {
			s.logger.Error("Failed to mark reversed transfer entry",
				zap.Int64("log_entry_id", entry.ID),
				zap.Error(err))
		}
	}
	s.logger.Warn("Transfer reversed after audit write failure",
		zap.Int64("from_user_id", request.FromUserID),
		zap.Int64("to_user_id", request.ToUserID),
		zap.String("token", tok.Symbol),
		zap.String("amount", request.Amount.String()),
		zap.Error(cause))
}
