// Package exchange exposes the custody core over HTTP: deposits,
// withdrawals, internal transfers, balances and transaction history.
package exchange

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/custodia/exchange-middleware/pkg/app/errors"
	apphttp "github.com/custodia/exchange-middleware/pkg/app/http"
	"github.com/custodia/exchange-middleware/pkg/deposit"
	"github.com/custodia/exchange-middleware/pkg/ledger"
	"github.com/custodia/exchange-middleware/pkg/token"
	"github.com/custodia/exchange-middleware/pkg/transfer"
	"github.com/custodia/exchange-middleware/pkg/txlog"
	"github.com/custodia/exchange-middleware/pkg/withdraw"
)

// Handler wires the service layer to chi routes.
type Handler struct {
	ledger      ledger.Ledger
	txlog       txlog.Store
	tokens      *token.Registry
	deposits    *deposit.Service
	transfers   *transfer.Service
	withdrawals *withdraw.Pipeline
	validate    *validator.Validate
	logger      *zap.Logger
}

func NewHandler(
	l ledger.Ledger,
	log txlog.Store,
	tokens *token.Registry,
	deposits *deposit.Service,
	transfers *transfer.Service,
	withdrawals *withdraw.Pipeline,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		ledger:      l,
		txlog:       log,
		tokens:      tokens,
		deposits:    deposits,
		transfers:   transfers,
		withdrawals: withdrawals,
		validate:    validator.New(),
		logger:      logger,
	}
}

// RegisterRoutes mounts all exchange endpoints on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/deposit", apphttp.HandleError(h.handleDeposit))
		r.Post("/withdraw", apphttp.HandleError(h.handleWithdraw))
		r.Post("/withdraw/sync", apphttp.HandleError(h.handleWithdrawSync))
		r.Post("/transfer", apphttp.HandleError(h.handleTransfer))
		r.Get("/balances/{userID}", apphttp.HandleError(h.handleBalances))
		r.Get("/transactions/{userID}", apphttp.HandleError(h.handleTransactions))
	})
}

type depositRequest struct {
	UserID int64  `json:"user_id" validate:"required,gt=0"`
	Token  string `json:"token" validate:"required"`
	Amount string `json:"amount" validate:"required"`
}

type depositResponse struct {
	Reference  string `json:"reference"`
	NewBalance string `json:"new_balance"`
}

func (h *Handler) handleDeposit(w http.ResponseWriter, r *http.Request) error {
	var req depositRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return err
	}

	result, err := h.deposits.Deposit(r.Context(), &deposit.Request{
		UserID:      req.UserID,
		TokenSymbol: req.Token,
		Amount:      amount,
	})
	if err != nil {
		return err
	}

	return writeJSON(w, http.StatusOK, &depositResponse{
		Reference:  result.Reference,
		NewBalance: result.NewBalance.String(),
	})
}

type withdrawRequest struct {
	UserID    int64  `json:"user_id" validate:"required,gt=0"`
	Token     string `json:"token" validate:"required"`
	ToAddress string `json:"to_address" validate:"required"`
	Amount    string `json:"amount" validate:"required"`
}

type withdrawResponse struct {
	TransactionID string `json:"transaction_id,omitempty"`
	TxHash        string `json:"tx_hash,omitempty"`
	Status        string `json:"status"`
}

func (h *Handler) parseWithdraw(r *http.Request) (*withdraw.Request, error) {
	var req withdrawRequest
	if err := h.decode(r, &req); err != nil {
		return nil, err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	return &withdraw.Request{
		UserID:      req.UserID,
		TokenSymbol: req.Token,
		ToAddress:   req.ToAddress,
		Amount:      amount,
	}, nil
}

// handleWithdraw queues the withdrawal and returns immediately. The
// pipeline resolves it in the background.
func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) error {
	request, err := h.parseWithdraw(r)
	if err != nil {
		return err
	}
	// Malformed requests are rejected before queueing so the caller
	// sees the typed error instead of a 202 for a doomed withdrawal.
	if err := h.withdrawals.Validate(request); err != nil {
		return err
	}

	outcome, err := h.withdrawals.Submit(request)
	if err != nil {
		return err
	}

	go func() {
		if o := <-outcome; o != nil && o.Err != nil && apperrors.IsInternalError(o.Err) {
			h.logger.Error("Queued withdrawal failed",
				zap.Int64("user_id", request.UserID),
				zap.Error(o.Err))
		}
	}()

	return writeJSON(w, http.StatusAccepted, &withdrawResponse{Status: "queued"})
}

func (h *Handler) handleWithdrawSync(w http.ResponseWriter, r *http.Request) error {
	request, err := h.parseWithdraw(r)
	if err != nil {
		return err
	}

	result, err := h.withdrawals.ProcessSync(r.Context(), request)
	if err != nil {
		return err
	}

	return writeJSON(w, http.StatusOK, &withdrawResponse{
		TransactionID: result.TransactionID,
		TxHash:        result.TxHash,
		Status:        string(result.Status),
	})
}

type transferRequest struct {
	FromUserID int64  `json:"from_user_id" validate:"required,gt=0"`
	ToUserID   int64  `json:"to_user_id" validate:"required,gt=0"`
	Token      string `json:"token" validate:"required"`
	Amount     string `json:"amount" validate:"required"`
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) error {
	var req transferRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return err
	}

	err = h.transfers.Transfer(r.Context(), &transfer.Request{
		FromUserID:  req.FromUserID,
		ToUserID:    req.ToUserID,
		TokenSymbol: req.Token,
		Amount:      amount,
	})
	if err != nil {
		return err
	}

	return writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

type balanceResponse struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

func (h *Handler) handleBalances(w http.ResponseWriter, r *http.Request) error {
	userID, err := pathUserID(r)
	if err != nil {
		return err
	}

	balances, err := h.ledger.AllBalances(r.Context(), userID)
	if err != nil {
		return apperrors.GeneralError(err)
	}

	response := make([]*balanceResponse, 0, len(balances))
	for _, b := range balances {
		tok, err := h.tokens.ByID(b.TokenID)
		if err != nil {
			h.logger.Warn("Balance references unknown token",
				zap.Int64("user_id", userID),
				zap.Int64("token_id", b.TokenID))
			continue
		}
		response = append(response, &balanceResponse{
			Token:  tok.Symbol,
			Amount: b.Amount.String(),
		})
	}
	return writeJSON(w, http.StatusOK, response)
}

type transactionResponse struct {
	ID           int64  `json:"id"`
	Token        string `json:"token"`
	Type         string `json:"type"`
	Amount       string `json:"amount"`
	Status       string `json:"status"`
	TxHash       string `json:"tx_hash,omitempty"`
	FromAddress  string `json:"from_address,omitempty"`
	ToAddress    string `json:"to_address,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func (h *Handler) handleTransactions(w http.ResponseWriter, r *http.Request) error {
	userID, err := pathUserID(r)
	if err != nil {
		return err
	}

	opts := []txlog.QueryOption{txlog.WithUserID(userID)}
	query := r.URL.Query()
	if t := query.Get("type"); t != "" {
		opts = append(opts, txlog.WithType(txlog.Type(t)))
	}
	if s := query.Get("status"); s != "" {
		opts = append(opts, txlog.WithStatus(txlog.Status(s)))
	}
	if fromRaw, toRaw := query.Get("from"), query.Get("to"); fromRaw != "" && toRaw != "" {
		from, fromErr := time.Parse(time.RFC3339, fromRaw)
		to, toErr := time.Parse(time.RFC3339, toRaw)
		if fromErr != nil || toErr != nil {
			return apperrors.InvalidRequestError(nil, "from and to must be RFC 3339 timestamps")
		}
		opts = append(opts, txlog.WithTimeRange(from, to))
	}
	limit, offset := 50, 0
	if l := query.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if o := query.Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	opts = append(opts, txlog.WithPage(limit, offset))

	entries, err := h.txlog.List(r.Context(), opts...)
	if err != nil {
		return apperrors.GeneralError(err)
	}

	response := make([]*transactionResponse, 0, len(entries))
	for _, e := range entries {
		symbol := strconv.FormatInt(e.TokenID, 10)
		if tok, err := h.tokens.ByID(e.TokenID); err == nil {
			symbol = tok.Symbol
		}
		response = append(response, &transactionResponse{
			ID:           e.ID,
			Token:        symbol,
			Type:         string(e.Type),
			Amount:       e.Amount.String(),
			Status:       string(e.Status),
			TxHash:       e.TxHash,
			FromAddress:  e.FromAddress,
			ToAddress:    e.ToAddress,
			ErrorMessage: e.ErrorMessage,
			CreatedAt:    e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	return writeJSON(w, http.StatusOK, response)
}

func (h *Handler) decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.InvalidRequestError(err, "invalid JSON body")
	}
	if err := h.validate.Struct(v); err != nil {
		return apperrors.InvalidRequestError(err, fmt.Sprintf("invalid request: %s", err.Error()))
	}
	return nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, apperrors.New(apperrors.CodeInvalidAmount, err,
			fmt.Sprintf("invalid amount: %s", raw))
	}
	return amount, nil
}

func pathUserID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "userID")
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		return 0, apperrors.InvalidRequestError(err, fmt.Sprintf("invalid user id: %s", raw))
	}
	return userID, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
