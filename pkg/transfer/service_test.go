package transfer

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/custodia/exchange-middleware/pkg/app/errors"
	"github.com/custodia/exchange-middleware/pkg/ledger"
	"github.com/custodia/exchange-middleware/pkg/token"
	"github.com/custodia/exchange-middleware/pkg/txlog"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newService(t *testing.T) (*Service, ledger.Ledger, txlog.Store) {
	t.Helper()

	registry, err := token.NewRegistry(context.Background(), token.NewMemoryStore(
		&token.Token{ID: 1, Symbol: "ETH", Name: "Ether", Decimals: 18},
	))
	require.NoError(t, err)

	l := ledger.NewMemory(nil)
	log := txlog.NewMemoryStore()
	return NewService(l, log, registry, zap.NewNop()), l, log
}

func TestTransfer_MovesFundsAndLogsBothSides(t *testing.T) {
	s, l, log := newService(t)
	ctx := context.Background()

	_, err := l.AddToBalance(ctx, 1, 1, dec("10"))
	require.NoError(t, err)

	require.NoError(t, s.Transfer(ctx, &Request{FromUserID: 1, ToUserID: 2, TokenSymbol: "ETH", Amount: dec("4")}))

	from, err := l.GetBalance(ctx, 1, 1)
	require.NoError(t, err)
	to, err := l.GetBalance(ctx, 2, 1)
	require.NoError(t, err)
	assert.True(t, from.Equal(dec("6")))
	assert.True(t, to.Equal(dec("4")))

	out, err := log.List(ctx, txlog.WithUserID(1), txlog.WithType(txlog.TypeTransferOut))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "user:1", out[0].FromAddress)
	assert.Equal(t, "user:2", out[0].ToAddress)

	in, err := log.List(ctx, txlog.WithUserID(2), txlog.WithType(txlog.TypeTransferIn))
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, "user:1", in[0].FromAddress)
	assert.Equal(t, "user:2", in[0].ToAddress)
}

func TestTransfer_SelfTransferRejected(t *testing.T) {
	s, l, _ := newService(t)
	ctx := context.Background()

	_, err := l.AddToBalance(ctx, 1, 1, dec("10"))
	require.NoError(t, err)

	err = s.Transfer(ctx, &Request{FromUserID: 1, ToUserID: 1, TokenSymbol: "ETH", Amount: dec("1")})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidRequest))

	got, err := l.GetBalance(ctx, 1, 1)
	require.NoError(t, err)
	assert.True(t, got.Equal(dec("10")))
}

func TestTransfer_InsufficientBalance(t *testing.T) {
	s, l, log := newService(t)
	ctx := context.Background()

	_, err := l.AddToBalance(ctx, 1, 1, dec("3"))
	require.NoError(t, err)

	err = s.Transfer(ctx, &Request{FromUserID: 1, ToUserID: 2, TokenSymbol: "ETH", Amount: dec("5")})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInsufficientBalance))

	entries, err := log.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTransfer_Validation(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()

	err := s.Transfer(ctx, &Request{FromUserID: 1, ToUserID: 2, TokenSymbol: "ETH", Amount: dec("-1")})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidAmount))

	err = s.Transfer(ctx, &Request{FromUserID: 1, ToUserID: 2, TokenSymbol: "DOGE", Amount: dec("1")})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeTokenNotFound))

	err = s.Transfer(ctx, &Request{FromUserID: 1, ToUserID: 2, TokenSymbol: "ETH", Amount: dec("1")})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeBalanceNotFound))
}

type failingAuditLog struct {
	txlog.Store
	successes int
}

func (f *failingAuditLog) Record(ctx context.Context, e *txlog.Entry) error {
	if f.successes <= 0 {
		return errors.New("audit store unavailable")
	}
	f.successes--
	return f.Store.Record(ctx, e)
}

func TestTransfer_AuditFailureReversesTransfer(t *testing.T) {
	ctx := context.Background()
	registry, err := token.NewRegistry(ctx, token.NewMemoryStore(
		&token.Token{ID: 1, Symbol: "ETH", Name: "Ether", Decimals: 18},
	))
	require.NoError(t, err)

	l := ledger.NewMemory(nil)
	log := &failingAuditLog{Store: txlog.NewMemoryStore()}
	s := NewService(l, log, registry, zap.NewNop())

	_, err = l.AddToBalance(ctx, 1, 1, dec("10"))
	require.NoError(t, err)

	err = s.Transfer(ctx, &Request{FromUserID: 1, ToUserID: 2, TokenSymbol: "ETH", Amount: dec("4")})
	require.Error(t, err)

	from, err := l.GetBalance(ctx, 1, 1)
	require.NoError(t, err)
	to, err := l.GetBalance(ctx, 2, 1)
	require.NoError(t, err)
	assert.True(t, from.Equal(dec("10")), "sender balance must be restored, got %s", from)
	assert.True(t, to.IsZero(), "recipient must not keep reversed funds, got %s", to)

	entries, listErr := log.List(ctx)
	require.NoError(t, listErr)
	assert.Empty(t, entries)
}

func TestTransfer_PartialAuditFailureMarksEntryFailed(t *testing.T) {
	ctx := context.Background()
	registry, err := token.NewRegistry(ctx, token.NewMemoryStore(
		&token.Token{ID: 1, Symbol: "ETH", Name: "Ether", Decimals: 18},
	))
	require.NoError(t, err)

	l := ledger.NewMemory(nil)
	log := &failingAuditLog{Store: txlog.NewMemoryStore(), successes: 1}
	s := NewService(l, log, registry, zap.NewNop())

	_, err = l.AddToBalance(ctx, 1, 1, dec("10"))
	require.NoError(t, err)

	err = s.Transfer(ctx, &Request{FromUserID: 1, ToUserID: 2, TokenSymbol: "ETH", Amount: dec("4")})
	require.Error(t, err)

	from, err := l.GetBalance(ctx, 1, 1)
	require.NoError(t, err)
	assert.True(t, from.Equal(dec("10")))

	out, listErr := log.List(ctx, txlog.WithUserID(1), txlog.WithType(txlog.TypeTransferOut))
	require.NoError(t, listErr)
	require.Len(t, out, 1)
	assert.Equal(t, txlog.StatusFailed, out[0].Status)
	assert.Contains(t, out[0].ErrorMessage, "audit store unavailable")

	in, listErr := log.List(ctx, txlog.WithUserID(2), txlog.WithType(txlog.TypeTransferIn))
	require.NoError(t, listErr)
	assert.Empty(t, in)
}
