package ledger

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/custodia/exchange-middleware/pkg/pgutil"
	mghelper "github.com/custodia/exchange-middleware/pkg/pgutil/migrations"
)

func setupStore(t *testing.T) (context.Context, Ledger) {
	t.Helper()
	requireDockerAccess(t)

	ctx := context.Background()
	db, cleanup := pgutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	if err := mghelper.CreateSchema(ctx, db, &BalanceDao{}); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	return ctx, NewStore(db, nil)
}

func requireDockerAccess(t *testing.T) {
	t.Helper()

	candidates := []string{
		"/var/run/docker.sock",
		filepath.Join(os.Getenv("HOME"), ".docker/run/docker.sock"),
	}

	for _, sock := range candidates {
		if sock == "" {
			continue
		}
		if _, err := os.Stat(sock); err != nil {
			continue
		}
		conn, err := (&net.Dialer{}).DialContext(context.Background(), "unix", sock)
		if err == nil {
			_ = conn.Close()
			return
		}
	}

	t.Skip("docker daemon socket is not accessible; skipping testcontainer-backed ledger tests")
}

func TestPGLedger_AddAndGet(t *testing.T) {
	ctx, store := setupStore(t)

	got, err := store.AddToBalance(ctx, 1, 1, decimal.RequireFromString("2.5"))
	if err != nil {
		t.Fatalf("AddToBalance() failed: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("expected balance 2.5, got %s", got)
	}

	got, err = store.AddToBalance(ctx, 1, 1, decimal.RequireFromString("0.5"))
	if err != nil {
		t.Fatalf("AddToBalance() failed: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("3")) {
		t.Fatalf("expected balance 3, got %s", got)
	}

	balance, err := store.GetBalance(ctx, 1, 1)
	if err != nil {
		t.Fatalf("GetBalance() failed: %v", err)
	}
	if !balance.Equal(decimal.RequireFromString("3")) {
		t.Fatalf("expected stored balance 3, got %s", balance)
	}
}

func TestPGLedger_GetAbsentIsZero(t *testing.T) {
	ctx, store := setupStore(t)

	balance, err := store.GetBalance(ctx, 42, 42)
	if err != nil {
		t.Fatalf("GetBalance() failed: %v", err)
	}
	if !balance.IsZero() {
		t.Fatalf("expected zero balance, got %s", balance)
	}
}

func TestPGLedger_SubtractInsufficient(t *testing.T) {
	ctx, store := setupStore(t)

	if _, err := store.AddToBalance(ctx, 1, 1, decimal.RequireFromString("1")); err != nil {
		t.Fatalf("AddToBalance() failed: %v", err)
	}

	_, err := store.SubtractFromBalance(ctx, 1, 1, decimal.RequireFromString("2"))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	balance, err := store.GetBalance(ctx, 1, 1)
	if err != nil {
		t.Fatalf("GetBalance() failed: %v", err)
	}
	if !balance.Equal(decimal.RequireFromString("1")) {
		t.Fatalf("failed debit must not change the balance, got %s", balance)
	}
}

func TestPGLedger_SubtractNoRecord(t *testing.T) {
	ctx, store := setupStore(t)

	_, err := store.SubtractFromBalance(ctx, 9, 9, decimal.RequireFromString("1"))
	if !errors.Is(err, ErrNoBalanceRecord) {
		t.Fatalf("expected ErrNoBalanceRecord, got %v", err)
	}
}

func TestPGLedger_TransferMovesFunds(t *testing.T) {
	ctx, store := setupStore(t)

	if _, err := store.AddToBalance(ctx, 1, 1, decimal.RequireFromString("10")); err != nil {
		t.Fatalf("AddToBalance() failed: %v", err)
	}

	if err := store.TransferBalance(ctx, 1, 2, 1, decimal.RequireFromString("4")); err != nil {
		t.Fatalf("TransferBalance() failed: %v", err)
	}

	from, _ := store.GetBalance(ctx, 1, 1)
	to, _ := store.GetBalance(ctx, 2, 1)
	if !from.Equal(decimal.RequireFromString("6")) {
		t.Fatalf("expected sender balance 6, got %s", from)
	}
	if !to.Equal(decimal.RequireFromString("4")) {
		t.Fatalf("expected recipient balance 4, got %s", to)
	}
}

func TestPGLedger_TransferInsufficientLeavesBothUntouched(t *testing.T) {
	ctx, store := setupStore(t)

	if _, err := store.AddToBalance(ctx, 1, 1, decimal.RequireFromString("3")); err != nil {
		t.Fatalf("AddToBalance() failed: %v", err)
	}

	err := store.TransferBalance(ctx, 1, 2, 1, decimal.RequireFromString("5"))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	from, _ := store.GetBalance(ctx, 1, 1)
	to, _ := store.GetBalance(ctx, 2, 1)
	if !from.Equal(decimal.RequireFromString("3")) {
		t.Fatalf("expected sender balance 3, got %s", from)
	}
	if !to.IsZero() {
		t.Fatalf("expected recipient balance 0, got %s", to)
	}
}

func TestPGLedger_ConcurrentSubtractsNeverOverdraw(t *testing.T) {
	ctx, store := setupStore(t)

	if _, err := store.AddToBalance(ctx, 1, 1, decimal.RequireFromString("10")); err != nil {
		t.Fatalf("AddToBalance() failed: %v", err)
	}

	const attempts = 20
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.SubtractFromBalance(ctx, 1, 1, decimal.RequireFromString("1"))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, ErrInsufficientBalance) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 10 {
		t.Fatalf("expected exactly 10 debits to succeed, got %d", succeeded)
	}

	balance, err := store.GetBalance(ctx, 1, 1)
	if err != nil {
		t.Fatalf("GetBalance() failed: %v", err)
	}
	if !balance.IsZero() {
		t.Fatalf("expected zero balance after drain, got %s", balance)
	}
}

func TestPGLedger_AllBalancesOrdered(t *testing.T) {
	ctx, store := setupStore(t)

	for _, tokenID := range []int64{3, 1, 2} {
		if _, err := store.AddToBalance(ctx, 1, tokenID, decimal.RequireFromString("1")); err != nil {
			t.Fatalf("AddToBalance() failed: %v", err)
		}
	}

	balances, err := store.AllBalances(ctx, 1)
	if err != nil {
		t.Fatalf("AllBalances() failed: %v", err)
	}
	if len(balances) != 3 {
		t.Fatalf("expected 3 balances, got %d", len(balances))
	}
	for i, b := range balances {
		if b.TokenID != int64(i+1) {
			t.Fatalf("expected token id %d at position %d, got %d", i+1, i, b.TokenID)
		}
	}
}
