package wallet

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/custodia/exchange-middleware/pkg/pgutil"
	mghelper "github.com/custodia/exchange-middleware/pkg/pgutil/migrations"
)

func setupStore(t *testing.T) (context.Context, Store) {
	t.Helper()
	requireDockerAccess(t)

	ctx := context.Background()
	db, cleanup := pgutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	if err := mghelper.CreateSchema(ctx, db, &WalletDao{}, &WatermarkDao{}); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	// The watermark upsert targets this unique pair.
	if err := mghelper.CreateModelUniqueIndex(ctx, db, &WatermarkDao{},
		"idx_wallet_balances_address_token_id", "address", "token_id"); err != nil {
		t.Fatalf("failed to create watermark index: %v", err)
	}

	return ctx, NewStore(db)
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

	t.Skip("docker daemon socket is not accessible; skipping testcontainer-backed wallet tests")
}

func TestPGStore_CreateAndGetWallet(t *testing.T) {
	ctx, store := setupStore(t)

	w := &Wallet{UserID: 1, Address: "0x1111111111111111111111111111111111111111"}
	if err := store.CreateWallet(ctx, w); err != nil {
		t.Fatalf("CreateWallet() failed: %v", err)
	}
	if w.ID == 0 {
		t.Fatal("expected a generated wallet id")
	}

	got, err := store.GetWalletByAddress(ctx, w.Address)
	if err != nil {
		t.Fatalf("GetWalletByAddress() failed: %v", err)
	}
	if got.UserID != 1 {
		t.Fatalf("expected user id 1, got %d", got.UserID)
	}
}

func TestPGStore_GetWalletAbsent(t *testing.T) {
	ctx, store := setupStore(t)

	_, err := store.GetWalletByAddress(ctx, "0x2222222222222222222222222222222222222222")
	if !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("expected ErrWalletNotFound, got %v", err)
	}
}

func TestPGStore_DuplicateAddressRejected(t *testing.T) {
	ctx, store := setupStore(t)

	addr := "0x3333333333333333333333333333333333333333"
	if err := store.CreateWallet(ctx, &Wallet{UserID: 1, Address: addr}); err != nil {
		t.Fatalf("CreateWallet() failed: %v", err)
	}
	if err := store.CreateWallet(ctx, &Wallet{UserID: 2, Address: addr}); err == nil {
		t.Fatal("expected duplicate address to be rejected")
	}
}

func TestPGStore_ListWalletsOrdered(t *testing.T) {
	ctx, store := setupStore(t)

	addrs := []string{
		"0x4444444444444444444444444444444444444444",
		"0x5555555555555555555555555555555555555555",
	}
	for i, addr := range addrs {
		if err := store.CreateWallet(ctx, &Wallet{UserID: int64(i + 1), Address: addr}); err != nil {
			t.Fatalf("CreateWallet() failed: %v", err)
		}
	}

	got, err := store.ListWallets(ctx)
	if err != nil {
		t.Fatalf("ListWallets() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 wallets, got %d", len(got))
	}
	if got[0].Address != addrs[0] || got[1].Address != addrs[1] {
		t.Fatalf("expected insertion order, got %+v", got)
	}
}

func TestPGStore_WatermarkUpsert(t *testing.T) {
	ctx, store := setupStore(t)
	addr := "0x6666666666666666666666666666666666666666"

	_, err := store.GetWatermark(ctx, addr, 1)
	if !errors.Is(err, ErrWatermarkNotFound) {
		t.Fatalf("expected ErrWatermarkNotFound, got %v", err)
	}

	if err := store.SetWatermark(ctx, addr, 1, decimal.RequireFromString("5")); err != nil {
		t.Fatalf("SetWatermark() failed: %v", err)
	}
	if err := store.SetWatermark(ctx, addr, 1, decimal.RequireFromString("8")); err != nil {
		t.Fatalf("SetWatermark() overwrite failed: %v", err)
	}

	got, err := store.GetWatermark(ctx, addr, 1)
	if err != nil {
		t.Fatalf("GetWatermark() failed: %v", err)
	}
	if !got.Balance.Equal(decimal.RequireFromString("8")) {
		t.Fatalf("expected watermark 8, got %s", got.Balance)
	}

	// A different token on the same address tracks independently.
	if err := store.SetWatermark(ctx, addr, 2, decimal.RequireFromString("1")); err != nil {
		t.Fatalf("SetWatermark() for second token failed: %v", err)
	}
	other, err := store.GetWatermark(ctx, addr, 2)
	if err != nil {
		t.Fatalf("GetWatermark() for second token failed: %v", err)
	}
	if !other.Balance.Equal(decimal.RequireFromString("1")) {
		t.Fatalf("expected watermark 1, got %s", other.Balance)
	}
}
