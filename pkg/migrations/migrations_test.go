package migrations

import (
	"context"
	"testing"

	"github.com/custodia/exchange-middleware/pkg/migrations/exchangedb"
	mghelper "github.com/custodia/exchange-middleware/pkg/pgutil"
	"github.com/custodia/exchange-middleware/pkg/token"

	"github.com/uptrace/bun/migrate"
)

func TestExchangeDBMigrations_Apply(t *testing.T) {
	db, cleanup := mghelper.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	migrator := migrate.NewMigrator(db, exchangedb.Migrations)

	// Initialize migration system
	err := migrator.Init(ctx)
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	// Run all migrations up
	group, err := migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	if group.IsZero() {
		t.Error("Expected migrations to run, but none were applied")
	}

	// Verify all expected tables exist
	expectedTables := []string{
		"users",
		"tokens",
		"user_balances",
		"wallets",
		"wallet_balances",
		"transaction_logs",
		"bun_migrations",
	}

	for _, table := range expectedTables {
		mghelper.AssertTableExists(t, db, table)
	}

	// Verify indexes
	mghelper.AssertIndexExists(t, db, "idx_tokens_contract_address")
	mghelper.AssertIndexExists(t, db, "idx_wallets_user_id")
	mghelper.AssertIndexExists(t, db, "idx_wallet_balances_address_token_id")
	mghelper.AssertIndexExists(t, db, "idx_transaction_logs_user_id")
	mghelper.AssertIndexExists(t, db, "idx_transaction_logs_status")
	mghelper.AssertIndexExists(t, db, "idx_transaction_logs_tx_hash")

	// Verify the native coin seed row
	var symbol string
	err = db.NewSelect().
		Model((*token.TokenDao)(nil)).
		Column("symbol").
		Where("contract_address = ''").
		Scan(ctx, &symbol)
	if err != nil {
		t.Fatalf("native token seed lookup failed: %v", err)
	}
	if symbol != "ETH" {
		t.Errorf("Expected seeded native symbol ETH, got %s", symbol)
	}
}

func TestExchangeDBMigrations_Idempotency(t *testing.T) {
	db, cleanup := mghelper.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	migrator := migrate.NewMigrator(db, exchangedb.Migrations)

	// Initialize
	err := migrator.Init(ctx)
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	// Run migrations first time
	_, err = migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("First Migrate() failed: %v", err)
	}

	// Running again must be a no-op
	group, err := migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("Second Migrate() failed: %v", err)
	}
	if !group.IsZero() {
		t.Error("Expected no migrations on second run")
	}
}

func TestExchangeDBMigrations_Rollback(t *testing.T) {
	db, cleanup := mghelper.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	migrator := migrate.NewMigrator(db, exchangedb.Migrations)

	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}

	// Roll back the last group and make sure the tables are gone
	group, err := migrator.Rollback(ctx)
	if err != nil {
		t.Fatalf("Rollback() failed: %v", err)
	}
	if group.IsZero() {
		t.Error("Expected a migration group to roll back")
	}

	mghelper.AssertTableNotExists(t, db, "users")
	mghelper.AssertTableNotExists(t, db, "transaction_logs")
}
