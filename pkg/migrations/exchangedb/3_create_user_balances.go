package exchangedb

import (
	"context"
	"log"

	"github.com/custodia/exchange-middleware/pkg/ledger"
	mghelper "github.com/custodia/exchange-middleware/pkg/pgutil/migrations"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating user_balances table...")
		if err := mghelper.CreateSchema(ctx, db, &ledger.BalanceDao{}); err != nil {
			return err
		}
		// Create indexes
		return mghelper.CreateModelIndexes(ctx, db, &ledger.BalanceDao{}, "token_id")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping user_balances table...")
		return mghelper.DropTables(ctx, db, &ledger.BalanceDao{})
	})
}
