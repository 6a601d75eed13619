package exchangedb

import (
	"context"
	"log"

	mghelper "github.com/custodia/exchange-middleware/pkg/pgutil/migrations"
	"github.com/custodia/exchange-middleware/pkg/wallet"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating wallet_balances table...")
		if err := mghelper.CreateSchema(ctx, db, &wallet.WatermarkDao{}); err != nil {
			return err
		}
		// Unique pair index backs the ON CONFLICT upsert in the watermark store
		return mghelper.CreateModelUniqueIndex(ctx, db, &wallet.WatermarkDao{},
			"idx_wallet_balances_address_token_id", "address", "token_id")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping wallet_balances table...")
		if err := mghelper.DropIndex(ctx, db, "idx_wallet_balances_address_token_id"); err != nil {
			return err
		}
		return mghelper.DropTables(ctx, db, &wallet.WatermarkDao{})
	})
}
