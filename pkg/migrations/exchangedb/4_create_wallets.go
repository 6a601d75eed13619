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
		log.Println("creating wallets table...")
		if err := mghelper.CreateSchema(ctx, db, &wallet.WalletDao{}); err != nil {
			return err
		}
		// Create indexes
		return mghelper.CreateModelIndexes(ctx, db, &wallet.WalletDao{}, "user_id")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping wallets table...")
		return mghelper.DropTables(ctx, db, &wallet.WalletDao{})
	})
}
