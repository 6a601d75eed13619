package exchangedb

import (
	"context"
	"log"

	mghelper "github.com/custodia/exchange-middleware/pkg/pgutil/migrations"
	"github.com/custodia/exchange-middleware/pkg/txlog"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating transaction_logs table...")
		if err := mghelper.CreateSchema(ctx, db, &txlog.EntryDao{}); err != nil {
			return err
		}
		// Create indexes
		return mghelper.CreateModelIndexes(ctx, db, &txlog.EntryDao{},
			"user_id", "type", "status", "tx_hash", "created_at")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping transaction_logs table...")
		return mghelper.DropTables(ctx, db, &txlog.EntryDao{})
	})
}
