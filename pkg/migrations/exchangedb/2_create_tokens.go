package exchangedb

import (
	"context"
	"log"

	mghelper "github.com/custodia/exchange-middleware/pkg/pgutil/migrations"
	"github.com/custodia/exchange-middleware/pkg/token"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating tokens table...")
		if err := mghelper.CreateSchema(ctx, db, &token.TokenDao{}); err != nil {
			return err
		}
		// Create indexes
		return mghelper.CreateModelIndexes(ctx, db, &token.TokenDao{}, "contract_address")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping tokens table...")
		return mghelper.DropTables(ctx, db, &token.TokenDao{})
	})
}
