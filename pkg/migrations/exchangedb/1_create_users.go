package exchangedb

import (
	"context"
	"log"

	mghelper "github.com/custodia/exchange-middleware/pkg/pgutil/migrations"
	"github.com/custodia/exchange-middleware/pkg/user"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating users table...")
		return mghelper.CreateSchema(ctx, db, &user.UserDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping users table...")
		return mghelper.DropTables(ctx, db, &user.UserDao{})
	})
}
