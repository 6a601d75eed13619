package exchangedb

import (
	"context"
	"log"

	"github.com/custodia/exchange-middleware/pkg/token"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("seeding tokens table...")

		// Insert the native coin with ON CONFLICT for idempotency
		_, err := db.NewInsert().
			Model(&token.TokenDao{
				Symbol:          "ETH",
				Name:            "Ether",
				ContractAddress: token.NativeContractAddress,
				Decimals:        18,
			}).
			On("CONFLICT (symbol) DO NOTHING").
			Exec(ctx)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("removing seed data from tokens table...")
		// Only delete the seeded native row, not all data
		_, err := db.NewDelete().
			Model((*token.TokenDao)(nil)).
			Where("symbol = 'ETH' AND contract_address = ''").
			Exec(ctx)
		return err
	})
}
