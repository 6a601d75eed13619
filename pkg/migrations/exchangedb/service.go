// Package exchangedb holds all the migrations for the exchange database
package exchangedb

import (
	"github.com/uptrace/bun/migrate"
)

// Migrations is the collection of all migrations for the exchange database
var Migrations = migrate.NewMigrations()
