package migrations

import "github.com/uptrace/bun/migrate"

// Migrations is registered by each migration file's init.
var Migrations = migrate.NewMigrations()
