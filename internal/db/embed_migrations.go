package db

import "embed"

// MigrationFS embeds SQL migration files from internal/db/migrations.
// Applied by internal/db/migrate from cmd/migrate.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
