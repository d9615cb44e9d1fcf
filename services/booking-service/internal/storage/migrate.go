package storage

import (
	"context"
	_ "embed"

	"github.com/md-rashed-zaman/gobarber/libs/db"
)

//go:embed schema.sql
var schema string

// Migrate applies the booking schema. Every statement is idempotent.
func Migrate(ctx context.Context, pool *db.Pool) error {
	return pool.Migrate(ctx, schema)
}
