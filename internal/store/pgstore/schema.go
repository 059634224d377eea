package pgstore

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5"
)

// ensureSchema creates the vector extension and the items table if they do
// not exist. It runs on a dedicated connection before the pool is built so
// that pool connections can register the vector type.
func ensureSchema(ctx context.Context, dsn, table string, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive to create the schema, got %d", dimensions)
	}

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	log.Debug("Ensuring vector table", "table", table, "dimensions", dimensions)
	_, err = conn.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			namespace TEXT NOT NULL,
			id TEXT NOT NULL,
			embedding VECTOR(%d) NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			PRIMARY KEY (namespace, id)
		)
	`, table, dimensions))
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	return nil
}
