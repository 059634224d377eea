package sqlitestore

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/vectorkit/internal/store"
)

const currentSchemaVersion = 1

const schemaVersionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);
`

const metaTable = `
CREATE TABLE IF NOT EXISTS vectorkit_meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// createVectorTable creates the vec0 virtual table for the given dimensions.
// The namespace is the partition key; composite_id keeps the primary key
// unique across partitions.
func createVectorTable(db *sql.DB, dimensions int) error {
	query := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS vec_items USING vec0(
			composite_id TEXT PRIMARY KEY,
			namespace TEXT PARTITION KEY,
			embedding float[%d] distance_metric=cosine,
			+metadata TEXT,
			+item_id TEXT
		);
	`, dimensions)

	_, err := db.Exec(query)
	return err
}

// initSchema initializes the database schema.
func initSchema(db *sql.DB, dimensions int) error {
	if _, err := db.Exec(schemaVersionTable); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	err := db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		version = 0
	} else if err != nil {
		return fmt.Errorf("failed to check schema version: %w", err)
	}

	if version < 1 {
		log.Debug("Migrating schema", "from", version, "to", currentSchemaVersion)
		if err := migrateV1(db, dimensions); err != nil {
			return fmt.Errorf("failed to migrate to v1: %w", err)
		}
	} else {
		log.Debug("Schema is up to date", "version", version)
	}

	return checkDimensions(db, dimensions)
}

// migrateV1 creates the metadata table and the vector table.
func migrateV1(db *sql.DB, dimensions int) error {
	log.Debug("Applying migration v1", "dimensions", dimensions)

	if _, err := db.Exec(metaTable); err != nil {
		return fmt.Errorf("failed to create meta table: %w", err)
	}
	if err := createVectorTable(db, dimensions); err != nil {
		return fmt.Errorf("failed to create vector table: %w", err)
	}
	if _, err := db.Exec(
		"INSERT OR REPLACE INTO vectorkit_meta (key, value) VALUES ('dimensions', ?)",
		strconv.Itoa(dimensions),
	); err != nil {
		return fmt.Errorf("failed to record dimensions: %w", err)
	}
	if _, err := db.Exec("INSERT OR REPLACE INTO schema_version (version) VALUES (?)", 1); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}

	return nil
}

// checkDimensions fails when an existing database was created with a
// different vector width. vec0 columns cannot be resized in place.
func checkDimensions(db *sql.DB, dimensions int) error {
	var stored string
	err := db.QueryRow("SELECT value FROM vectorkit_meta WHERE key = 'dimensions'").Scan(&stored)
	if err != nil {
		return fmt.Errorf("failed to read stored dimensions: %w", err)
	}

	n, err := strconv.Atoi(stored)
	if err != nil {
		return fmt.Errorf("invalid stored dimensions %q: %w", stored, err)
	}
	if n != dimensions {
		return fmt.Errorf("%w: database has %d, configured %d", store.ErrDimensionMismatch, n, dimensions)
	}
	return nil
}
