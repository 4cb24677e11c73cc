// Package database persists console settings in SQLite.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"aeroguardian/internal/logging"
	"aeroguardian/internal/pipeline"
)

// OptionsKey is the app_config key holding the pipeline options document
const OptionsKey = "pipeline.options"

// Database handles SQLite database operations
type Database struct {
	db *sql.DB
}

// ConfigRecord represents a configuration key-value pair
type ConfigRecord struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// New opens (creating if needed) the database at dbPath
func New(dbPath string) (*Database, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single writer keeps SQLite from returning SQLITE_BUSY under the live scanner
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	return &Database{db: db}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// Migrate runs database migrations
func (d *Database) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS app_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, migration := range migrations {
		if _, err := d.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	l := logging.Component("database")
	l.Debug().Int("migrations", len(migrations)).Msg("Database migrations completed")
	return nil
}

// SaveConfig saves a configuration value
func (d *Database) SaveConfig(ctx context.Context, key, value string) error {
	query := `INSERT INTO app_config (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP`

	if _, err := d.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// GetConfig retrieves a configuration value; a missing key yields "" and no error
func (d *Database) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := d.db.QueryRowContext(ctx, "SELECT value FROM app_config WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get config: %w", err)
	}
	return value, nil
}

// ListConfigs returns all configuration records ordered by key
func (d *Database) ListConfigs(ctx context.Context) ([]ConfigRecord, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT key, value, updated_at FROM app_config ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("failed to list configs: %w", err)
	}
	defer rows.Close()

	var records []ConfigRecord
	for rows.Next() {
		var rec ConfigRecord
		if err := rows.Scan(&rec.Key, &rec.Value, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan config: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteConfig deletes a configuration value
func (d *Database) DeleteConfig(ctx context.Context, key string) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM app_config WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete config: %w", err)
	}
	return nil
}

// LoadOptions overlays the stored options document onto defaults. The bool
// reports whether a stored document was found.
func (d *Database) LoadOptions(ctx context.Context, defaults pipeline.Options) (pipeline.Options, bool, error) {
	raw, err := d.GetConfig(ctx, OptionsKey)
	if err != nil || raw == "" {
		return defaults, false, err
	}

	opts := defaults
	if err := json.Unmarshal([]byte(raw), &opts); err != nil {
		return defaults, false, fmt.Errorf("failed to decode stored options: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return defaults, false, fmt.Errorf("stored options invalid: %w", err)
	}
	return opts, true, nil
}

// SaveOptions validates and stores the options document
func (d *Database) SaveOptions(ctx context.Context, opts pipeline.Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(opts)
	if err != nil {
		return fmt.Errorf("failed to encode options: %w", err)
	}
	return d.SaveConfig(ctx, OptionsKey, string(data))
}
