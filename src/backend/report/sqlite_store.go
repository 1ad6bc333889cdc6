package report

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const defaultSQLitePath = "cleanser.db"

// NewSQLiteStore opens (creating if needed) a SQLite report database
func NewSQLiteStore(ctx context.Context, cfg Config) (Store, error) {
	dbPath := cfg.Path
	if dbPath == "" {
		dbPath = defaultSQLitePath
	}

	// Ensure the directory exists
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// SQLite works best with a single writer connection
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := createSQLiteTables(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &sqlStore{
		db: db,
		insertQuery: `
		INSERT INTO document_reports (id, run_id, file_name, file_type, status, reason, entity_counts,
			substitutions, emails_replaced, ipv4_replaced, unmapped_entities, tier, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		listQuery: `
		SELECT id, run_id, file_name, file_type, status, reason, entity_counts,
			substitutions, emails_replaced, ipv4_replaced, unmapped_entities, tier, processed_at
		FROM document_reports
		WHERE run_id = ?
		ORDER BY processed_at, file_name`,
		bindTime: func(t time.Time) interface{} { return t.Format(time.RFC3339Nano) },
	}, nil
}

// createSQLiteTables creates the required tables if they don't exist
func createSQLiteTables(ctx context.Context, db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS document_reports (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			file_name TEXT NOT NULL,
			file_type TEXT NOT NULL,
			status TEXT NOT NULL,
			reason TEXT,
			entity_counts TEXT NOT NULL DEFAULT '{}',
			substitutions INTEGER NOT NULL DEFAULT 0,
			emails_replaced INTEGER NOT NULL DEFAULT 0,
			ipv4_replaced INTEGER NOT NULL DEFAULT 0,
			unmapped_entities INTEGER NOT NULL DEFAULT 0,
			tier INTEGER NOT NULL DEFAULT 0,
			processed_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_document_reports_run_id ON document_reports(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_document_reports_status ON document_reports(status)`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute: %s: %w", query, err)
		}
	}
	return nil
}
