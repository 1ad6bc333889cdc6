package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// NewPostgresStore connects to PostgreSQL and creates the report table
func NewPostgresStore(ctx context.Context, cfg Config) (Store, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database, sslMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.MaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store, err := newPostgresStore(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func newPostgresStore(ctx context.Context, db *sql.DB) (*sqlStore, error) {
	if err := createPostgresTables(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &sqlStore{
		db: db,
		insertQuery: `
		INSERT INTO document_reports (id, run_id, file_name, file_type, status, reason, entity_counts,
			substitutions, emails_replaced, ipv4_replaced, unmapped_entities, tier, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		listQuery: `
		SELECT id, run_id, file_name, file_type, status, reason, entity_counts::text,
			substitutions, emails_replaced, ipv4_replaced, unmapped_entities, tier, processed_at
		FROM document_reports
		WHERE run_id = $1
		ORDER BY processed_at, file_name`,
		bindTime: func(t time.Time) interface{} { return t },
	}, nil
}

// createPostgresTables creates the document_reports table if it doesn't exist
func createPostgresTables(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS document_reports (
		id UUID PRIMARY KEY,
		run_id UUID NOT NULL,
		file_name VARCHAR(1024) NOT NULL,
		file_type VARCHAR(32) NOT NULL,
		status VARCHAR(16) NOT NULL,
		reason VARCHAR(64),
		entity_counts JSONB NOT NULL DEFAULT '{}',
		substitutions INTEGER NOT NULL DEFAULT 0,
		emails_replaced INTEGER NOT NULL DEFAULT 0,
		ipv4_replaced INTEGER NOT NULL DEFAULT 0,
		unmapped_entities INTEGER NOT NULL DEFAULT 0,
		tier SMALLINT NOT NULL DEFAULT 0,
		processed_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_document_reports_run_id ON document_reports(run_id);
	CREATE INDEX IF NOT EXISTS idx_document_reports_status ON document_reports(status);
	`

	_, err := db.ExecContext(ctx, query)
	return err
}
