package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hannes/doc-cleanser/src/backend/pii"
	detectors "github.com/hannes/doc-cleanser/src/backend/pii/detectors"
)

// Status of a processed document
type Status string

const (
	StatusProcessed Status = "processed"
	StatusSkipped   Status = "skipped"
)

// Supported database drivers. An empty driver disables persistence.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DocumentRecord is the per-document report row. It holds counts only, never
// original values or document text.
type DocumentRecord struct {
	ID               string                       `json:"id"`
	RunID            string                       `json:"run_id"`
	FileName         string                       `json:"file_name"`
	FileType         string                       `json:"file_type"`
	Status           Status                       `json:"status"`
	Reason           string                       `json:"reason,omitempty"`
	EntityCounts     map[detectors.EntityKind]int `json:"entity_counts"`
	Substitutions    int                          `json:"substitutions"`
	EmailsReplaced   int                          `json:"emails_replaced"`
	IPv4Replaced     int                          `json:"ipv4_replaced"`
	UnmappedEntities int                          `json:"unmapped_entities"`
	Tier             int                          `json:"tier"`
	ProcessedAt      time.Time                    `json:"processed_at"`
}

// ApplyStats copies anonymizer counts into the record and sets its tier
func (r *DocumentRecord) ApplyStats(stats pii.Stats) {
	r.EntityCounts = stats.EntityCounts
	r.Substitutions = stats.Substitutions
	r.EmailsReplaced = stats.EmailsReplaced
	r.IPv4Replaced = stats.IPv4Replaced
	r.UnmappedEntities = stats.UnmappedEntities
	r.Tier = Tier(stats)
}

// Tier grades how sensitive a document was:
// 0 nothing replaced, 2 any person name or at least 10 replacements, 1 otherwise.
func Tier(stats pii.Stats) int {
	switch {
	case stats.Replaced() == 0:
		return 0
	case stats.PersonSubstitutions > 0 || stats.Replaced() >= 10:
		return 2
	default:
		return 1
	}
}

// Store persists document records
type Store interface {
	RecordDocument(ctx context.Context, record DocumentRecord) error
	ListRun(ctx context.Context, runID string) ([]DocumentRecord, error)
	Close() error
}

// Config holds database configuration
type Config struct {
	Driver string
	// SQLite
	Path string
	// Postgres
	Host         string
	Port         int
	Username     string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// Open returns the store for cfg.Driver
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "":
		return NopStore{}, nil
	case DriverSQLite:
		return NewSQLiteStore(ctx, cfg)
	case DriverPostgres:
		return NewPostgresStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// NopStore discards records
type NopStore struct{}

func (NopStore) RecordDocument(context.Context, DocumentRecord) error { return nil }

func (NopStore) ListRun(context.Context, string) ([]DocumentRecord, error) { return nil, nil }

func (NopStore) Close() error { return nil }

// sqlStore holds the queries shared by the SQL backends. Only placeholders
// and timestamp binding differ between drivers.
type sqlStore struct {
	db          *sql.DB
	insertQuery string
	listQuery   string
	bindTime    func(time.Time) interface{}
}

func (s *sqlStore) RecordDocument(ctx context.Context, r DocumentRecord) error {
	counts := r.EntityCounts
	if counts == nil {
		counts = map[detectors.EntityKind]int{}
	}
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("failed to marshal entity counts: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.insertQuery,
		r.ID, r.RunID, r.FileName, r.FileType, string(r.Status), r.Reason, string(countsJSON),
		r.Substitutions, r.EmailsReplaced, r.IPv4Replaced, r.UnmappedEntities, r.Tier,
		s.bindTime(r.ProcessedAt.UTC()),
	)
	if err != nil {
		return fmt.Errorf("failed to insert document record: %w", err)
	}
	return nil
}

func (s *sqlStore) ListRun(ctx context.Context, runID string) ([]DocumentRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.listQuery, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query document records: %w", err)
	}
	defer rows.Close()

	var records []DocumentRecord
	for rows.Next() {
		var (
			r          DocumentRecord
			status     string
			reason     sql.NullString
			countsJSON string
			processed  timestamp
		)
		if err := rows.Scan(&r.ID, &r.RunID, &r.FileName, &r.FileType, &status, &reason, &countsJSON,
			&r.Substitutions, &r.EmailsReplaced, &r.IPv4Replaced, &r.UnmappedEntities, &r.Tier, &processed); err != nil {
			return nil, fmt.Errorf("failed to scan document record: %w", err)
		}
		r.Status = Status(status)
		r.Reason = reason.String
		r.ProcessedAt = processed.Time
		if err := json.Unmarshal([]byte(countsJSON), &r.EntityCounts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entity counts: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating document records: %w", err)
	}
	return records, nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

// timestamp scans both native time values and the text form SQLite returns
type timestamp struct {
	Time time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
}

func (t *timestamp) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

func (t *timestamp) parse(s string) error {
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}
