// Package audit persists one fixed-schema record per scheduler cycle to an
// append-only SQLite table. Losing a row is logged but never stops the
// scheduler.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/forecasthq/forecast-submitter/pkg/logger"
	"github.com/forecasthq/forecast-submitter/pkg/models"
)

// The column set is stable across versions; changing it requires a migration.
const createTableStmt = `CREATE TABLE IF NOT EXISTS attempt_records (
	timestamp       TEXT NOT NULL,
	slot_id         TEXT NOT NULL,
	predicted_value REAL NOT NULL,
	actor_identity  TEXT NOT NULL,
	endpoint_used   TEXT NOT NULL,
	tx_hash         TEXT,
	outcome_status  TEXT NOT NULL,
	failure_detail  TEXT
)`

// Store is an append-only audit trail backed by SQLite.
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

// Open opens (or creates) the audit database at path. The schema is created
// exactly once; reopening an existing store leaves prior rows untouched.
func Open(path string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = &logger.EmptyLogger{}
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit store %s: %v", path, err)
	}
	// A single writer plus the health server's reads; keep one connection so
	// SQLite never sees concurrent writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createTableStmt); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create attempt_records table: %v", err)
	}

	log.InfoWith(logger.Audit, "Audit store ready at %s", path)
	return &Store{db: db, logger: log}, nil
}

// Record appends one attempt record. The caller logs (and must tolerate) any
// returned error; the record is never mutated after insertion.
func (s *Store) Record(ctx context.Context, rec models.AttemptRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempt_records(timestamp,slot_id,predicted_value,actor_identity,endpoint_used,tx_hash,outcome_status,failure_detail)
		 VALUES (?,?,?,?,?,?,?,?)`,
		rec.Timestamp.UTC().Format(time.RFC3339),
		rec.SlotID,
		rec.PredictedValue,
		rec.ActorIdentity,
		rec.EndpointUsed,
		nullable(rec.TxHash),
		string(rec.OutcomeStatus),
		nullable(rec.FailureDetail),
	)
	if err != nil {
		return fmt.Errorf("failed to append attempt record: %v", err)
	}
	return nil
}

// Recent returns up to n records, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]models.AttemptRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp,slot_id,predicted_value,actor_identity,endpoint_used,COALESCE(tx_hash,''),outcome_status,COALESCE(failure_detail,'')
		 FROM attempt_records ORDER BY rowid DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.AttemptRecord
	for rows.Next() {
		var rec models.AttemptRecord
		var ts, status string
		if err := rows.Scan(&ts, &rec.SlotID, &rec.PredictedValue, &rec.ActorIdentity,
			&rec.EndpointUsed, &rec.TxHash, &status, &rec.FailureDetail); err != nil {
			return nil, err
		}
		rec.Timestamp, _ = time.Parse(time.RFC3339, ts)
		rec.OutcomeStatus = models.OutcomeStatus(status)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Count returns the total number of records, used by tests and /status.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attempt_records`).Scan(&n)
	return n, err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
