// Package audit provides the audit trail for the trust boundary: an
// append-only line log plus HMAC-signed per-query records in SQLite.
// Every handled utterance — answered, refused, or failed — produces one
// signed record. Content is stored as SHA-256 hashes, not text, so the
// trail proves what crossed the boundary without retaining it.
package audit

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	foyerotel "github.com/foyer-io/foyer/internal/otel"
)

var tracer = foyerotel.Tracer("github.com/foyer-io/foyer/internal/audit")

// Record is the signed audit entry for a single handled utterance.
type Record struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlation_id"`
	Timestamp     time.Time `json:"timestamp"`
	Model         string    `json:"model"`
	PolicyVersion string    `json:"policy_version"`
	Action        string    `json:"action,omitempty"`
	Executed      bool      `json:"executed"`
	Rejected      bool      `json:"rejected"` // model output tripped the validator
	InputHash     string    `json:"input_hash"`
	OutputHash    string    `json:"output_hash"`
	DurationMS    int64     `json:"duration_ms"`
	Error         string    `json:"error,omitempty"`
	Signature     string    `json:"signature"`
}

// Store persists HMAC-signed audit records in SQLite.
type Store struct {
	db     *sql.DB
	signer *Signer
}

// NewStore creates an audit store with HMAC signing.
func NewStore(dbPath string, signingKey string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS audit_records (
		id TEXT PRIMARY KEY,
		correlation_id TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		action TEXT NOT NULL,
		executed INTEGER NOT NULL,
		record_json TEXT NOT NULL,
		signature TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_records(timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_correlation ON audit_records(correlation_id);
	CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_records(action);
	`

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		return nil, fmt.Errorf("creating audit schema: %w", err)
	}

	signer, err := NewSigner(signingKey)
	if err != nil {
		return nil, fmt.Errorf("creating signer: %w", err)
	}

	return &Store{db: db, signer: signer}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// HashContent returns the hex SHA-256 of content, for InputHash/OutputHash.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Append signs and persists one record. The ID is assigned here.
func (s *Store) Append(ctx context.Context, rec *Record) error {
	ctx, span := tracer.Start(ctx, "audit.append")
	defer span.End()

	rec.ID = uuid.NewString()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	// Sign the record content without the signature field itself.
	rec.Signature = ""
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding audit record: %w", err)
	}
	sig, err := s.signer.Sign(payload)
	if err != nil {
		return fmt.Errorf("signing audit record: %w", err)
	}
	rec.Signature = sig

	full, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding signed audit record: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_records (id, correlation_id, timestamp, action, executed, record_json, signature)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CorrelationID, rec.Timestamp, rec.Action, boolToInt(rec.Executed), string(full), sig)
	if err != nil {
		return fmt.Errorf("inserting audit record: %w", err)
	}
	return nil
}

// List returns the most recent records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT record_json FROM audit_records ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning audit record: %w", err)
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decoding audit record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Verify re-signs the stored record content and compares signatures.
func (s *Store) Verify(ctx context.Context, id string) (bool, error) {
	var raw, sig string
	err := s.db.QueryRowContext(ctx,
		`SELECT record_json, signature FROM audit_records WHERE id = ?`, id).Scan(&raw, &sig)
	if err != nil {
		return false, fmt.Errorf("loading audit record %s: %w", id, err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return false, fmt.Errorf("decoding audit record %s: %w", id, err)
	}
	rec.Signature = ""
	payload, err := json.Marshal(&rec)
	if err != nil {
		return false, fmt.Errorf("encoding audit record %s: %w", id, err)
	}
	return s.signer.Verify(payload, sig), nil
}

// PurgeOlderThan deletes records past the retention window. Returns the
// number of records removed.
func (s *Store) PurgeOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM audit_records WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging audit records: %w", err)
	}
	return res.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
