package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const maxStderrBytes = 64 * 1024

type Status string

const (
	StatusLaunched  Status = "launched"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
)

var ErrDeliveryNotFound = errors.New("delivery not found")

// Delivery is one verified webhook delivery and the outcome of its action.
type Delivery struct {
	ID          string
	Endpoint    string
	Script      string
	Status      Status
	ReceivedAt  time.Time
	CompletedAt *time.Time
	ExitCode    *int
	LastError   *string
	Stderr      *string
}

// Store persists the delivery log.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// RecordLaunch inserts a delivery row in the launched state and returns its ID.
func (s *Store) RecordLaunch(ctx context.Context, endpoint, script string) (string, error) {
	if endpoint == "" {
		return "", fmt.Errorf("endpoint is empty")
	}
	if script == "" {
		return "", fmt.Errorf("script is empty")
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(ctx, `
INSERT INTO delivery_log(id, endpoint, script, status, received_at)
VALUES(?, ?, ?, ?, ?);
`, id, endpoint, script, StatusLaunched, now)
	if err != nil {
		return "", fmt.Errorf("record launch: %w", err)
	}
	return id, nil
}

// Finalize marks a delivery terminal with the action's outcome.
func (s *Store) Finalize(ctx context.Context, id string, status Status, exitCode *int, lastError, stderr *string) error {
	if id == "" {
		return fmt.Errorf("delivery id is empty")
	}
	if status != StatusSucceeded && status != StatusFailed && status != StatusTimedOut {
		return fmt.Errorf("invalid terminal status: %q", status)
	}

	completedAt := time.Now().UTC().Format(time.RFC3339Nano)

	var stderrVal any
	if stderr != nil {
		v := *stderr
		if len(v) > maxStderrBytes {
			v = v[:maxStderrBytes]
		}
		stderrVal = v
	}

	res, err := s.db.ExecContext(ctx, `
UPDATE delivery_log
SET status = ?, completed_at = ?, exit_code = ?, last_error = ?, stderr = ?
WHERE id = ?;
`, status, completedAt, exitCode, lastError, stderrVal, id)
	if err != nil {
		return fmt.Errorf("finalize delivery: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDeliveryNotFound
	}
	return nil
}

// Get loads a single delivery by ID.
func (s *Store) Get(ctx context.Context, id string) (*Delivery, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, endpoint, script, status, received_at, completed_at, exit_code, last_error, stderr
FROM delivery_log
WHERE id = ?;
`, id)

	d, err := scanDelivery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeliveryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get delivery: %w", err)
	}
	return d, nil
}

// ListRecent returns the most recent deliveries, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]*Delivery, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, endpoint, script, status, received_at, completed_at, exit_code, last_error, stderr
FROM delivery_log
ORDER BY received_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var out []*Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("list deliveries: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDelivery(row rowScanner) (*Delivery, error) {
	var (
		d            Delivery
		statusS      string
		receivedAtS  string
		completedAtS sql.NullString
		exitCode     sql.NullInt64
		lastError    sql.NullString
		stderr       sql.NullString
	)
	err := row.Scan(&d.ID, &d.Endpoint, &d.Script, &statusS, &receivedAtS, &completedAtS, &exitCode, &lastError, &stderr)
	if err != nil {
		return nil, err
	}

	d.Status = Status(statusS)
	if t, err := time.Parse(time.RFC3339Nano, receivedAtS); err == nil {
		d.ReceivedAt = t
	}
	if completedAtS.Valid {
		if t, err := time.Parse(time.RFC3339Nano, completedAtS.String); err == nil {
			d.CompletedAt = &t
		}
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		d.ExitCode = &code
	}
	if lastError.Valid {
		d.LastError = &lastError.String
	}
	if stderr.Valid {
		d.Stderr = &stderr.String
	}
	return &d, nil
}
