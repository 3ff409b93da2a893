// Package sqlite implements the event outbox on SQLite.
//
// Appends made while a unit of work is active join a transaction owned by
// the outermost unit that has not committed yet. The transaction commits
// when that unit commits and rolls back when it rolls back. Nested units
// write behind a savepoint, so rolling back a nested unit discards only its
// own appends.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/jsamuelsen/msgflow/internal/adapters/storage/sqlite/migrations"
	"github.com/jsamuelsen/msgflow/internal/domain"
	"github.com/jsamuelsen/msgflow/internal/messaging"
	"github.com/jsamuelsen/msgflow/internal/ports"
)

const memoryPath = ":memory:"

// Store is a SQLite-backed ports.EventStore.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ ports.EventStore    = (*Store)(nil)
	_ ports.HealthChecker = (*Store)(nil)
)

// Open opens the outbox at path and applies migrations. ":memory:" opens a
// private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := path
	if path != memoryPath {
		dsn = filepath.Clean(path)
		if err := os.MkdirAll(filepath.Dir(dsn), 0o750); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}
	dsn += "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == memoryPath {
		// Every connection would get its own database.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Name implements ports.HealthChecker.
func (s *Store) Name() string {
	return "outbox"
}

// Check implements ports.HealthChecker.
func (s *Store) Check(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return domain.NewUnavailableError("outbox", err.Error())
	}
	return nil
}

// Append records events. Inside an active unit of work they become visible
// to other readers once the unit commits; otherwise they are committed
// before Append returns.
func (s *Store) Append(ctx context.Context, events ...messaging.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	if tx, ok, err := s.unitTx(ctx); ok || err != nil {
		if err != nil {
			return err
		}
		return s.insert(ctx, tx, events)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.insert(ctx, tx, events); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

func (s *Store) insert(ctx context.Context, tx *sql.Tx, events []messaging.Message) error {
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO outbox_events (
	message_id,
	name,
	payload,
	metadata,
	recorded_at
) VALUES (?, ?, ?, ?, ?)
`)
	if err != nil {
		return fmt.Errorf("prepare append: %w", err)
	}
	defer stmt.Close()

	recordedAt := s.now().UTC().UnixMilli()

	for _, e := range events {
		if strings.TrimSpace(e.ID) == "" {
			return domain.NewValidationError("id", "event id is required")
		}
		if strings.TrimSpace(e.Name) == "" {
			return domain.NewValidationError("name", "event name is required")
		}

		payload, err := encodePayload(e.Payload)
		if err != nil {
			return domain.NewValidationError("payload", err.Error())
		}
		metadata, err := json.Marshal(e.MetaData.Clone())
		if err != nil {
			return domain.NewValidationError("metadata", err.Error())
		}

		if _, err := stmt.ExecContext(ctx, e.ID, e.Name, payload, string(metadata), recordedAt); err != nil {
			if isConstraintError(err) {
				return domain.NewConflictErrorWithDetails("event", "already recorded", e.ID)
			}
			return fmt.Errorf("append event %s: %w", e.ID, err)
		}
	}

	return nil
}

// List returns at most limit events with a sequence greater than after.
// Inside an active unit of work the unit's own uncommitted appends are
// visible.
func (s *Store) List(ctx context.Context, after int64, limit int) ([]domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, domain.NewValidationErrorWithValue("limit", "must be greater than zero", limit)
	}

	var q interface {
		QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	} = s.db
	if tx, ok := s.existingUnitTx(ctx); ok {
		q = tx
	}

	rows, err := q.QueryContext(ctx, `
SELECT
	sequence,
	message_id,
	name,
	payload,
	metadata,
	recorded_at
FROM outbox_events
WHERE sequence > ?
ORDER BY sequence
LIMIT ?
`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.Event, 0, limit)
	for rows.Next() {
		var (
			e          domain.Event
			metadata   string
			recordedAt int64
		)
		if err := rows.Scan(&e.Sequence, &e.MessageID, &e.Name, &e.Payload, &metadata, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(metadata), &e.MetaData); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", e.MessageID, err)
		}
		e.RecordedAt = time.UnixMilli(recordedAt).UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}

// encodePayload stores raw JSON as is and encodes anything else.
func encodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(p) == 0 {
			return nil, nil
		}
		if !json.Valid(p) {
			return nil, errors.New("payload is not valid JSON")
		}
		return p, nil
	default:
		return json.Marshal(p)
	}
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
