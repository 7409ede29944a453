package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"

	"github.com/jon-gauntlet/aether-sub009/pkg/core"
	"github.com/jon-gauntlet/aether-sub009/pkg/errors"
	_ "github.com/mattn/go-sqlite3"
)

// Archive persists pattern snapshots for audit. The engine runs fine
// without one; when attached, every change event is mirrored into it.
type Archive interface {
	Record(ctx context.Context, event ChangeEvent) error
	LoadAll(ctx context.Context) ([]*core.Pattern, error)
	Close() error
}

// SQLiteArchive implements Archive on a SQLite database. Pattern rows are
// upserted on every change; evolution observations are appended to a
// separate log that is never truncated, so the full feedback history
// survives the engine's rolling metric window.
type SQLiteArchive struct {
	db   *sql.DB
	mu   sync.Mutex
	path string

	initialized sync.Once
}

// NewSQLiteArchive opens (or creates) the archive database at path.
// If path is ":memory:", the database is created in-memory.
func NewSQLiteArchive(path string) (*SQLiteArchive, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.ArchiveFailed, "failed to open archive database"),
			errors.Fields{"path": path},
		)
	}

	a := &SQLiteArchive{
		db:   db,
		path: path,
	}
	if err := a.ensureInitialized(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *SQLiteArchive) ensureInitialized() error {
	var initErr error
	a.initialized.Do(func() {
		// Enable WAL mode for better concurrency
		if _, err := a.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			initErr = errors.Wrap(err, errors.ArchiveFailed, "failed to enable WAL mode")
			return
		}

		query := `
        CREATE TABLE IF NOT EXISTS patterns (
            id TEXT PRIMARY KEY,
            doc TEXT NOT NULL,
            version INTEGER NOT NULL,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        );

        CREATE TABLE IF NOT EXISTS evolution_log (
            seq INTEGER PRIMARY KEY AUTOINCREMENT,
            pattern_id TEXT NOT NULL,
            observed_at DATETIME NOT NULL,
            outcome INTEGER NOT NULL,
            delta TEXT NOT NULL
        );

        CREATE INDEX IF NOT EXISTS idx_evolution_log_pattern
        ON evolution_log(pattern_id);
        `

		if _, err := a.db.Exec(query); err != nil {
			initErr = errors.Wrap(err, errors.ArchiveFailed, "failed to initialize archive schema")
			return
		}
	})
	return initErr
}

// Record mirrors a change event into the archive. Inserts and updates
// upsert the pattern document and append the newest history entry to the
// evolution log; evictions keep the final document for audit.
func (a *SQLiteArchive) Record(ctx context.Context, event ChangeEvent) error {
	if err := a.ensureInitialized(); err != nil {
		return err
	}
	if event.Pattern == nil {
		return errors.New(errors.InvalidInput, "change event carries no pattern")
	}

	doc, err := json.Marshal(event.Pattern)
	if err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.InvalidInput, "failed to marshal pattern"),
			errors.Fields{"pattern_id": event.Pattern.ID},
		)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	tx, err := a.db.Begin()
	if err != nil {
		return errors.Wrap(err, errors.ArchiveFailed, "failed to begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	upsert := `
    INSERT INTO patterns (id, doc, version, updated_at)
    VALUES (?, ?, ?, CURRENT_TIMESTAMP)
    ON CONFLICT(id) DO UPDATE SET
        doc = excluded.doc,
        version = excluded.version,
        updated_at = CURRENT_TIMESTAMP
    `
	if _, err := tx.ExecContext(ctx, upsert, event.Pattern.ID, string(doc), event.Pattern.Version); err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.ArchiveFailed, "failed to upsert pattern"),
			errors.Fields{"pattern_id": event.Pattern.ID},
		)
	}

	// Append the newest observation, if the pattern has any history.
	if n := len(event.Pattern.History); n > 0 && event.Kind != Evicted {
		entry := event.Pattern.History[n-1]
		delta, err := json.Marshal(entry.Delta)
		if err != nil {
			return errors.Wrap(err, errors.InvalidInput, "failed to marshal delta")
		}

		outcome := 0
		if entry.Outcome {
			outcome = 1
		}
		appendLog := `
        INSERT INTO evolution_log (pattern_id, observed_at, outcome, delta)
        VALUES (?, ?, ?, ?)
        `
		if _, err := tx.ExecContext(ctx, appendLog, event.Pattern.ID, entry.Timestamp, outcome, string(delta)); err != nil {
			return errors.WithFields(
				errors.Wrap(err, errors.ArchiveFailed, "failed to append evolution log"),
				errors.Fields{"pattern_id": event.Pattern.ID},
			)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ArchiveFailed, "failed to commit archive transaction")
	}
	return nil
}

// LoadAll returns every archived pattern, for warm-starting a store.
func (a *SQLiteArchive) LoadAll(ctx context.Context) ([]*core.Pattern, error) {
	if err := a.ensureInitialized(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	rows, err := a.db.QueryContext(ctx, "SELECT doc FROM patterns ORDER BY updated_at")
	if err != nil {
		return nil, errors.Wrap(err, errors.ArchiveFailed, "failed to query patterns")
	}
	defer rows.Close()

	var patterns []*core.Pattern
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, errors.Wrap(err, errors.ArchiveFailed, "failed to scan pattern row")
		}
		var p core.Pattern
		if err := json.Unmarshal([]byte(doc), &p); err != nil {
			return nil, errors.Wrap(err, errors.InvalidInput, "failed to unmarshal pattern document")
		}
		patterns = append(patterns, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ArchiveFailed, "error iterating pattern rows")
	}

	return patterns, nil
}

// EvolutionLogLen returns the number of archived observations for a
// pattern. Useful to verify the audit trail keeps growing even after the
// engine's rolling window discards old entries.
func (a *SQLiteArchive) EvolutionLogLen(ctx context.Context, patternID string) (int, error) {
	if err := a.ensureInitialized(); err != nil {
		return 0, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var count int
	err := a.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM evolution_log WHERE pattern_id = ?", patternID).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, errors.ArchiveFailed, "failed to count evolution log")
	}
	return count, nil
}

// Close closes the database connection.
func (a *SQLiteArchive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.db.Close(); err != nil {
		return errors.Wrap(err, errors.ArchiveFailed, "failed to close archive database")
	}
	return nil
}
