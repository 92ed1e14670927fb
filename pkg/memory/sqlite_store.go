package memory

import (
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/XiaoConstantine/ale-go/pkg/errors"
)

// SQLiteStore persists working-memory entries across processes. The path
// ":memory:" creates a throwaway in-memory database, which the tests use.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.Mutex
	path string

	initialized sync.Once
}

// NewSQLiteStore opens (or creates) the entry database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.StoreFailed, "failed to open SQLite database"),
			errors.Fields{"path": path},
		)
	}

	// A single connection keeps ":memory:" databases coherent and plays
	// well with the store's serialized writes.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, path: path}
	if err := store.ensureInitialized(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) ensureInitialized() error {
	var initErr error
	s.initialized.Do(func() {
		// WAL mode for better concurrency
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			initErr = errors.Wrap(err, errors.StoreFailed, "failed to enable WAL mode")
			return
		}

		query := `
        CREATE TABLE IF NOT EXISTS working_memory (
            id TEXT PRIMARY KEY,
            type TEXT NOT NULL,
            content TEXT NOT NULL,
            metadata TEXT,
            task_pattern TEXT NOT NULL,
            confidence REAL NOT NULL,
            hit_count INTEGER NOT NULL DEFAULT 0,
            last_accessed DATETIME NOT NULL,
            created_at DATETIME NOT NULL
        );

        CREATE INDEX IF NOT EXISTS idx_working_memory_task_pattern
        ON working_memory(task_pattern);
        `
		if _, err := s.db.Exec(query); err != nil {
			initErr = errors.Wrap(err, errors.StoreFailed, "failed to initialize working memory table")
			return
		}
	})
	return initErr
}

// Save upserts an entry.
func (s *SQLiteStore) Save(entry Entry) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.InvalidInput, "failed to marshal entry metadata"),
			errors.Fields{"id": entry.ID},
		)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
    INSERT INTO working_memory (id, type, content, metadata, task_pattern, confidence, hit_count, last_accessed, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    ON CONFLICT(id) DO UPDATE SET
        content = excluded.content,
        metadata = excluded.metadata,
        confidence = excluded.confidence,
        hit_count = excluded.hit_count,
        last_accessed = excluded.last_accessed
    `
	_, err = s.db.Exec(query, entry.ID, string(entry.Type), entry.Content, string(metadata),
		entry.TaskPattern, entry.Confidence, entry.HitCount, entry.LastAccessed, entry.CreatedAt)
	if err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.StoreFailed, "failed to save working memory entry"),
			errors.Fields{"id": entry.ID},
		)
	}
	return nil
}

// Touch updates recall bookkeeping for an entry.
func (s *SQLiteStore) Touch(id string, hitCount int, lastAccessed time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE working_memory SET hit_count = ?, last_accessed = ? WHERE id = ?`,
		hitCount, lastAccessed, id)
	if err != nil {
		return errors.Wrap(err, errors.StoreFailed, "failed to update entry access")
	}
	return nil
}

// Delete removes an entry by id.
func (s *SQLiteStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM working_memory WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, errors.StoreFailed, "failed to delete entry")
	}
	return nil
}

// LoadAll returns every persisted entry, used to rebuild the in-memory
// index at construction.
func (s *SQLiteStore) LoadAll() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
        SELECT id, type, content, metadata, task_pattern, confidence, hit_count, last_accessed, created_at
        FROM working_memory`)
	if err != nil {
		return nil, errors.Wrap(err, errors.RecallFailed, "failed to load working memory entries")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var entryType, metadata string
		if err := rows.Scan(&e.ID, &entryType, &e.Content, &metadata, &e.TaskPattern,
			&e.Confidence, &e.HitCount, &e.LastAccessed, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, errors.RecallFailed, "failed to scan working memory entry")
		}
		e.Type = EntryType(entryType)
		if metadata != "" {
			// Tolerate malformed metadata from older rows.
			_ = json.Unmarshal([]byte(metadata), &e.Metadata)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
