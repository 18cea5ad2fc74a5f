// Package cache is the persistent local mirror of the remote photo library:
// media items, albums, memberships, face records and the sync cursor, all in
// a single SQLite file.
//
// The store owns one exclusive connection behind a mutex; every public
// operation takes the guard. A panic while holding the guard poisons the
// store and all later calls fail with ErrPoisoned rather than touch a
// half-written database.
//
// Substring matches on filename, description and album title are
// case-insensitive (SQLite LIKE over ASCII); the single-predicate helpers
// and the combined query agree on this.
package cache

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/Christopher-Schulze/googlepicz/util"
	_ "modernc.org/sqlite"
)

// Store is the cache handle. It is shareable: Clone returns a handle backed
// by the same connection and guard.
type Store struct {
	db       *sql.DB
	mu       *sync.Mutex
	poisoned *util.SafeFlag
}

// Open opens (or creates) the database at path and applies all pending
// migrations before returning. Foreign-key enforcement is switched on for
// the connection once the schema is current.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, dbErr("open", err)
	}
	// One exclusive connection; the guard below serializes access.
	db.SetMaxOpenConns(1)

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, dbErr("enable foreign keys", err)
	}

	return &Store{
		db:       db,
		mu:       &sync.Mutex{},
		poisoned: util.NewSafeFlag(),
	}, nil
}

// Clone returns a handle sharing the underlying connection and its guard.
func (s *Store) Clone() *Store {
	return &Store{db: s.db, mu: s.mu, poisoned: s.poisoned}
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// withGuard runs fn while holding the connection guard. A panic inside fn
// marks the store poisoned and is converted into an error; every later call
// short-circuits with ErrPoisoned.
func (s *Store) withGuard(op string, fn func() error) error {
	if s.poisoned.Value() {
		return ErrPoisoned
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				s.poisoned.Set(true)
				err = fmt.Errorf("%w (panic in %s: %v)", ErrPoisoned, op, r)
			}
		}()
		err = fn()
	}()
	return err
}

// GetLastSync returns the sync cursor, or the Unix epoch if no pass has ever
// completed.
func (s *Store) GetLastSync() (time.Time, error) {
	var ts time.Time
	err := s.withGuard("get last sync", func() error {
		var raw string
		if err := s.db.QueryRow(`SELECT timestamp FROM last_sync WHERE id = 1`).Scan(&raw); err != nil {
			return dbErr("query last sync", err)
		}
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return &DeserializationError{Err: err}
		}
		ts = parsed
		return nil
	})
	return ts, err
}

// SetLastSync records the sync cursor.
func (s *Store) SetLastSync(ts time.Time) error {
	return s.withGuard("set last sync", func() error {
		_, err := s.db.Exec(`UPDATE last_sync SET timestamp = ?1 WHERE id = 1`,
			ts.UTC().Format(time.RFC3339))
		if err != nil {
			return dbErr("update last sync", err)
		}
		return nil
	})
}

// ClearCache truncates every table and resets the sync cursor to the epoch.
func (s *Store) ClearCache() error {
	return s.withGuard("clear cache", func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return dbErr("begin clear", err)
		}
		defer tx.Rollback()

		for _, stmt := range []string{
			`DELETE FROM album_media_items`,
			`DELETE FROM faces`,
			`DELETE FROM media_metadata`,
			`DELETE FROM albums`,
			`DELETE FROM media_items`,
			`UPDATE last_sync SET timestamp = '` + epochTimestamp + `' WHERE id = 1`,
		} {
			if _, err := tx.Exec(stmt); err != nil {
				return dbErr("clear cache", err)
			}
		}
		return tx.Commit()
	})
}
