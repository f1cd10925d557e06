package credential

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pion/logging"
)

// SQLite is a persistent multi-user Store backed by a sqlite database.
// Registering an existing username replaces its record.
type SQLite struct {
	db       *sql.DB
	capacity int
	log      logging.LeveledLogger
}

// SQLiteConfig configures OpenSQLite.
type SQLiteConfig struct {
	// Path is the database file. ":memory:" opens a private in-memory DB.
	Path string

	// Capacity is the maximum username length. Zero selects DefaultCapacity.
	Capacity int

	// LoggerFactory for backend error reporting. Optional.
	LoggerFactory logging.LoggerFactory
}

// OpenSQLite opens the database at cfg.Path and runs migrations.
func OpenSQLite(cfg SQLiteConfig) (*SQLite, error) {
	capacity := cfg.Capacity
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	if capacity < 0 {
		return nil, ErrInvalidCapacity
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("credential: open %s: %w", cfg.Path, err)
	}
	// A :memory: database is per connection.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("credential: migrate: %w", err)
	}

	s := &SQLite{db: db, capacity: capacity}
	if cfg.LoggerFactory != nil {
		s.log = cfg.LoggerFactory.NewLogger("credential")
	}
	return s, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS verifiers (
			username BLOB PRIMARY KEY,
			salt BLOB NOT NULL,
			uad BLOB,
			verifier BLOB NOT NULL,
			params TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`)
	return err
}

// Lookup implements Store. Backend errors are logged and reported as a miss.
func (s *SQLite) Lookup(username []byte) (Record, bool) {
	rec := Record{Username: append([]byte(nil), username...)}
	err := s.db.QueryRow(
		"SELECT salt, uad, verifier, params FROM verifiers WHERE username = ?", username,
	).Scan(&rec.Salt, &rec.UAD, &rec.Verifier, &rec.Params)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false
	}
	if err != nil {
		if s.log != nil {
			s.log.Errorf("lookup %q: %v", username, err)
		}
		return Record{}, false
	}
	return rec, true
}

// Store implements Store.
func (s *SQLite) Store(username, salt, uad, verifier []byte, params string) error {
	if len(username) > s.capacity {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`
		INSERT INTO verifiers (username, salt, uad, verifier, params, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			salt = excluded.salt,
			uad = excluded.uad,
			verifier = excluded.verifier,
			params = excluded.params,
			updated_at = excluded.updated_at`,
		username, salt, uad, verifier, params, now)
	if err != nil {
		return fmt.Errorf("credential: store %q: %w", username, err)
	}
	return nil
}

// Capacity implements Store.
func (s *SQLite) Capacity() int {
	return s.capacity
}

// Count returns the number of stored records.
func (s *SQLite) Count() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM verifiers").Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
