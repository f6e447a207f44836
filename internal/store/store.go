package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// journalPragmas are applied by the driver on every new connection, so a
// reconnect keeps foreign keys and the busy timeout.
var journalPragmas = url.Values{
	"_journal_mode": {"WAL"},
	"_synchronous":  {"NORMAL"},
	"_busy_timeout": {"5000"},
	"_foreign_keys": {"on"},
}

// migration upgrades a journal database by one user_version step.
type migration struct {
	version int
	name    string
	stmt    string
}

// migrations run in order on databases whose user_version is below their
// version. Version 0 is the bare schema.sql layout.
var migrations = []migration{
	{
		version: 1,
		name:    "index events by kind",
		stmt:    `CREATE INDEX IF NOT EXISTS idx_events_session_kind ON events(session_id, kind)`,
	},
}

// Store is a SQLite event journal. It holds sessions and their ordered
// events and is safe for use by one process at a time.
type Store struct {
	db *sql.DB
}

// Open opens the journal at path, creating it when missing, and brings its
// schema up to date. Opening an existing journal is safe.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?"+journalPragmas.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer; the journal is appended in seq order.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func migrate(db *sql.DB) error {
	var current int
	if err := db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.Exec(m.stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		// PRAGMA does not take bound parameters.
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): set user_version: %w", m.version, m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d (%s): commit: %w", m.version, m.name, err)
		}
		current = m.version
	}
	return nil
}
