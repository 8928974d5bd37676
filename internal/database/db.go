package database

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	conn *sql.DB
	path string
}

type Config struct {
	SQLitePath string
	// BusyTimeout is how long SQLite waits on a locked database, in milliseconds.
	BusyTimeout int
}

// StartupError reports a database that could not be prepared for use. The
// process is not expected to continue past it.
type StartupError struct {
	Err error
}

func (e *StartupError) Error() string {
	return "database startup failed: " + e.Err.Error()
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

// Open connects to the SQLite file without touching its schema.
func Open(config Config) (*DB, error) {
	busyTimeout := config.BusyTimeout
	if busyTimeout == 0 {
		busyTimeout = 5000
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d", config.SQLitePath, busyTimeout)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	return &DB{conn: conn, path: config.SQLitePath}, nil
}

// NewDB opens the database and brings its schema up to date.
func NewDB(config Config) (*DB, error) {
	db, err := Open(config)
	if err != nil {
		return nil, &StartupError{Err: err}
	}

	if err := NewMigrator(db).Run(); err != nil {
		db.Close()
		return nil, &StartupError{Err: fmt.Errorf("failed to create tables: %w", err)}
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Conn() *sql.DB {
	return db.conn
}

func (db *DB) Path() string {
	return db.path
}
