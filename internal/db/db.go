package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// DB bundles an open database handle with its dialect.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// OpenSQLite opens a SQLite database at the given path, creating parent
// directories as needed. ":memory:" opens an in-memory database. WAL mode
// and foreign keys are enabled and all migrations run.
func OpenSQLite(path string) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	handle, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := handle.Exec("PRAGMA journal_mode = WAL"); err != nil {
		handle.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := handle.Exec("PRAGMA foreign_keys = ON"); err != nil {
		handle.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	database := &DB{DB: handle, Dialect: SQLiteDialect{}}
	if err := Migrate(database); err != nil {
		handle.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return database, nil
}

// OpenMySQL opens a server-backed database from a go-sql-driver DSN and runs
// all migrations.
func OpenMySQL(dsn string) (*DB, error) {
	handle, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := handle.Ping(); err != nil {
		handle.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	database := &DB{DB: handle, Dialect: MySQLDialect{}}
	if err := Migrate(database); err != nil {
		handle.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return database, nil
}
