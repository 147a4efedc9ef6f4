package db

import (
	"fmt"
	"strings"
)

// Dialect abstracts the differences between the supported database engines.
// Queries are written with '?' placeholders and rewritten through Rebind for
// engines that use another style, so the repositories stay engine-neutral.
type Dialect interface {
	Name() string

	// Rebind rewrites '?' placeholders into the engine's native style.
	Rebind(query string) string

	// AutoIncrementPK is the column definition for an auto-assigned
	// integer primary key.
	AutoIncrementPK() string

	// Upsert builds an insert-or-update statement for the given table,
	// key columns, and updated columns.
	Upsert(table string, keyCols, updateCols []string) string

	// TextKey is the column type for text columns used in a primary key
	// or unique index.
	TextKey() string

	// ReportsAffectedRows reports whether the driver returns reliable
	// affected-row counts. Engines that cannot report counts skip the
	// exactly-one-row update check.
	ReportsAffectedRows() bool

	// SupportsCreateIndexIfNotExists reports whether CREATE INDEX accepts
	// an IF NOT EXISTS clause.
	SupportsCreateIndexIfNotExists() bool
}

// SQLiteDialect targets the single-file engine.
type SQLiteDialect struct{}

func (SQLiteDialect) Name() string { return "sqlite" }

func (SQLiteDialect) Rebind(query string) string { return query }

func (SQLiteDialect) AutoIncrementPK() string { return "INTEGER PRIMARY KEY AUTOINCREMENT" }

func (SQLiteDialect) Upsert(table string, keyCols, updateCols []string) string {
	all := append(append([]string{}, keyCols...), updateCols...)
	sets := make([]string, len(updateCols))
	for i, c := range updateCols {
		sets[i] = c + " = excluded." + c
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET %s",
		table,
		strings.Join(all, ", "),
		placeholders(len(all)),
		strings.Join(keyCols, ", "),
		strings.Join(sets, ", "))
}

func (SQLiteDialect) TextKey() string { return "TEXT" }

func (SQLiteDialect) ReportsAffectedRows() bool { return true }

func (SQLiteDialect) SupportsCreateIndexIfNotExists() bool { return true }

// MySQLDialect targets the server-backed engine.
type MySQLDialect struct{}

func (MySQLDialect) Name() string { return "mysql" }

func (MySQLDialect) Rebind(query string) string { return query }

func (MySQLDialect) AutoIncrementPK() string { return "BIGINT PRIMARY KEY AUTO_INCREMENT" }

func (MySQLDialect) Upsert(table string, keyCols, updateCols []string) string {
	all := append(append([]string{}, keyCols...), updateCols...)
	sets := make([]string, len(updateCols))
	for i, c := range updateCols {
		sets[i] = c + " = VALUES(" + c + ")"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		table,
		strings.Join(all, ", "),
		placeholders(len(all)),
		strings.Join(sets, ", "))
}

// MySQL cannot index unbounded TEXT columns.
func (MySQLDialect) TextKey() string { return "VARCHAR(255)" }

// The MySQL protocol reports matched rows by default rather than changed
// rows; the DSN must set clientFoundRows for the update check to be exact,
// so the dialect opts out of the check.
func (MySQLDialect) ReportsAffectedRows() bool { return false }

// MySQL rejects IF NOT EXISTS on CREATE INDEX; callers check
// information_schema instead.
func (MySQLDialect) SupportsCreateIndexIfNotExists() bool { return false }

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
