package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Table names. The project tables carry a common prefix so they never
// collide with host-tracker tables.
const (
	TicketTable       = "ticket"
	TicketCustomTable = "ticket_custom"
	MilestoneTable    = "milestone"

	LinkTable        = "agilo_link"
	SprintTable      = "agilo_sprint"
	BacklogTable     = "agilo_backlog"
	BacklogItemTable = "agilo_backlog_ticket"
	BurndownTable    = "agilo_burndown_data_change"
	TeamTable        = "agilo_team"
	TeamMemberTable  = "agilo_team_member"
	TeamMetricsTable = "agilo_team_metrics_entry"
	ContingentTable  = "agilo_contingent"
	SystemTable      = "agilo_system"
)

type migration struct {
	version int
	apply   func(ctx context.Context, tx DBTX, d Dialect) error
}

// Migrate brings the schema to the current version. Every step is
// idempotent: the recorded version gates which steps run, and each step can
// be re-applied to a database already carrying its effects.
func Migrate(database *DB) error {
	ctx := context.Background()
	d := database.Dialect

	if _, err := database.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (name %s PRIMARY KEY, value TEXT)`,
		SystemTable, d.TextKey())); err != nil {
		return fmt.Errorf("creating system table: %w", err)
	}

	current, err := schemaVersion(ctx, database.DB)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := database.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning migration transaction: %w", err)
		}
		if err := m.apply(ctx, tx, d); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
		if err := recordVersion(ctx, tx, d, m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording version %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", m.version, err)
		}
	}
	return nil
}

func schemaVersion(ctx context.Context, database *sql.DB) (int, error) {
	var raw string
	err := database.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT value FROM %s WHERE name = 'db_version'`, SystemTable)).Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	var v int
	if _, err := fmt.Sscanf(raw, "%d", &v); err != nil {
		return 0, fmt.Errorf("parsing schema version %q: %w", raw, err)
	}
	return v, nil
}

func recordVersion(ctx context.Context, tx DBTX, d Dialect, version int) error {
	_, err := tx.ExecContext(ctx,
		d.Rebind(d.Upsert(SystemTable, []string{"name"}, []string{"value"})),
		"db_version", fmt.Sprintf("%d", version))
	return err
}

var migrations = []migration{
	{1, migrateTrackerTables},
	{2, migrateAgileTables},
	{3, migrateBacklogItemKey},
	{4, migrateTeamMetrics},
}

// migrateTrackerTables creates the host-tracker core: tickets with their
// standard columns, per-ticket custom fields, and milestones.
func migrateTrackerTables(ctx context.Context, tx DBTX, d Dialect) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id          %s,
			type        %s NOT NULL,
			time        BIGINT NOT NULL,
			changetime  BIGINT NOT NULL,
			summary     TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL DEFAULT '',
			resolution  TEXT NOT NULL DEFAULT '',
			owner       TEXT NOT NULL DEFAULT '',
			reporter    TEXT NOT NULL DEFAULT '',
			cc          TEXT NOT NULL DEFAULT '',
			milestone   TEXT NOT NULL DEFAULT '',
			keywords    TEXT NOT NULL DEFAULT ''
		)`, TicketTable, d.AutoIncrementPK(), d.TextKey()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			ticket BIGINT NOT NULL,
			name   %s NOT NULL,
			value  TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (ticket, name)
		)`, TicketCustomTable, d.TextKey()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			name      %s PRIMARY KEY,
			due       BIGINT,
			completed BIGINT,
			description TEXT NOT NULL DEFAULT ''
		)`, MilestoneTable, d.TextKey()),
	}
	return execAll(ctx, tx, stmts)
}

// migrateAgileTables creates the project's own tables. agilo_backlog_ticket
// is created in its historical shape, keyed by (name, pos, scope); migration
// 3 moves it to the final key.
func migrateAgileTables(ctx context.Context, tx DBTX, d Dialect) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			src  BIGINT NOT NULL,
			dest BIGINT NOT NULL,
			PRIMARY KEY (src, dest)
		)`, LinkTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			name        %s PRIMARY KEY,
			description TEXT NOT NULL DEFAULT '',
			start       BIGINT NOT NULL,
			sprint_end  BIGINT NOT NULL,
			milestone   TEXT NOT NULL DEFAULT '',
			team        TEXT NOT NULL DEFAULT ''
		)`, SprintTable, d.TextKey()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			name         %s PRIMARY KEY,
			description  TEXT NOT NULL DEFAULT '',
			b_type       INTEGER NOT NULL DEFAULT 0,
			ticket_types TEXT NOT NULL DEFAULT '',
			sorting_keys TEXT NOT NULL DEFAULT ''
		)`, BacklogTable, d.TextKey()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			name      %s NOT NULL,
			pos       INTEGER,
			scope     %s NOT NULL,
			ticket_id BIGINT,
			PRIMARY KEY (name, pos, scope)
		)`, BacklogItemTable, d.TextKey(), d.TextKey()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id            %s,
			burndown_type %s NOT NULL,
			scope         %s NOT NULL,
			timestamp     BIGINT NOT NULL,
			value         REAL NOT NULL
		)`, BurndownTable, d.AutoIncrementPK(), d.TextKey(), d.TextKey()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			name        %s PRIMARY KEY,
			description TEXT NOT NULL DEFAULT ''
		)`, TeamTable, d.TextKey()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			name   %s PRIMARY KEY,
			team   TEXT NOT NULL DEFAULT '',
			ts_mon REAL NOT NULL DEFAULT 0,
			ts_tue REAL NOT NULL DEFAULT 0,
			ts_wed REAL NOT NULL DEFAULT 0,
			ts_thu REAL NOT NULL DEFAULT 0,
			ts_fri REAL NOT NULL DEFAULT 0,
			ts_sat REAL NOT NULL DEFAULT 0,
			ts_sun REAL NOT NULL DEFAULT 0
		)`, TeamMemberTable, d.TextKey()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			name   %s NOT NULL,
			sprint %s NOT NULL,
			amount REAL NOT NULL DEFAULT 0,
			actual REAL NOT NULL DEFAULT 0,
			PRIMARY KEY (name, sprint)
		)`, ContingentTable, d.TextKey(), d.TextKey()),
	}
	if err := execAll(ctx, tx, stmts); err != nil {
		return err
	}
	return createIndex(ctx, tx, d, fmt.Sprintf("idx_%s_scope", BurndownTable),
		BurndownTable, "burndown_type", "scope")
}

// migrateTeamMetrics adds the per-sprint team metrics table. The metric name
// column is metrics_key because "key" is a reserved word on the server
// engine.
func migrateTeamMetrics(ctx context.Context, tx DBTX, d Dialect) error {
	return execAll(ctx, tx, []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			team        %s NOT NULL,
			sprint      %s NOT NULL,
			metrics_key %s NOT NULL,
			value       REAL NOT NULL DEFAULT 0,
			PRIMARY KEY (team, sprint, metrics_key)
		)`, TeamMetricsTable, d.TextKey(), d.TextKey(), d.TextKey()),
	})
}

// createIndex creates an index only when it does not exist yet. The server
// engine has no IF NOT EXISTS clause on CREATE INDEX, so existence is read
// from information_schema first.
func createIndex(ctx context.Context, tx DBTX, d Dialect, name, table string, cols ...string) error {
	colList := strings.Join(cols, ", ")
	if d.SupportsCreateIndexIfNotExists() {
		_, err := tx.ExecContext(ctx, fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS %s ON %s (%s)`, name, table, colList))
		return err
	}
	var n int
	err := tx.QueryRowContext(ctx, d.Rebind(
		`SELECT COUNT(*) FROM information_schema.statistics
		 WHERE table_schema = DATABASE() AND table_name = ? AND index_name = ?`),
		table, name).Scan(&n)
	if err != nil {
		return fmt.Errorf("checking index %s: %w", name, err)
	}
	if n > 0 {
		return nil
	}
	_, err = tx.ExecContext(ctx, fmt.Sprintf(`CREATE INDEX %s ON %s (%s)`, name, table, colList))
	return err
}

// migrateBacklogItemKey recreates agilo_backlog_ticket keyed by
// (name, scope, ticket_id). Rows without a ticket id are discarded and
// duplicate (name, ticket_id, scope) rows collapse to the first occurrence.
func migrateBacklogItemKey(ctx context.Context, tx DBTX, d Dialect) error {
	tmp := BacklogItemTable + "_new"
	stmts := []string{
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, tmp),
		fmt.Sprintf(`CREATE TABLE %s (
			name      %s NOT NULL,
			scope     %s NOT NULL,
			ticket_id BIGINT NOT NULL,
			pos       INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (name, scope, ticket_id)
		)`, tmp, d.TextKey(), d.TextKey()),
		fmt.Sprintf(`INSERT INTO %s (name, scope, ticket_id, pos)
			SELECT name, scope, ticket_id, MIN(pos)
			FROM %s
			WHERE ticket_id IS NOT NULL
			GROUP BY name, scope, ticket_id`, tmp, BacklogItemTable),
		fmt.Sprintf(`DROP TABLE %s`, BacklogItemTable),
		fmt.Sprintf(`ALTER TABLE %s RENAME TO %s`, tmp, BacklogItemTable),
	}
	return execAll(ctx, tx, stmts)
}

func execAll(ctx context.Context, tx DBTX, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
