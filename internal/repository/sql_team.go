package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/avanderberg/scrumline/internal/db"
	"github.com/avanderberg/scrumline/internal/domain"
)

const memberColumns = `name, team, ts_mon, ts_tue, ts_wed, ts_thu, ts_fri, ts_sat, ts_sun`

// SQLTeamRepo implements TeamRepo for teams and their members.
type SQLTeamRepo struct {
	db      db.DBTX
	dialect db.Dialect
}

func NewSQLTeamRepo(dbtx db.DBTX, dialect db.Dialect) *SQLTeamRepo {
	return &SQLTeamRepo{db: dbtx, dialect: dialect}
}

func (r *SQLTeamRepo) Create(ctx context.Context, t *domain.Team) error {
	query := r.dialect.Rebind(`INSERT INTO ` + db.TeamTable + ` (name, description) VALUES (?, ?)`)
	if _, err := r.db.ExecContext(ctx, query, t.Name, t.Description); err != nil {
		return fmt.Errorf("%w: inserting team %q: %v", ErrUnableToSave, t.Name, err)
	}
	return nil
}

func (r *SQLTeamRepo) GetByName(ctx context.Context, name string) (*domain.Team, error) {
	var t domain.Team
	err := r.db.QueryRowContext(ctx,
		r.dialect.Rebind(`SELECT name, description FROM `+db.TeamTable+` WHERE name = ?`), name).
		Scan(&t.Name, &t.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: loading team %q: %v", ErrUnableToLoad, name, err)
	}
	return &t, nil
}

func (r *SQLTeamRepo) List(ctx context.Context) ([]*domain.Team, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name, description FROM `+db.TeamTable+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("%w: listing teams: %v", ErrUnableToLoad, err)
	}
	defer rows.Close()
	var teams []*domain.Team
	for rows.Next() {
		var t domain.Team
		if err := rows.Scan(&t.Name, &t.Description); err != nil {
			return nil, fmt.Errorf("%w: scanning team: %v", ErrUnableToLoad, err)
		}
		teams = append(teams, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: listing teams: %v", ErrUnableToLoad, err)
	}
	return teams, nil
}

func (r *SQLTeamRepo) Update(ctx context.Context, t *domain.Team) error {
	res, err := r.db.ExecContext(ctx,
		r.dialect.Rebind(`UPDATE `+db.TeamTable+` SET description = ? WHERE name = ?`),
		t.Description, t.Name)
	if err != nil {
		return fmt.Errorf("%w: updating team %q: %v", ErrUnableToSave, t.Name, err)
	}
	if r.dialect.ReportsAffectedRows() {
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: team %q", ErrNotFound, t.Name)
		}
	}
	return nil
}

func (r *SQLTeamRepo) Delete(ctx context.Context, name string) error {
	// Members survive team deletion with an empty team reference.
	if _, err := r.db.ExecContext(ctx,
		r.dialect.Rebind(`UPDATE `+db.TeamMemberTable+` SET team = '' WHERE team = ?`), name); err != nil {
		return fmt.Errorf("%w: detaching members of team %q: %v", ErrUnableToDelete, name, err)
	}
	res, err := r.db.ExecContext(ctx,
		r.dialect.Rebind(`DELETE FROM `+db.TeamTable+` WHERE name = ?`), name)
	if err != nil {
		return fmt.Errorf("%w: deleting team %q: %v", ErrUnableToDelete, name, err)
	}
	if r.dialect.ReportsAffectedRows() {
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: team %q", ErrNotFound, name)
		}
	}
	return nil
}

func (r *SQLTeamRepo) AddMember(ctx context.Context, m *domain.TeamMember) error {
	query := r.dialect.Rebind(`INSERT INTO ` + db.TeamMemberTable +
		` (` + memberColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	args := []any{m.Name, m.Team}
	for _, h := range m.Capacity {
		args = append(args, h)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: inserting team member %q: %v", ErrUnableToSave, m.Name, err)
	}
	return nil
}

func (r *SQLTeamRepo) GetMember(ctx context.Context, name string) (*domain.TeamMember, error) {
	row := r.db.QueryRowContext(ctx,
		r.dialect.Rebind(`SELECT `+memberColumns+` FROM `+db.TeamMemberTable+` WHERE name = ?`), name)
	return scanMember(row)
}

func (r *SQLTeamRepo) ListMembers(ctx context.Context, team string) ([]*domain.TeamMember, error) {
	rows, err := r.db.QueryContext(ctx,
		r.dialect.Rebind(`SELECT `+memberColumns+` FROM `+db.TeamMemberTable+` WHERE team = ? ORDER BY name`),
		team)
	if err != nil {
		return nil, fmt.Errorf("%w: listing members of team %q: %v", ErrUnableToLoad, team, err)
	}
	defer rows.Close()
	var members []*domain.TeamMember
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: listing members of team %q: %v", ErrUnableToLoad, team, err)
	}
	return members, nil
}

func (r *SQLTeamRepo) UpdateMember(ctx context.Context, m *domain.TeamMember) error {
	query := r.dialect.Rebind(`UPDATE ` + db.TeamMemberTable + ` SET
		team = ?, ts_mon = ?, ts_tue = ?, ts_wed = ?, ts_thu = ?, ts_fri = ?, ts_sat = ?, ts_sun = ?
		WHERE name = ?`)
	args := []any{m.Team}
	for _, h := range m.Capacity {
		args = append(args, h)
	}
	args = append(args, m.Name)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: updating team member %q: %v", ErrUnableToSave, m.Name, err)
	}
	if r.dialect.ReportsAffectedRows() {
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: team member %q", ErrNotFound, m.Name)
		}
	}
	return nil
}

func (r *SQLTeamRepo) RemoveMember(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx,
		r.dialect.Rebind(`DELETE FROM `+db.TeamMemberTable+` WHERE name = ?`), name)
	if err != nil {
		return fmt.Errorf("%w: deleting team member %q: %v", ErrUnableToDelete, name, err)
	}
	if r.dialect.ReportsAffectedRows() {
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: team member %q", ErrNotFound, name)
		}
	}
	return nil
}

// SQLTeamMetricsRepo implements TeamMetricsRepo. One row per metric value,
// keyed by team, sprint, and metric name.
type SQLTeamMetricsRepo struct {
	db      db.DBTX
	dialect db.Dialect
}

func NewSQLTeamMetricsRepo(dbtx db.DBTX, dialect db.Dialect) *SQLTeamMetricsRepo {
	return &SQLTeamMetricsRepo{db: dbtx, dialect: dialect}
}

func (r *SQLTeamMetricsRepo) Save(ctx context.Context, e *domain.TeamMetricsEntry) error {
	query := r.dialect.Rebind(r.dialect.Upsert(db.TeamMetricsTable,
		[]string{"team", "sprint", "metrics_key"}, []string{"value"}))
	if _, err := r.db.ExecContext(ctx, query, e.Team, e.Sprint, e.Key, e.Value); err != nil {
		return fmt.Errorf("%w: saving metric %q for team %q: %v", ErrUnableToSave, e.Key, e.Team, err)
	}
	return nil
}

func (r *SQLTeamMetricsRepo) Get(ctx context.Context, team, sprint, key string) (*domain.TeamMetricsEntry, error) {
	var e domain.TeamMetricsEntry
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(
		`SELECT team, sprint, metrics_key, value FROM `+db.TeamMetricsTable+
			` WHERE team = ? AND sprint = ? AND metrics_key = ?`), team, sprint, key).
		Scan(&e.Team, &e.Sprint, &e.Key, &e.Value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: loading metric %q for team %q: %v", ErrUnableToLoad, key, team, err)
	}
	return &e, nil
}

func (r *SQLTeamMetricsRepo) List(ctx context.Context, team, sprint string) ([]*domain.TeamMetricsEntry, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(
		`SELECT team, sprint, metrics_key, value FROM `+db.TeamMetricsTable+
			` WHERE team = ? AND sprint = ? ORDER BY metrics_key`), team, sprint)
	if err != nil {
		return nil, fmt.Errorf("%w: listing metrics of team %q: %v", ErrUnableToLoad, team, err)
	}
	defer rows.Close()
	var entries []*domain.TeamMetricsEntry
	for rows.Next() {
		var e domain.TeamMetricsEntry
		if err := rows.Scan(&e.Team, &e.Sprint, &e.Key, &e.Value); err != nil {
			return nil, fmt.Errorf("%w: scanning metric: %v", ErrUnableToLoad, err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: listing metrics of team %q: %v", ErrUnableToLoad, team, err)
	}
	return entries, nil
}

func (r *SQLTeamMetricsRepo) DeleteBySprint(ctx context.Context, sprint string) error {
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(
		`DELETE FROM `+db.TeamMetricsTable+` WHERE sprint = ?`), sprint)
	if err != nil {
		return fmt.Errorf("%w: deleting metrics of sprint %q: %v", ErrUnableToDelete, sprint, err)
	}
	return nil
}

func (r *SQLTeamMetricsRepo) RenameSprint(ctx context.Context, oldSprint, newSprint string) error {
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(
		`UPDATE `+db.TeamMetricsTable+` SET sprint = ? WHERE sprint = ?`), newSprint, oldSprint)
	if err != nil {
		return fmt.Errorf("%w: renaming metrics sprint %q: %v", ErrUnableToSave, oldSprint, err)
	}
	return nil
}

func scanMember(row rowScanner) (*domain.TeamMember, error) {
	var m domain.TeamMember
	dest := []any{&m.Name, &m.Team}
	for i := range m.Capacity {
		dest = append(dest, &m.Capacity[i])
	}
	err := row.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scanning team member: %v", ErrUnableToLoad, err)
	}
	return &m, nil
}
