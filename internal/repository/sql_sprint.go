package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/avanderberg/scrumline/internal/db"
	"github.com/avanderberg/scrumline/internal/domain"
)

const sprintColumns = `name, description, start, sprint_end, milestone, team`

// SQLSprintRepo implements SprintRepo.
type SQLSprintRepo struct {
	db      db.DBTX
	dialect db.Dialect
	cache   *identityCache[string, *domain.Sprint]
}

func NewSQLSprintRepo(dbtx db.DBTX, dialect db.Dialect) *SQLSprintRepo {
	return &SQLSprintRepo{
		db:      dbtx,
		dialect: dialect,
		cache:   newIdentityCache[string, *domain.Sprint](),
	}
}

func (r *SQLSprintRepo) ResetCache() { r.cache.Reset() }

func (r *SQLSprintRepo) Create(ctx context.Context, s *domain.Sprint) error {
	query := r.dialect.Rebind(`INSERT INTO ` + db.SprintTable +
		` (` + sprintColumns + `) VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query,
		s.Name, s.Description, timeToEpoch(s.Start), timeToEpoch(s.End), s.Milestone, s.Team)
	if err != nil {
		return fmt.Errorf("%w: inserting sprint %q: %v", ErrUnableToSave, s.Name, err)
	}
	r.cache.Put(s.Name, s)
	return nil
}

func (r *SQLSprintRepo) GetByName(ctx context.Context, name string) (*domain.Sprint, error) {
	if cached, ok := r.cache.Get(name); ok {
		return cached, nil
	}
	row := r.db.QueryRowContext(ctx,
		r.dialect.Rebind(`SELECT `+sprintColumns+` FROM `+db.SprintTable+` WHERE name = ?`), name)
	s, err := scanSprint(row)
	if err != nil {
		return nil, err
	}
	r.cache.Put(s.Name, s)
	return s, nil
}

func (r *SQLSprintRepo) List(ctx context.Context) ([]*domain.Sprint, error) {
	return r.list(ctx, `SELECT `+sprintColumns+` FROM `+db.SprintTable+` ORDER BY start, name`)
}

func (r *SQLSprintRepo) ListByMilestone(ctx context.Context, milestone string) ([]*domain.Sprint, error) {
	return r.list(ctx,
		`SELECT `+sprintColumns+` FROM `+db.SprintTable+` WHERE milestone = ? ORDER BY start, name`,
		milestone)
}

func (r *SQLSprintRepo) ListByTeam(ctx context.Context, team string) ([]*domain.Sprint, error) {
	return r.list(ctx,
		`SELECT `+sprintColumns+` FROM `+db.SprintTable+` WHERE team = ? ORDER BY start, name`,
		team)
}

// Update writes the sprint row identified by oldName, which allows renames.
func (r *SQLSprintRepo) Update(ctx context.Context, oldName string, s *domain.Sprint) error {
	query := r.dialect.Rebind(`UPDATE ` + db.SprintTable + ` SET
		name = ?, description = ?, start = ?, sprint_end = ?, milestone = ?, team = ?
		WHERE name = ?`)
	res, err := r.db.ExecContext(ctx, query,
		s.Name, s.Description, timeToEpoch(s.Start), timeToEpoch(s.End), s.Milestone, s.Team,
		oldName)
	if err != nil {
		return fmt.Errorf("%w: updating sprint %q: %v", ErrUnableToSave, oldName, err)
	}
	if r.dialect.ReportsAffectedRows() {
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: sprint %q", ErrNotFound, oldName)
		}
	}
	if oldName != s.Name {
		r.cache.Rekey(oldName, s.Name)
	}
	r.cache.Put(s.Name, s)
	return nil
}

func (r *SQLSprintRepo) Delete(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx,
		r.dialect.Rebind(`DELETE FROM `+db.SprintTable+` WHERE name = ?`), name)
	if err != nil {
		return fmt.Errorf("%w: deleting sprint %q: %v", ErrUnableToDelete, name, err)
	}
	if r.dialect.ReportsAffectedRows() {
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: sprint %q", ErrNotFound, name)
		}
	}
	r.cache.Remove(name)
	return nil
}

func (r *SQLSprintRepo) list(ctx context.Context, query string, args ...any) ([]*domain.Sprint, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: listing sprints: %v", ErrUnableToLoad, err)
	}
	defer rows.Close()
	var sprints []*domain.Sprint
	for rows.Next() {
		s, err := scanSprint(rows)
		if err != nil {
			return nil, err
		}
		if cached, ok := r.cache.Get(s.Name); ok {
			sprints = append(sprints, cached)
			continue
		}
		r.cache.Put(s.Name, s)
		sprints = append(sprints, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: listing sprints: %v", ErrUnableToLoad, err)
	}
	return sprints, nil
}

func scanSprint(row rowScanner) (*domain.Sprint, error) {
	var s domain.Sprint
	var start, end int64
	err := row.Scan(&s.Name, &s.Description, &start, &end, &s.Milestone, &s.Team)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scanning sprint: %v", ErrUnableToLoad, err)
	}
	s.Start = epochToTime(start)
	s.End = epochToTime(end)
	return &s, nil
}

// SQLMilestoneRepo implements MilestoneRepo over the host tracker's
// milestone table.
type SQLMilestoneRepo struct {
	db      db.DBTX
	dialect db.Dialect
}

func NewSQLMilestoneRepo(dbtx db.DBTX, dialect db.Dialect) *SQLMilestoneRepo {
	return &SQLMilestoneRepo{db: dbtx, dialect: dialect}
}

func (r *SQLMilestoneRepo) Create(ctx context.Context, m *domain.Milestone) error {
	query := r.dialect.Rebind(`INSERT INTO ` + db.MilestoneTable +
		` (name, description, due, completed) VALUES (?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query,
		m.Name, m.Description, nullableEpoch(m.Due), nullableEpoch(m.Completed))
	if err != nil {
		return fmt.Errorf("%w: inserting milestone %q: %v", ErrUnableToSave, m.Name, err)
	}
	return nil
}

func (r *SQLMilestoneRepo) GetByName(ctx context.Context, name string) (*domain.Milestone, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.Rebind(
		`SELECT name, description, due, completed FROM `+db.MilestoneTable+` WHERE name = ?`), name)
	return scanMilestone(row)
}

func (r *SQLMilestoneRepo) List(ctx context.Context) ([]*domain.Milestone, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name, description, due, completed FROM `+db.MilestoneTable+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("%w: listing milestones: %v", ErrUnableToLoad, err)
	}
	defer rows.Close()
	var milestones []*domain.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		milestones = append(milestones, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: listing milestones: %v", ErrUnableToLoad, err)
	}
	return milestones, nil
}

// Rename moves the milestone to a new name and rewrites the reference on
// every ticket and sprint. Atomicity comes from the caller's transaction.
func (r *SQLMilestoneRepo) Rename(ctx context.Context, oldName, newName string) error {
	res, err := r.db.ExecContext(ctx,
		r.dialect.Rebind(`UPDATE `+db.MilestoneTable+` SET name = ? WHERE name = ?`),
		newName, oldName)
	if err != nil {
		return fmt.Errorf("%w: renaming milestone %q: %v", ErrUnableToSave, oldName, err)
	}
	if r.dialect.ReportsAffectedRows() {
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: milestone %q", ErrNotFound, oldName)
		}
	}
	if _, err := r.db.ExecContext(ctx,
		r.dialect.Rebind(`UPDATE `+db.TicketTable+` SET milestone = ? WHERE milestone = ?`),
		newName, oldName); err != nil {
		return fmt.Errorf("%w: moving tickets to milestone %q: %v", ErrUnableToSave, newName, err)
	}
	if _, err := r.db.ExecContext(ctx,
		r.dialect.Rebind(`UPDATE `+db.SprintTable+` SET milestone = ? WHERE milestone = ?`),
		newName, oldName); err != nil {
		return fmt.Errorf("%w: moving sprints to milestone %q: %v", ErrUnableToSave, newName, err)
	}
	return nil
}

func (r *SQLMilestoneRepo) Update(ctx context.Context, m *domain.Milestone) error {
	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(
		`UPDATE `+db.MilestoneTable+` SET description = ?, due = ?, completed = ? WHERE name = ?`),
		m.Description, nullableEpoch(m.Due), nullableEpoch(m.Completed), m.Name)
	if err != nil {
		return fmt.Errorf("%w: updating milestone %q: %v", ErrUnableToSave, m.Name, err)
	}
	if r.dialect.ReportsAffectedRows() {
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: milestone %q", ErrNotFound, m.Name)
		}
	}
	return nil
}

func (r *SQLMilestoneRepo) Delete(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx,
		r.dialect.Rebind(`DELETE FROM `+db.MilestoneTable+` WHERE name = ?`), name)
	if err != nil {
		return fmt.Errorf("%w: deleting milestone %q: %v", ErrUnableToDelete, name, err)
	}
	if r.dialect.ReportsAffectedRows() {
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: milestone %q", ErrNotFound, name)
		}
	}
	return nil
}

func scanMilestone(row rowScanner) (*domain.Milestone, error) {
	var m domain.Milestone
	var due, completed sql.NullInt64
	err := row.Scan(&m.Name, &m.Description, &due, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scanning milestone: %v", ErrUnableToLoad, err)
	}
	if due.Valid {
		m.Due = nullableTime(&due.Int64)
	}
	if completed.Valid {
		m.Completed = nullableTime(&completed.Int64)
	}
	return &m, nil
}
