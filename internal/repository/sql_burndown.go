package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/avanderberg/scrumline/internal/db"
	"github.com/avanderberg/scrumline/internal/domain"
)

// SQLBurndownRepo implements BurndownRepo. The table is an append-only delta
// log; a burndown chart is the running sum of a (type, scope) series.
type SQLBurndownRepo struct {
	db      db.DBTX
	dialect db.Dialect
}

func NewSQLBurndownRepo(dbtx db.DBTX, dialect db.Dialect) *SQLBurndownRepo {
	return &SQLBurndownRepo{db: dbtx, dialect: dialect}
}

func (r *SQLBurndownRepo) Append(ctx context.Context, c *domain.BurndownDataChange) error {
	query := r.dialect.Rebind(`INSERT INTO ` + db.BurndownTable +
		` (burndown_type, scope, timestamp, value) VALUES (?, ?, ?, ?)`)
	res, err := r.db.ExecContext(ctx, query, c.Type, c.Scope, c.Timestamp, c.Value)
	if err != nil {
		return fmt.Errorf("%w: appending burndown change: %v", ErrUnableToSave, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		c.ID = id
	}
	return nil
}

func (r *SQLBurndownRepo) Series(ctx context.Context, changeType, scope string) ([]domain.BurndownDataChange, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(
		`SELECT id, burndown_type, scope, timestamp, value FROM `+db.BurndownTable+
			` WHERE burndown_type = ? AND scope = ? ORDER BY timestamp, id`), changeType, scope)
	if err != nil {
		return nil, fmt.Errorf("%w: loading burndown series: %v", ErrUnableToLoad, err)
	}
	defer rows.Close()
	var series []domain.BurndownDataChange
	for rows.Next() {
		var c domain.BurndownDataChange
		if err := rows.Scan(&c.ID, &c.Type, &c.Scope, &c.Timestamp, &c.Value); err != nil {
			return nil, fmt.Errorf("%w: scanning burndown change: %v", ErrUnableToLoad, err)
		}
		series = append(series, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: loading burndown series: %v", ErrUnableToLoad, err)
	}
	return series, nil
}

// SQLContingentRepo implements ContingentRepo.
type SQLContingentRepo struct {
	db      db.DBTX
	dialect db.Dialect
}

func NewSQLContingentRepo(dbtx db.DBTX, dialect db.Dialect) *SQLContingentRepo {
	return &SQLContingentRepo{db: dbtx, dialect: dialect}
}

func (r *SQLContingentRepo) Save(ctx context.Context, c *domain.Contingent) error {
	if c.Actual > c.Amount {
		return fmt.Errorf("%w: contingent %q: actual %.1f exceeds amount %.1f",
			ErrUnableToSave, c.Name, c.Actual, c.Amount)
	}
	query := r.dialect.Rebind(r.dialect.Upsert(db.ContingentTable,
		[]string{"name", "sprint"}, []string{"amount", "actual"}))
	if _, err := r.db.ExecContext(ctx, query, c.Name, c.Sprint, c.Amount, c.Actual); err != nil {
		return fmt.Errorf("%w: saving contingent %q: %v", ErrUnableToSave, c.Name, err)
	}
	return nil
}

func (r *SQLContingentRepo) Get(ctx context.Context, name, sprint string) (*domain.Contingent, error) {
	var c domain.Contingent
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(
		`SELECT name, sprint, amount, actual FROM `+db.ContingentTable+
			` WHERE name = ? AND sprint = ?`), name, sprint).
		Scan(&c.Name, &c.Sprint, &c.Amount, &c.Actual)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: loading contingent %q: %v", ErrUnableToLoad, name, err)
	}
	return &c, nil
}

func (r *SQLContingentRepo) ListBySprint(ctx context.Context, sprint string) ([]*domain.Contingent, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(
		`SELECT name, sprint, amount, actual FROM `+db.ContingentTable+
			` WHERE sprint = ? ORDER BY name`), sprint)
	if err != nil {
		return nil, fmt.Errorf("%w: listing contingents of sprint %q: %v", ErrUnableToLoad, sprint, err)
	}
	defer rows.Close()
	var contingents []*domain.Contingent
	for rows.Next() {
		var c domain.Contingent
		if err := rows.Scan(&c.Name, &c.Sprint, &c.Amount, &c.Actual); err != nil {
			return nil, fmt.Errorf("%w: scanning contingent: %v", ErrUnableToLoad, err)
		}
		contingents = append(contingents, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: listing contingents of sprint %q: %v", ErrUnableToLoad, sprint, err)
	}
	return contingents, nil
}

func (r *SQLContingentRepo) DeleteBySprint(ctx context.Context, sprint string) error {
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(
		`DELETE FROM `+db.ContingentTable+` WHERE sprint = ?`), sprint)
	if err != nil {
		return fmt.Errorf("%w: deleting contingents of sprint %q: %v", ErrUnableToDelete, sprint, err)
	}
	return nil
}

func (r *SQLContingentRepo) RenameSprint(ctx context.Context, oldSprint, newSprint string) error {
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(
		`UPDATE `+db.ContingentTable+` SET sprint = ? WHERE sprint = ?`), newSprint, oldSprint)
	if err != nil {
		return fmt.Errorf("%w: renaming contingent sprint %q: %v", ErrUnableToSave, oldSprint, err)
	}
	return nil
}

func (r *SQLContingentRepo) Delete(ctx context.Context, name, sprint string) error {
	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(
		`DELETE FROM `+db.ContingentTable+` WHERE name = ? AND sprint = ?`), name, sprint)
	if err != nil {
		return fmt.Errorf("%w: deleting contingent %q: %v", ErrUnableToDelete, name, err)
	}
	if r.dialect.ReportsAffectedRows() {
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: contingent %q", ErrNotFound, name)
		}
	}
	return nil
}
