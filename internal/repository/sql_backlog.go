package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/avanderberg/scrumline/internal/db"
	"github.com/avanderberg/scrumline/internal/domain"
)

// SQLBacklogRepo implements BacklogRepo. Backlog definitions persist in
// agilo_backlog; ticket positions persist in agilo_backlog_ticket keyed by
// (name, scope, ticket_id). The list-typed columns round-trip through the
// serialized-column codec. Column layout and the planned-items flag are
// configuration, not data, and are merged in by the caller.
type SQLBacklogRepo struct {
	db      db.DBTX
	dialect db.Dialect
}

func NewSQLBacklogRepo(dbtx db.DBTX, dialect db.Dialect) *SQLBacklogRepo {
	return &SQLBacklogRepo{db: dbtx, dialect: dialect}
}

func (r *SQLBacklogRepo) Save(ctx context.Context, b *domain.BacklogConfiguration) error {
	types, err := encodeSerialized(b.TicketTypes)
	if err != nil {
		return fmt.Errorf("%w: backlog %q: %v", ErrUnableToSave, b.Name, err)
	}
	keys, err := encodeSerialized(b.SortingKeys)
	if err != nil {
		return fmt.Errorf("%w: backlog %q: %v", ErrUnableToSave, b.Name, err)
	}
	query := r.dialect.Rebind(r.dialect.Upsert(db.BacklogTable,
		[]string{"name"}, []string{"description", "b_type", "ticket_types", "sorting_keys"}))
	if _, err := r.db.ExecContext(ctx, query,
		b.Name, b.Description, int(b.Type), types, keys); err != nil {
		return fmt.Errorf("%w: saving backlog %q: %v", ErrUnableToSave, b.Name, err)
	}
	return nil
}

func (r *SQLBacklogRepo) GetByName(ctx context.Context, name string) (*domain.BacklogConfiguration, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.Rebind(
		`SELECT name, description, b_type, ticket_types, sorting_keys FROM `+
			db.BacklogTable+` WHERE name = ?`), name)
	return scanBacklog(row)
}

func (r *SQLBacklogRepo) List(ctx context.Context) ([]*domain.BacklogConfiguration, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name, description, b_type, ticket_types, sorting_keys FROM `+
			db.BacklogTable+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("%w: listing backlogs: %v", ErrUnableToLoad, err)
	}
	defer rows.Close()
	var backlogs []*domain.BacklogConfiguration
	for rows.Next() {
		b, err := scanBacklog(rows)
		if err != nil {
			return nil, err
		}
		backlogs = append(backlogs, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: listing backlogs: %v", ErrUnableToLoad, err)
	}
	return backlogs, nil
}

func (r *SQLBacklogRepo) Delete(ctx context.Context, name string) error {
	if _, err := r.db.ExecContext(ctx,
		r.dialect.Rebind(`DELETE FROM `+db.BacklogItemTable+` WHERE name = ?`), name); err != nil {
		return fmt.Errorf("%w: deleting items of backlog %q: %v", ErrUnableToDelete, name, err)
	}
	res, err := r.db.ExecContext(ctx,
		r.dialect.Rebind(`DELETE FROM `+db.BacklogTable+` WHERE name = ?`), name)
	if err != nil {
		return fmt.Errorf("%w: deleting backlog %q: %v", ErrUnableToDelete, name, err)
	}
	if r.dialect.ReportsAffectedRows() {
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: backlog %q", ErrNotFound, name)
		}
	}
	return nil
}

func (r *SQLBacklogRepo) SetItemPosition(ctx context.Context, item domain.BacklogItem) error {
	query := r.dialect.Rebind(r.dialect.Upsert(db.BacklogItemTable,
		[]string{"name", "scope", "ticket_id"}, []string{"pos"}))
	if _, err := r.db.ExecContext(ctx, query,
		item.BacklogName, item.Scope, item.TicketID, item.Pos); err != nil {
		return fmt.Errorf("%w: positioning ticket %d in backlog %q: %v",
			ErrUnableToSave, item.TicketID, item.BacklogName, err)
	}
	return nil
}

func (r *SQLBacklogRepo) ListItems(ctx context.Context, backlogName, scope string) ([]domain.BacklogItem, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(
		`SELECT name, scope, ticket_id, pos FROM `+db.BacklogItemTable+
			` WHERE name = ? AND scope = ? ORDER BY pos, ticket_id`), backlogName, scope)
	if err != nil {
		return nil, fmt.Errorf("%w: listing items of backlog %q: %v", ErrUnableToLoad, backlogName, err)
	}
	defer rows.Close()
	var items []domain.BacklogItem
	for rows.Next() {
		var it domain.BacklogItem
		if err := rows.Scan(&it.BacklogName, &it.Scope, &it.TicketID, &it.Pos); err != nil {
			return nil, fmt.Errorf("%w: scanning backlog item: %v", ErrUnableToLoad, err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: listing items of backlog %q: %v", ErrUnableToLoad, backlogName, err)
	}
	return items, nil
}

func (r *SQLBacklogRepo) RemoveItem(ctx context.Context, backlogName, scope string, ticketID int64) error {
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(
		`DELETE FROM `+db.BacklogItemTable+` WHERE name = ? AND scope = ? AND ticket_id = ?`),
		backlogName, scope, ticketID)
	if err != nil {
		return fmt.Errorf("%w: removing ticket %d from backlog %q: %v",
			ErrUnableToDelete, ticketID, backlogName, err)
	}
	return nil
}

// RemoveItemsForScope drops every stored position under the named scope, but
// only for backlogs of the matching scope type. A sprint and a milestone can
// share a name without clobbering each other's positions.
func (r *SQLBacklogRepo) RemoveItemsForScope(ctx context.Context, scopeType domain.ScopeType, scope string) error {
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(fmt.Sprintf(
		`DELETE FROM %s WHERE scope = ? AND name IN (SELECT name FROM %s WHERE b_type = ?)`,
		db.BacklogItemTable, db.BacklogTable)), scope, int(scopeType))
	if err != nil {
		return fmt.Errorf("%w: clearing backlog positions for scope %q: %v", ErrUnableToDelete, scope, err)
	}
	return nil
}

// RemoveTicketFromScope drops one ticket's stored position under the named
// scope, restricted to backlogs of the matching scope type.
func (r *SQLBacklogRepo) RemoveTicketFromScope(ctx context.Context, scopeType domain.ScopeType, scope string, ticketID int64) error {
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(fmt.Sprintf(
		`DELETE FROM %s WHERE scope = ? AND ticket_id = ? AND name IN (SELECT name FROM %s WHERE b_type = ?)`,
		db.BacklogItemTable, db.BacklogTable)), scope, ticketID, int(scopeType))
	if err != nil {
		return fmt.Errorf("%w: clearing backlog position of ticket %d in scope %q: %v",
			ErrUnableToDelete, ticketID, scope, err)
	}
	return nil
}

func (r *SQLBacklogRepo) RemoveItemsForTicket(ctx context.Context, ticketID int64) error {
	_, err := r.db.ExecContext(ctx,
		r.dialect.Rebind(`DELETE FROM `+db.BacklogItemTable+` WHERE ticket_id = ?`), ticketID)
	if err != nil {
		return fmt.Errorf("%w: clearing backlog positions of ticket %d: %v", ErrUnableToDelete, ticketID, err)
	}
	return nil
}

// RenameScope follows a sprint or milestone rename so stored positions
// survive it.
func (r *SQLBacklogRepo) RenameScope(ctx context.Context, scopeType domain.ScopeType, oldScope, newScope string) error {
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(fmt.Sprintf(
		`UPDATE %s SET scope = ? WHERE scope = ? AND name IN (SELECT name FROM %s WHERE b_type = ?)`,
		db.BacklogItemTable, db.BacklogTable)), newScope, oldScope, int(scopeType))
	if err != nil {
		return fmt.Errorf("%w: renaming backlog scope %q to %q: %v", ErrUnableToSave, oldScope, newScope, err)
	}
	return nil
}

func scanBacklog(row rowScanner) (*domain.BacklogConfiguration, error) {
	var b domain.BacklogConfiguration
	var bType int
	var types, keys string
	err := row.Scan(&b.Name, &b.Description, &bType, &types, &keys)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scanning backlog: %v", ErrUnableToLoad, err)
	}
	b.Type = domain.ScopeType(bType)
	if err := decodeSerialized(types, &b.TicketTypes); err != nil {
		return nil, fmt.Errorf("%w: backlog %q: %v", ErrUnableToLoad, b.Name, err)
	}
	if err := decodeSerialized(keys, &b.SortingKeys); err != nil {
		return nil, fmt.Errorf("%w: backlog %q: %v", ErrUnableToLoad, b.Name, err)
	}
	return &b, nil
}
