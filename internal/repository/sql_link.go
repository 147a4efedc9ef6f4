package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/avanderberg/scrumline/internal/db"
	"github.com/avanderberg/scrumline/internal/domain"
)

// SQLLinkRepo implements LinkRepo over the directed-edge table. The table's
// composite primary key doubles as the duplicate guard.
type SQLLinkRepo struct {
	db      db.DBTX
	dialect db.Dialect
}

func NewSQLLinkRepo(dbtx db.DBTX, dialect db.Dialect) *SQLLinkRepo {
	return &SQLLinkRepo{db: dbtx, dialect: dialect}
}

func (r *SQLLinkRepo) Create(ctx context.Context, l domain.Link) error {
	if l.SrcID == l.DestID {
		return fmt.Errorf("%w: ticket %d cannot link to itself", ErrUnableToSave, l.SrcID)
	}
	// A pair may be linked in at most one direction.
	reversed, err := r.Exists(ctx, domain.Link{SrcID: l.DestID, DestID: l.SrcID})
	if err != nil {
		return err
	}
	if reversed {
		return fmt.Errorf("%w: %d and %d are already linked", ErrLinkExists, l.DestID, l.SrcID)
	}
	query := r.dialect.Rebind(`INSERT INTO ` + db.LinkTable + ` (src, dest) VALUES (?, ?)`)
	if _, err := r.db.ExecContext(ctx, query, l.SrcID, l.DestID); err != nil {
		// Losing the race to an identical insert is reported as a
		// duplicate, same as finding the row up front.
		if dup, dupErr := r.Exists(ctx, l); dupErr == nil && dup {
			return fmt.Errorf("%w: %d -> %d", ErrLinkExists, l.SrcID, l.DestID)
		}
		return fmt.Errorf("%w: inserting link %d -> %d: %v", ErrUnableToSave, l.SrcID, l.DestID, err)
	}
	return nil
}

func (r *SQLLinkRepo) Delete(ctx context.Context, l domain.Link) error {
	res, err := r.db.ExecContext(ctx,
		r.dialect.Rebind(`DELETE FROM `+db.LinkTable+` WHERE src = ? AND dest = ?`),
		l.SrcID, l.DestID)
	if err != nil {
		return fmt.Errorf("%w: deleting link %d -> %d: %v", ErrUnableToDelete, l.SrcID, l.DestID, err)
	}
	if r.dialect.ReportsAffectedRows() {
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: link %d -> %d", ErrNotFound, l.SrcID, l.DestID)
		}
	}
	return nil
}

func (r *SQLLinkRepo) Exists(ctx context.Context, l domain.Link) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		r.dialect.Rebind(`SELECT COUNT(*) FROM `+db.LinkTable+` WHERE src = ? AND dest = ?`),
		l.SrcID, l.DestID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("%w: checking link %d -> %d: %v", ErrUnableToLoad, l.SrcID, l.DestID, err)
	}
	return n > 0, nil
}

func (r *SQLLinkRepo) ListOutgoing(ctx context.Context, srcID int64) ([]domain.Link, error) {
	return r.list(ctx,
		`SELECT src, dest FROM `+db.LinkTable+` WHERE src = ? ORDER BY dest`, srcID)
}

func (r *SQLLinkRepo) ListIncoming(ctx context.Context, destID int64) ([]domain.Link, error) {
	return r.list(ctx,
		`SELECT src, dest FROM `+db.LinkTable+` WHERE dest = ? ORDER BY src`, destID)
}

// ListTouching fetches every edge with either endpoint in ids with a single
// query, so link caches for a whole result set can be filled without a
// per-ticket round trip.
func (r *SQLLinkRepo) ListTouching(ctx context.Context, ids []int64) ([]domain.Link, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	query := fmt.Sprintf(`SELECT src, dest FROM %s WHERE src IN (%s) OR dest IN (%s) ORDER BY src, dest`,
		db.LinkTable, marks, marks)
	args := make([]any, 0, 2*len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	for _, id := range ids {
		args = append(args, id)
	}
	return r.list(ctx, query, args...)
}

func (r *SQLLinkRepo) DeleteAllFor(ctx context.Context, ticketID int64) error {
	_, err := r.db.ExecContext(ctx,
		r.dialect.Rebind(`DELETE FROM `+db.LinkTable+` WHERE src = ? OR dest = ?`),
		ticketID, ticketID)
	if err != nil {
		return fmt.Errorf("%w: deleting links of ticket %d: %v", ErrUnableToDelete, ticketID, err)
	}
	return nil
}

func (r *SQLLinkRepo) list(ctx context.Context, query string, args ...any) ([]domain.Link, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: listing links: %v", ErrUnableToLoad, err)
	}
	defer rows.Close()
	var links []domain.Link
	for rows.Next() {
		var l domain.Link
		if err := rows.Scan(&l.SrcID, &l.DestID); err != nil {
			return nil, fmt.Errorf("%w: scanning link: %v", ErrUnableToLoad, err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: listing links: %v", ErrUnableToLoad, err)
	}
	return links, nil
}
