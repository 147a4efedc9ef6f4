package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/avanderberg/scrumline/internal/db"
	"github.com/avanderberg/scrumline/internal/domain"
)

// ticketColumns is the canonical SELECT column list for the ticket table.
const ticketColumns = `t.id, t.type, t.time, t.changetime, t.summary, t.description,
		t.status, t.resolution, t.owner, t.reporter, t.cc, t.milestone, t.keywords`

// identPattern restricts field names interpolated into query text. Field
// names come from configuration, not user input, but the check keeps a
// malformed config file from producing malformed SQL.
var identPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// SQLTicketRepo implements TicketRepo over the ticket and ticket_custom
// tables. Custom fields live as one row per (ticket, name) in ticket_custom;
// criteria and ordering on them join that table once per referenced field.
type SQLTicketRepo struct {
	db      db.DBTX
	dialect db.Dialect
	schemas domain.SchemaSet
	cache   *identityCache[int64, *domain.Ticket]
}

func NewSQLTicketRepo(dbtx db.DBTX, dialect db.Dialect, schemas domain.SchemaSet) *SQLTicketRepo {
	return &SQLTicketRepo{
		db:      dbtx,
		dialect: dialect,
		schemas: schemas,
		cache:   newIdentityCache[int64, *domain.Ticket](),
	}
}

// ResetCache discards the identity cache. Called at request boundaries.
func (r *SQLTicketRepo) ResetCache() { r.cache.Reset() }

// Cached returns the cached instance for id, if any, without touching the
// database.
func (r *SQLTicketRepo) Cached(id int64) (*domain.Ticket, bool) {
	return r.cache.Get(id)
}

func (r *SQLTicketRepo) Create(ctx context.Context, t *domain.Ticket) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.ChangedAt.IsZero() {
		t.ChangedAt = t.CreatedAt
	}
	now := timeToEpoch(t.CreatedAt)
	query := r.dialect.Rebind(fmt.Sprintf(`INSERT INTO %s
		(type, time, changetime, summary, description, status, resolution,
		 owner, reporter, cc, milestone, keywords)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, db.TicketTable))
	res, err := r.db.ExecContext(ctx, query,
		t.Type,
		now,
		timeToEpoch(t.ChangedAt),
		t.Value(domain.FieldSummary),
		t.Value(domain.FieldDescription),
		t.Value(domain.FieldStatus),
		t.Value(domain.FieldResolution),
		t.Value(domain.FieldOwner),
		t.Value(domain.FieldReporter),
		t.Value(domain.FieldCC),
		t.Value(domain.FieldMilestone),
		t.Value(domain.FieldKeywords),
	)
	if err != nil {
		return fmt.Errorf("%w: inserting ticket: %v", ErrUnableToSave, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("%w: reading new ticket id: %v", ErrUnableToSave, err)
	}
	t.ID = id

	for _, field := range r.customFields(t) {
		if err := r.writeCustom(ctx, id, field, t.Value(field)); err != nil {
			return err
		}
	}

	t.MarkExists()
	t.MarkSaved()
	r.cache.Put(id, t)
	return nil
}

func (r *SQLTicketRepo) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	if cached, ok := r.cache.Get(id); ok {
		return cached, nil
	}
	query := r.dialect.Rebind(`SELECT ` + ticketColumns + ` FROM ` + db.TicketTable + ` t WHERE t.id = ?`)
	row := r.db.QueryRowContext(ctx, query, id)
	t, err := r.scanTicket(row)
	if err != nil {
		return nil, err
	}
	if err := r.loadCustom(ctx, t); err != nil {
		return nil, err
	}
	r.cache.Put(t.ID, t)
	return t, nil
}

// GetByIDs loads a batch of tickets with one query per table, serving cache
// hits from the identity cache. Unknown ids are skipped, not an error.
func (r *SQLTicketRepo) GetByIDs(ctx context.Context, ids []int64) ([]*domain.Ticket, error) {
	var missing []int64
	byID := make(map[int64]*domain.Ticket, len(ids))
	for _, id := range ids {
		if cached, ok := r.cache.Get(id); ok {
			byID[id] = cached
		} else {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		query := fmt.Sprintf(`SELECT %s FROM %s t WHERE t.id IN (%s)`,
			ticketColumns, db.TicketTable,
			strings.TrimSuffix(strings.Repeat("?, ", len(missing)), ", "))
		args := make([]any, len(missing))
		for i, id := range missing {
			args[i] = id
		}
		rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), args...)
		if err != nil {
			return nil, fmt.Errorf("%w: loading tickets: %v", ErrUnableToLoad, err)
		}
		defer rows.Close()
		var fresh []*domain.Ticket
		for rows.Next() {
			t, err := r.scanTicket(rows)
			if err != nil {
				return nil, err
			}
			fresh = append(fresh, t)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("%w: loading tickets: %v", ErrUnableToLoad, err)
		}
		if err := r.loadCustomBulk(ctx, fresh); err != nil {
			return nil, err
		}
		for _, t := range fresh {
			r.cache.Put(t.ID, t)
			byID[t.ID] = t
		}
	}
	out := make([]*domain.Ticket, 0, len(byID))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			out = append(out, t)
			delete(byID, id)
		}
	}
	return out, nil
}

// Select runs a criteria query. Criteria keys name ticket fields; standard
// fields resolve to ticket table columns and custom fields each join
// ticket_custom. Order entries may carry a '-' prefix for descending.
func (r *SQLTicketRepo) Select(ctx context.Context, criteria Criteria, order []string, limit int) ([]*domain.Ticket, error) {
	var (
		joins  []string
		wheres []string
		args   []any
		joined = map[string]string{}
	)

	joinFor := func(field string) (string, error) {
		if alias, ok := joined[field]; ok {
			return alias, nil
		}
		if !identPattern.MatchString(field) {
			return "", fmt.Errorf("%w: invalid field name %q", ErrUnableToLoad, field)
		}
		alias := "c_" + field
		joins = append(joins, fmt.Sprintf(
			`LEFT JOIN %s %s ON %s.ticket = t.id AND %s.name = '%s'`,
			db.TicketCustomTable, alias, alias, alias, field))
		joined[field] = alias
		return alias, nil
	}

	columnFor := func(field string) (string, error) {
		if field == "id" || field == "type" || field == "time" || field == "changetime" {
			return "t." + field, nil
		}
		if domain.IsStandardField(field) {
			return "t." + field, nil
		}
		alias, err := joinFor(field)
		if err != nil {
			return "", err
		}
		return alias + ".value", nil
	}

	for _, field := range sortedKeys(criteria) {
		col, err := columnFor(field)
		if err != nil {
			return nil, err
		}
		cond, err := buildCondition(col, criteria[field])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnableToLoad, err)
		}
		wheres = append(wheres, cond.expr)
		args = append(args, cond.args...)
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + ticketColumns + ` FROM ` + db.TicketTable + ` t`)
	for _, j := range joins {
		b.WriteString(" " + j)
	}
	if len(wheres) > 0 {
		b.WriteString(" WHERE " + strings.Join(wheres, " AND "))
	}
	if orderCols := parseOrder(order); len(orderCols) > 0 {
		var parts []string
		for _, oc := range orderCols {
			col, err := columnFor(oc.name)
			if err != nil {
				return nil, err
			}
			dir := "ASC"
			if oc.desc {
				dir = "DESC"
			}
			parts = append(parts, col+" "+dir)
		}
		b.WriteString(" ORDER BY " + strings.Join(parts, ", "))
	}
	if limit > 0 {
		b.WriteString(fmt.Sprintf(" LIMIT %d", limit))
	}

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(b.String()), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: selecting tickets: %v", ErrUnableToLoad, err)
	}
	defer rows.Close()

	var tickets []*domain.Ticket
	var fresh []*domain.Ticket
	for rows.Next() {
		t, err := r.scanTicket(rows)
		if err != nil {
			return nil, err
		}
		if cached, ok := r.cache.Get(t.ID); ok {
			tickets = append(tickets, cached)
			continue
		}
		tickets = append(tickets, t)
		fresh = append(fresh, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: selecting tickets: %v", ErrUnableToLoad, err)
	}
	if err := r.loadCustomBulk(ctx, fresh); err != nil {
		return nil, err
	}
	for _, t := range fresh {
		r.cache.Put(t.ID, t)
	}
	return tickets, nil
}

// Update writes the changed fields of t. The standard row update is guarded
// by the previous change time; on engines that report affected rows, hitting
// anything but exactly one row fails the save.
func (r *SQLTicketRepo) Update(ctx context.Context, t *domain.Ticket) error {
	if !t.Changed() {
		return nil
	}

	var (
		sets       []string
		args       []any
		customDirt []string
	)
	for field := range t.OldValues() {
		switch {
		case field == domain.FieldType:
			sets = append(sets, "type = ?")
			args = append(args, t.Type)
		case domain.IsStandardField(field):
			sets = append(sets, field+" = ?")
			args = append(args, t.Value(field))
		default:
			customDirt = append(customDirt, field)
		}
	}

	prevChange := timeToEpoch(t.ChangedAt)
	newChange := time.Now().UTC()
	if timeToEpoch(newChange) == prevChange {
		// Sub-second saves still need a distinguishable change time.
		newChange = newChange.Add(time.Second)
	}
	sets = append(sets, "changetime = ?")
	args = append(args, timeToEpoch(newChange))

	query := r.dialect.Rebind(fmt.Sprintf(`UPDATE %s SET %s WHERE id = ? AND changetime = ?`,
		db.TicketTable, strings.Join(sets, ", ")))
	args = append(args, t.ID, prevChange)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: updating ticket %d: %v", ErrUnableToSave, t.ID, err)
	}
	if r.dialect.ReportsAffectedRows() {
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("%w: updating ticket %d: %v", ErrUnableToSave, t.ID, err)
		}
		if n != 1 {
			return fmt.Errorf("%w: ticket %d changed concurrently or is gone", ErrUnableToSave, t.ID)
		}
	}

	for _, field := range customDirt {
		if err := r.writeCustom(ctx, t.ID, field, t.Value(field)); err != nil {
			return err
		}
	}
	// A type change can retire custom fields; drop rows the new type no
	// longer knows.
	if _, typeChanged := t.OldValue(domain.FieldType); typeChanged {
		if err := r.pruneCustom(ctx, t); err != nil {
			return err
		}
	}

	t.ChangedAt = newChange
	t.MarkSaved()
	return nil
}

func (r *SQLTicketRepo) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		r.dialect.Rebind(`DELETE FROM `+db.TicketCustomTable+` WHERE ticket = ?`), id); err != nil {
		return fmt.Errorf("%w: deleting custom fields of ticket %d: %v", ErrUnableToDelete, id, err)
	}
	res, err := r.db.ExecContext(ctx,
		r.dialect.Rebind(`DELETE FROM `+db.TicketTable+` WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("%w: deleting ticket %d: %v", ErrUnableToDelete, id, err)
	}
	if r.dialect.ReportsAffectedRows() {
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: ticket %d", ErrNotFound, id)
		}
	}
	r.cache.Remove(id)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLTicketRepo) scanTicket(row rowScanner) (*domain.Ticket, error) {
	var (
		id, created, changed            int64
		ticketType                      string
		summary, description, status    string
		resolution, owner, reporter, cc string
		milestone, keywords             string
	)
	err := row.Scan(&id, &ticketType, &created, &changed, &summary, &description,
		&status, &resolution, &owner, &reporter, &cc, &milestone, &keywords)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scanning ticket: %v", ErrUnableToLoad, err)
	}

	t := domain.NewTicket(r.schemas, ticketType)
	t.ID = id
	t.CreatedAt = epochToTime(created)
	t.ChangedAt = epochToTime(changed)
	t.Hydrate(map[string]string{
		domain.FieldSummary:     summary,
		domain.FieldDescription: description,
		domain.FieldStatus:      status,
		domain.FieldResolution:  resolution,
		domain.FieldOwner:       owner,
		domain.FieldReporter:    reporter,
		domain.FieldCC:          cc,
		domain.FieldMilestone:   milestone,
		domain.FieldKeywords:    keywords,
	})
	t.MarkExists()
	return t, nil
}

func (r *SQLTicketRepo) loadCustom(ctx context.Context, t *domain.Ticket) error {
	rows, err := r.db.QueryContext(ctx,
		r.dialect.Rebind(`SELECT name, value FROM `+db.TicketCustomTable+` WHERE ticket = ?`), t.ID)
	if err != nil {
		return fmt.Errorf("%w: loading custom fields of ticket %d: %v", ErrUnableToLoad, t.ID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return fmt.Errorf("%w: scanning custom field: %v", ErrUnableToLoad, err)
		}
		t.ForceValue(name, value)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: loading custom fields of ticket %d: %v", ErrUnableToLoad, t.ID, err)
	}
	return nil
}

func (r *SQLTicketRepo) loadCustomBulk(ctx context.Context, tickets []*domain.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	byID := make(map[int64]*domain.Ticket, len(tickets))
	args := make([]any, 0, len(tickets))
	for _, t := range tickets {
		byID[t.ID] = t
		args = append(args, t.ID)
	}
	query := fmt.Sprintf(`SELECT ticket, name, value FROM %s WHERE ticket IN (%s)`,
		db.TicketCustomTable,
		strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", "))
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("%w: loading custom fields: %v", ErrUnableToLoad, err)
	}
	defer rows.Close()
	for rows.Next() {
		var ticketID int64
		var name, value string
		if err := rows.Scan(&ticketID, &name, &value); err != nil {
			return fmt.Errorf("%w: scanning custom field: %v", ErrUnableToLoad, err)
		}
		if t, ok := byID[ticketID]; ok {
			t.ForceValue(name, value)
		}
	}
	return rows.Err()
}

func (r *SQLTicketRepo) writeCustom(ctx context.Context, id int64, field, value string) error {
	query := r.dialect.Rebind(r.dialect.Upsert(db.TicketCustomTable,
		[]string{"ticket", "name"}, []string{"value"}))
	if _, err := r.db.ExecContext(ctx, query, id, field, value); err != nil {
		return fmt.Errorf("%w: writing custom field %s of ticket %d: %v", ErrUnableToSave, field, id, err)
	}
	return nil
}

// RewriteCustomValue rewrites every occurrence of a custom field value, as
// when a sprint rename must follow through to the tickets referencing it.
func (r *SQLTicketRepo) RewriteCustomValue(ctx context.Context, field, oldValue, newValue string) error {
	query := r.dialect.Rebind(
		`UPDATE ` + db.TicketCustomTable + ` SET value = ? WHERE name = ? AND value = ?`)
	if _, err := r.db.ExecContext(ctx, query, newValue, field, oldValue); err != nil {
		return fmt.Errorf("%w: rewriting %s %q to %q: %v", ErrUnableToSave, field, oldValue, newValue, err)
	}
	r.cache.Reset()
	return nil
}

// pruneCustom deletes every ticket_custom row for t that is not a custom
// field of t's current type.
func (r *SQLTicketRepo) pruneCustom(ctx context.Context, t *domain.Ticket) error {
	fields := r.customFields(t)
	if len(fields) == 0 {
		query := r.dialect.Rebind(`DELETE FROM ` + db.TicketCustomTable + ` WHERE ticket = ?`)
		if _, err := r.db.ExecContext(ctx, query, t.ID); err != nil {
			return fmt.Errorf("%w: pruning custom fields of ticket %d: %v", ErrUnableToSave, t.ID, err)
		}
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE ticket = ? AND name NOT IN (%s)`,
		db.TicketCustomTable,
		strings.TrimSuffix(strings.Repeat("?, ", len(fields)), ", "))
	args := make([]any, 0, len(fields)+1)
	args = append(args, t.ID)
	for _, f := range fields {
		args = append(args, f)
	}
	if _, err := r.db.ExecContext(ctx, r.dialect.Rebind(query), args...); err != nil {
		return fmt.Errorf("%w: pruning custom fields of ticket %d: %v", ErrUnableToSave, t.ID, err)
	}
	return nil
}

// customFields lists the non-standard, non-calculated fields of t's type.
func (r *SQLTicketRepo) customFields(t *domain.Ticket) []string {
	schema := t.Schema()
	if schema == nil {
		return nil
	}
	var fields []string
	for _, f := range schema.Fields {
		if !domain.IsStandardField(f) && f != domain.FieldType {
			fields = append(fields, f)
		}
	}
	return fields
}

func sortedKeys(c Criteria) []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	// Deterministic query text keeps logs and tests stable.
	sort.Strings(keys)
	return keys
}
