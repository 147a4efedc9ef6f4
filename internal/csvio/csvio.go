// Package csvio moves tickets in and out of comma-delimited files. Import,
// update, and delete performers consume rows keyed by normalized headers;
// the exporter renders a loaded backlog.
package csvio

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/avanderberg/scrumline/internal/backlog"
	"github.com/avanderberg/scrumline/internal/config"
	"github.com/avanderberg/scrumline/internal/domain"
)

var ErrBadHeader = errors.New("invalid csv header")

// TicketWriter is the slice of the ticket service the performers need.
type TicketWriter interface {
	Get(ctx context.Context, id int64) (*domain.Ticket, error)
	Create(ctx context.Context, t *domain.Ticket) error
	Save(ctx context.Context, t *domain.Ticket) error
	Delete(ctx context.Context, id int64) error
}

// Row is one parsed record: normalized header name to raw cell value.
type Row map[string]string

// Result reports the outcome of one commit. Warnings collect per-row
// problems that skipped the row without aborting the run. BatchID tags the
// run so log lines from one file can be correlated.
type Result struct {
	BatchID   string
	TicketIDs []int64
	Warnings  []string
}

func newResult() *Result {
	return &Result{BatchID: uuid.NewString()}
}

// normalize removes spaces from a header cell and lowercases it, so
// "Remaining Time" addresses the remaining_time-free header form the
// original files use.
func normalize(header string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(header), " ", ""))
}

// ReadRows parses a CSV stream into a normalized header and header-keyed
// rows. Cells past the header width are dropped; short rows keep the cells
// they have.
func ReadRows(r io.Reader) ([]string, []Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("%w: empty file", ErrBadHeader)
	}
	header := make([]string, len(records[0]))
	for i, cell := range records[0] {
		header[i] = normalize(cell)
	}
	rows := make([]Row, 0, len(records)-1)
	for _, record := range records[1:] {
		row := Row{}
		for i, cell := range record {
			if i >= len(header) {
				break
			}
			row[header[i]] = cell
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}
	return header, rows, nil
}

func headerHas(header []string, name string) bool {
	for _, h := range header {
		if h == name {
			return true
		}
	}
	return false
}

// ImportPerformer creates one ticket per row. The type column picks the
// ticket type, defaulting to requirement; unknown columns are dropped by the
// ticket's own field projection.
type ImportPerformer struct {
	cfg     *config.Config
	tickets TicketWriter
	Author  string
}

func NewImportPerformer(cfg *config.Config, tickets TicketWriter, author string) *ImportPerformer {
	return &ImportPerformer{cfg: cfg, tickets: tickets, Author: author}
}

func (p *ImportPerformer) CheckHeader(header []string) error {
	if !headerHas(header, domain.FieldSummary) {
		return fmt.Errorf("%w: header must contain %q", ErrBadHeader, domain.FieldSummary)
	}
	return nil
}

func (p *ImportPerformer) Commit(ctx context.Context, header []string, rows []Row) (*Result, error) {
	if err := p.CheckHeader(header); err != nil {
		return nil, err
	}
	res := newResult()
	for _, row := range rows {
		ticketType := domain.TypeRequirement
		if raw, ok := row[domain.FieldType]; ok && raw != "" {
			ticketType = strings.ToLower(raw)
		}
		if p.cfg.SchemaFor(ticketType) == nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("unknown ticket type %q", ticketType))
			continue
		}
		t := domain.NewTicket(p.cfg, ticketType)
		t.Set(domain.FieldReporter, p.Author)
		for field, value := range row {
			if field == domain.FieldType {
				continue
			}
			t.Set(field, value)
		}
		if err := p.tickets.Create(ctx, t); err != nil {
			return res, err
		}
		res.TicketIDs = append(res.TicketIDs, t.ID)
	}
	return res, nil
}

// UpdatePerformer applies row values to existing tickets addressed by an
// "id" or "ticket" column. Unchanged rows are skipped.
type UpdatePerformer struct {
	tickets TicketWriter
}

func NewUpdatePerformer(tickets TicketWriter) *UpdatePerformer {
	return &UpdatePerformer{tickets: tickets}
}

func (p *UpdatePerformer) CheckHeader(header []string) error {
	if !headerHas(header, "id") && !headerHas(header, "ticket") {
		return fmt.Errorf("%w: header must contain \"id\" or \"ticket\"", ErrBadHeader)
	}
	if !headerHas(header, domain.FieldSummary) {
		return fmt.Errorf("%w: header must contain %q", ErrBadHeader, domain.FieldSummary)
	}
	return nil
}

func (p *UpdatePerformer) Commit(ctx context.Context, header []string, rows []Row) (*Result, error) {
	if err := p.CheckHeader(header); err != nil {
		return nil, err
	}
	res := newResult()
	for _, row := range rows {
		t, warning, err := ticketFromRow(ctx, p.tickets, row)
		if err != nil {
			return res, err
		}
		if warning != "" {
			res.Warnings = append(res.Warnings, warning)
			continue
		}
		for field, value := range row {
			if field == "id" || field == "ticket" {
				continue
			}
			t.Set(field, value)
		}
		if !t.Changed() {
			continue
		}
		if err := p.tickets.Save(ctx, t); err != nil {
			return res, err
		}
		res.TicketIDs = append(res.TicketIDs, t.ID)
	}
	return res, nil
}

// DeletePerformer removes tickets addressed by id. Unless forced, a row's
// summary must match the stored one; a mismatched row is skipped with a
// warning.
type DeletePerformer struct {
	tickets TicketWriter
	Force   bool
}

func NewDeletePerformer(tickets TicketWriter, force bool) *DeletePerformer {
	return &DeletePerformer{tickets: tickets, Force: force}
}

func (p *DeletePerformer) CheckHeader(header []string) error {
	if !headerHas(header, "id") && !headerHas(header, "ticket") {
		return fmt.Errorf("%w: header must contain \"id\" or \"ticket\"", ErrBadHeader)
	}
	if !p.Force && !headerHas(header, domain.FieldSummary) {
		return fmt.Errorf("%w: header must contain %q", ErrBadHeader, domain.FieldSummary)
	}
	return nil
}

func (p *DeletePerformer) Commit(ctx context.Context, header []string, rows []Row) (*Result, error) {
	if err := p.CheckHeader(header); err != nil {
		return nil, err
	}
	res := newResult()
	for _, row := range rows {
		t, warning, err := ticketFromRow(ctx, p.tickets, row)
		if err != nil {
			return res, err
		}
		if warning != "" {
			res.Warnings = append(res.Warnings, warning)
			continue
		}
		if !p.Force && row[domain.FieldSummary] != t.Get(domain.FieldSummary) {
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"ticket %d has a different summary: %q (csv) vs %q (stored)",
				t.ID, row[domain.FieldSummary], t.Get(domain.FieldSummary)))
			continue
		}
		if err := p.tickets.Delete(ctx, t.ID); err != nil {
			return res, err
		}
		res.TicketIDs = append(res.TicketIDs, t.ID)
	}
	return res, nil
}

// ticketFromRow resolves the id/ticket column. A non-numeric or unknown id
// yields a warning, not an error.
func ticketFromRow(ctx context.Context, tickets TicketWriter, row Row) (*domain.Ticket, string, error) {
	raw, ok := row["id"]
	if !ok {
		raw = row["ticket"]
	}
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return nil, fmt.Sprintf("non-numeric ticket id %q", raw), nil
	}
	t, err := tickets.Get(ctx, id)
	if err != nil {
		return nil, fmt.Sprintf("ticket %d does not exist", id), nil
	}
	return t, "", nil
}

// ExportBacklog writes a loaded backlog as CSV: an id column followed by the
// union of the field lists of every type present, in schema order.
func ExportBacklog(w io.Writer, cfg *config.Config, b *backlog.Backlog) error {
	fields := exportFields(cfg, b)
	writer := csv.NewWriter(w)
	if err := writer.Write(append([]string{"id"}, fields...)); err != nil {
		return err
	}
	for _, item := range b.Items() {
		record := make([]string, 0, len(fields)+1)
		record = append(record, strconv.FormatInt(item.Ticket.ID, 10))
		for _, f := range fields {
			record = append(record, item.Ticket.Get(f))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func exportFields(cfg *config.Config, b *backlog.Backlog) []string {
	seenType := map[string]bool{}
	var fields []string
	seenField := map[string]bool{"id": true}
	for _, item := range b.Items() {
		if seenType[item.Ticket.Type] {
			continue
		}
		seenType[item.Ticket.Type] = true
		schema := cfg.SchemaFor(item.Ticket.Type)
		if schema == nil {
			continue
		}
		for _, f := range schema.Fields {
			if seenField[f] {
				continue
			}
			seenField[f] = true
			fields = append(fields, f)
		}
	}
	return fields
}
