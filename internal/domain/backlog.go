package domain

import "strings"

// BacklogColumn is one displayed column descriptor. A descriptor of the form
// "name|alternative" names a fallback column shown when the primary is empty
// for a ticket type.
type BacklogColumn struct {
	Name        string
	Alternative string
}

// ParseBacklogColumns parses a list of column descriptors.
func ParseBacklogColumns(descriptors []string) []BacklogColumn {
	out := make([]BacklogColumn, 0, len(descriptors))
	for _, d := range descriptors {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		col := BacklogColumn{Name: d}
		if i := strings.IndexByte(d, '|'); i >= 0 {
			col.Name = strings.TrimSpace(d[:i])
			col.Alternative = strings.TrimSpace(d[i+1:])
		}
		out = append(out, col)
	}
	return out
}

// String renders the descriptor back to its serialized form.
func (c BacklogColumn) String() string {
	if c.Alternative != "" {
		return c.Name + "|" + c.Alternative
	}
	return c.Name
}

// BacklogConfiguration names a backlog and fixes its scope type, the ticket
// types it admits, its displayed columns, and whether a global backlog also
// shows planned items.
type BacklogConfiguration struct {
	Name        string
	Description string
	Type        ScopeType
	TicketTypes []string
	// SortingKeys orders unpositioned tickets; a '-' prefix sorts a key
	// descending.
	SortingKeys []string

	Columns             []BacklogColumn
	IncludePlannedItems bool
}

// AdmitsType reports whether the backlog shows tickets of the given type.
func (c *BacklogConfiguration) AdmitsType(ticketType string) bool {
	for _, t := range c.TicketTypes {
		if t == ticketType {
			return true
		}
	}
	return false
}

// BacklogItem persists the position of one ticket inside one backlog scope.
// It is identified by (backlog name, scope, ticket id); Pos only orders.
type BacklogItem struct {
	BacklogName string
	Scope       string
	TicketID    int64
	Pos         int
}

// BurndownDataChange is one append-only log entry: a signed delta of a
// tracked quantity in a scope at an instant. Entries are never updated or
// deleted in normal operation.
type BurndownDataChange struct {
	ID        int64
	Type      string
	Scope     string
	Timestamp int64
	Value     float64
}

// BurndownRemainingTime is the burndown_type for remaining-work deltas.
const BurndownRemainingTime = "remaining_time"
