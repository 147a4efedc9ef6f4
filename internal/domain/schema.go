package domain

// TypeSchema describes the attribute set of one ticket type: which fields
// are writable, their defaults, and the calculated fields derived from the
// link graph.
type TypeSchema struct {
	Name       string
	Fields     []string
	Defaults   map[string]string
	Calculated []CalculatedField
	// Skip lists fields held in storage but left out of serialized views.
	Skip []string
}

// HasField reports whether name is writable for this type.
func (s *TypeSchema) HasField(name string) bool {
	for _, f := range s.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// IsSkipped reports whether name is excluded from serialized views.
func (s *TypeSchema) IsSkipped(name string) bool {
	for _, f := range s.Skip {
		if f == name {
			return true
		}
	}
	return false
}

// Default returns the configured default for a field, or "".
func (s *TypeSchema) Default(name string) string {
	if s.Defaults == nil {
		return ""
	}
	return s.Defaults[name]
}

// CalculatedField is a read-only attribute computed from the ticket and its
// loaded link subgraph. Compute must not mutate the ticket.
type CalculatedField struct {
	Name    string
	Compute func(t *Ticket) string
}

// TypePair is an ordered pair of ticket type names.
type TypePair struct {
	Src  string
	Dest string
}

// LinkRules holds the configured link allow-set and cascade-delete set.
// The allow-set is consulted when a link is created; existing edges are not
// re-validated when the configuration changes.
type LinkRules struct {
	Allowed map[TypePair]bool
	Cascade map[TypePair]bool
}

// IsAllowed reports whether a link from srcType to destType may be created.
func (r *LinkRules) IsAllowed(srcType, destType string) bool {
	if r == nil {
		return false
	}
	return r.Allowed[TypePair{Src: srcType, Dest: destType}]
}

// CascadesDelete reports whether deleting a ticket of srcType deletes linked
// tickets of destType.
func (r *LinkRules) CascadesDelete(srcType, destType string) bool {
	if r == nil {
		return false
	}
	return r.Cascade[TypePair{Src: srcType, Dest: destType}]
}

// SchemaSet resolves ticket types to their schemas. It is implemented by the
// configuration object and injected into tickets at construction.
type SchemaSet interface {
	SchemaFor(ticketType string) *TypeSchema
	LinkRules() *LinkRules
	TypeNames() []string
}
