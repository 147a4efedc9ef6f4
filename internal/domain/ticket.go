package domain

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Ticket is a typed value map. The current type determines which attributes
// are writable; writes to attributes outside the type's field list are
// silently dropped. Calculated attributes are derived from the link graph at
// read time and ignore writes.
type Ticket struct {
	ID   int64
	Type string

	CreatedAt time.Time
	ChangedAt time.Time

	values map[string]string
	// old holds the loaded value of every field changed since the last
	// save, keyed by field name. Empty old means the ticket is clean.
	old map[string]string

	schemas SchemaSet
	schema  *TypeSchema

	outgoing       map[int64]*Ticket
	incoming       map[int64]*Ticket
	outgoingLoaded bool
	incomingLoaded bool

	exists bool
}

// NewTicket creates a transient ticket of the given type with every field of
// the type set to its default.
func NewTicket(schemas SchemaSet, ticketType string) *Ticket {
	t := &Ticket{
		values:   map[string]string{},
		old:      map[string]string{},
		schemas:  schemas,
		outgoing: map[int64]*Ticket{},
		incoming: map[int64]*Ticket{},
	}
	t.SetType(ticketType)
	return t
}

// Schema returns the schema bound to the ticket's current type.
func (t *Ticket) Schema() *TypeSchema { return t.schema }

// Rules returns the link rules for the configured type set.
func (t *Ticket) Rules() *LinkRules {
	if t.schemas == nil {
		return nil
	}
	return t.schemas.LinkRules()
}

// Exists reports whether the ticket has been persisted.
func (t *Ticket) Exists() bool { return t.exists }

// MarkExists records that the ticket has a database row.
func (t *Ticket) MarkExists() { t.exists = true }

// SetType switches the ticket to a new type, re-projecting the attribute
// set: fields new to the type receive their default, change tracking drops
// fields that no longer apply, and standard tracker fields are kept non-null.
func (t *Ticket) SetType(ticketType string) {
	t.Type = ticketType
	if t.schemas != nil {
		t.schema = t.schemas.SchemaFor(ticketType)
	}
	if t.schema == nil {
		t.schema = &TypeSchema{Name: ticketType}
	}
	for _, f := range t.schema.Fields {
		if _, ok := t.values[f]; !ok {
			t.values[f] = t.schema.Default(f)
		}
	}
	for f := range t.old {
		if !t.schema.HasField(f) {
			delete(t.old, f)
		}
	}
	// Standard fields must stay present for rendering even when the type's
	// field list omits them.
	for _, f := range StandardFields {
		if _, ok := t.values[f]; !ok {
			t.values[f] = ""
		}
	}
}

// IsWritable reports whether field is in the current type's field list.
func (t *Ticket) IsWritable(field string) bool {
	return t.schema != nil && t.schema.HasField(field)
}

// IsTaskLike reports whether the current type carries remaining work.
func (t *Ticket) IsTaskLike() bool {
	return t.IsWritable(FieldRemainingTime)
}

// Get returns the value of a field. Calculated fields are computed on every
// read; unknown fields read as "".
func (t *Ticket) Get(field string) string {
	if t.schema != nil {
		for _, c := range t.schema.Calculated {
			if c.Name == field {
				return c.Compute(t)
			}
		}
	}
	return t.values[field]
}

// Set assigns a field value. Writes to fields outside the current type's
// list, and to calculated fields, are no-ops. The first effective change of
// a field records its loaded value for change tracking; setting a field back
// to its loaded value clears the tracked change.
func (t *Ticket) Set(field, value string) {
	if !t.IsWritable(field) {
		return
	}
	if t.isCalculated(field) {
		return
	}
	current := t.values[field]
	if current == value {
		return
	}
	if prev, tracked := t.old[field]; tracked {
		if prev == value {
			delete(t.old, field)
		}
	} else {
		t.old[field] = current
	}
	t.values[field] = value
}

func (t *Ticket) isCalculated(field string) bool {
	if t.schema == nil {
		return false
	}
	for _, c := range t.schema.Calculated {
		if c.Name == field {
			return true
		}
	}
	return false
}

// Value reads the raw stored value, bypassing calculated fields.
func (t *Ticket) Value(field string) string { return t.values[field] }

// ForceValue writes a raw value without writability or change tracking.
// It is used by hydration and by rules that adjust tracking directly.
func (t *Ticket) ForceValue(field, value string) { t.values[field] = value }

// Hydrate replaces the value map with loaded database state and clears
// change tracking.
func (t *Ticket) Hydrate(values map[string]string) {
	t.values = map[string]string{}
	for k, v := range values {
		t.values[k] = v
	}
	t.old = map[string]string{}
	t.exists = true
	if typ, ok := values[FieldType]; ok {
		t.SetType(typ)
	} else {
		t.SetType(t.Type)
	}
}

// Changed reports whether any field differs from its loaded value.
func (t *Ticket) Changed() bool { return len(t.old) > 0 }

// OldValue returns the loaded value of a changed field. ok is false when the
// field has not changed since load.
func (t *Ticket) OldValue(field string) (string, bool) {
	v, ok := t.old[field]
	return v, ok
}

// OldValues returns a copy of the change-tracking map.
func (t *Ticket) OldValues() map[string]string {
	out := make(map[string]string, len(t.old))
	for k, v := range t.old {
		out[k] = v
	}
	return out
}

// TrackOld records an old value directly. Rules use this when they adjust a
// field that must appear changed to downstream listeners.
func (t *Ticket) TrackOld(field, oldValue string) {
	t.old[field] = oldValue
}

// Revert restores every changed field to its loaded value. Called when a
// save fails or a rule rejects the write.
func (t *Ticket) Revert() {
	for field, prev := range t.old {
		t.values[field] = prev
	}
	t.old = map[string]string{}
}

// MarkSaved clears change tracking after a successful save.
func (t *Ticket) MarkSaved() {
	t.old = map[string]string{}
	t.exists = true
}

// ResourceList splits the resources field on commas, trimming blanks. When
// includeOwner is set a non-empty owner is prepended.
func (t *Ticket) ResourceList(includeOwner bool) []string {
	var out []string
	if includeOwner {
		if owner := strings.TrimSpace(t.values[FieldOwner]); owner != "" {
			out = append(out, owner)
		}
	}
	for _, r := range strings.Split(t.values[FieldResources], ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// Link cache accessors. The caches belong to the ticket; loading and
// mutation are driven by the ticket service.

// OutgoingLoaded reports whether the outgoing cache reflects the database.
func (t *Ticket) OutgoingLoaded() bool { return t.outgoingLoaded }

// IncomingLoaded reports whether the incoming cache reflects the database.
func (t *Ticket) IncomingLoaded() bool { return t.incomingLoaded }

// MarkLinksLoaded flags both caches as authoritative. Bulk link loading uses
// this after populating every participating ticket.
func (t *Ticket) MarkLinksLoaded() {
	t.outgoingLoaded = true
	t.incomingLoaded = true
}

// MarkOutgoingLoaded flags the outgoing cache as authoritative.
func (t *Ticket) MarkOutgoingLoaded() { t.outgoingLoaded = true }

// MarkIncomingLoaded flags the incoming cache as authoritative.
func (t *Ticket) MarkIncomingLoaded() { t.incomingLoaded = true }

// CacheOutgoing records other as a link destination of t in memory.
func (t *Ticket) CacheOutgoing(other *Ticket) { t.outgoing[other.ID] = other }

// CacheIncoming records other as a link source of t in memory.
func (t *Ticket) CacheIncoming(other *Ticket) { t.incoming[other.ID] = other }

// UncacheOutgoing removes a destination from the outgoing cache.
func (t *Ticket) UncacheOutgoing(id int64) { delete(t.outgoing, id) }

// UncacheIncoming removes a source from the incoming cache.
func (t *Ticket) UncacheIncoming(id int64) { delete(t.incoming, id) }

// Outgoing returns the cached link destinations, sorted by id.
func (t *Ticket) Outgoing() []*Ticket { return sortedTickets(t.outgoing) }

// Incoming returns the cached link sources, sorted by id.
func (t *Ticket) Incoming() []*Ticket { return sortedTickets(t.incoming) }

// IsLinkedTo reports whether other is a cached destination of t.
func (t *Ticket) IsLinkedTo(other *Ticket) bool {
	_, ok := t.outgoing[other.ID]
	return ok
}

// IsLinkedFrom reports whether other is a cached source of t.
func (t *Ticket) IsLinkedFrom(other *Ticket) bool {
	_, ok := t.incoming[other.ID]
	return ok
}

func sortedTickets(m map[int64]*Ticket) []*Ticket {
	out := make([]*Ticket, 0, len(m))
	for _, t := range m {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AsDict serializes the ticket: id, every scalar field of the type except
// the skipped ones, every calculated field, link id lists, and the two
// timestamp entries. Creation and last-change raw values stay out of the
// scalar section.
func (t *Ticket) AsDict() map[string]any {
	out := map[string]any{"id": t.ID, FieldType: t.Type}
	for _, f := range t.schema.Fields {
		if t.schema.IsSkipped(f) {
			continue
		}
		out[f] = t.values[f]
	}
	for _, c := range t.schema.Calculated {
		out[c.Name] = c.Compute(t)
	}
	outgoing := make([]int64, 0, len(t.outgoing))
	for id := range t.outgoing {
		outgoing = append(outgoing, id)
	}
	incoming := make([]int64, 0, len(t.incoming))
	for id := range t.incoming {
		incoming = append(incoming, id)
	}
	sort.Slice(outgoing, func(i, j int) bool { return outgoing[i] < outgoing[j] })
	sort.Slice(incoming, func(i, j int) bool { return incoming[i] < incoming[j] })
	out["outgoing_links"] = outgoing
	out["incoming_links"] = incoming
	out["ts"] = t.ChangedAt.UTC().Format(time.RFC3339)
	out["time_of_last_change"] = t.ChangedAt.UTC().Unix()
	return out
}

// RemainingTime parses the remaining_time field. ok is false when the field
// is empty or not a number.
func (t *Ticket) RemainingTime() (float64, bool) {
	v := strings.TrimSpace(t.values[FieldRemainingTime])
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
