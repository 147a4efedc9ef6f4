// Package backlog implements scoped, ordered views over the ticket store.
// A backlog pairs a stored configuration (its name, scope type, and admitted
// ticket types) with one scope value: a sprint name, a milestone name, or
// the global sentinel.
package backlog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/avanderberg/scrumline/internal/config"
	"github.com/avanderberg/scrumline/internal/domain"
	"github.com/avanderberg/scrumline/internal/repository"
)

var (
	ErrUnknownBacklog        = errors.New("unknown backlog")
	ErrMissingOrInvalidScope = errors.New("missing or invalid backlog scope")
)

// TicketSaver persists a mutated ticket through the full save pipeline, so
// backlog mutations are validated by the rule engine like any other write.
type TicketSaver interface {
	Save(ctx context.Context, t *domain.Ticket) error
}

// Engine opens backlogs against a per-request store.
type Engine struct {
	store *repository.Store
	cfg   *config.Config
	saver TicketSaver
}

func NewEngine(store *repository.Store, cfg *config.Config, saver TicketSaver) *Engine {
	return &Engine{store: store, cfg: cfg, saver: saver}
}

// Item is one backlog entry. AlternateKeys carries composite
// "ticket-parent" identifiers for second and later in-scope parents of the
// same ticket; the ticket itself appears exactly once.
type Item struct {
	Ticket        *domain.Ticket
	Pos           int
	AlternateKeys []string
}

// Backlog is a configuration bound to a scope. Load populates Items; the
// ordering mutations operate on the loaded state.
type Backlog struct {
	Config *domain.BacklogConfiguration
	Scope  string

	engine *Engine
	items  []Item
}

// Open loads the named backlog configuration, merges the file-side display
// settings, and validates the scope against the sprint or milestone it
// names.
func (e *Engine) Open(ctx context.Context, name, scope string) (*Backlog, error) {
	cfg, err := e.store.Backlogs.GetByName(ctx, name)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBacklog, name)
	}
	if err != nil {
		return nil, err
	}
	settings := e.cfg.BacklogSettings(name)
	cfg.Columns = settings.Columns
	cfg.IncludePlannedItems = settings.IncludePlannedItems

	switch cfg.Type {
	case domain.ScopeGlobal:
		scope = domain.GlobalScope
	case domain.ScopeSprint:
		if scope == "" {
			return nil, fmt.Errorf("%w: backlog %q needs a sprint", ErrMissingOrInvalidScope, name)
		}
		if _, err := e.store.Sprints.GetByName(ctx, scope); err != nil {
			return nil, fmt.Errorf("%w: no sprint %q", ErrMissingOrInvalidScope, scope)
		}
	case domain.ScopeMilestone:
		if scope == "" {
			return nil, fmt.Errorf("%w: backlog %q needs a milestone", ErrMissingOrInvalidScope, name)
		}
		if _, err := e.store.Milestones.GetByName(ctx, scope); err != nil {
			return nil, fmt.Errorf("%w: no milestone %q", ErrMissingOrInvalidScope, scope)
		}
	}
	return &Backlog{Config: cfg, Scope: scope, engine: e}, nil
}

// Items returns the entries of the last Load.
func (b *Backlog) Items() []Item { return b.items }

// TicketIDs returns the loaded ordering as ids.
func (b *Backlog) TicketIDs() []int64 {
	ids := make([]int64, len(b.items))
	for i, it := range b.items {
		ids[i] = it.Ticket.ID
	}
	return ids
}

// Load runs the membership query: scope-matching tickets of the admitted
// types, plus their in-scope ancestors, deduplicated, ordered by stored
// position with unpositioned tickets trailing in query order.
func (b *Backlog) Load(ctx context.Context) error {
	criteria := repository.Criteria{"type": typeFilter(b.Config.TicketTypes)}
	switch b.Config.Type {
	case domain.ScopeGlobal:
		criteria["status"] = "!=" + domain.StatusClosed
		if !b.Config.IncludePlannedItems {
			criteria[domain.FieldSprint] = nil
			criteria[domain.FieldMilestone] = nil
		}
	case domain.ScopeSprint:
		criteria[domain.FieldSprint] = b.Scope
	case domain.ScopeMilestone:
		criteria[domain.FieldMilestone] = b.Scope
	}

	selected, err := b.engine.store.Tickets.Select(ctx, criteria, b.Config.SortingKeys, 0)
	if err != nil {
		return err
	}

	membership, err := b.collectAncestors(ctx, selected)
	if err != nil {
		return err
	}

	positioned, err := b.engine.store.Backlogs.ListItems(ctx, b.Config.Name, b.Scope)
	if err != nil {
		return err
	}
	posByID := make(map[int64]int, len(positioned))
	for _, it := range positioned {
		posByID[it.TicketID] = it.Pos
	}

	var withPos, without []*domain.Ticket
	for _, t := range membership {
		if _, ok := posByID[t.ID]; ok {
			withPos = append(withPos, t)
		} else {
			without = append(without, t)
		}
	}
	sort.SliceStable(withPos, func(i, j int) bool {
		return posByID[withPos[i].ID] < posByID[withPos[j].ID]
	})

	inScope := make(map[int64]bool, len(membership))
	for _, t := range membership {
		inScope[t.ID] = true
	}

	b.items = b.items[:0]
	for _, t := range append(withPos, without...) {
		item := Item{Ticket: t, Pos: len(b.items)}
		var parents []int64
		for _, p := range t.Incoming() {
			if inScope[p.ID] {
				parents = append(parents, p.ID)
			}
		}
		if len(parents) > 1 {
			for _, pid := range parents[1:] {
				item.AlternateKeys = append(item.AlternateKeys,
					fmt.Sprintf("%d-%d", t.ID, pid))
			}
		}
		b.items = append(b.items, item)
	}
	return nil
}

// collectAncestors walks incoming links from the selected set, pulling in
// ancestors of admitted types regardless of their own scope fields. All
// touched edges are bulk-loaded and cached on the participating tickets.
func (b *Backlog) collectAncestors(ctx context.Context, selected []*domain.Ticket) ([]*domain.Ticket, error) {
	store := b.engine.store

	membership := make([]*domain.Ticket, 0, len(selected))
	known := map[int64]*domain.Ticket{}
	seen := map[int64]bool{}

	var frontier []int64
	for _, t := range selected {
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		known[t.ID] = t
		membership = append(membership, t)
		frontier = append(frontier, t.ID)
	}

	visited := map[int64]bool{}
	for len(frontier) > 0 {
		for _, id := range frontier {
			visited[id] = true
		}
		edges, err := store.Links.ListTouching(ctx, frontier)
		if err != nil {
			return nil, err
		}

		// Load every endpoint so edge caches hold real instances.
		var unknown []int64
		for _, e := range edges {
			for _, id := range []int64{e.SrcID, e.DestID} {
				if _, ok := known[id]; !ok {
					unknown = append(unknown, id)
					known[id] = nil
				}
			}
		}
		loaded, err := store.Tickets.GetByIDs(ctx, unknown)
		if err != nil {
			return nil, err
		}
		for _, t := range loaded {
			known[t.ID] = t
		}

		var next []int64
		for _, e := range edges {
			src, dest := known[e.SrcID], known[e.DestID]
			if src == nil || dest == nil {
				continue
			}
			src.CacheOutgoing(dest)
			dest.CacheIncoming(src)

			// Ancestor admission: an unseen parent of an in-frontier
			// child joins when its type is configured.
			if !visited[e.SrcID] && !seen[e.SrcID] && b.Config.AdmitsType(src.Type) {
				seen[e.SrcID] = true
				membership = append(membership, src)
				next = append(next, e.SrcID)
			}
		}
		frontier = next
	}

	for _, t := range membership {
		t.MarkLinksLoaded()
	}
	return membership, nil
}

// Insert places the ticket at pos, shifting later items, and renumbers the
// whole ordering to consecutive integers.
func (b *Backlog) Insert(ctx context.Context, pos int, ticketID int64) error {
	ids := b.TicketIDs()
	kept := ids[:0]
	for _, id := range ids {
		if id != ticketID {
			kept = append(kept, id)
		}
	}
	if pos < 0 {
		pos = 0
	}
	if pos > len(kept) {
		pos = len(kept)
	}
	ordered := make([]int64, 0, len(kept)+1)
	ordered = append(ordered, kept[:pos]...)
	ordered = append(ordered, ticketID)
	ordered = append(ordered, kept[pos:]...)
	return b.SetTicketPositions(ctx, ordered)
}

// SetTicketPositions persists positions 0..n-1 in the given order and
// reloads the in-memory ordering.
func (b *Backlog) SetTicketPositions(ctx context.Context, ids []int64) error {
	for i, id := range ids {
		err := b.engine.store.Backlogs.SetItemPosition(ctx, domain.BacklogItem{
			BacklogName: b.Config.Name,
			Scope:       b.Scope,
			TicketID:    id,
			Pos:         i,
		})
		if err != nil {
			return err
		}
	}
	return b.Load(ctx)
}

// Add pulls a ticket into a scoped backlog by assigning its scope field and
// saving through the rule pipeline. Adding to a global backlog is a no-op:
// global membership is purely derived.
func (b *Backlog) Add(ctx context.Context, t *domain.Ticket) error {
	field := b.Config.Type.ScopeField()
	if field == "" {
		return nil
	}
	t.Set(field, b.Scope)
	if !t.Changed() {
		return nil
	}
	return b.engine.saver.Save(ctx, t)
}

// Remove takes a ticket out of the backlog: a scoped backlog clears the
// scope field (when it still matches) and drops the stored position.
func (b *Backlog) Remove(ctx context.Context, t *domain.Ticket) error {
	if field := b.Config.Type.ScopeField(); field != "" && t.Get(field) == b.Scope {
		t.Set(field, "")
		if err := b.engine.saver.Save(ctx, t); err != nil {
			return err
		}
	}
	return b.engine.store.Backlogs.RemoveItem(ctx, b.Config.Name, b.Scope, t.ID)
}

func typeFilter(types []string) string {
	quoted := make([]string, len(types))
	for i, t := range types {
		quoted[i] = "'" + t + "'"
	}
	return "in (" + strings.Join(quoted, ", ") + ")"
}
