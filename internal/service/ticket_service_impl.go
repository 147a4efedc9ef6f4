package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/avanderberg/scrumline/internal/config"
	"github.com/avanderberg/scrumline/internal/db"
	"github.com/avanderberg/scrumline/internal/domain"
	"github.com/avanderberg/scrumline/internal/repository"
	"github.com/avanderberg/scrumline/internal/rules"
)

// ErrLinkNotAllowed marks an edge whose type pair is outside the configured
// allow-set.
var ErrLinkNotAllowed = errors.New("link not allowed")

// TicketService owns the ticket write pipeline: every insert and save runs
// the rule engine, then persists, then notifies the change listeners. It
// also drives the link graph, including the lazy link caches and the
// cascade delete.
type TicketService struct {
	store     *repository.Store
	cfg       *config.Config
	uow       db.UnitOfWork
	engine    *rules.Engine
	listeners []ChangeListener
	obs       UseCaseObserver
}

func NewTicketService(store *repository.Store, cfg *config.Config, uow db.UnitOfWork,
	listeners []ChangeListener, observers ...UseCaseObserver) *TicketService {
	return &TicketService{
		store:     store,
		cfg:       cfg,
		uow:       uow,
		engine:    rules.NewEngine(),
		listeners: listeners,
		obs:       useCaseObserverOrNoop(observers),
	}
}

// New builds a transient ticket of the given type.
func (s *TicketService) New(ticketType string) *domain.Ticket {
	return domain.NewTicket(s.cfg, ticketType)
}

func (s *TicketService) Get(ctx context.Context, id int64) (*domain.Ticket, error) {
	return s.store.Tickets.GetByID(ctx, id)
}

// Query runs a criteria select; see the repository for the condition grammar.
func (s *TicketService) Query(ctx context.Context, criteria repository.Criteria, order []string, limit int) ([]*domain.Ticket, error) {
	return s.store.Tickets.Select(ctx, criteria, order, limit)
}

// Create validates a transient ticket through the rule pipeline and inserts
// it. A rule rejection reverts the instance and carries the attempted
// values.
func (s *TicketService) Create(ctx context.Context, t *domain.Ticket) error {
	return observe(ctx, s.obs, "ticket.create", map[string]any{"type": t.Type}, func() error {
		if err := s.engine.Apply(ctx, s, t); err != nil {
			t.Revert()
			return err
		}
		if err := s.store.Tickets.Create(ctx, t); err != nil {
			t.Revert()
			return err
		}
		for _, l := range s.listeners {
			if err := l.TicketCreated(ctx, t); err != nil {
				return err
			}
		}
		return nil
	})
}

// Save persists the changed fields of a loaded ticket: rules, then the
// guarded update, then listeners with the pre-save values. Saving a clean
// ticket is a no-op.
func (s *TicketService) Save(ctx context.Context, t *domain.Ticket) error {
	return observe(ctx, s.obs, "ticket.save", map[string]any{"id": t.ID}, func() error {
		if !t.Exists() {
			return s.Create(ctx, t)
		}
		if !t.Changed() {
			return nil
		}
		if err := s.engine.Apply(ctx, s, t); err != nil {
			t.Revert()
			return err
		}
		old := t.OldValues()
		if err := s.store.Tickets.Update(ctx, t); err != nil {
			t.Revert()
			return err
		}
		for _, l := range s.listeners {
			if err := l.TicketChanged(ctx, t, old); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes a ticket, its edges, and every ticket reachable through
// configured cascade pairs. The cascade set is computed before any edge is
// removed; the deletions run in one transaction.
func (s *TicketService) Delete(ctx context.Context, id int64) error {
	return observe(ctx, s.obs, "ticket.delete", map[string]any{"id": id}, func() error {
		root, err := s.store.Tickets.GetByID(ctx, id)
		if err != nil {
			return err
		}
		victims, err := s.cascadeSet(ctx, root)
		if err != nil {
			return err
		}
		err = s.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
			txStore := s.store.WithTx(tx)
			for _, v := range victims {
				if err := txStore.Links.DeleteAllFor(ctx, v.ID); err != nil {
					return err
				}
				if err := txStore.Tickets.Delete(ctx, v.ID); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, v := range victims {
			for _, l := range s.listeners {
				if err := l.TicketDeleted(ctx, v); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// cascadeSet returns root plus every ticket reachable over cascade-delete
// pairs, in discovery order.
func (s *TicketService) cascadeSet(ctx context.Context, root *domain.Ticket) ([]*domain.Ticket, error) {
	linkRules := s.cfg.LinkRules()
	victims := []*domain.Ticket{root}
	seen := map[int64]bool{root.ID: true}

	for i := 0; i < len(victims); i++ {
		v := victims[i]
		if err := s.ensureOutgoing(ctx, v); err != nil {
			return nil, err
		}
		for _, child := range v.Outgoing() {
			if seen[child.ID] || !linkRules.CascadesDelete(v.Type, child.Type) {
				continue
			}
			seen[child.ID] = true
			victims = append(victims, child)
		}
	}
	return victims, nil
}

// LinkTo creates a directed edge after checking the configured allow-set.
// Both endpoints are persisted first if still transient, and both caches are
// updated.
func (s *TicketService) LinkTo(ctx context.Context, src, dest *domain.Ticket) error {
	return observe(ctx, s.obs, "ticket.link", map[string]any{"src": src.ID, "dest": dest.ID}, func() error {
		if !s.cfg.LinkRules().IsAllowed(src.Type, dest.Type) {
			return fmt.Errorf("%w: %s -> %s", ErrLinkNotAllowed, src.Type, dest.Type)
		}
		for _, endpoint := range []*domain.Ticket{src, dest} {
			if !endpoint.Exists() {
				if err := s.Create(ctx, endpoint); err != nil {
					return err
				}
			}
		}
		if err := s.store.Links.Create(ctx, domain.Link{SrcID: src.ID, DestID: dest.ID}); err != nil {
			return err
		}
		src.CacheOutgoing(dest)
		dest.CacheIncoming(src)
		return nil
	})
}

// DelLinkTo removes a directed edge and evicts it from both caches.
func (s *TicketService) DelLinkTo(ctx context.Context, src, dest *domain.Ticket) error {
	if err := s.store.Links.Delete(ctx, domain.Link{SrcID: src.ID, DestID: dest.ID}); err != nil {
		return err
	}
	src.UncacheOutgoing(dest.ID)
	dest.UncacheIncoming(src.ID)
	return nil
}

// Outgoing returns the children of t, loading the edge cache on first use.
func (s *TicketService) Outgoing(ctx context.Context, t *domain.Ticket) ([]*domain.Ticket, error) {
	if err := s.ensureOutgoing(ctx, t); err != nil {
		return nil, err
	}
	return t.Outgoing(), nil
}

// LinkCandidates returns tickets that could become link destinations of t:
// the type pair must be allowed and the summary must contain q
// (case-insensitive). The ticket itself and already-linked destinations are
// excluded.
func (s *TicketService) LinkCandidates(ctx context.Context, t *domain.Ticket, q string) ([]*domain.Ticket, error) {
	if err := s.ensureOutgoing(ctx, t); err != nil {
		return nil, err
	}
	all, err := s.store.Tickets.Select(ctx, nil, []string{domain.FieldSummary}, 0)
	if err != nil {
		return nil, err
	}
	linkRules := s.cfg.LinkRules()
	needle := strings.ToLower(q)
	out := make([]*domain.Ticket, 0, len(all))
	for _, cand := range all {
		if cand.ID == t.ID || t.IsLinkedTo(cand) || !linkRules.IsAllowed(t.Type, cand.Type) {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(cand.Get(domain.FieldSummary)), needle) {
			continue
		}
		out = append(out, cand)
	}
	return out, nil
}

// Incoming returns the parents of t, loading the edge cache on first use.
func (s *TicketService) Incoming(ctx context.Context, t *domain.Ticket) ([]*domain.Ticket, error) {
	if err := s.ensureIncoming(ctx, t); err != nil {
		return nil, err
	}
	return t.Incoming(), nil
}

func (s *TicketService) ensureOutgoing(ctx context.Context, t *domain.Ticket) error {
	if t.OutgoingLoaded() {
		return nil
	}
	links, err := s.store.Links.ListOutgoing(ctx, t.ID)
	if err != nil {
		return err
	}
	ids := make([]int64, len(links))
	for i, l := range links {
		ids[i] = l.DestID
	}
	children, err := s.store.Tickets.GetByIDs(ctx, ids)
	if err != nil {
		return err
	}
	for _, c := range children {
		t.CacheOutgoing(c)
	}
	t.MarkOutgoingLoaded()
	return nil
}

func (s *TicketService) ensureIncoming(ctx context.Context, t *domain.Ticket) error {
	if t.IncomingLoaded() {
		return nil
	}
	links, err := s.store.Links.ListIncoming(ctx, t.ID)
	if err != nil {
		return err
	}
	ids := make([]int64, len(links))
	for i, l := range links {
		ids[i] = l.SrcID
	}
	parents, err := s.store.Tickets.GetByIDs(ctx, ids)
	if err != nil {
		return err
	}
	for _, p := range parents {
		t.CacheIncoming(p)
	}
	t.MarkIncomingLoaded()
	return nil
}

// rules.Environment implementation.

func (s *TicketService) SprintByName(ctx context.Context, name string) (*domain.Sprint, error) {
	return s.store.Sprints.GetByName(ctx, name)
}

func (s *TicketService) TeamMemberNames(ctx context.Context, team string) ([]string, error) {
	members, err := s.store.Teams.ListMembers(ctx, team)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(members))
	for i, m := range members {
		names[i] = m.Name
	}
	return names, nil
}

func (s *TicketService) Parents(ctx context.Context, t *domain.Ticket) ([]*domain.Ticket, error) {
	return s.Incoming(ctx, t)
}

func (s *TicketService) SaveParent(ctx context.Context, parent *domain.Ticket, _ string) error {
	return s.Save(ctx, parent)
}
