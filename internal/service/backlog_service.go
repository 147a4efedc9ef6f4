package service

import (
	"context"

	"github.com/avanderberg/scrumline/internal/backlog"
	"github.com/avanderberg/scrumline/internal/config"
	"github.com/avanderberg/scrumline/internal/domain"
	"github.com/avanderberg/scrumline/internal/repository"
)

// BacklogService opens and mutates backlogs and manages the stored backlog
// configurations.
type BacklogService struct {
	store  *repository.Store
	cfg    *config.Config
	engine *backlog.Engine
	obs    UseCaseObserver
}

func NewBacklogService(store *repository.Store, cfg *config.Config, saver backlog.TicketSaver,
	observers ...UseCaseObserver) *BacklogService {
	return &BacklogService{
		store:  store,
		cfg:    cfg,
		engine: backlog.NewEngine(store, cfg, saver),
		obs:    useCaseObserverOrNoop(observers),
	}
}

// Open loads the named backlog for one scope value.
func (s *BacklogService) Open(ctx context.Context, name, scope string) (*backlog.Backlog, error) {
	var b *backlog.Backlog
	err := observe(ctx, s.obs, "backlog.open", map[string]any{"name": name, "scope": scope}, func() error {
		var err error
		b, err = s.engine.Open(ctx, name, scope)
		if err != nil {
			return err
		}
		return b.Load(ctx)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Reorder stores a full new ordering for the backlog.
func (s *BacklogService) Reorder(ctx context.Context, name, scope string, ids []int64) error {
	return observe(ctx, s.obs, "backlog.reorder", map[string]any{"name": name, "scope": scope}, func() error {
		b, err := s.engine.Open(ctx, name, scope)
		if err != nil {
			return err
		}
		if err := b.Load(ctx); err != nil {
			return err
		}
		return b.SetTicketPositions(ctx, ids)
	})
}

// Move places one ticket at a position, shifting the rest.
func (s *BacklogService) Move(ctx context.Context, name, scope string, ticketID int64, pos int) error {
	b, err := s.Open(ctx, name, scope)
	if err != nil {
		return err
	}
	return b.Insert(ctx, pos, ticketID)
}

// AddTicket pulls a ticket into a scoped backlog by writing its scope field
// through the save pipeline.
func (s *BacklogService) AddTicket(ctx context.Context, name, scope string, ticketID int64) error {
	return observe(ctx, s.obs, "backlog.add", map[string]any{"name": name, "ticket": ticketID}, func() error {
		b, err := s.engine.Open(ctx, name, scope)
		if err != nil {
			return err
		}
		t, err := s.store.Tickets.GetByID(ctx, ticketID)
		if err != nil {
			return err
		}
		return b.Add(ctx, t)
	})
}

// RemoveTicket drops a ticket from the backlog and clears its scope field.
func (s *BacklogService) RemoveTicket(ctx context.Context, name, scope string, ticketID int64) error {
	return observe(ctx, s.obs, "backlog.remove", map[string]any{"name": name, "ticket": ticketID}, func() error {
		b, err := s.engine.Open(ctx, name, scope)
		if err != nil {
			return err
		}
		t, err := s.store.Tickets.GetByID(ctx, ticketID)
		if err != nil {
			return err
		}
		return b.Remove(ctx, t)
	})
}

func (s *BacklogService) Configurations(ctx context.Context) ([]*domain.BacklogConfiguration, error) {
	return s.store.Backlogs.List(ctx)
}

func (s *BacklogService) SaveConfiguration(ctx context.Context, c *domain.BacklogConfiguration) error {
	return s.store.Backlogs.Save(ctx, c)
}

// EnsureDefaults seeds the two built-in backlogs when missing. Existing
// rows are left untouched.
func (s *BacklogService) EnsureDefaults(ctx context.Context) error {
	defaults := []*domain.BacklogConfiguration{
		{
			Name:        "Product Backlog",
			Description: "Requirements and stories not yet planned",
			Type:        domain.ScopeGlobal,
			TicketTypes: []string{domain.TypeRequirement, domain.TypeUserStory},
			SortingKeys: []string{domain.FieldBusinessValue, "id"},
		},
		{
			Name:        "Sprint Backlog",
			Description: "Stories and tasks of one sprint",
			Type:        domain.ScopeSprint,
			TicketTypes: []string{domain.TypeUserStory, domain.TypeTask, domain.TypeBug},
			SortingKeys: []string{"id"},
		},
	}
	for _, c := range defaults {
		if _, err := s.store.Backlogs.GetByName(ctx, c.Name); err == nil {
			continue
		}
		if err := s.store.Backlogs.Save(ctx, c); err != nil {
			return err
		}
	}
	return nil
}
