package service

import (
	"context"

	"github.com/avanderberg/scrumline/internal/db"
	"github.com/avanderberg/scrumline/internal/domain"
	"github.com/avanderberg/scrumline/internal/repository"
)

// MilestoneService manages milestones. Renaming runs in one transaction and
// reaches every referrer: ticket milestone fields, sprint rows, and stored
// backlog positions.
type MilestoneService struct {
	store *repository.Store
	uow   db.UnitOfWork
	obs   UseCaseObserver
}

func NewMilestoneService(store *repository.Store, uow db.UnitOfWork, observers ...UseCaseObserver) *MilestoneService {
	return &MilestoneService{store: store, uow: uow, obs: useCaseObserverOrNoop(observers)}
}

func (s *MilestoneService) Create(ctx context.Context, m *domain.Milestone) error {
	return observe(ctx, s.obs, "milestone.create", map[string]any{"name": m.Name}, func() error {
		return s.store.Milestones.Create(ctx, m)
	})
}

func (s *MilestoneService) Get(ctx context.Context, name string) (*domain.Milestone, error) {
	return s.store.Milestones.GetByName(ctx, name)
}

func (s *MilestoneService) List(ctx context.Context) ([]*domain.Milestone, error) {
	return s.store.Milestones.List(ctx)
}

func (s *MilestoneService) Update(ctx context.Context, m *domain.Milestone) error {
	return s.store.Milestones.Update(ctx, m)
}

// Rename moves the milestone to a new name and cascades it to tickets,
// sprints, and backlog positions atomically.
func (s *MilestoneService) Rename(ctx context.Context, oldName, newName string) error {
	return observe(ctx, s.obs, "milestone.rename", map[string]any{"from": oldName, "to": newName}, func() error {
		if oldName == newName {
			return nil
		}
		err := s.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
			txStore := s.store.WithTx(tx)
			if err := txStore.Milestones.Rename(ctx, oldName, newName); err != nil {
				return err
			}
			return txStore.Backlogs.RenameScope(ctx, domain.ScopeMilestone, oldName, newName)
		})
		// Cached instances carry whichever name the repositories last saw.
		s.store.ResetCaches()
		return err
	})
}

// Delete removes a milestone and the backlog positions stored under it.
// Tickets keep their milestone field; the value simply no longer resolves.
func (s *MilestoneService) Delete(ctx context.Context, name string) error {
	return observe(ctx, s.obs, "milestone.delete", map[string]any{"name": name}, func() error {
		return s.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
			txStore := s.store.WithTx(tx)
			if err := txStore.Backlogs.RemoveItemsForScope(ctx, domain.ScopeMilestone, name); err != nil {
				return err
			}
			return txStore.Milestones.Delete(ctx, name)
		})
	})
}
