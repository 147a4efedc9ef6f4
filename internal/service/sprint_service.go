package service

import (
	"context"
	"fmt"

	"github.com/avanderberg/scrumline/internal/db"
	"github.com/avanderberg/scrumline/internal/domain"
	"github.com/avanderberg/scrumline/internal/repository"
)

// SprintService manages sprints and their contingents. Renaming a sprint
// rewrites every ticket sprint field and every stored backlog position in
// one transaction.
type SprintService struct {
	store *repository.Store
	uow   db.UnitOfWork
	obs   UseCaseObserver
}

func NewSprintService(store *repository.Store, uow db.UnitOfWork, observers ...UseCaseObserver) *SprintService {
	return &SprintService{store: store, uow: uow, obs: useCaseObserverOrNoop(observers)}
}

// Create inserts a sprint. The milestone must exist; an end date of zero is
// derived from the default duration.
func (s *SprintService) Create(ctx context.Context, sprint *domain.Sprint) error {
	return observe(ctx, s.obs, "sprint.create", map[string]any{"name": sprint.Name}, func() error {
		if _, err := s.store.Milestones.GetByName(ctx, sprint.Milestone); err != nil {
			return fmt.Errorf("sprint %q: %w", sprint.Name, err)
		}
		if sprint.End.IsZero() {
			sprint.SetDuration(domain.DefaultSprintDuration)
		}
		return s.store.Sprints.Create(ctx, sprint)
	})
}

func (s *SprintService) Get(ctx context.Context, name string) (*domain.Sprint, error) {
	return s.store.Sprints.GetByName(ctx, name)
}

func (s *SprintService) List(ctx context.Context) ([]*domain.Sprint, error) {
	return s.store.Sprints.List(ctx)
}

func (s *SprintService) ListByMilestone(ctx context.Context, milestone string) ([]*domain.Sprint, error) {
	return s.store.Sprints.ListByMilestone(ctx, milestone)
}

func (s *SprintService) ListByTeam(ctx context.Context, team string) ([]*domain.Sprint, error) {
	return s.store.Sprints.ListByTeam(ctx, team)
}

// Update saves the sprint under oldName. A name change cascades to ticket
// sprint fields, backlog positions, and contingents.
func (s *SprintService) Update(ctx context.Context, oldName string, sprint *domain.Sprint) error {
	return observe(ctx, s.obs, "sprint.update", map[string]any{"name": oldName}, func() error {
		if oldName == sprint.Name {
			return s.store.Sprints.Update(ctx, oldName, sprint)
		}
		err := s.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
			txStore := s.store.WithTx(tx)
			if err := txStore.Sprints.Update(ctx, oldName, sprint); err != nil {
				return err
			}
			if err := txStore.Tickets.RewriteCustomValue(ctx, domain.FieldSprint, oldName, sprint.Name); err != nil {
				return err
			}
			if err := txStore.Backlogs.RenameScope(ctx, domain.ScopeSprint, oldName, sprint.Name); err != nil {
				return err
			}
			if err := txStore.Contingents.RenameSprint(ctx, oldName, sprint.Name); err != nil {
				return err
			}
			return txStore.TeamMetrics.RenameSprint(ctx, oldName, sprint.Name)
		})
		// Cached instances carry the old name on success and, on rollback,
		// possibly the new one. Drop them either way.
		s.store.ResetCaches()
		return err
	})
}

// Delete removes a sprint and everything keyed by its name: backlog
// positions, contingents, and the sprint field of its tickets.
func (s *SprintService) Delete(ctx context.Context, name string) error {
	return observe(ctx, s.obs, "sprint.delete", map[string]any{"name": name}, func() error {
		err := s.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
			txStore := s.store.WithTx(tx)
			if err := txStore.Backlogs.RemoveItemsForScope(ctx, domain.ScopeSprint, name); err != nil {
				return err
			}
			if err := txStore.Tickets.RewriteCustomValue(ctx, domain.FieldSprint, name, ""); err != nil {
				return err
			}
			if err := txStore.Contingents.DeleteBySprint(ctx, name); err != nil {
				return err
			}
			if err := txStore.TeamMetrics.DeleteBySprint(ctx, name); err != nil {
				return err
			}
			return txStore.Sprints.Delete(ctx, name)
		})
		s.store.ResetCaches()
		return err
	})
}

// AddContingent reserves a named buffer of hours inside a sprint.
func (s *SprintService) AddContingent(ctx context.Context, c *domain.Contingent) error {
	if _, err := s.store.Sprints.GetByName(ctx, c.Sprint); err != nil {
		return fmt.Errorf("contingent %q: %w", c.Name, err)
	}
	return s.store.Contingents.Save(ctx, c)
}

// AddTimeToContingent books hours against a contingent. The repository
// rejects bookings past the reserved amount.
func (s *SprintService) AddTimeToContingent(ctx context.Context, name, sprint string, hours float64) error {
	c, err := s.store.Contingents.Get(ctx, name, sprint)
	if err != nil {
		return err
	}
	c.Actual += hours
	return s.store.Contingents.Save(ctx, c)
}

func (s *SprintService) Contingents(ctx context.Context, sprint string) ([]*domain.Contingent, error) {
	return s.store.Contingents.ListBySprint(ctx, sprint)
}
