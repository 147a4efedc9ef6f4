package service

import (
	"context"
	"strconv"
	"time"

	"github.com/avanderberg/scrumline/internal/domain"
	"github.com/avanderberg/scrumline/internal/repository"
)

// ChangeListener reacts to ticket lifecycle events after the persistence
// step succeeded. Listeners are idempotent; a listener error surfaces to the
// caller but does not undo the persisted write.
type ChangeListener interface {
	TicketCreated(ctx context.Context, t *domain.Ticket) error
	// TicketChanged receives the saved ticket and the pre-save values of
	// every changed field.
	TicketChanged(ctx context.Context, t *domain.Ticket, old map[string]string) error
	TicketDeleted(ctx context.Context, t *domain.Ticket) error
}

// BacklogUpdater maintains stored backlog positions: when a ticket leaves a
// sprint or milestone its positions under the old scope are dropped, and a
// deleted ticket loses every position. Positions are never moved; the target
// backlog admits the ticket on its next load.
type BacklogUpdater struct {
	store *repository.Store
}

func NewBacklogUpdater(store *repository.Store) *BacklogUpdater {
	return &BacklogUpdater{store: store}
}

func (u *BacklogUpdater) TicketCreated(context.Context, *domain.Ticket) error { return nil }

func (u *BacklogUpdater) TicketChanged(ctx context.Context, t *domain.Ticket, old map[string]string) error {
	if oldSprint, changed := old[domain.FieldSprint]; changed && oldSprint != "" {
		if err := u.store.Backlogs.RemoveTicketFromScope(ctx, domain.ScopeSprint, oldSprint, t.ID); err != nil {
			return err
		}
	}
	if oldMilestone, changed := old[domain.FieldMilestone]; changed && oldMilestone != "" {
		if err := u.store.Backlogs.RemoveTicketFromScope(ctx, domain.ScopeMilestone, oldMilestone, t.ID); err != nil {
			return err
		}
	}
	return nil
}

func (u *BacklogUpdater) TicketDeleted(ctx context.Context, t *domain.Ticket) error {
	return u.store.Backlogs.RemoveItemsForTicket(ctx, t.ID)
}

// BurndownLogger appends a remaining-work delta to the burndown log whenever
// a task-like ticket's remaining_time changes inside a sprint. Creation with
// a non-zero estimate logs the initial value as a delta from zero.
type BurndownLogger struct {
	store *repository.Store
	now   func() time.Time
}

func NewBurndownLogger(store *repository.Store) *BurndownLogger {
	return &BurndownLogger{store: store, now: time.Now}
}

func (l *BurndownLogger) TicketCreated(ctx context.Context, t *domain.Ticket) error {
	if !t.IsTaskLike() {
		return nil
	}
	value, ok := t.RemainingTime()
	if !ok || value == 0 {
		return nil
	}
	return l.append(ctx, t, value)
}

func (l *BurndownLogger) TicketChanged(ctx context.Context, t *domain.Ticket, old map[string]string) error {
	if !t.IsTaskLike() {
		return nil
	}
	oldRaw, changed := old[domain.FieldRemainingTime]
	if !changed {
		return nil
	}
	newValue, _ := t.RemainingTime()
	oldValue := parseRemaining(oldRaw)
	delta := newValue - oldValue
	if delta == 0 {
		return nil
	}
	return l.append(ctx, t, delta)
}

func (l *BurndownLogger) TicketDeleted(context.Context, *domain.Ticket) error { return nil }

func (l *BurndownLogger) append(ctx context.Context, t *domain.Ticket, delta float64) error {
	sprint := t.Get(domain.FieldSprint)
	if sprint == "" {
		return nil
	}
	return l.store.Burndown.Append(ctx, &domain.BurndownDataChange{
		Type:      domain.BurndownRemainingTime,
		Scope:     sprint,
		Timestamp: l.now().UTC().Unix(),
		Value:     delta,
	})
}

func parseRemaining(raw string) float64 {
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return v
}
