package testutil

import (
	"time"

	"github.com/avanderberg/scrumline/internal/config"
	"github.com/avanderberg/scrumline/internal/domain"
)

// TicketOption mutates a ticket under construction.
type TicketOption func(*domain.Ticket)

func WithField(name, value string) TicketOption {
	return func(t *domain.Ticket) {
		t.Set(name, value)
	}
}

func WithStatus(status string) TicketOption {
	return func(t *domain.Ticket) {
		t.Set(domain.FieldStatus, status)
	}
}

func WithOwner(owner string) TicketOption {
	return func(t *domain.Ticket) {
		t.Set(domain.FieldOwner, owner)
	}
}

// NewTicket builds an unsaved ticket of the given type against the default
// configuration.
func NewTicket(cfg *config.Config, ticketType, summary string, opts ...TicketOption) *domain.Ticket {
	t := domain.NewTicket(cfg, ticketType)
	t.Set(domain.FieldSummary, summary)
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewSprint builds a two-week sprint starting at the given time.
func NewSprint(name, milestone string, start time.Time) *domain.Sprint {
	return &domain.Sprint{
		Name:      name,
		Start:     start,
		End:       start.AddDate(0, 0, 14),
		Milestone: milestone,
	}
}

// NewMilestone builds a milestone due 30 days from now.
func NewMilestone(name string) *domain.Milestone {
	due := time.Now().UTC().AddDate(0, 0, 30)
	return &domain.Milestone{Name: name, Due: &due}
}
