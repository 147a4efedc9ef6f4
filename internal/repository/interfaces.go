package repository

import (
	"context"

	"github.com/avanderberg/scrumline/internal/domain"
)

type TicketRepo interface {
	Create(ctx context.Context, t *domain.Ticket) error
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	GetByIDs(ctx context.Context, ids []int64) ([]*domain.Ticket, error)
	Select(ctx context.Context, criteria Criteria, order []string, limit int) ([]*domain.Ticket, error)
	Update(ctx context.Context, t *domain.Ticket) error
	Delete(ctx context.Context, id int64) error
	RewriteCustomValue(ctx context.Context, field, oldValue, newValue string) error
}

type LinkRepo interface {
	Create(ctx context.Context, l domain.Link) error
	Delete(ctx context.Context, l domain.Link) error
	Exists(ctx context.Context, l domain.Link) (bool, error)
	ListOutgoing(ctx context.Context, srcID int64) ([]domain.Link, error)
	ListIncoming(ctx context.Context, destID int64) ([]domain.Link, error)
	// ListTouching returns every link with either endpoint in ids, for bulk
	// cache population.
	ListTouching(ctx context.Context, ids []int64) ([]domain.Link, error)
	DeleteAllFor(ctx context.Context, ticketID int64) error
}

type SprintRepo interface {
	Create(ctx context.Context, s *domain.Sprint) error
	GetByName(ctx context.Context, name string) (*domain.Sprint, error)
	List(ctx context.Context) ([]*domain.Sprint, error)
	ListByMilestone(ctx context.Context, milestone string) ([]*domain.Sprint, error)
	ListByTeam(ctx context.Context, team string) ([]*domain.Sprint, error)
	Update(ctx context.Context, oldName string, s *domain.Sprint) error
	Delete(ctx context.Context, name string) error
}

type MilestoneRepo interface {
	Create(ctx context.Context, m *domain.Milestone) error
	GetByName(ctx context.Context, name string) (*domain.Milestone, error)
	List(ctx context.Context) ([]*domain.Milestone, error)
	// Rename updates the milestone row and cascades the new name to every
	// ticket and sprint that references it, in one transaction.
	Rename(ctx context.Context, oldName, newName string) error
	Update(ctx context.Context, m *domain.Milestone) error
	Delete(ctx context.Context, name string) error
}

type TeamRepo interface {
	Create(ctx context.Context, t *domain.Team) error
	GetByName(ctx context.Context, name string) (*domain.Team, error)
	List(ctx context.Context) ([]*domain.Team, error)
	Update(ctx context.Context, t *domain.Team) error
	Delete(ctx context.Context, name string) error

	AddMember(ctx context.Context, m *domain.TeamMember) error
	GetMember(ctx context.Context, name string) (*domain.TeamMember, error)
	ListMembers(ctx context.Context, team string) ([]*domain.TeamMember, error)
	UpdateMember(ctx context.Context, m *domain.TeamMember) error
	RemoveMember(ctx context.Context, name string) error
}

type BacklogRepo interface {
	Save(ctx context.Context, b *domain.BacklogConfiguration) error
	GetByName(ctx context.Context, name string) (*domain.BacklogConfiguration, error)
	List(ctx context.Context) ([]*domain.BacklogConfiguration, error)
	Delete(ctx context.Context, name string) error

	SetItemPosition(ctx context.Context, item domain.BacklogItem) error
	ListItems(ctx context.Context, backlogName, scope string) ([]domain.BacklogItem, error)
	RemoveItem(ctx context.Context, backlogName, scope string, ticketID int64) error
	// RemoveItemsForScope drops the positions of every item of the named
	// scope across all backlogs of the given scope type.
	RemoveItemsForScope(ctx context.Context, scopeType domain.ScopeType, scope string) error
	// RemoveTicketFromScope drops one ticket's positions under the named
	// scope across all backlogs of the given scope type.
	RemoveTicketFromScope(ctx context.Context, scopeType domain.ScopeType, scope string, ticketID int64) error
	RemoveItemsForTicket(ctx context.Context, ticketID int64) error
	RenameScope(ctx context.Context, scopeType domain.ScopeType, oldScope, newScope string) error
}

type BurndownRepo interface {
	Append(ctx context.Context, c *domain.BurndownDataChange) error
	Series(ctx context.Context, changeType, scope string) ([]domain.BurndownDataChange, error)
}

type ContingentRepo interface {
	Save(ctx context.Context, c *domain.Contingent) error
	Get(ctx context.Context, name, sprint string) (*domain.Contingent, error)
	ListBySprint(ctx context.Context, sprint string) ([]*domain.Contingent, error)
	Delete(ctx context.Context, name, sprint string) error
	DeleteBySprint(ctx context.Context, sprint string) error
	RenameSprint(ctx context.Context, oldSprint, newSprint string) error
}

type TeamMetricsRepo interface {
	Save(ctx context.Context, e *domain.TeamMetricsEntry) error
	Get(ctx context.Context, team, sprint, key string) (*domain.TeamMetricsEntry, error)
	List(ctx context.Context, team, sprint string) ([]*domain.TeamMetricsEntry, error)
	DeleteBySprint(ctx context.Context, sprint string) error
	RenameSprint(ctx context.Context, oldSprint, newSprint string) error
}
