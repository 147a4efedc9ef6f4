package repository

import (
	"github.com/avanderberg/scrumline/internal/db"
	"github.com/avanderberg/scrumline/internal/domain"
)

// Store bundles one repository of each kind over a shared connection. A
// Store is created per request; its identity caches die with it, so no two
// requests ever observe each other's in-memory instances.
type Store struct {
	Tickets     *SQLTicketRepo
	Links       *SQLLinkRepo
	Sprints     *SQLSprintRepo
	Milestones  *SQLMilestoneRepo
	Teams       *SQLTeamRepo
	Backlogs    *SQLBacklogRepo
	Burndown    *SQLBurndownRepo
	Contingents *SQLContingentRepo
	TeamMetrics *SQLTeamMetricsRepo

	dialect db.Dialect
	schemas domain.SchemaSet
}

func NewStore(database *db.DB, schemas domain.SchemaSet) *Store {
	return newStore(database, database.Dialect, schemas)
}

func newStore(dbtx db.DBTX, dialect db.Dialect, schemas domain.SchemaSet) *Store {
	return &Store{
		Tickets:     NewSQLTicketRepo(dbtx, dialect, schemas),
		Links:       NewSQLLinkRepo(dbtx, dialect),
		Sprints:     NewSQLSprintRepo(dbtx, dialect),
		Milestones:  NewSQLMilestoneRepo(dbtx, dialect),
		Teams:       NewSQLTeamRepo(dbtx, dialect),
		Backlogs:    NewSQLBacklogRepo(dbtx, dialect),
		Burndown:    NewSQLBurndownRepo(dbtx, dialect),
		Contingents: NewSQLContingentRepo(dbtx, dialect),
		TeamMetrics: NewSQLTeamMetricsRepo(dbtx, dialect),
		dialect:     dialect,
		schemas:     schemas,
	}
}

// WithTx returns a Store whose repositories run on the given transaction.
// Identity caches are shared with the parent so instances loaded before the
// transaction stay identical inside it.
func (s *Store) WithTx(tx db.DBTX) *Store {
	txStore := newStore(tx, s.dialect, s.schemas)
	txStore.Tickets.cache = s.Tickets.cache
	txStore.Sprints.cache = s.Sprints.cache
	return txStore
}

// ResetCaches discards every identity cache. Called at request boundaries.
func (s *Store) ResetCaches() {
	s.Tickets.ResetCache()
	s.Sprints.ResetCache()
}
