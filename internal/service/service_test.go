package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avanderberg/scrumline/internal/config"
	"github.com/avanderberg/scrumline/internal/db"
	"github.com/avanderberg/scrumline/internal/domain"
	"github.com/avanderberg/scrumline/internal/repository"
	"github.com/avanderberg/scrumline/internal/testutil"
)

type services struct {
	database   *db.DB
	store      *repository.Store
	cfg        *config.Config
	tickets    *TicketService
	sprints    *SprintService
	milestones *MilestoneService
	teams      *TeamService
	backlogs   *BacklogService
	burndown   *BurndownService
}

func newServices(t *testing.T) *services {
	t.Helper()
	database := testutil.NewTestDB(t)
	cfg := config.Default()
	store := repository.NewStore(database, cfg)
	uow := testutil.NewTestUoW(database)

	listeners := []ChangeListener{NewBacklogUpdater(store), NewBurndownLogger(store)}
	tickets := NewTicketService(store, cfg, uow, listeners)
	s := &services{
		database:   database,
		store:      store,
		cfg:        cfg,
		tickets:    tickets,
		sprints:    NewSprintService(store, uow),
		milestones: NewMilestoneService(store, uow),
		teams:      NewTeamService(store),
		backlogs:   NewBacklogService(store, cfg, tickets),
		burndown:   NewBurndownService(store),
	}
	require.NoError(t, s.backlogs.EnsureDefaults(context.Background()))
	return s
}

func (s *services) seedSprint(t *testing.T, name, milestone string) {
	t.Helper()
	ctx := context.Background()
	if _, err := s.store.Milestones.GetByName(ctx, milestone); err != nil {
		require.NoError(t, s.milestones.Create(ctx, testutil.NewMilestone(milestone)))
	}
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.sprints.Create(ctx, testutil.NewSprint(name, milestone, start)))
}

func TestTicketService_CreateAppliesRules(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()

	task := testutil.NewTicket(s.cfg, domain.TypeTask, "Promote owner",
		testutil.WithField(domain.FieldResources, "alice, bob"))
	require.NoError(t, s.tickets.Create(ctx, task))

	assert.Equal(t, "alice", task.Get(domain.FieldOwner))
	assert.Equal(t, "bob", task.Get(domain.FieldResources))
	assert.True(t, task.Exists())
}

func TestTicketService_SaveRejectionReverts(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()

	story := testutil.NewTicket(s.cfg, domain.TypeUserStory, "A story")
	require.NoError(t, s.tickets.Create(ctx, story))

	story.Set(domain.FieldSprint, "No Such Sprint")
	err := s.tickets.Save(ctx, story)
	require.Error(t, err)
	assert.Equal(t, "", story.Get(domain.FieldSprint))
	assert.False(t, story.Changed())
}

func TestTicketService_SaveSyncsSprintMilestone(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	s.seedSprint(t, "Sprint 1", "1.0")

	story := testutil.NewTicket(s.cfg, domain.TypeUserStory, "Planned story")
	require.NoError(t, s.tickets.Create(ctx, story))

	story.Set(domain.FieldSprint, "Sprint 1")
	require.NoError(t, s.tickets.Save(ctx, story))
	assert.Equal(t, "1.0", story.Get(domain.FieldMilestone))

	s.store.ResetCaches()
	reloaded, err := s.tickets.Get(ctx, story.ID)
	require.NoError(t, err)
	assert.Equal(t, "1.0", reloaded.Get(domain.FieldMilestone))
}

func TestTicketService_LinkToRespectsAllowRules(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()

	req := testutil.NewTicket(s.cfg, domain.TypeRequirement, "Requirement")
	task := testutil.NewTicket(s.cfg, domain.TypeTask, "Task")
	require.NoError(t, s.tickets.Create(ctx, req))
	require.NoError(t, s.tickets.Create(ctx, task))

	err := s.tickets.LinkTo(ctx, req, task)
	require.Error(t, err)

	story := testutil.NewTicket(s.cfg, domain.TypeUserStory, "Story")
	require.NoError(t, s.tickets.Create(ctx, story))
	require.NoError(t, s.tickets.LinkTo(ctx, req, story))
	assert.True(t, req.IsLinkedTo(story))
	assert.True(t, story.IsLinkedFrom(req))
}

func TestTicketService_LinkLoadedLazily(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()

	story := testutil.NewTicket(s.cfg, domain.TypeUserStory, "Story")
	task := testutil.NewTicket(s.cfg, domain.TypeTask, "Task")
	require.NoError(t, s.tickets.Create(ctx, story))
	require.NoError(t, s.tickets.Create(ctx, task))
	require.NoError(t, s.tickets.LinkTo(ctx, story, task))

	s.store.ResetCaches()
	fresh, err := s.tickets.Get(ctx, story.ID)
	require.NoError(t, err)
	assert.False(t, fresh.OutgoingLoaded())

	children, err := s.tickets.Outgoing(ctx, fresh)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, task.ID, children[0].ID)
	assert.True(t, fresh.OutgoingLoaded())
}

func TestTicketService_DeleteCascades(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()

	story := testutil.NewTicket(s.cfg, domain.TypeUserStory, "Story")
	task1 := testutil.NewTicket(s.cfg, domain.TypeTask, "Task 1")
	task2 := testutil.NewTicket(s.cfg, domain.TypeTask, "Task 2")
	bug := testutil.NewTicket(s.cfg, domain.TypeBug, "Bug")
	for _, tk := range []*domain.Ticket{story, task1, task2, bug} {
		require.NoError(t, s.tickets.Create(ctx, tk))
	}
	require.NoError(t, s.tickets.LinkTo(ctx, story, task1))
	require.NoError(t, s.tickets.LinkTo(ctx, story, task2))
	require.NoError(t, s.tickets.LinkTo(ctx, story, bug))

	require.NoError(t, s.tickets.Delete(ctx, story.ID))

	for _, id := range []int64{story.ID, task1.ID, task2.ID} {
		_, err := s.tickets.Get(ctx, id)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	}
	// story -> bug is not a cascade pair
	_, err := s.tickets.Get(ctx, bug.ID)
	assert.NoError(t, err)
}

func TestBacklog_AutoParentInclusion(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	s.seedSprint(t, "S1", "M")
	require.NoError(t, s.backlogs.SaveConfiguration(ctx, &domain.BacklogConfiguration{
		Name:        "Sprint Backlog",
		Type:        domain.ScopeSprint,
		TicketTypes: []string{domain.TypeRequirement, domain.TypeUserStory},
		SortingKeys: []string{"id"},
	}))

	req := testutil.NewTicket(s.cfg, domain.TypeRequirement, "r1")
	story := testutil.NewTicket(s.cfg, domain.TypeUserStory, "u1")
	require.NoError(t, s.tickets.Create(ctx, req))
	require.NoError(t, s.tickets.Create(ctx, story))
	require.NoError(t, s.tickets.LinkTo(ctx, req, story))

	story.Set(domain.FieldSprint, "S1")
	require.NoError(t, s.tickets.Save(ctx, story))

	b, err := s.backlogs.Open(ctx, "Sprint Backlog", "S1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{req.ID, story.ID}, b.TicketIDs())
}

func TestBacklog_MoveBetweenSprintsCleansUp(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	s.seedSprint(t, "S1", "M")
	s.seedSprint(t, "S2", "M")
	require.NoError(t, s.backlogs.SaveConfiguration(ctx, &domain.BacklogConfiguration{
		Name:        "Sprint Backlog",
		Type:        domain.ScopeSprint,
		TicketTypes: []string{domain.TypeRequirement, domain.TypeUserStory},
		SortingKeys: []string{"id"},
	}))

	req := testutil.NewTicket(s.cfg, domain.TypeRequirement, "r1")
	story := testutil.NewTicket(s.cfg, domain.TypeUserStory, "u1")
	require.NoError(t, s.tickets.Create(ctx, req))
	require.NoError(t, s.tickets.Create(ctx, story))
	require.NoError(t, s.tickets.LinkTo(ctx, req, story))
	story.Set(domain.FieldSprint, "S1")
	require.NoError(t, s.tickets.Save(ctx, story))

	// pin a stored position so the listener has something to clean up
	require.NoError(t, s.backlogs.Reorder(ctx, "Sprint Backlog", "S1", []int64{story.ID, req.ID}))

	story.Set(domain.FieldSprint, "S2")
	require.NoError(t, s.tickets.Save(ctx, story))

	s1, err := s.backlogs.Open(ctx, "Sprint Backlog", "S1")
	require.NoError(t, err)
	assert.Empty(t, s1.TicketIDs())

	s2, err := s.backlogs.Open(ctx, "Sprint Backlog", "S2")
	require.NoError(t, err)
	assert.Contains(t, s2.TicketIDs(), story.ID)

	items, err := s.store.Backlogs.ListItems(ctx, "Sprint Backlog", "S1")
	require.NoError(t, err)
	for _, item := range items {
		assert.NotEqual(t, story.ID, item.TicketID)
	}
}

func TestCloseOnZeroLogsBurndownDelta(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	s.seedSprint(t, "S1", "M")

	task := testutil.NewTicket(s.cfg, domain.TypeTask, "t1",
		testutil.WithField(domain.FieldRemainingTime, "5"),
		testutil.WithField(domain.FieldSprint, "S1"))
	require.NoError(t, s.tickets.Create(ctx, task))

	task.Set(domain.FieldRemainingTime, "0")
	require.NoError(t, s.tickets.Save(ctx, task))

	assert.Equal(t, domain.StatusClosed, task.Get(domain.FieldStatus))
	assert.Equal(t, domain.ResolutionFixed, task.Get(domain.FieldResolution))
	assert.Equal(t, "0", task.Get(domain.FieldRemainingTime))

	series, err := s.burndown.RemainingTimeSeries(ctx, "S1")
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, 5.0, series[0].Value)
	assert.Equal(t, -5.0, series[1].Value)

	total, err := s.burndown.RemainingTime(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, total)
}

func TestMilestoneRenameCascades(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	s.seedSprint(t, "Sp", "M1")

	task := testutil.NewTicket(s.cfg, domain.TypeTask, "t1",
		testutil.WithField(domain.FieldSprint, "Sp"))
	require.NoError(t, s.tickets.Create(ctx, task))
	assert.Equal(t, "M1", task.Get(domain.FieldMilestone))

	require.NoError(t, s.milestones.Rename(ctx, "M1", "M2"))

	sprint, err := s.sprints.Get(ctx, "Sp")
	require.NoError(t, err)
	assert.Equal(t, "M2", sprint.Milestone)

	reloaded, err := s.tickets.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "M2", reloaded.Get(domain.FieldMilestone))

	_, err = s.milestones.Get(ctx, "M1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestBacklogReorderAndReload(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	s.seedSprint(t, "S1", "M")

	var ids []int64
	for _, summary := range []string{"a", "b", "c", "d"} {
		task := testutil.NewTicket(s.cfg, domain.TypeTask, summary,
			testutil.WithField(domain.FieldSprint, "S1"))
		require.NoError(t, s.tickets.Create(ctx, task))
		ids = append(ids, task.ID)
	}

	want := []int64{ids[2], ids[0], ids[3], ids[1]}
	require.NoError(t, s.backlogs.Reorder(ctx, "Sprint Backlog", "S1", want))

	b, err := s.backlogs.Open(ctx, "Sprint Backlog", "S1")
	require.NoError(t, err)
	assert.Equal(t, want, b.TicketIDs())
	for i, item := range b.Items() {
		assert.Equal(t, i, item.Pos)
	}
}

func TestSprintService_RenameRewritesTicketsAndPositions(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	s.seedSprint(t, "Old Sprint", "M")

	task := testutil.NewTicket(s.cfg, domain.TypeTask, "t1",
		testutil.WithField(domain.FieldSprint, "Old Sprint"))
	require.NoError(t, s.tickets.Create(ctx, task))
	require.NoError(t, s.backlogs.Reorder(ctx, "Sprint Backlog", "Old Sprint", []int64{task.ID}))
	require.NoError(t, s.sprints.AddContingent(ctx, &domain.Contingent{
		Name: "support", Sprint: "Old Sprint", Amount: 10,
	}))

	sprint, err := s.sprints.Get(ctx, "Old Sprint")
	require.NoError(t, err)
	renamed := *sprint
	renamed.Name = "New Sprint"
	require.NoError(t, s.sprints.Update(ctx, "Old Sprint", &renamed))

	reloaded, err := s.tickets.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "New Sprint", reloaded.Get(domain.FieldSprint))

	items, err := s.store.Backlogs.ListItems(ctx, "Sprint Backlog", "New Sprint")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, task.ID, items[0].TicketID)

	contingents, err := s.sprints.Contingents(ctx, "New Sprint")
	require.NoError(t, err)
	require.Len(t, contingents, 1)
	assert.Equal(t, "support", contingents[0].Name)
}

func TestSprintService_DeleteClearsReferences(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	s.seedSprint(t, "Doomed", "M")

	task := testutil.NewTicket(s.cfg, domain.TypeTask, "t1",
		testutil.WithField(domain.FieldSprint, "Doomed"))
	require.NoError(t, s.tickets.Create(ctx, task))

	require.NoError(t, s.sprints.Delete(ctx, "Doomed"))

	_, err := s.sprints.Get(ctx, "Doomed")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	reloaded, err := s.tickets.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "", reloaded.Get(domain.FieldSprint))
}

func TestSprintService_Contingents(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	s.seedSprint(t, "S1", "M")

	require.NoError(t, s.sprints.AddContingent(ctx, &domain.Contingent{
		Name: "support", Sprint: "S1", Amount: 12,
	}))
	require.NoError(t, s.sprints.AddTimeToContingent(ctx, "support", "S1", 4))

	err := s.sprints.AddTimeToContingent(ctx, "support", "S1", 20)
	assert.ErrorIs(t, err, repository.ErrUnableToSave)

	c, err := s.store.Contingents.Get(ctx, "support", "S1")
	require.NoError(t, err)
	assert.Equal(t, 4.0, c.Actual)
}

func TestTeamService_SprintCapacity(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	require.NoError(t, s.milestones.Create(ctx, testutil.NewMilestone("M")))
	require.NoError(t, s.teams.Create(ctx, &domain.Team{Name: "Avengers"}))

	// one calendar week, Monday to Monday
	start := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	sprint := testutil.NewSprint("S1", "M", start)
	sprint.End = start.AddDate(0, 0, 7)
	sprint.Team = "Avengers"
	require.NoError(t, s.sprints.Create(ctx, sprint))

	require.NoError(t, s.teams.AddMember(ctx, &domain.TeamMember{
		Name: "alice", Team: "Avengers",
		Capacity: [7]float64{6, 6, 6, 6, 6, 0, 0},
	}))
	require.NoError(t, s.teams.AddMember(ctx, &domain.TeamMember{
		Name: "bob", Team: "Avengers",
	}))

	capacity, err := s.teams.SprintCapacity(ctx, "S1")
	require.NoError(t, err)
	// both members contribute five six-hour days
	assert.Equal(t, 60.0, capacity)

	require.NoError(t, s.sprints.AddContingent(ctx, &domain.Contingent{
		Name: "support", Sprint: "S1", Amount: 10,
	}))
	capacity, err = s.teams.SprintCapacity(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, 50.0, capacity)
}

func TestTeamService_MetricsFollowSprintLifecycle(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	s.seedSprint(t, "S1", "M")
	require.NoError(t, s.teams.Create(ctx, &domain.Team{Name: "Avengers"}))

	require.NoError(t, s.teams.StoreMetric(ctx, "Avengers", "S1", "velocity", 21))
	require.NoError(t, s.teams.StoreMetric(ctx, "Avengers", "S1", "capacity", 120))
	// saving under the same key overwrites
	require.NoError(t, s.teams.StoreMetric(ctx, "Avengers", "S1", "velocity", 23))

	err := s.teams.StoreMetric(ctx, "Nobody", "S1", "velocity", 1)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	metrics, err := s.teams.Metrics(ctx, "Avengers", "S1")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"velocity": 23, "capacity": 120}, metrics)

	sprint, err := s.sprints.Get(ctx, "S1")
	require.NoError(t, err)
	renamed := *sprint
	renamed.Name = "S1 extended"
	require.NoError(t, s.sprints.Update(ctx, "S1", &renamed))

	metrics, err = s.teams.Metrics(ctx, "Avengers", "S1 extended")
	require.NoError(t, err)
	assert.Equal(t, 23.0, metrics["velocity"])

	require.NoError(t, s.sprints.Delete(ctx, "S1 extended"))
	metrics, err = s.teams.Metrics(ctx, "Avengers", "S1 extended")
	require.NoError(t, err)
	assert.Empty(t, metrics)
}

func TestSprintService_RenameRollsBackOnFailure(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	s.seedSprint(t, "Old", "1.0")

	task := testutil.NewTicket(s.cfg, domain.TypeTask, "In sprint",
		testutil.WithField(domain.FieldSprint, "Old"))
	require.NoError(t, s.tickets.Create(ctx, task))

	boom := errors.New("injected write failure")
	uow := &testutil.FailOnNthExecUoW{DB: s.database, FailOn: 3, Err: boom}
	sprints := NewSprintService(s.store, uow)

	renamed, err := sprints.Get(ctx, "Old")
	require.NoError(t, err)
	changed := *renamed
	changed.Name = "New"
	err = sprints.Update(ctx, "Old", &changed)
	require.ErrorIs(t, err, repository.ErrUnableToSave)
	assert.Contains(t, err.Error(), "injected write failure")

	// verify through a cache-free store that nothing was written
	fresh := repository.NewStore(s.database, s.cfg)
	_, err = fresh.Sprints.GetByName(ctx, "New")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	reloaded, err := fresh.Tickets.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Old", reloaded.Get(domain.FieldSprint))
}

func TestTicketService_SprintMoveSyncsTaskMilestone(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	s.seedSprint(t, "S1", "1.0")
	s.seedSprint(t, "S2", "2.0")

	task := testutil.NewTicket(s.cfg, domain.TypeTask, "Carried over",
		testutil.WithField(domain.FieldSprint, "S1"))
	require.NoError(t, s.tickets.Create(ctx, task))
	require.Equal(t, "1.0", task.Value(domain.FieldMilestone))

	task.Set(domain.FieldSprint, "S2")
	require.NoError(t, s.tickets.Save(ctx, task))
	assert.Equal(t, "2.0", task.Value(domain.FieldMilestone))

	// the synced milestone must survive a reload from the database
	fresh := repository.NewStore(s.database, s.cfg)
	reloaded, err := fresh.Tickets.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "2.0", reloaded.Value(domain.FieldMilestone))

	task.Set(domain.FieldSprint, "")
	require.NoError(t, s.tickets.Save(ctx, task))
	reloaded, err = repository.NewStore(s.database, s.cfg).Tickets.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "", reloaded.Value(domain.FieldMilestone))
}
