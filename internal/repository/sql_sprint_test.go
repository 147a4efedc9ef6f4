package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avanderberg/scrumline/internal/config"
	"github.com/avanderberg/scrumline/internal/db"
	"github.com/avanderberg/scrumline/internal/domain"
	"github.com/avanderberg/scrumline/internal/testutil"
)

func newAgileStore(t *testing.T) (*Store, *config.Config, *db.DB) {
	t.Helper()
	database := testutil.NewTestDB(t)
	cfg := config.Default()
	return NewStore(database, cfg), cfg, database
}

func TestSprintRepo_CreateGetUpdate(t *testing.T) {
	store, _, _ := newAgileStore(t)
	ctx := context.Background()

	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	sprint := testutil.NewSprint("Sprint 1", "1.0", start)
	sprint.Team = "Avengers"
	require.NoError(t, store.Sprints.Create(ctx, sprint))

	store.Sprints.ResetCache()
	loaded, err := store.Sprints.GetByName(ctx, "Sprint 1")
	require.NoError(t, err)
	assert.Equal(t, "1.0", loaded.Milestone)
	assert.Equal(t, "Avengers", loaded.Team)
	assert.True(t, loaded.Start.Equal(start))
	assert.Equal(t, 14, loaded.Duration())

	loaded.SetDuration(7)
	require.NoError(t, store.Sprints.Update(ctx, "Sprint 1", loaded))

	store.Sprints.ResetCache()
	reloaded, err := store.Sprints.GetByName(ctx, "Sprint 1")
	require.NoError(t, err)
	assert.Equal(t, 7, reloaded.Duration())
}

func TestSprintRepo_Rename(t *testing.T) {
	store, _, _ := newAgileStore(t)
	ctx := context.Background()

	sprint := testutil.NewSprint("Old Name", "1.0", time.Now().UTC())
	require.NoError(t, store.Sprints.Create(ctx, sprint))

	sprint.Name = "New Name"
	require.NoError(t, store.Sprints.Update(ctx, "Old Name", sprint))

	_, err := store.Sprints.GetByName(ctx, "Old Name")
	assert.ErrorIs(t, err, ErrNotFound)

	renamed, err := store.Sprints.GetByName(ctx, "New Name")
	require.NoError(t, err)
	assert.Same(t, sprint, renamed)
}

func TestSprintRepo_ListByMilestoneAndTeam(t *testing.T) {
	store, _, _ := newAgileStore(t)
	ctx := context.Background()

	s1 := testutil.NewSprint("S1", "1.0", time.Now().UTC())
	s1.Team = "Avengers"
	s2 := testutil.NewSprint("S2", "2.0", time.Now().UTC())
	require.NoError(t, store.Sprints.Create(ctx, s1))
	require.NoError(t, store.Sprints.Create(ctx, s2))

	byMilestone, err := store.Sprints.ListByMilestone(ctx, "1.0")
	require.NoError(t, err)
	require.Len(t, byMilestone, 1)
	assert.Equal(t, "S1", byMilestone[0].Name)

	byTeam, err := store.Sprints.ListByTeam(ctx, "Avengers")
	require.NoError(t, err)
	require.Len(t, byTeam, 1)
	assert.Equal(t, "S1", byTeam[0].Name)
}

func TestMilestoneRepo_CRUD(t *testing.T) {
	store, _, _ := newAgileStore(t)
	ctx := context.Background()

	m := testutil.NewMilestone("1.0")
	m.Description = "First release"
	require.NoError(t, store.Milestones.Create(ctx, m))

	loaded, err := store.Milestones.GetByName(ctx, "1.0")
	require.NoError(t, err)
	assert.Equal(t, "First release", loaded.Description)
	require.NotNil(t, loaded.Due)
	assert.Nil(t, loaded.Completed)

	done := time.Now().UTC()
	loaded.Completed = &done
	require.NoError(t, store.Milestones.Update(ctx, loaded))

	reloaded, err := store.Milestones.GetByName(ctx, "1.0")
	require.NoError(t, err)
	assert.NotNil(t, reloaded.Completed)

	require.NoError(t, store.Milestones.Delete(ctx, "1.0"))
	_, err = store.Milestones.GetByName(ctx, "1.0")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMilestoneRepo_RenameCascades(t *testing.T) {
	store, cfg, _ := newAgileStore(t)
	ctx := context.Background()

	require.NoError(t, store.Milestones.Create(ctx, testutil.NewMilestone("1.0")))
	require.NoError(t, store.Sprints.Create(ctx,
		testutil.NewSprint("Sprint 1", "1.0", time.Now().UTC())))

	story := testutil.NewTicket(cfg, domain.TypeUserStory, "Story",
		testutil.WithField(domain.FieldMilestone, "1.0"))
	require.NoError(t, store.Tickets.Create(ctx, story))

	require.NoError(t, store.Milestones.Rename(ctx, "1.0", "Release 1"))

	_, err := store.Milestones.GetByName(ctx, "1.0")
	assert.ErrorIs(t, err, ErrNotFound)

	store.ResetCaches()
	reloaded, err := store.Tickets.GetByID(ctx, story.ID)
	require.NoError(t, err)
	assert.Equal(t, "Release 1", reloaded.Get(domain.FieldMilestone))

	sprint, err := store.Sprints.GetByName(ctx, "Sprint 1")
	require.NoError(t, err)
	assert.Equal(t, "Release 1", sprint.Milestone)
}
