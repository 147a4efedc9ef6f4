package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avanderberg/scrumline/internal/domain"
)

func TestBacklogRepo_SaveAndLoad(t *testing.T) {
	store, _, _ := newAgileStore(t)
	ctx := context.Background()

	b := &domain.BacklogConfiguration{
		Name:        "Sprint Backlog",
		Description: "Work for the running sprint",
		Type:        domain.ScopeSprint,
		TicketTypes: []string{domain.TypeUserStory, domain.TypeTask},
		SortingKeys: []string{"remaining_time"},
	}
	require.NoError(t, store.Backlogs.Save(ctx, b))

	loaded, err := store.Backlogs.GetByName(ctx, "Sprint Backlog")
	require.NoError(t, err)
	assert.Equal(t, domain.ScopeSprint, loaded.Type)
	assert.Equal(t, []string{domain.TypeUserStory, domain.TypeTask}, loaded.TicketTypes)
	assert.Equal(t, []string{"remaining_time"}, loaded.SortingKeys)

	// Save is an upsert.
	b.Description = "Updated"
	require.NoError(t, store.Backlogs.Save(ctx, b))
	loaded, err = store.Backlogs.GetByName(ctx, "Sprint Backlog")
	require.NoError(t, err)
	assert.Equal(t, "Updated", loaded.Description)

	all, err := store.Backlogs.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestBacklogRepo_ItemPositions(t *testing.T) {
	store, _, _ := newAgileStore(t)
	ctx := context.Background()

	for i, id := range []int64{10, 11, 12} {
		require.NoError(t, store.Backlogs.SetItemPosition(ctx, domain.BacklogItem{
			BacklogName: "Sprint Backlog", Scope: "Sprint 1", TicketID: id, Pos: i,
		}))
	}

	items, err := store.Backlogs.ListItems(ctx, "Sprint Backlog", "Sprint 1")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, int64(10), items[0].TicketID)

	// Repositioning is an upsert on the same key.
	require.NoError(t, store.Backlogs.SetItemPosition(ctx, domain.BacklogItem{
		BacklogName: "Sprint Backlog", Scope: "Sprint 1", TicketID: 12, Pos: -1,
	}))
	items, err = store.Backlogs.ListItems(ctx, "Sprint Backlog", "Sprint 1")
	require.NoError(t, err)
	assert.Equal(t, int64(12), items[0].TicketID)

	require.NoError(t, store.Backlogs.RemoveItem(ctx, "Sprint Backlog", "Sprint 1", 11))
	items, err = store.Backlogs.ListItems(ctx, "Sprint Backlog", "Sprint 1")
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestBacklogRepo_RemoveItemsForScope(t *testing.T) {
	store, _, _ := newAgileStore(t)
	ctx := context.Background()

	sprintBacklog := &domain.BacklogConfiguration{Name: "Sprint Backlog", Type: domain.ScopeSprint}
	milestoneBacklog := &domain.BacklogConfiguration{Name: "Milestone Backlog", Type: domain.ScopeMilestone}
	require.NoError(t, store.Backlogs.Save(ctx, sprintBacklog))
	require.NoError(t, store.Backlogs.Save(ctx, milestoneBacklog))

	// A sprint and a milestone may share a scope name.
	require.NoError(t, store.Backlogs.SetItemPosition(ctx, domain.BacklogItem{
		BacklogName: "Sprint Backlog", Scope: "1.0", TicketID: 1, Pos: 0,
	}))
	require.NoError(t, store.Backlogs.SetItemPosition(ctx, domain.BacklogItem{
		BacklogName: "Milestone Backlog", Scope: "1.0", TicketID: 1, Pos: 0,
	}))

	require.NoError(t, store.Backlogs.RemoveItemsForScope(ctx, domain.ScopeSprint, "1.0"))

	sprintItems, err := store.Backlogs.ListItems(ctx, "Sprint Backlog", "1.0")
	require.NoError(t, err)
	assert.Empty(t, sprintItems)

	milestoneItems, err := store.Backlogs.ListItems(ctx, "Milestone Backlog", "1.0")
	require.NoError(t, err)
	assert.Len(t, milestoneItems, 1)
}

func TestBacklogRepo_RemoveItemsForTicket(t *testing.T) {
	store, _, _ := newAgileStore(t)
	ctx := context.Background()

	require.NoError(t, store.Backlogs.SetItemPosition(ctx, domain.BacklogItem{
		BacklogName: "A", Scope: "s1", TicketID: 5, Pos: 0,
	}))
	require.NoError(t, store.Backlogs.SetItemPosition(ctx, domain.BacklogItem{
		BacklogName: "B", Scope: "s2", TicketID: 5, Pos: 3,
	}))

	require.NoError(t, store.Backlogs.RemoveItemsForTicket(ctx, 5))

	for _, probe := range []struct{ name, scope string }{{"A", "s1"}, {"B", "s2"}} {
		items, err := store.Backlogs.ListItems(ctx, probe.name, probe.scope)
		require.NoError(t, err)
		assert.Empty(t, items)
	}
}

func TestBacklogRepo_RenameScope(t *testing.T) {
	store, _, _ := newAgileStore(t)
	ctx := context.Background()

	require.NoError(t, store.Backlogs.Save(ctx,
		&domain.BacklogConfiguration{Name: "Sprint Backlog", Type: domain.ScopeSprint}))
	require.NoError(t, store.Backlogs.SetItemPosition(ctx, domain.BacklogItem{
		BacklogName: "Sprint Backlog", Scope: "Old", TicketID: 9, Pos: 1,
	}))

	require.NoError(t, store.Backlogs.RenameScope(ctx, domain.ScopeSprint, "Old", "New"))

	items, err := store.Backlogs.ListItems(ctx, "Sprint Backlog", "New")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(9), items[0].TicketID)
}

func TestBacklogRepo_DeleteRemovesItems(t *testing.T) {
	store, _, _ := newAgileStore(t)
	ctx := context.Background()

	require.NoError(t, store.Backlogs.Save(ctx,
		&domain.BacklogConfiguration{Name: "Doomed", Type: domain.ScopeGlobal}))
	require.NoError(t, store.Backlogs.SetItemPosition(ctx, domain.BacklogItem{
		BacklogName: "Doomed", Scope: domain.GlobalScope, TicketID: 1, Pos: 0,
	}))

	require.NoError(t, store.Backlogs.Delete(ctx, "Doomed"))

	_, err := store.Backlogs.GetByName(ctx, "Doomed")
	assert.ErrorIs(t, err, ErrNotFound)

	items, err := store.Backlogs.ListItems(ctx, "Doomed", domain.GlobalScope)
	require.NoError(t, err)
	assert.Empty(t, items)
}
