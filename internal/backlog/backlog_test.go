package backlog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avanderberg/scrumline/internal/config"
	"github.com/avanderberg/scrumline/internal/domain"
	"github.com/avanderberg/scrumline/internal/repository"
	"github.com/avanderberg/scrumline/internal/testutil"
)

// storeSaver persists through the repository directly; rule behavior is
// covered in the service tests.
type storeSaver struct {
	store *repository.Store
}

func (s *storeSaver) Save(ctx context.Context, t *domain.Ticket) error {
	if !t.Exists() {
		return s.store.Tickets.Create(ctx, t)
	}
	return s.store.Tickets.Update(ctx, t)
}

type fixture struct {
	engine *Engine
	store  *repository.Store
	cfg    *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database := testutil.NewTestDB(t)
	cfg := config.Default()
	store := repository.NewStore(database, cfg)
	ctx := context.Background()

	require.NoError(t, store.Backlogs.Save(ctx, &domain.BacklogConfiguration{
		Name:        "Sprint Backlog",
		Type:        domain.ScopeSprint,
		TicketTypes: []string{domain.TypeUserStory, domain.TypeTask, domain.TypeBug},
		SortingKeys: []string{"id"},
	}))
	require.NoError(t, store.Backlogs.Save(ctx, &domain.BacklogConfiguration{
		Name:        "Product Backlog",
		Type:        domain.ScopeGlobal,
		TicketTypes: []string{domain.TypeRequirement, domain.TypeUserStory},
		SortingKeys: []string{"id"},
	}))
	require.NoError(t, store.Sprints.Create(ctx,
		testutil.NewSprint("Sprint 1", "1.0", time.Now().UTC())))

	return &fixture{
		engine: NewEngine(store, cfg, &storeSaver{store: store}),
		store:  store,
		cfg:    cfg,
	}
}

func (f *fixture) ticket(t *testing.T, ticketType, summary string, fields map[string]string) *domain.Ticket {
	t.Helper()
	tk := testutil.NewTicket(f.cfg, ticketType, summary)
	for k, v := range fields {
		tk.Set(k, v)
	}
	require.NoError(t, f.store.Tickets.Create(context.Background(), tk))
	return tk
}

func (f *fixture) link(t *testing.T, src, dest *domain.Ticket) {
	t.Helper()
	require.NoError(t, f.store.Links.Create(context.Background(),
		domain.Link{SrcID: src.ID, DestID: dest.ID}))
}

func TestOpen_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Open(ctx, "Nope", "")
	assert.ErrorIs(t, err, ErrUnknownBacklog)

	_, err = f.engine.Open(ctx, "Sprint Backlog", "")
	assert.ErrorIs(t, err, ErrMissingOrInvalidScope)

	_, err = f.engine.Open(ctx, "Sprint Backlog", "No Such Sprint")
	assert.ErrorIs(t, err, ErrMissingOrInvalidScope)
}

func TestOpen_GlobalScopeUsesSentinel(t *testing.T) {
	f := newFixture(t)
	b, err := f.engine.Open(context.Background(), "Product Backlog", "whatever")
	require.NoError(t, err)
	assert.Equal(t, domain.GlobalScope, b.Scope)
}

func TestLoad_GlobalExcludesClosedAndPlanned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	open := f.ticket(t, domain.TypeRequirement, "open", nil)
	f.ticket(t, domain.TypeRequirement, "closed", map[string]string{
		domain.FieldStatus: domain.StatusClosed,
	})
	f.ticket(t, domain.TypeUserStory, "planned", map[string]string{
		domain.FieldSprint: "Sprint 1",
	})
	f.ticket(t, domain.TypeTask, "wrong type", nil)

	b, err := f.engine.Open(ctx, "Product Backlog", "")
	require.NoError(t, err)
	require.NoError(t, b.Load(ctx))

	require.Len(t, b.Items(), 1)
	assert.Equal(t, open.ID, b.Items()[0].Ticket.ID)
}

func TestLoad_GlobalIncludePlannedItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "scrumline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"backlogs:\n  Product Backlog:\n    include_planned_items: true\n"), 0644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	f.engine.cfg = cfg

	f.ticket(t, domain.TypeUserStory, "planned", map[string]string{
		domain.FieldSprint: "Sprint 1",
	})

	b, err := f.engine.Open(ctx, "Product Backlog", "")
	require.NoError(t, err)
	require.NoError(t, b.Load(ctx))
	require.Len(t, b.Items(), 1)
	assert.Equal(t, "planned", b.Items()[0].Ticket.Get(domain.FieldSummary))
}

func TestLoad_SprintScopeWithAncestors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	parent := f.ticket(t, domain.TypeUserStory, "parent outside sprint", nil)
	task := f.ticket(t, domain.TypeTask, "task in sprint", map[string]string{
		domain.FieldSprint: "Sprint 1",
	})
	requirement := f.ticket(t, domain.TypeRequirement, "grandparent", nil)
	f.link(t, parent, task)
	f.link(t, requirement, parent)

	b, err := f.engine.Open(ctx, "Sprint Backlog", "Sprint 1")
	require.NoError(t, err)
	require.NoError(t, b.Load(ctx))

	// The parent story joins through the link even though its own sprint
	// field is empty; the requirement's type is not admitted.
	ids := b.TicketIDs()
	assert.ElementsMatch(t, []int64{task.ID, parent.ID}, ids)

	// Link caches were bulk-populated.
	for _, it := range b.Items() {
		if it.Ticket.ID == task.ID {
			assert.True(t, it.Ticket.IncomingLoaded())
			assert.True(t, it.Ticket.IsLinkedFrom(parent))
		}
	}
}

func TestLoad_DedupAndAlternateKeys(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	storyA := f.ticket(t, domain.TypeUserStory, "story a", map[string]string{
		domain.FieldSprint: "Sprint 1",
	})
	storyB := f.ticket(t, domain.TypeUserStory, "story b", map[string]string{
		domain.FieldSprint: "Sprint 1",
	})
	task := f.ticket(t, domain.TypeTask, "shared task", map[string]string{
		domain.FieldSprint: "Sprint 1",
	})
	f.link(t, storyA, task)
	f.link(t, storyB, task)

	b, err := f.engine.Open(ctx, "Sprint Backlog", "Sprint 1")
	require.NoError(t, err)
	require.NoError(t, b.Load(ctx))

	require.Len(t, b.Items(), 3)
	for _, it := range b.Items() {
		if it.Ticket.ID == task.ID {
			require.Len(t, it.AlternateKeys, 1)
			assert.Equal(t, fmt.Sprintf("%d-%d", task.ID, storyB.ID), it.AlternateKeys[0])
		} else {
			assert.Empty(t, it.AlternateKeys)
		}
	}
}

func TestPositions_SetAndInsert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var tasks []*domain.Ticket
	for _, name := range []string{"t1", "t2", "t3"} {
		tasks = append(tasks, f.ticket(t, domain.TypeTask, name, map[string]string{
			domain.FieldSprint: "Sprint 1",
		}))
	}

	b, err := f.engine.Open(ctx, "Sprint Backlog", "Sprint 1")
	require.NoError(t, err)
	require.NoError(t, b.Load(ctx))
	assert.Equal(t, []int64{tasks[0].ID, tasks[1].ID, tasks[2].ID}, b.TicketIDs())

	// Explicit reordering persists and survives a reload.
	require.NoError(t, b.SetTicketPositions(ctx,
		[]int64{tasks[2].ID, tasks[0].ID, tasks[1].ID}))
	assert.Equal(t, []int64{tasks[2].ID, tasks[0].ID, tasks[1].ID}, b.TicketIDs())

	b2, err := f.engine.Open(ctx, "Sprint Backlog", "Sprint 1")
	require.NoError(t, err)
	require.NoError(t, b2.Load(ctx))
	assert.Equal(t, []int64{tasks[2].ID, tasks[0].ID, tasks[1].ID}, b2.TicketIDs())

	// Insert moves an existing item and renumbers.
	require.NoError(t, b.Insert(ctx, 0, tasks[1].ID))
	assert.Equal(t, []int64{tasks[1].ID, tasks[2].ID, tasks[0].ID}, b.TicketIDs())
	for i, it := range b.Items() {
		assert.Equal(t, i, it.Pos)
	}
}

func TestLoad_UnpositionedTrailPositioned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.ticket(t, domain.TypeTask, "positioned", map[string]string{
		domain.FieldSprint: "Sprint 1",
	})
	second := f.ticket(t, domain.TypeTask, "also positioned", map[string]string{
		domain.FieldSprint: "Sprint 1",
	})

	b, err := f.engine.Open(ctx, "Sprint Backlog", "Sprint 1")
	require.NoError(t, err)
	require.NoError(t, b.Load(ctx))
	require.NoError(t, b.SetTicketPositions(ctx, []int64{second.ID, first.ID}))

	// A newcomer has no stored position and sorts last.
	newcomer := f.ticket(t, domain.TypeTask, "new", map[string]string{
		domain.FieldSprint: "Sprint 1",
	})
	require.NoError(t, b.Load(ctx))
	assert.Equal(t, []int64{second.ID, first.ID, newcomer.ID}, b.TicketIDs())
}

func TestAddAndRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task := f.ticket(t, domain.TypeTask, "drifter", nil)

	b, err := f.engine.Open(ctx, "Sprint Backlog", "Sprint 1")
	require.NoError(t, err)

	require.NoError(t, b.Add(ctx, task))
	assert.Equal(t, "Sprint 1", task.Get(domain.FieldSprint))

	require.NoError(t, b.Load(ctx))
	assert.Contains(t, b.TicketIDs(), task.ID)

	require.NoError(t, b.Remove(ctx, task))
	assert.Empty(t, task.Get(domain.FieldSprint))

	require.NoError(t, b.Load(ctx))
	assert.NotContains(t, b.TicketIDs(), task.ID)
}
