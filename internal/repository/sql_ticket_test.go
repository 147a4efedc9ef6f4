package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avanderberg/scrumline/internal/config"
	"github.com/avanderberg/scrumline/internal/domain"
	"github.com/avanderberg/scrumline/internal/testutil"
)

func newTicketRepo(t *testing.T) (*SQLTicketRepo, *config.Config) {
	t.Helper()
	database := testutil.NewTestDB(t)
	cfg := config.Default()
	return NewSQLTicketRepo(database, database.Dialect, cfg), cfg
}

func TestTicketRepo_CreateAndGet(t *testing.T) {
	repo, cfg := newTicketRepo(t)
	ctx := context.Background()

	task := testutil.NewTicket(cfg, domain.TypeTask, "Implement login",
		testutil.WithField(domain.FieldRemainingTime, "8"),
		testutil.WithOwner("alice"))
	require.NoError(t, repo.Create(ctx, task))
	assert.NotZero(t, task.ID)
	assert.True(t, task.Exists())
	assert.False(t, task.Changed())

	repo.ResetCache()
	loaded, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TypeTask, loaded.Type)
	assert.Equal(t, "Implement login", loaded.Get(domain.FieldSummary))
	assert.Equal(t, "8", loaded.Get(domain.FieldRemainingTime))
	assert.Equal(t, "alice", loaded.Get(domain.FieldOwner))
	assert.False(t, loaded.Changed())
}

func TestTicketRepo_GetByID_NotFound(t *testing.T) {
	repo, _ := newTicketRepo(t)
	_, err := repo.GetByID(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTicketRepo_IdentityCache(t *testing.T) {
	repo, cfg := newTicketRepo(t)
	ctx := context.Background()

	task := testutil.NewTicket(cfg, domain.TypeTask, "Cached")
	require.NoError(t, repo.Create(ctx, task))

	again, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Same(t, task, again)

	// A fresh cache produces a fresh instance.
	repo.ResetCache()
	fresh, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.NotSame(t, task, fresh)

	// Select funnels hits through the same cache.
	results, err := repo.Select(ctx, Criteria{"summary": "Cached"}, nil, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Same(t, fresh, results[0])
}

func TestTicketRepo_SelectByCustomField(t *testing.T) {
	repo, cfg := newTicketRepo(t)
	ctx := context.Background()

	inSprint := testutil.NewTicket(cfg, domain.TypeTask, "In sprint",
		testutil.WithField(domain.FieldSprint, "Sprint 1"))
	outside := testutil.NewTicket(cfg, domain.TypeTask, "Outside")
	require.NoError(t, repo.Create(ctx, inSprint))
	require.NoError(t, repo.Create(ctx, outside))

	results, err := repo.Select(ctx, Criteria{domain.FieldSprint: "Sprint 1"}, nil, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, inSprint.ID, results[0].ID)

	// nil matches NULL joins as well as empty values.
	results, err = repo.Select(ctx, Criteria{domain.FieldSprint: nil}, nil, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, outside.ID, results[0].ID)
}

func TestTicketRepo_SelectOperatorsOrderAndLimit(t *testing.T) {
	repo, cfg := newTicketRepo(t)
	ctx := context.Background()

	for _, tt := range []struct {
		summary string
		status  string
	}{
		{"a", domain.StatusNew},
		{"b", domain.StatusClosed},
		{"c", domain.StatusNew},
	} {
		tk := testutil.NewTicket(cfg, domain.TypeTask, tt.summary,
			testutil.WithStatus(tt.status))
		require.NoError(t, repo.Create(ctx, tk))
	}

	open, err := repo.Select(ctx, Criteria{"status": "!=closed"}, []string{"-summary"}, 0)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "c", open[0].Get(domain.FieldSummary))
	assert.Equal(t, "a", open[1].Get(domain.FieldSummary))

	limited, err := repo.Select(ctx, Criteria{"status": "in (new, closed)"}, []string{"summary"}, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "a", limited[0].Get(domain.FieldSummary))

	byType, err := repo.Select(ctx, Criteria{"type": domain.TypeTask}, nil, 0)
	require.NoError(t, err)
	assert.Len(t, byType, 3)
}

func TestTicketRepo_SelectRejectsBadFieldName(t *testing.T) {
	repo, _ := newTicketRepo(t)
	_, err := repo.Select(context.Background(), Criteria{"no;drop": "x"}, nil, 0)
	assert.ErrorIs(t, err, ErrUnableToLoad)
}

func TestTicketRepo_UpdateWritesChangedFields(t *testing.T) {
	repo, cfg := newTicketRepo(t)
	ctx := context.Background()

	task := testutil.NewTicket(cfg, domain.TypeTask, "Original",
		testutil.WithField(domain.FieldRemainingTime, "8"))
	require.NoError(t, repo.Create(ctx, task))

	task.Set(domain.FieldSummary, "Renamed")
	task.Set(domain.FieldRemainingTime, "4")
	require.NoError(t, repo.Update(ctx, task))
	assert.False(t, task.Changed())

	repo.ResetCache()
	loaded, err := repo.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", loaded.Get(domain.FieldSummary))
	assert.Equal(t, "4", loaded.Get(domain.FieldRemainingTime))
}

func TestTicketRepo_UpdateCleanTicketIsNoop(t *testing.T) {
	repo, cfg := newTicketRepo(t)
	ctx := context.Background()

	task := testutil.NewTicket(cfg, domain.TypeTask, "Clean")
	require.NoError(t, repo.Create(ctx, task))
	require.NoError(t, repo.Update(ctx, task))
}

func TestTicketRepo_UpdateDetectsConcurrentChange(t *testing.T) {
	repo, cfg := newTicketRepo(t)
	ctx := context.Background()

	task := testutil.NewTicket(cfg, domain.TypeTask, "Contended")
	require.NoError(t, repo.Create(ctx, task))

	// Another writer bumps the row's change time underneath us.
	_, execErr := repo.db.ExecContext(ctx,
		`UPDATE ticket SET changetime = changetime + 100 WHERE id = ?`, task.ID)
	require.NoError(t, execErr)

	task.Set(domain.FieldSummary, "Stale write")
	err := repo.Update(ctx, task)
	assert.ErrorIs(t, err, ErrUnableToSave)
}

func TestTicketRepo_Delete(t *testing.T) {
	repo, cfg := newTicketRepo(t)
	ctx := context.Background()

	task := testutil.NewTicket(cfg, domain.TypeTask, "Doomed")
	require.NoError(t, repo.Create(ctx, task))
	require.NoError(t, repo.Delete(ctx, task.ID))

	_, err := repo.GetByID(ctx, task.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	err = repo.Delete(ctx, task.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTicketRepo_TypeChangeDropsRetiredCustomRows(t *testing.T) {
	repo, cfg := newTicketRepo(t)
	ctx := context.Background()

	task := testutil.NewTicket(cfg, domain.TypeTask, "Mutating",
		testutil.WithField(domain.FieldRemainingTime, "5"))
	require.NoError(t, repo.Create(ctx, task))

	task.SetType(domain.TypeUserStory)
	task.TrackOld(domain.FieldType, domain.TypeTask)
	require.NoError(t, repo.Update(ctx, task))

	var n int
	err := repo.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ticket_custom WHERE ticket = ? AND name = ?`,
		task.ID, domain.FieldRemainingTime).Scan(&n)
	require.NoError(t, err)
	assert.Zero(t, n)
}
