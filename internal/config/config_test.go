package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avanderberg/scrumline/internal/domain"
)

func TestDefault_TypeSchemas(t *testing.T) {
	c := Default()

	assert.ElementsMatch(t,
		[]string{domain.TypeRequirement, domain.TypeUserStory, domain.TypeTask, domain.TypeBug},
		c.TypeNames())

	task := c.SchemaFor(domain.TypeTask)
	require.NotNil(t, task)
	assert.True(t, task.HasField(domain.FieldRemainingTime))
	assert.False(t, task.HasField(domain.FieldMilestone))
	assert.Equal(t, domain.StatusNew, task.Default(domain.FieldStatus))

	assert.Nil(t, c.SchemaFor("epic"))
}

func TestDefault_LinkRules(t *testing.T) {
	rules := Default().LinkRules()

	assert.True(t, rules.IsAllowed(domain.TypeUserStory, domain.TypeTask))
	assert.False(t, rules.IsAllowed(domain.TypeTask, domain.TypeUserStory))
	assert.True(t, rules.CascadesDelete(domain.TypeUserStory, domain.TypeTask))
	assert.False(t, rules.CascadesDelete(domain.TypeRequirement, domain.TypeUserStory))
}

func TestTotalRemainingTime_SumsDescendants(t *testing.T) {
	c := Default()
	story := domain.NewTicket(c, domain.TypeUserStory)
	story.ID = 1
	t1 := domain.NewTicket(c, domain.TypeTask)
	t1.ID = 2
	t1.Set(domain.FieldRemainingTime, "3")
	t2 := domain.NewTicket(c, domain.TypeTask)
	t2.ID = 3
	t2.Set(domain.FieldRemainingTime, "2.5")

	story.CacheOutgoing(t1)
	story.CacheOutgoing(t2)

	assert.Equal(t, "5.5", story.Get("total_remaining_time"))
}

func TestTotalRemainingTime_SurvivesLinkCycle(t *testing.T) {
	c := Default()
	story := domain.NewTicket(c, domain.TypeUserStory)
	story.ID = 1
	task := domain.NewTicket(c, domain.TypeTask)
	task.ID = 2
	task.Set(domain.FieldRemainingTime, "4")

	story.CacheOutgoing(task)
	task.CacheOutgoing(story)

	assert.Equal(t, "4", story.Get("total_remaining_time"))
}

func TestLoad_MergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scrumline.yaml")
	content := `
types:
  epic:
    fields: [summary, description, status, owner, business_value]
    defaults:
      status: new
    skip: [owner]
    calculated:
      - name: total_story_points
        op: sum
        field: story_points
links:
  allow:
    - epic->user_story
    - user_story->task
backlogs:
  Release Backlog:
    columns: [business_value, story_points|remaining_time]
    include_planned_items: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c, err := Load(path)
	require.NoError(t, err)

	epic := c.SchemaFor("epic")
	require.NotNil(t, epic)
	assert.True(t, epic.HasField(domain.FieldBusinessValue))
	require.Len(t, epic.Calculated, 1)
	assert.True(t, epic.IsSkipped(domain.FieldOwner))
	assert.False(t, epic.IsSkipped(domain.FieldSummary))

	assert.True(t, c.LinkRules().IsAllowed("epic", domain.TypeUserStory))
	assert.False(t, c.LinkRules().IsAllowed(domain.TypeRequirement, domain.TypeUserStory))

	settings := c.BacklogSettings("Release Backlog")
	assert.True(t, settings.IncludePlannedItems)
	require.Len(t, settings.Columns, 2)
	assert.Equal(t, "story_points", settings.Columns[1].Name)
	assert.Equal(t, "remaining_time", settings.Columns[1].Alternative)

	// Untouched defaults survive the merge.
	assert.NotNil(t, c.SchemaFor(domain.TypeTask))
	assert.NotEmpty(t, c.BacklogSettings("Sprint Backlog").Columns)
}

func TestLoad_RejectsBadPair(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("links:\n  allow: [nonsense]\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
