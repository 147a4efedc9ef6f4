// Package rules implements the ordered write-time rule pipeline. Every
// ticket insert and save runs the full rule set before persistence; a rule
// may mutate the ticket or reject the save with a ValidationError.
package rules

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/avanderberg/scrumline/internal/domain"
)

// Environment gives rules access to the surrounding aggregate state. The
// ticket service implements it; tests substitute fakes.
type Environment interface {
	SprintByName(ctx context.Context, name string) (*domain.Sprint, error)
	TeamMemberNames(ctx context.Context, team string) ([]string, error)
	// Parents returns the tickets linking to t.
	Parents(ctx context.Context, t *domain.Ticket) ([]*domain.Ticket, error)
	// SaveParent persists a parent mutated by a rule, attributed to the
	// automation author.
	SaveParent(ctx context.Context, parent *domain.Ticket, author string) error
}

// Rule inspects and possibly mutates a ticket before it is saved. Rules are
// idempotent: re-running a rule on an unchanged ticket changes nothing.
type Rule interface {
	Name() string
	Apply(ctx context.Context, env Environment, t *domain.Ticket) error
}

// AutomationAuthor is recorded as the author of changes a rule makes to
// tickets other than the one being saved.
const AutomationAuthor = "agilo"

// Engine runs rules in a fixed order. Ordering matters: the sprint sync must
// run before the team membership check, and letter stripping must run before
// the close-on-zero transition.
type Engine struct {
	rules []Rule
}

// NewEngine builds the default pipeline.
func NewEngine() *Engine {
	return &Engine{rules: []Rule{
		SprintMilestoneSync{},
		ResetOwnerAndResources{},
		OwnerIsTeamMember{},
		CleanLettersFromRemainingTime{},
		CloseOnZeroRemainingTime{},
		LiftParentToAccepted{},
	}}
}

// Apply runs every rule. The first rejection stops the pipeline; the caller
// is expected to revert the ticket.
func (e *Engine) Apply(ctx context.Context, env Environment, t *domain.Ticket) error {
	for _, r := range e.rules {
		if err := r.Apply(ctx, env, t); err != nil {
			return err
		}
	}
	return nil
}

// SprintMilestoneSync keeps the sprint and milestone attributes consistent:
// a ticket assigned to a sprint always carries that sprint's milestone, and
// a milestone change that contradicts the current sprint clears the sprint.
type SprintMilestoneSync struct{}

func (SprintMilestoneSync) Name() string { return "sprint-milestone-sync" }

func (SprintMilestoneSync) Apply(ctx context.Context, env Environment, t *domain.Ticket) error {
	if !t.IsWritable(domain.FieldSprint) {
		return nil
	}
	if _, sprintChanged := t.OldValue(domain.FieldSprint); sprintChanged {
		name := t.Get(domain.FieldSprint)
		if name == "" {
			if !t.IsWritable(domain.FieldMilestone) {
				// Types without a milestone field keep the hidden
				// standard column empty.
				forceTracked(t, domain.FieldMilestone, "")
			}
			return nil
		}
		sprint, err := env.SprintByName(ctx, name)
		if err != nil {
			return reject(t, "sprint-milestone-sync",
				fmt.Sprintf("sprint %q does not exist", name))
		}
		if t.IsWritable(domain.FieldMilestone) {
			t.Set(domain.FieldMilestone, sprint.Milestone)
		} else {
			forceTracked(t, domain.FieldMilestone, sprint.Milestone)
		}
		return nil
	}
	if _, milestoneChanged := t.OldValue(domain.FieldMilestone); milestoneChanged {
		name := t.Get(domain.FieldSprint)
		if name == "" {
			return nil
		}
		sprint, err := env.SprintByName(ctx, name)
		if err != nil || sprint.Milestone != t.Get(domain.FieldMilestone) {
			t.Set(domain.FieldSprint, "")
		}
	}
	return nil
}

// forceTracked writes a field outside the type's field list and records the
// previous value, so the adjustment reaches the update statement and the
// change listeners like any tracked write.
func forceTracked(t *domain.Ticket, field, value string) {
	prev := t.Value(field)
	if prev == value {
		return
	}
	t.ForceValue(field, value)
	if _, tracked := t.OldValue(field); !tracked {
		t.TrackOld(field, prev)
	}
}

// ResetOwnerAndResources normalizes the owner/resources pair: everything
// trimmed, an empty owner promoted from the first resource, and the owner
// deduplicated out of the resource list.
type ResetOwnerAndResources struct{}

func (ResetOwnerAndResources) Name() string { return "reset-owner-and-resources" }

func (ResetOwnerAndResources) Apply(_ context.Context, _ Environment, t *domain.Ticket) error {
	if !t.IsWritable(domain.FieldOwner) || !t.IsWritable(domain.FieldResources) {
		return nil
	}
	owner := strings.TrimSpace(t.Get(domain.FieldOwner))
	resources := t.ResourceList(false)

	if owner == "" && len(resources) > 0 {
		owner = resources[0]
		resources = resources[1:]
	}
	kept := resources[:0]
	for _, res := range resources {
		if res != owner {
			kept = append(kept, res)
		}
	}
	t.Set(domain.FieldOwner, owner)
	t.Set(domain.FieldResources, strings.Join(kept, ", "))
	return nil
}

// OwnerIsTeamMember rejects a task-like ticket whose owner or resources are
// not members of the team assigned to the ticket's sprint.
type OwnerIsTeamMember struct{}

func (OwnerIsTeamMember) Name() string { return "owner-is-team-member" }

func (OwnerIsTeamMember) Apply(ctx context.Context, env Environment, t *domain.Ticket) error {
	if !t.IsTaskLike() {
		return nil
	}
	sprintName := t.Get(domain.FieldSprint)
	if sprintName == "" {
		return nil
	}
	sprint, err := env.SprintByName(ctx, sprintName)
	if err != nil || sprint.Team == "" {
		return nil
	}
	members, err := env.TeamMemberNames(ctx, sprint.Team)
	if err != nil {
		return fmt.Errorf("loading members of team %q: %w", sprint.Team, err)
	}
	isMember := func(name string) bool {
		for _, m := range members {
			if m == name {
				return true
			}
		}
		return false
	}
	for _, name := range t.ResourceList(true) {
		if !isMember(name) {
			return reject(t, "owner-is-team-member", fmt.Sprintf(
				"%s is not a member of team %s working on sprint %s",
				name, sprint.Team, sprintName))
		}
	}
	return nil
}

var numberPattern = regexp.MustCompile(`[0-9]+(\.[0-9]+)?`)

// CleanLettersFromRemainingTime strips unit suffixes and other stray text
// from remaining_time, so "3h" saves as "3". Values with no digits at all
// clear to empty.
type CleanLettersFromRemainingTime struct{}

func (CleanLettersFromRemainingTime) Name() string { return "clean-letters-from-remaining-time" }

func (CleanLettersFromRemainingTime) Apply(_ context.Context, _ Environment, t *domain.Ticket) error {
	if !t.IsTaskLike() {
		return nil
	}
	raw := t.Get(domain.FieldRemainingTime)
	if raw == "" {
		return nil
	}
	cleaned := numberPattern.FindString(raw)
	if cleaned != raw {
		t.Set(domain.FieldRemainingTime, cleaned)
	}
	return nil
}

// CloseOnZeroRemainingTime couples a task's status to its remaining work:
// closing zeroes the estimate, and burning the estimate to zero closes the
// task as fixed.
type CloseOnZeroRemainingTime struct{}

func (CloseOnZeroRemainingTime) Name() string { return "close-on-zero-remaining-time" }

func (CloseOnZeroRemainingTime) Apply(_ context.Context, _ Environment, t *domain.Ticket) error {
	if !t.IsTaskLike() || !t.IsWritable(domain.FieldRemainingTime) {
		return nil
	}
	oldStatus, statusChanged := t.OldValue(domain.FieldStatus)
	if statusChanged && t.Get(domain.FieldStatus) == domain.StatusClosed {
		t.Set(domain.FieldRemainingTime, "0")
		return nil
	}
	if _, remainingChanged := t.OldValue(domain.FieldRemainingTime); remainingChanged {
		remaining, ok := t.RemainingTime()
		wasClosed := statusChanged && oldStatus == domain.StatusClosed ||
			!statusChanged && t.Get(domain.FieldStatus) == domain.StatusClosed
		if ok && remaining == 0 && !wasClosed {
			t.Set(domain.FieldStatus, domain.StatusClosed)
			t.Set(domain.FieldResolution, domain.ResolutionFixed)
		}
	}
	return nil
}

// LiftParentToAccepted propagates acceptance upward: when a task moves to
// accepted, its user story parents that are still unaccepted follow.
type LiftParentToAccepted struct{}

func (LiftParentToAccepted) Name() string { return "lift-parent-to-accepted" }

func (LiftParentToAccepted) Apply(ctx context.Context, env Environment, t *domain.Ticket) error {
	if !t.IsTaskLike() || t.Get(domain.FieldStatus) != domain.StatusAccepted {
		return nil
	}
	if _, statusChanged := t.OldValue(domain.FieldStatus); !statusChanged {
		return nil
	}
	parents, err := env.Parents(ctx, t)
	if err != nil {
		return fmt.Errorf("loading parents of ticket %d: %w", t.ID, err)
	}
	for _, parent := range parents {
		if parent.Type != domain.TypeUserStory || parent.Get(domain.FieldStatus) == domain.StatusAccepted {
			continue
		}
		parent.Set(domain.FieldStatus, domain.StatusAccepted)
		if err := env.SaveParent(ctx, parent, AutomationAuthor); err != nil {
			return fmt.Errorf("accepting parent %d: %w", parent.ID, err)
		}
	}
	return nil
}
