package domain

// Standard ticket field names shared by every type.
const (
	FieldSummary     = "summary"
	FieldDescription = "description"
	FieldStatus      = "status"
	FieldResolution  = "resolution"
	FieldOwner       = "owner"
	FieldReporter    = "reporter"
	FieldCC          = "cc"
	FieldMilestone   = "milestone"
	FieldKeywords    = "keywords"
	FieldType        = "type"
)

// Custom field names used by the built-in ticket types.
const (
	FieldSprint        = "sprint"
	FieldBusinessValue = "business_value"
	FieldStoryPriority = "story_priority"
	FieldStoryPoints   = "story_points"
	FieldRemainingTime = "remaining_time"
	FieldResources     = "resources"
)

// StandardFields is the host tracker's fixed column set. These fields exist
// on every ticket row regardless of type and must stay non-null.
var StandardFields = []string{
	FieldSummary, FieldDescription, FieldStatus, FieldResolution,
	FieldOwner, FieldReporter, FieldCC, FieldMilestone, FieldKeywords,
}

// IsStandardField reports whether name is part of the fixed tracker column set.
func IsStandardField(name string) bool {
	for _, f := range StandardFields {
		if f == name {
			return true
		}
	}
	return false
}

// Ticket statuses.
const (
	StatusNew      = "new"
	StatusAccepted = "accepted"
	StatusClosed   = "closed"
)

// Resolutions.
const (
	ResolutionFixed = "fixed"
)

// Built-in ticket type names. The configured set is extendable; these are
// only the defaults.
const (
	TypeRequirement = "requirement"
	TypeUserStory   = "user_story"
	TypeTask        = "task"
	TypeBug         = "bug"
)

// ScopeType identifies how a backlog is scoped.
type ScopeType int

const (
	ScopeGlobal ScopeType = iota
	ScopeSprint
	ScopeMilestone
)

// GlobalScope is the sentinel scope value for unscoped backlogs.
const GlobalScope = "global"

func (s ScopeType) String() string {
	switch s {
	case ScopeSprint:
		return "sprint"
	case ScopeMilestone:
		return "milestone"
	default:
		return GlobalScope
	}
}

// ScopeField returns the ticket field a scoped backlog filters on, or ""
// for global backlogs.
func (s ScopeType) ScopeField() string {
	switch s {
	case ScopeSprint:
		return FieldSprint
	case ScopeMilestone:
		return FieldMilestone
	default:
		return ""
	}
}
