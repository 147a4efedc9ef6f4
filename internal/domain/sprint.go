package domain

import "time"

// Sprint is a temporal container for tickets. Every sprint belongs to a
// milestone; the rule engine keeps ticket milestone fields in sync with the
// sprint's milestone.
type Sprint struct {
	Name        string
	Description string
	Start       time.Time
	End         time.Time
	Milestone   string
	Team        string
}

// DefaultSprintDuration is the sprint length in days used when no end date
// is given.
const DefaultSprintDuration = 14

// Duration returns the sprint length in whole days.
func (s *Sprint) Duration() int {
	if s.End.Before(s.Start) {
		return 0
	}
	return int(s.End.Sub(s.Start).Hours() / 24)
}

// SetDuration places End at the given number of days after Start.
func (s *Sprint) SetDuration(days int) {
	s.End = s.Start.AddDate(0, 0, days)
}

// IsCurrentlyRunning reports whether now falls inside the sprint interval.
func (s *Sprint) IsCurrentlyRunning(now time.Time) bool {
	return !now.Before(s.Start) && now.Before(s.End)
}

// IsClosed reports whether the sprint has ended.
func (s *Sprint) IsClosed(now time.Time) bool {
	return !now.Before(s.End)
}

// Milestone is a named release target. Renaming a milestone cascades to all
// tickets and sprints referring to it.
type Milestone struct {
	Name        string
	Description string
	Due         *time.Time
	Completed   *time.Time
}

// Contingent is a named per-sprint buffer of hours reserved for unplanned
// work. Actual must never exceed Amount.
type Contingent struct {
	Name   string
	Sprint string
	Amount float64
	Actual float64
}
