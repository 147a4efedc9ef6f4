package domain

// Team is a group of members that can be assigned to a sprint. The rule
// engine uses the assignment to validate ticket owners and resources.
type Team struct {
	Name        string
	Description string
}

// TeamMember is a named person with an optional team reference and a weekly
// capacity profile (hours per weekday, Monday first).
type TeamMember struct {
	Name     string
	Team     string
	Capacity [7]float64
}

// TeamMetricsEntry is one recorded metric value for a team in a sprint,
// keyed by a free-form metric name such as "velocity" or "capacity".
type TeamMetricsEntry struct {
	Team   string
	Sprint string
	Key    string
	Value  float64
}

// DefaultDailyCapacity is assumed when a member has no explicit profile.
const DefaultDailyCapacity = 6.0

// WeeklyCapacity sums the member's capacity profile. A member with an empty
// profile gets the default for the five working days.
func (m *TeamMember) WeeklyCapacity() float64 {
	var total float64
	for _, h := range m.Capacity {
		total += h
	}
	if total == 0 {
		return DefaultDailyCapacity * 5
	}
	return total
}
