package service

import (
	"context"
	"fmt"
	"time"

	"github.com/avanderberg/scrumline/internal/domain"
	"github.com/avanderberg/scrumline/internal/repository"
)

// TeamService manages teams and members and answers capacity questions for
// sprint planning.
type TeamService struct {
	store *repository.Store
	obs   UseCaseObserver
}

func NewTeamService(store *repository.Store, observers ...UseCaseObserver) *TeamService {
	return &TeamService{store: store, obs: useCaseObserverOrNoop(observers)}
}

func (s *TeamService) Create(ctx context.Context, t *domain.Team) error {
	return observe(ctx, s.obs, "team.create", map[string]any{"name": t.Name}, func() error {
		return s.store.Teams.Create(ctx, t)
	})
}

func (s *TeamService) Get(ctx context.Context, name string) (*domain.Team, error) {
	return s.store.Teams.GetByName(ctx, name)
}

func (s *TeamService) List(ctx context.Context) ([]*domain.Team, error) {
	return s.store.Teams.List(ctx)
}

func (s *TeamService) Update(ctx context.Context, t *domain.Team) error {
	return s.store.Teams.Update(ctx, t)
}

func (s *TeamService) Delete(ctx context.Context, name string) error {
	return observe(ctx, s.obs, "team.delete", map[string]any{"name": name}, func() error {
		return s.store.Teams.Delete(ctx, name)
	})
}

// AddMember attaches a member to an existing team.
func (s *TeamService) AddMember(ctx context.Context, m *domain.TeamMember) error {
	if m.Team != "" {
		if _, err := s.store.Teams.GetByName(ctx, m.Team); err != nil {
			return fmt.Errorf("member %q: %w", m.Name, err)
		}
	}
	return s.store.Teams.AddMember(ctx, m)
}

func (s *TeamService) Members(ctx context.Context, team string) ([]*domain.TeamMember, error) {
	return s.store.Teams.ListMembers(ctx, team)
}

func (s *TeamService) UpdateMember(ctx context.Context, m *domain.TeamMember) error {
	return s.store.Teams.UpdateMember(ctx, m)
}

func (s *TeamService) RemoveMember(ctx context.Context, name string) error {
	return s.store.Teams.RemoveMember(ctx, name)
}

// StoreMetric records one metric value for a team in a sprint, overwriting
// any earlier value under the same key.
func (s *TeamService) StoreMetric(ctx context.Context, team, sprint, key string, value float64) error {
	if _, err := s.store.Teams.GetByName(ctx, team); err != nil {
		return fmt.Errorf("metric %q: %w", key, err)
	}
	if _, err := s.store.Sprints.GetByName(ctx, sprint); err != nil {
		return fmt.Errorf("metric %q: %w", key, err)
	}
	return s.store.TeamMetrics.Save(ctx, &domain.TeamMetricsEntry{
		Team: team, Sprint: sprint, Key: key, Value: value,
	})
}

// Metrics returns the recorded metrics of a team for one sprint, keyed by
// metric name.
func (s *TeamService) Metrics(ctx context.Context, team, sprint string) (map[string]float64, error) {
	entries, err := s.store.TeamMetrics.List(ctx, team, sprint)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(entries))
	for _, e := range entries {
		out[e.Key] = e.Value
	}
	return out, nil
}

// SprintCapacity sums the daily capacity of the sprint's team over the
// sprint interval and subtracts the reserved contingent amounts. A sprint
// without a team has zero capacity.
func (s *TeamService) SprintCapacity(ctx context.Context, sprintName string) (float64, error) {
	sprint, err := s.store.Sprints.GetByName(ctx, sprintName)
	if err != nil {
		return 0, err
	}
	if sprint.Team == "" {
		return 0, nil
	}
	members, err := s.store.Teams.ListMembers(ctx, sprint.Team)
	if err != nil {
		return 0, err
	}
	var total float64
	for day := sprint.Start; day.Before(sprint.End); day = day.AddDate(0, 0, 1) {
		for _, m := range members {
			total += dailyCapacity(m, day.Weekday())
		}
	}
	contingents, err := s.store.Contingents.ListBySprint(ctx, sprintName)
	if err != nil {
		return 0, err
	}
	for _, c := range contingents {
		total -= c.Amount
	}
	if total < 0 {
		total = 0
	}
	return total, nil
}

// dailyCapacity reads the member's profile for one weekday. The profile is
// Monday-first; a member without a profile gets the default on weekdays.
func dailyCapacity(m *domain.TeamMember, weekday time.Weekday) float64 {
	var profiled bool
	for _, h := range m.Capacity {
		if h != 0 {
			profiled = true
			break
		}
	}
	idx := (int(weekday) + 6) % 7
	if profiled {
		return m.Capacity[idx]
	}
	if weekday == time.Saturday || weekday == time.Sunday {
		return 0
	}
	return domain.DefaultDailyCapacity
}
