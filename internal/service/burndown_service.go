package service

import (
	"context"

	"github.com/avanderberg/scrumline/internal/domain"
	"github.com/avanderberg/scrumline/internal/repository"
)

// BurndownService reads the delta log written by the burndown listener.
type BurndownService struct {
	store *repository.Store
}

func NewBurndownService(store *repository.Store) *BurndownService {
	return &BurndownService{store: store}
}

// RemainingTimeSeries returns the raw remaining-work deltas of a sprint in
// log order.
func (s *BurndownService) RemainingTimeSeries(ctx context.Context, sprint string) ([]domain.BurndownDataChange, error) {
	return s.store.Burndown.Series(ctx, domain.BurndownRemainingTime, sprint)
}

// RemainingTime returns the current remaining work of a sprint, the running
// sum of its delta log.
func (s *BurndownService) RemainingTime(ctx context.Context, sprint string) (float64, error) {
	series, err := s.RemainingTimeSeries(ctx, sprint)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, c := range series {
		total += c.Value
	}
	return total, nil
}
