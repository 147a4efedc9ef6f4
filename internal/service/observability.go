package service

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// UseCaseEvent is the telemetry record for one service operation: what ran,
// how long it took, and with which identifying fields (ticket id, sprint
// name, backlog name).
type UseCaseEvent struct {
	Name      string
	StartedAt time.Time
	Duration  time.Duration
	Success   bool
	Err       error
	Fields    map[string]any
}

// UseCaseObserver receives one event per completed service operation.
type UseCaseObserver interface {
	ObserveUseCase(ctx context.Context, event UseCaseEvent)
}

// NoopUseCaseObserver discards every event.
type NoopUseCaseObserver struct{}

func (NoopUseCaseObserver) ObserveUseCase(context.Context, UseCaseEvent) {}

// NewLogUseCaseObserver emits events as slog text lines on w. A nil writer
// yields the noop observer.
func NewLogUseCaseObserver(w io.Writer) UseCaseObserver {
	if w == nil {
		return NoopUseCaseObserver{}
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	return &logUseCaseObserver{logger: slog.New(handler)}
}

type logUseCaseObserver struct {
	logger *slog.Logger
}

func (o *logUseCaseObserver) ObserveUseCase(ctx context.Context, event UseCaseEvent) {
	attrs := []any{
		"use_case", event.Name,
		"duration_ms", event.Duration.Milliseconds(),
		"success", event.Success,
	}
	for k, v := range event.Fields {
		attrs = append(attrs, k, v)
	}
	if event.Err != nil {
		attrs = append(attrs, "error", event.Err.Error())
		o.logger.ErrorContext(ctx, "use_case", attrs...)
		return
	}
	o.logger.InfoContext(ctx, "use_case", attrs...)
}

func useCaseObserverOrNoop(observers []UseCaseObserver) UseCaseObserver {
	for _, obs := range observers {
		if obs != nil {
			return obs
		}
	}
	return NoopUseCaseObserver{}
}

// observe runs fn and reports its outcome as a single event.
func observe(ctx context.Context, obs UseCaseObserver, name string, fields map[string]any, fn func() error) error {
	start := time.Now()
	err := fn()
	obs.ObserveUseCase(ctx, UseCaseEvent{
		Name:      name,
		StartedAt: start,
		Duration:  time.Since(start),
		Success:   err == nil,
		Err:       err,
		Fields:    fields,
	})
	return err
}
