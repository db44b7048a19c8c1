package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Orchestrator runs named loops as one unit: the first real failure stops
// the group, plain context cancellation does not count as failure.
type Orchestrator struct {
	logger  *slog.Logger
	names   []string
	runners []func(context.Context) error
}

func NewOrchestrator(logger *slog.Logger) *Orchestrator {
	return &Orchestrator{logger: logger.With(slog.String("component", "orchestrator"))}
}

func (o *Orchestrator) Add(name string, run func(context.Context) error) {
	o.names = append(o.names, name)
	o.runners = append(o.runners, run)
}

func (o *Orchestrator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := range o.runners {
		name, run := o.names[i], o.runners[i]
		g.Go(func() error {
			o.logger.Debug("loop started", slog.String("loop", name))
			err := run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				o.logger.Error("loop failed",
					slog.String("loop", name),
					slog.String("error", err.Error()))
				return err
			}
			o.logger.Debug("loop stopped", slog.String("loop", name))
			return nil
		})
	}
	return g.Wait()
}
