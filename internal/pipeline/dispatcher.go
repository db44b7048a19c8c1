package pipeline

import (
	"context"
	"log/slog"

	"github.com/arbwatch/arbwatch/internal/domain"
)

// Notifier delivers a signal to the operator.
type Notifier interface {
	NotifySignal(ctx context.Context, sig domain.ArbSignal)
}

// Dispatcher fans detected signals out to the journal, the bus, and the
// notifier. Every sink is optional; a failing sink is logged and never
// blocks the others.
type Dispatcher struct {
	signals  <-chan domain.ArbSignal
	notifier Notifier
	bus      domain.SignalBus
	journal  domain.SignalStore
	logger   *slog.Logger
}

func NewDispatcher(
	signals <-chan domain.ArbSignal,
	notifier Notifier,
	bus domain.SignalBus,
	journal domain.SignalStore,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		signals:  signals,
		notifier: notifier,
		bus:      bus,
		journal:  journal,
		logger:   logger.With(slog.String("component", "dispatcher")),
	}
}

func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig := <-d.signals:
			d.dispatch(ctx, sig)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, sig domain.ArbSignal) {
	if d.journal != nil {
		if err := d.journal.Insert(ctx, sig); err != nil {
			d.logger.Warn("signal journal write failed",
				slog.String("signal_id", sig.ID),
				slog.String("error", err.Error()))
		}
	}
	if d.bus != nil {
		if err := d.bus.Publish(ctx, sig); err != nil {
			d.logger.Warn("signal publish failed",
				slog.String("signal_id", sig.ID),
				slog.String("error", err.Error()))
		}
		if err := d.bus.StreamAppend(ctx, sig); err != nil {
			d.logger.Warn("signal stream append failed",
				slog.String("signal_id", sig.ID),
				slog.String("error", err.Error()))
		}
	}
	if d.notifier != nil {
		d.notifier.NotifySignal(ctx, sig)
	}
}
