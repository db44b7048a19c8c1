// Package notify delivers fired signals to operator channels. Signals are
// dispatched to every registered sender; one failing channel never blocks
// the others.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/arbwatch/arbwatch/internal/domain"
)

// Sender is the interface each notification channel implements.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier formats signals and fans them out to all senders. When
// skipLowDepth is set, signals flagged as thin get logged but not
// delivered.
type Notifier struct {
	senders      []Sender
	skipLowDepth bool
	logger       *slog.Logger
}

func NewNotifier(senders []Sender, skipLowDepth bool, logger *slog.Logger) *Notifier {
	return &Notifier{
		senders:      senders,
		skipLowDepth: skipLowDepth,
		logger:       logger.With(slog.String("component", "notifier")),
	}
}

// NotifySignal delivers one signal to every channel. Delivery errors are
// logged per sender; the signal is already journaled by the time it gets
// here, so nothing is retried.
func (n *Notifier) NotifySignal(ctx context.Context, sig domain.ArbSignal) {
	if n.skipLowDepth && sig.LowDepth {
		n.logger.Debug("low-depth signal suppressed",
			slog.String("signal_id", sig.ID),
			slog.String("market_id", sig.MarketID))
		return
	}
	if len(n.senders) == 0 {
		return
	}

	title := fmt.Sprintf("Arb edge %.2f%% on %s", sig.EffectiveEdge*100, sig.MarketID)
	message := FormatSignal(sig)

	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.Error("sender failed",
				slog.String("sender", s.Name()),
				slog.String("signal_id", sig.ID),
				slog.String("error", err.Error()))
			continue
		}
		n.logger.Debug("notification sent",
			slog.String("sender", s.Name()),
			slog.String("signal_id", sig.ID))
	}
}

// FormatSignal renders the signal body sent to operators.
func FormatSignal(sig domain.ArbSignal) string {
	var b strings.Builder
	if sig.Question != "" {
		fmt.Fprintf(&b, "%s\n", sig.Question)
	}
	fmt.Fprintf(&b, "YES ask %.3f (size %.0f)\n", sig.YesAskPrice, sig.YesAskSize)
	fmt.Fprintf(&b, "NO ask %.3f (size %.0f)\n", sig.NoAskPrice, sig.NoAskSize)
	fmt.Fprintf(&b, "Sum cost %.4f, edge %.4f after %.4f fee buffer\n",
		sig.SumCost, sig.EffectiveEdge, sig.FeeBuffer)
	fmt.Fprintf(&b, "Tier %s", sig.Tier)
	if sig.Latency > 0 {
		fmt.Fprintf(&b, ", data age %s", sig.Latency.Round(0))
	}
	if sig.LowDepth {
		b.WriteString("\nWARNING: thin top of book")
	}
	return b.String()
}
