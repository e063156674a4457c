package store

import (
	"context"
	"log/slog"

	"github.com/roach88/trigsync/internal/builder"
	"github.com/roach88/trigsync/internal/engine"
)

// Sink publishes engine output into a Store.
//
// It implements builder.Sink for events and engine.Observer for ditches and
// resynchronizations. Observer writes cannot fail the cycle, so their
// errors are logged.
type Sink struct {
	store  *Store
	logger *slog.Logger
}

// NewSink wraps s. A nil logger uses slog.Default().
func NewSink(s *Store, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{store: s, logger: logger}
}

// Publish implements builder.Sink.
func (k *Sink) Publish(ctx context.Context, ev *builder.Event) error {
	return k.store.WriteEvent(ctx, ev)
}

// OnDitch implements engine.Observer.
func (k *Sink) OnDitch(ctx context.Context, d engine.Ditch) {
	if err := k.store.WriteDitch(ctx, d); err != nil {
		k.logger.Error("store ditch failed", "event", d.EventNumber, "error", err)
	}
}

// OnResync implements engine.Observer.
func (k *Sink) OnResync(ctx context.Context, r engine.Resync) {
	if err := k.store.WriteResync(ctx, r); err != nil {
		k.logger.Error("store resync failed", "cycle", r.Cycle, "error", err)
	}
}

var (
	_ builder.Sink    = (*Sink)(nil)
	_ engine.Observer = (*Sink)(nil)
)
