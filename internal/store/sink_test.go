package store

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/roach88/trigsync/internal/engine"
)

func TestSink_PublishAndObserve(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-a")

	k := NewSink(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := k.Publish(ctx, createTestEvent("run-a", 1, 1)); err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}
	k.OnDitch(ctx, engine.Ditch{RunToken: "run-a", EventNumber: 2, Packets: 1, Reason: engine.ReasonSuperseded})
	k.OnResync(ctx, engine.Resync{RunToken: "run-a", Cycle: 3, Reason: "host request"})

	events, _ := s.ReadEvents(ctx, "run-a")
	ditches, _ := s.ReadDitches(ctx, "run-a")
	resyncs, _ := s.ReadResyncs(ctx, "run-a")
	if len(events) != 1 || len(ditches) != 1 || len(resyncs) != 1 {
		t.Errorf("events=%d ditches=%d resyncs=%d, want 1 each", len(events), len(ditches), len(resyncs))
	}
}

func TestSink_ObserverErrorsAreLogged(t *testing.T) {
	s := createTestStore(t)
	k := NewSink(s, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// Unknown run violates the foreign key; the observer must not panic.
	k.OnDitch(context.Background(), engine.Ditch{RunToken: "missing", EventNumber: 1})

	ditches, err := s.ReadDitches(context.Background(), "missing")
	if err != nil {
		t.Fatalf("ReadDitches() failed: %v", err)
	}
	if len(ditches) != 0 {
		t.Errorf("got %d ditches, want 0", len(ditches))
	}
}
