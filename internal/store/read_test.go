package store

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/roach88/trigsync/internal/engine"
)

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadRun(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("ReadRun() error = %v, want ErrNotFound", err)
	}
}

func TestReadRun_Versions(t *testing.T) {
	s := createTestStore(t)
	createTestRun(t, s, "run-a")

	r, err := s.ReadRun(context.Background(), "run-a")
	if err != nil {
		t.Fatalf("ReadRun() failed: %v", err)
	}
	if r.FormatVersion != "1" {
		t.Errorf("format version = %s, want 1", r.FormatVersion)
	}
	if r.Settings != "{}" {
		t.Errorf("settings = %s, want {}", r.Settings)
	}
}

func TestReadEvents_OrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-a")

	// Written out of order on purpose.
	for _, seq := range []uint64{3, 1, 2} {
		if err := s.WriteEvent(ctx, createTestEvent("run-a", int(seq)*10, seq)); err != nil {
			t.Fatalf("WriteEvent() failed: %v", err)
		}
	}

	events, err := s.ReadEvents(ctx, "run-a")
	if err != nil {
		t.Fatalf("ReadEvents() failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for i, e := range events {
		if e.Seq != uint64(i+1) {
			t.Errorf("events[%d].Seq = %d, want %d", i, e.Seq, i+1)
		}
	}
}

func TestReadEvents_EmptyRun(t *testing.T) {
	s := createTestStore(t)

	events, err := s.ReadEvents(context.Background(), "run-a")
	if err != nil {
		t.Fatalf("ReadEvents() failed: %v", err)
	}
	if events == nil {
		t.Error("ReadEvents() returned nil, want empty slice")
	}
}

func TestReadEvents_ScopedToRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-a")
	createTestRun(t, s, "run-b")

	if err := s.WriteEvent(ctx, createTestEvent("run-a", 1, 1)); err != nil {
		t.Fatalf("WriteEvent() failed: %v", err)
	}
	if err := s.WriteEvent(ctx, createTestEvent("run-b", 1, 1)); err != nil {
		t.Fatalf("WriteEvent() failed: %v", err)
	}

	events, err := s.ReadEvents(ctx, "run-b")
	if err != nil {
		t.Fatalf("ReadEvents() failed: %v", err)
	}
	if len(events) != 1 || events[0].RunToken != "run-b" {
		t.Errorf("events = %+v, want one run-b event", events)
	}
}

func TestReadAggregates_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-a")

	ev := createTestEvent("run-a", 4, 1)
	if err := s.WriteEvent(ctx, ev); err != nil {
		t.Fatalf("WriteEvent() failed: %v", err)
	}

	aggs, err := s.ReadAggregates(ctx, ev.ID)
	if err != nil {
		t.Fatalf("ReadAggregates() failed: %v", err)
	}
	if len(aggs) != 2 {
		t.Fatalf("got %d aggregates, want 2", len(aggs))
	}

	// Ordered by name: CALOPackets sorts before GL1Packet.
	if aggs[0].Name != "CALOPackets" || aggs[1].Name != "GL1Packet" {
		t.Fatalf("aggregate order = %s, %s", aggs[0].Name, aggs[1].Name)
	}
	if aggs[1].Category != "gl1" {
		t.Errorf("category = %s, want gl1", aggs[1].Category)
	}
	p := aggs[1].Packets[0]
	if p.ID != 14001 || p.EventNumber != 4 || p.Clock != 100 {
		t.Errorf("packet = %+v", p)
	}
	if !bytes.Equal(p.Data, []byte{1, 2, 3}) {
		t.Errorf("data = %v, want [1 2 3]", p.Data)
	}
}

func TestReadAggregates_CorruptBody(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-a")

	ev := createTestEvent("run-a", 4, 1)
	if err := s.WriteEvent(ctx, ev); err != nil {
		t.Fatalf("WriteEvent() failed: %v", err)
	}
	if _, err := s.db.Exec(`UPDATE aggregates SET body = x'c1' WHERE event_id = ?`, ev.ID); err != nil {
		t.Fatalf("corrupt body: %v", err)
	}

	if _, err := s.ReadAggregates(ctx, ev.ID); err == nil {
		t.Fatal("ReadAggregates() should fail on a corrupt body")
	}
}

func TestCountDitches_GroupsByReason(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-a")
	createTestRun(t, s, "run-b")

	ditches := []engine.Ditch{
		{RunToken: "run-a", EventNumber: 1, Packets: 2, Reason: engine.ReasonMissing},
		{RunToken: "run-a", EventNumber: 2, Packets: 1, Reason: engine.ReasonMisaligned},
		{RunToken: "run-a", EventNumber: 3, Packets: 3, Reason: engine.ReasonMissing},
		{RunToken: "run-b", EventNumber: 1, Packets: 1, Reason: engine.ReasonResync},
	}
	for _, d := range ditches {
		if err := s.WriteDitch(ctx, d); err != nil {
			t.Fatalf("WriteDitch() failed: %v", err)
		}
	}

	counts, err := s.CountDitches(ctx, "run-a")
	if err != nil {
		t.Fatalf("CountDitches() failed: %v", err)
	}
	want := map[string]int{"missing_contribution": 2, "misaligned": 1}
	if len(counts) != len(want) {
		t.Fatalf("counts = %v, want %v", counts, want)
	}
	for reason, n := range want {
		if counts[reason] != n {
			t.Errorf("counts[%s] = %d, want %d", reason, counts[reason], n)
		}
	}

	empty, err := s.CountDitches(ctx, "run-z")
	if err != nil {
		t.Fatalf("CountDitches() failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("unknown run counts = %v, want empty", empty)
	}
}
