package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/trigsync/internal/builder"
	"github.com/roach88/trigsync/internal/daq"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun writes a run header with empty settings.
func createTestRun(t *testing.T, s *Store, token string) {
	t.Helper()
	if err := s.WriteRun(context.Background(), token, 7, nil); err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}
}

// createTestEvent creates an event with one GL1 packet and one calo packet.
func createTestEvent(token string, n int, seq uint64) *builder.Event {
	gl1 := daq.Packet{ID: 14001, EventNumber: n, Clock: 100, Source: 0, Data: []byte{1, 2, 3}}
	calo := daq.Packet{ID: 6001, EventNumber: n, Clock: 98, Source: 1, Data: []byte{4}}
	raw := []byte{byte(n), 0, 0, 0, byte(seq), 0, 0, 0}
	return &builder.Event{
		ID:          daq.MustEventID(token, 7, n, daq.PayloadDigest(raw)),
		EventNumber: n,
		RunNumber:   7,
		RunToken:    token,
		Seq:         seq,
		ClockBase:   100,
		Records: []builder.PacketRecord{
			{ID: gl1.ID, Category: daq.CategoryGL1, Source: 0, Bytes: 3, Offset: 6},
			{ID: calo.ID, Category: daq.CategoryCalo, Source: 1, Bytes: 1, Offset: 12},
		},
		Raw: raw,
		Aggregates: []*builder.Aggregate{
			{Name: builder.AggregateGL1, Category: daq.CategoryGL1, Packets: []daq.Packet{gl1}},
			{Name: builder.AggregateCalo, Category: daq.CategoryCalo, Packets: []daq.Packet{calo}},
		},
	}
}
