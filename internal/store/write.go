package store

import (
	"context"
	"fmt"

	"github.com/roach88/trigsync/internal/builder"
	"github.com/roach88/trigsync/internal/daq"
	"github.com/roach88/trigsync/internal/engine"
)

// WriteRun inserts a run header.
// Uses ON CONFLICT(token) DO NOTHING for idempotency.
//
// settings is serialized to canonical JSON; values must be types accepted by
// daq.MarshalCanonical.
func (s *Store) WriteRun(ctx context.Context, token string, runNumber int, settings map[string]any) error {
	settingsJSON, err := marshalSettings(settings)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (token, run_number, settings, format_version, sync_version)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(token) DO NOTHING
	`, token, runNumber, settingsJSON, daq.FormatVersion, daq.SyncVersion)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// WriteEvent stores a composite event and its aggregates in one transaction.
// Uses ON CONFLICT DO NOTHING: the ID is content-addressed, so a duplicate
// write is the same event.
//
// The run referenced by ev.RunToken must exist (foreign key constraint).
func (s *Store) WriteEvent(ctx context.Context, ev *builder.Event) error {
	bodies := make([][]byte, len(ev.Aggregates))
	for i, a := range ev.Aggregates {
		body, err := marshalAggregate(a)
		if err != nil {
			return fmt.Errorf("write event %d: %w", ev.EventNumber, err)
		}
		bodies[i] = body
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write event %d: begin: %w", ev.EventNumber, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events
		(id, run_token, seq, event_number, run_number, clock_base, packet_count, words, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		ev.ID,
		ev.RunToken,
		ev.Seq,
		ev.EventNumber,
		ev.RunNumber,
		ev.ClockBase,
		len(ev.Records),
		ev.Words(),
		ev.Raw,
	)
	if err != nil {
		return fmt.Errorf("write event %d: %w", ev.EventNumber, err)
	}

	for i, a := range ev.Aggregates {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO aggregates (event_id, name, category, packet_count, body)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`, ev.ID, a.Name, a.Category.String(), len(a.Packets), bodies[i])
		if err != nil {
			return fmt.Errorf("write aggregate %s for event %d: %w", a.Name, ev.EventNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write event %d: commit: %w", ev.EventNumber, err)
	}
	return nil
}

// WriteDitch appends a ditch record.
func (s *Store) WriteDitch(ctx context.Context, d engine.Ditch) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ditches (run_token, event_number, packets, reason)
		VALUES (?, ?, ?, ?)
	`, d.RunToken, d.EventNumber, d.Packets, string(d.Reason))
	if err != nil {
		return fmt.Errorf("write ditch %d: %w", d.EventNumber, err)
	}
	return nil
}

// WriteResync appends a resynchronization record.
func (s *Store) WriteResync(ctx context.Context, r engine.Resync) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resyncs (run_token, cycle, reason, ditched, packets)
		VALUES (?, ?, ?, ?, ?)
	`, r.RunToken, r.Cycle, r.Reason, r.Ditched, r.Packets)
	if err != nil {
		return fmt.Errorf("write resync: %w", err)
	}
	return nil
}

// WriteDropped stores the final drop counts for a run, replacing earlier
// counts for the same packet identifiers.
func (s *Store) WriteDropped(ctx context.Context, runToken string, counts map[int]int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write dropped: begin: %w", err)
	}
	defer tx.Rollback()

	for id, count := range counts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO dropped_packets (run_token, packet_id, count)
			VALUES (?, ?, ?)
			ON CONFLICT(run_token, packet_id) DO UPDATE SET count = excluded.count
		`, runToken, id, count)
		if err != nil {
			return fmt.Errorf("write dropped %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write dropped: commit: %w", err)
	}
	return nil
}
