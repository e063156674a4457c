package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ReadRuns returns every run header ordered by token.
// UUIDv7 tokens sort by creation time.
func (s *Store) ReadRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token, run_number, settings, format_version, sync_version
		FROM runs
		ORDER BY token COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.Token, &r.RunNumber, &r.Settings, &r.FormatVersion, &r.SyncVersion); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun returns one run header.
// Returns ErrNotFound if the token is unknown.
func (s *Store) ReadRun(ctx context.Context, token string) (Run, error) {
	var r Run
	err := s.db.QueryRowContext(ctx, `
		SELECT token, run_number, settings, format_version, sync_version
		FROM runs WHERE token = ?
	`, token).Scan(&r.Token, &r.RunNumber, &r.Settings, &r.FormatVersion, &r.SyncVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", token, ErrNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", token, err)
	}
	return r, nil
}

// ReadEvents returns the events of a run in emission order:
// ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if the run has no events.
func (s *Store) ReadEvents(ctx context.Context, runToken string) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_token, seq, event_number, run_number, clock_base, packet_count, words, payload
		FROM events
		WHERE run_token = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, runToken)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []EventRecord{}
	for rows.Next() {
		var e EventRecord
		if err := rows.Scan(&e.ID, &e.RunToken, &e.Seq, &e.EventNumber, &e.RunNumber,
			&e.ClockBase, &e.PacketCount, &e.Words, &e.Payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// ReadAggregates returns the aggregates of an event ordered by name.
func (s *Store) ReadAggregates(ctx context.Context, eventID string) ([]AggregateRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, category, body
		FROM aggregates
		WHERE event_id = ?
		ORDER BY name COLLATE BINARY ASC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("query aggregates: %w", err)
	}
	defer rows.Close()

	aggs := []AggregateRecord{}
	for rows.Next() {
		var (
			a    AggregateRecord
			body []byte
		)
		if err := rows.Scan(&a.Name, &a.Category, &body); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		decoded, err := unmarshalAggregate(body)
		if err != nil {
			return nil, fmt.Errorf("aggregate %s of %s: %w", a.Name, eventID, err)
		}
		a.EventID = eventID
		a.Packets = decoded.Packets
		aggs = append(aggs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregates: %w", err)
	}
	return aggs, nil
}

// ReadDitches returns the ditches of a run in the order they happened.
func (s *Store) ReadDitches(ctx context.Context, runToken string) ([]DitchRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ord, run_token, event_number, packets, reason
		FROM ditches
		WHERE run_token = ?
		ORDER BY ord ASC
	`, runToken)
	if err != nil {
		return nil, fmt.Errorf("query ditches: %w", err)
	}
	defer rows.Close()

	ditches := []DitchRecord{}
	for rows.Next() {
		var d DitchRecord
		if err := rows.Scan(&d.Ord, &d.RunToken, &d.EventNumber, &d.Packets, &d.Reason); err != nil {
			return nil, fmt.Errorf("scan ditch: %w", err)
		}
		ditches = append(ditches, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ditches: %w", err)
	}
	return ditches, nil
}

// CountDitches returns how many event numbers a run ditched per reason.
func (s *Store) CountDitches(ctx context.Context, runToken string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT reason, COUNT(*)
		FROM ditches
		WHERE run_token = ?
		GROUP BY reason
		ORDER BY reason ASC
	`, runToken)
	if err != nil {
		return nil, fmt.Errorf("count ditches: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var reason string
		var n int
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, fmt.Errorf("scan ditch count: %w", err)
		}
		counts[reason] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ditch counts: %w", err)
	}
	return counts, nil
}

// ReadResyncs returns the resynchronizations of a run in order.
func (s *Store) ReadResyncs(ctx context.Context, runToken string) ([]ResyncRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ord, run_token, cycle, reason, ditched, packets
		FROM resyncs
		WHERE run_token = ?
		ORDER BY ord ASC
	`, runToken)
	if err != nil {
		return nil, fmt.Errorf("query resyncs: %w", err)
	}
	defer rows.Close()

	resyncs := []ResyncRecord{}
	for rows.Next() {
		var r ResyncRecord
		if err := rows.Scan(&r.Ord, &r.RunToken, &r.Cycle, &r.Reason, &r.Ditched, &r.Packets); err != nil {
			return nil, fmt.Errorf("scan resync: %w", err)
		}
		resyncs = append(resyncs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resyncs: %w", err)
	}
	return resyncs, nil
}

// ReadDropped returns the drop counts of a run ordered by packet identifier.
func (s *Store) ReadDropped(ctx context.Context, runToken string) ([]DroppedRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT packet_id, count
		FROM dropped_packets
		WHERE run_token = ?
		ORDER BY packet_id ASC
	`, runToken)
	if err != nil {
		return nil, fmt.Errorf("query dropped packets: %w", err)
	}
	defer rows.Close()

	dropped := []DroppedRecord{}
	for rows.Next() {
		var d DroppedRecord
		if err := rows.Scan(&d.PacketID, &d.Count); err != nil {
			return nil, fmt.Errorf("scan dropped packet: %w", err)
		}
		dropped = append(dropped, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dropped packets: %w", err)
	}
	return dropped, nil
}
