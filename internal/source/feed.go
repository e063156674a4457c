package source

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/trigsync/internal/daq"
)

// Feed describes a set of recorded streams in YAML.
//
//	sources:
//	  - name: seb00
//	    category: prdf
//	    reference: true
//	    packets:
//	      - {event: 1, clock: 100, id: 1001, size: 16}
//	    runs:
//	      - {from: 2, to: 50, clock: 120, step: 20, id: 1001, size: 16}
type Feed struct {
	Sources []SourceSpec `yaml:"sources"`
}

// SourceSpec describes one recorded stream.
type SourceSpec struct {
	// Name uniquely identifies the source within the feed.
	Name string `yaml:"name"`

	// Category is the category name (prdf, trigger, gl1, mbd, calo).
	Category string `yaml:"category"`

	// Reference marks the timing reference. At most one source may set it.
	Reference bool `yaml:"reference,omitempty"`

	// Packets lists individual packets in arrival order.
	Packets []PacketSpec `yaml:"packets,omitempty"`

	// Runs generate one packet per event number over a range, appended
	// after Packets in the order listed.
	Runs []RunSpec `yaml:"runs,omitempty"`

	// Open leaves the source open after its packets are queued, so the
	// driver waits for it instead of treating it as exhausted.
	Open bool `yaml:"open,omitempty"`
}

// PacketSpec is a single packet.
type PacketSpec struct {
	Event int    `yaml:"event"`
	Clock uint64 `yaml:"clock"`
	ID    int    `yaml:"id"`

	// Size generates a deterministic payload of this many bytes.
	Size int `yaml:"size,omitempty"`

	// Data is a hex payload. Takes precedence over Size.
	Data string `yaml:"data,omitempty"`
}

// RunSpec generates packets for events From..To inclusive.
// The clock for event e is Clock + (e-From)*Step.
type RunSpec struct {
	From  int    `yaml:"from"`
	To    int    `yaml:"to"`
	Clock uint64 `yaml:"clock"`
	Step  uint64 `yaml:"step"`
	ID    int    `yaml:"id"`
	Size  int    `yaml:"size,omitempty"`
}

// LoadFeed reads and validates a feed file.
func LoadFeed(path string) (*Feed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed file: %w", err)
	}
	return DecodeFeed(bytes.NewReader(data))
}

// DecodeFeed parses a feed with strict field validation.
func DecodeFeed(r io.Reader) (*Feed, error) {
	var feed Feed
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&feed); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := feed.Validate(); err != nil {
		return nil, fmt.Errorf("invalid feed: %w", err)
	}
	return &feed, nil
}

// Validate checks names, categories, reference uniqueness and ranges.
func (f *Feed) Validate() error {
	if len(f.Sources) == 0 {
		return fmt.Errorf("sources list is required and must be non-empty")
	}

	seen := make(map[string]bool, len(f.Sources))
	refs := 0
	for i, s := range f.Sources {
		if s.Name == "" {
			return fmt.Errorf("sources[%d]: name is required", i)
		}
		name := daq.NormalizeName(s.Name)
		if seen[name] {
			return fmt.Errorf("sources[%d]: duplicate source name %q", i, s.Name)
		}
		seen[name] = true

		if _, err := daq.ParseCategory(s.Category); err != nil {
			return fmt.Errorf("sources[%d]: %w", i, err)
		}
		if s.Reference {
			refs++
		}
		for j, p := range s.Packets {
			if p.Data != "" {
				if _, err := hex.DecodeString(p.Data); err != nil {
					return fmt.Errorf("sources[%d].packets[%d]: data must be hex: %v", i, j, err)
				}
			}
			if p.Size < 0 {
				return fmt.Errorf("sources[%d].packets[%d]: size must be non-negative", i, j)
			}
		}
		for j, r := range s.Runs {
			if r.To < r.From {
				return fmt.Errorf("sources[%d].runs[%d]: to (%d) must be >= from (%d)", i, j, r.To, r.From)
			}
			if r.Size < 0 {
				return fmt.Errorf("sources[%d].runs[%d]: size must be non-negative", i, j)
			}
		}
	}
	if refs > 1 {
		return fmt.Errorf("at most one source may be the reference, got %d", refs)
	}
	return nil
}

// Reference returns the name of the reference source, or "" if none.
func (f *Feed) Reference() string {
	for _, s := range f.Sources {
		if s.Reference {
			return daq.NormalizeName(s.Name)
		}
	}
	return ""
}

// ParsedCategory returns the parsed category. The feed must be valid.
func (s SourceSpec) ParsedCategory() daq.Category {
	c, _ := daq.ParseCategory(s.Category)
	return c
}

// Build materializes the definition into a Memory source.
// The source is closed after its packets unless Open is set.
func (s SourceSpec) Build() *Memory {
	m := NewMemory(s.Name)
	m.Push(s.Expand()...)
	if !s.Open {
		m.Close()
	}
	return m
}

// Expand returns the packets described by the definition in arrival order.
func (s SourceSpec) Expand() []daq.Packet {
	var pkts []daq.Packet
	for _, p := range s.Packets {
		data := syntheticPayload(p.ID, p.Event, p.Size)
		if p.Data != "" {
			data, _ = hex.DecodeString(p.Data)
		}
		pkts = append(pkts, daq.Packet{
			ID:          p.ID,
			EventNumber: p.Event,
			Clock:       p.Clock,
			Data:        data,
			Source:      daq.NoHandle,
		})
	}
	for _, r := range s.Runs {
		for e := r.From; e <= r.To; e++ {
			pkts = append(pkts, daq.Packet{
				ID:          r.ID,
				EventNumber: e,
				Clock:       r.Clock + uint64(e-r.From)*r.Step,
				Data:        syntheticPayload(r.ID, e, r.Size),
				Source:      daq.NoHandle,
			})
		}
	}
	return pkts
}

// BuildAll materializes every source, keyed by normalized name, and returns
// the names in feed order.
func (f *Feed) BuildAll() (map[string]*Memory, []string) {
	out := make(map[string]*Memory, len(f.Sources))
	names := make([]string, 0, len(f.Sources))
	for _, s := range f.Sources {
		m := s.Build()
		out[m.Name()] = m
		names = append(names, m.Name())
	}
	return out, names
}

// EventNumbers returns the distinct event numbers present in the feed, sorted.
func (f *Feed) EventNumbers() []int {
	set := make(map[int]struct{})
	for _, s := range f.Sources {
		for _, p := range s.Expand() {
			set[p.EventNumber] = struct{}{}
		}
	}
	out := make([]int, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// syntheticPayload fills size bytes with a pattern derived from the packet
// id and event number, so replays produce identical payloads.
func syntheticPayload(id, event, size int) []byte {
	if size <= 0 {
		return nil
	}
	data := make([]byte, size)
	seed := byte(id*31 + event)
	for i := range data {
		data[i] = seed + byte(i)
	}
	return data
}
