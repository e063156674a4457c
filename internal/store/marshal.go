package store

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/roach88/trigsync/internal/builder"
	"github.com/roach88/trigsync/internal/daq"
)

// aggregateBody is the msgpack layout of an aggregate's packet list.
type aggregateBody struct {
	Name     string         `msgpack:"name"`
	Category string         `msgpack:"category"`
	Packets  []PacketRecord `msgpack:"packets"`
}

// marshalAggregate encodes an aggregate for the body column.
func marshalAggregate(a *builder.Aggregate) ([]byte, error) {
	body := aggregateBody{
		Name:     a.Name,
		Category: a.Category.String(),
		Packets:  make([]PacketRecord, len(a.Packets)),
	}
	for i, p := range a.Packets {
		body.Packets[i] = PacketRecord{
			ID:          p.ID,
			EventNumber: p.EventNumber,
			Clock:       p.Clock,
			Source:      int(p.Source),
			Data:        p.Data,
		}
	}
	data, err := msgpack.Marshal(&body)
	if err != nil {
		return nil, fmt.Errorf("marshal aggregate %s: %w", a.Name, err)
	}
	return data, nil
}

// unmarshalAggregate decodes a body column.
func unmarshalAggregate(data []byte) (aggregateBody, error) {
	var body aggregateBody
	if err := msgpack.Unmarshal(data, &body); err != nil {
		return aggregateBody{}, fmt.Errorf("unmarshal aggregate: %w", err)
	}
	return body, nil
}

// marshalSettings converts run settings to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON so the same settings always store the same
// bytes.
func marshalSettings(settings map[string]any) (string, error) {
	if settings == nil {
		settings = map[string]any{}
	}
	data, err := daq.MarshalCanonical(settings)
	if err != nil {
		return "", fmt.Errorf("marshal settings: %w", err)
	}
	return string(data), nil
}
