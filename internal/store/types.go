package store

// Run is a stored run header.
type Run struct {
	Token         string `json:"token"`
	RunNumber     int    `json:"run_number"`
	Settings      string `json:"settings"`
	FormatVersion string `json:"format_version"`
	SyncVersion   string `json:"sync_version"`
}

// EventRecord is a stored composite event.
type EventRecord struct {
	ID          string `json:"id"`
	RunToken    string `json:"run_token"`
	Seq         uint64 `json:"seq"`
	EventNumber int    `json:"event_number"`
	RunNumber   int    `json:"run_number"`
	ClockBase   uint64 `json:"clock_base"`
	PacketCount int    `json:"packet_count"`
	Words       int    `json:"words"`
	Payload     []byte `json:"-"`
}

// AggregateRecord is a stored per-category aggregate.
type AggregateRecord struct {
	EventID  string         `json:"event_id"`
	Name     string         `json:"name"`
	Category string         `json:"category"`
	Packets  []PacketRecord `json:"packets"`
}

// PacketRecord is one packet inside a stored aggregate.
type PacketRecord struct {
	ID          int    `json:"id" msgpack:"id"`
	EventNumber int    `json:"event_number" msgpack:"event"`
	Clock       uint64 `json:"clock" msgpack:"clock"`
	Source      int    `json:"source" msgpack:"source"`
	Data        []byte `json:"-" msgpack:"data"`
}

// DitchRecord is a stored ditch.
type DitchRecord struct {
	Ord         int64  `json:"ord"`
	RunToken    string `json:"run_token"`
	EventNumber int    `json:"event_number"`
	Packets     int    `json:"packets"`
	Reason      string `json:"reason"`
}

// ResyncRecord is a stored resynchronization.
type ResyncRecord struct {
	Ord      int64  `json:"ord"`
	RunToken string `json:"run_token"`
	Cycle    int    `json:"cycle"`
	Reason   string `json:"reason"`
	Ditched  int    `json:"ditched"`
	Packets  int    `json:"packets"`
}

// DroppedRecord is a final drop count for one packet identifier.
type DroppedRecord struct {
	PacketID int `json:"packet_id"`
	Count    int `json:"count"`
}
