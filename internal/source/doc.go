// Package source defines the stream-source contract consumed by the
// synchronization driver and provides in-memory sources fed from YAML.
//
// Sources are pull-only and non-blocking: HasMore reports whether a packet
// is available right now, Next takes it. A source that will never produce
// again implements Closer. Backpressure is the driver's concern; a source
// never blocks the synchronization cycle.
package source
