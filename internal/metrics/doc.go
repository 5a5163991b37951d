// Package metrics holds the engine's in-process counters and the verify
// latency histogram. Writes are single atomic adds on padded slots;
// exporters under metrics/export read [Snapshot] values and never touch the
// slots directly.
package metrics
