// Package ports defines the interfaces between the supervision core and its
// external collaborators: the plugin loader, the telemetry sink, and the
// metrics collector, plus the contract a performer implementation must
// satisfy.
//
// Implementations:
//   - plugins: in-process factory registry (PluginLoader)
//   - telemetry/redis: Redis Streams sink
//   - telemetry/memory: in-memory sink for testing
//   - metrics/prometheus: Prometheus collector
package ports
