// Package telemetry provides telemetry sink implementations.
//
// Implementations:
//   - redis: Redis Streams, durable best-effort delivery
//   - memory: in-memory for testing
//
// Fanout combines sinks; Broadcaster feeds live diagnostic subscribers such
// as the websocket stream.
package telemetry
