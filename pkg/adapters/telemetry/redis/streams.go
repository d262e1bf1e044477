// Package redis implements the telemetry sink on Redis Streams.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/troupelab/troupe/pkg/domain"
)

// StreamsSink publishes ensemble lifecycle events to a Redis stream, one
// stream per ensemble.
type StreamsSink struct {
	client *redis.Client
	logger *zap.Logger
	maxLen int64
}

// NewStreamsSink creates a sink publishing to troupe:events:<ensemble-id>.
// maxLen bounds each stream with approximate trimming; zero keeps streams
// unbounded.
func NewStreamsSink(client *redis.Client, maxLen int64, logger *zap.Logger) *StreamsSink {
	return &StreamsSink{
		client: client,
		logger: logger,
		maxLen: maxLen,
	}
}

// Notify serializes the event and appends it to the ensemble's stream.
func (s *StreamsSink) Notify(ctx context.Context, ev domain.Event) error {
	streamKey := getStreamKey(ev.EnsembleID)

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	if _, err := s.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to add to stream: %w", err)
	}

	s.logger.Debug("event published",
		zap.String("event_id", ev.ID),
		zap.String("type", string(ev.Type)),
		zap.String("stream", streamKey))

	return nil
}

// Close releases the underlying client connection.
func (s *StreamsSink) Close() error {
	return s.client.Close()
}

// getStreamKey returns the stream key for an ensemble.
func getStreamKey(ensembleID string) string {
	return fmt.Sprintf("troupe:events:%s", ensembleID)
}
