package plugins

import (
	"context"

	"go.uber.org/zap"

	"github.com/troupelab/troupe/pkg/domain"
	"github.com/troupelab/troupe/pkg/ports"
)

// NoopProvider builds performers that log their traffic and do nothing else.
// It backs the "noop" reference so ensembles can be wired and exercised
// before any real plugin runtime is registered.
func NoopProvider(logger *zap.Logger) Provider {
	return ProviderFunc(func(artifactPath, artifactName string) (ports.WorkerFactory, error) {
		return ports.FactoryFunc(func(env ports.PerformerEnv) (ports.Performer, error) {
			return &noopPerformer{
				logger: logger.With(
					zap.String("ensemble_id", env.EnsembleID),
					zap.String("performer_id", env.PerformerID)),
			}, nil
		}), nil
	})
}

type noopPerformer struct {
	logger *zap.Logger
}

func (p *noopPerformer) Init(ctx context.Context) error { return nil }

func (p *noopPerformer) Tick(ctx context.Context) error {
	p.logger.Debug("tick")
	return nil
}

func (p *noopPerformer) OnMessage(ctx context.Context, msg domain.Message) error {
	p.logger.Debug("message", zap.String("from", msg.From))
	return nil
}

func (p *noopPerformer) Close() error { return nil }
