package ensemble

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/troupelab/troupe/internal/application/workers"
	"github.com/troupelab/troupe/pkg/domain"
	"github.com/troupelab/troupe/pkg/ports"
)

// instantiator materializes the workers of one graph generation. Dependency
// resolution is sequential and dependency-first: a worker is only wired to
// fully constructed handles.
type instantiator struct {
	sup        *Supervisor
	graph      *domain.Graph
	generation uint64

	// building guards against connection cycles; a performer re-entered while
	// its own dependencies are still resolving is part of a cycle.
	building map[string]bool
}

func newInstantiator(s *Supervisor, g *domain.Graph, generation uint64) *instantiator {
	return &instantiator{
		sup:        s,
		graph:      g,
		generation: generation,
		building:   make(map[string]bool),
	}
}

// materializeAll creates every worker in the graph: first the connection
// graph dependency-first, then any standalone performer without an edge.
func (in *instantiator) materializeAll(ctx context.Context) error {
	sources := make([]string, 0, len(in.graph.Connections))
	for src := range in.graph.Connections {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	for _, src := range sources {
		if _, err := in.materialize(ctx, src); err != nil {
			return err
		}
	}

	standalone := make([]string, 0)
	for id := range in.graph.Performers {
		if _, ok := in.sup.lookup(id); !ok {
			standalone = append(standalone, id)
		}
	}
	sort.Strings(standalone)

	for _, id := range standalone {
		if _, err := in.materialize(ctx, id); err != nil {
			return err
		}
	}

	return nil
}

// materialize resolves id's dependencies recursively, constructs its worker,
// and registers it for supervision. Idempotent within one build pass: a
// performer referenced from several edges is constructed exactly once and
// every referrer gets the same handle.
func (in *instantiator) materialize(ctx context.Context, id string) (workers.Handle, error) {
	if h, ok := in.sup.lookup(id); ok {
		return h, nil
	}
	if in.building[id] {
		return nil, fmt.Errorf("%w: %s", domain.ErrDependencyCycle, id)
	}

	spec, ok := in.graph.Performers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownPerformer, id)
	}

	in.building[id] = true
	defer delete(in.building, id)

	conns := make(map[string]ports.Conn)
	for _, dep := range in.graph.Dependencies(id) {
		dh, err := in.materialize(ctx, dep)
		if err != nil {
			return nil, err
		}
		conns[dep] = dh
	}

	start := time.Now()
	h, err := in.startWorker(spec, conns)
	if err != nil {
		in.sup.metrics.RecordMaterialized("failed", time.Since(start))
		in.sup.logger.Error("performer creation failed",
			zap.String("ensemble_id", in.sup.id),
			zap.String("performer_id", id),
			zap.String("artifact", spec.ArtifactPath),
			zap.Error(err))
		return nil, &domain.CreationError{PerformerID: id, Artifact: spec.ArtifactPath, Err: err}
	}
	in.sup.metrics.RecordMaterialized("created", time.Since(start))

	in.sup.register(id, h)
	in.sup.logger.Debug("performer materialized",
		zap.String("ensemble_id", in.sup.id),
		zap.String("performer_id", id),
		zap.String("address", h.Address()),
		zap.Int("dependencies", len(conns)),
		zap.Bool("pooled", spec.PoolMax > 0))
	return h, nil
}

func (in *instantiator) startWorker(spec domain.PerformerSpec, conns map[string]ports.Conn) (workers.Handle, error) {
	factory, err := in.sup.loader.Load(spec.PluginRef, spec.ArtifactPath, spec.ArtifactName)
	if err != nil {
		return nil, err
	}

	env := ports.PerformerEnv{
		EnsembleID:  in.sup.id,
		PerformerID: spec.ID,
		Generation:  in.generation,
		Params:      spec.Params,
		Schedule:    spec.Schedule,
		Backoff:     spec.Backoff,
		Connections: conns,
	}
	construct := func() (ports.Performer, error) { return factory.New(env) }

	addr := fmt.Sprintf("troupe://%s/%s", in.sup.id, spec.ID)
	opts := in.sup.opts

	if spec.PoolMax > 0 {
		return workers.StartPool(workers.PoolConfig{
			PerformerID: spec.ID,
			Address:     addr,
			Max:         spec.PoolMax,
			NewMember: func(index int) (*workers.Worker, error) {
				return workers.StartWorker(workers.WorkerConfig{
					PerformerID:     spec.ID,
					Address:         fmt.Sprintf("%s#%d", addr, index),
					Construct:       construct,
					Schedule:        spec.Schedule,
					ControlPriority: spec.ControlPriority,
					QueueCapacity:   opts.QueueCapacity,
					Logger:          in.sup.logger,
					Failures:        in.sup.failures,
				})
			},
			QueueCapacity:  opts.QueueCapacity,
			SampleEvery:    opts.SampleEvery,
			BacklogFactor:  opts.BacklogFactor,
			ShrinkFraction: opts.ShrinkFraction,
			Logger:         in.sup.logger,
			Metrics:        in.sup.metrics,
		})
	}

	return workers.StartWorker(workers.WorkerConfig{
		PerformerID:     spec.ID,
		Address:         addr,
		Construct:       construct,
		Schedule:        spec.Schedule,
		ControlPriority: spec.ControlPriority,
		QueueCapacity:   opts.QueueCapacity,
		Logger:          in.sup.logger,
		Failures:        in.sup.failures,
	})
}
