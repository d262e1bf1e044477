package ports

import (
	"context"
	"time"

	"github.com/troupelab/troupe/pkg/domain"
)

// Conn is the view a performer gets of one of its dependencies: an address
// plus a non-blocking way to hand it work.
type Conn interface {
	Address() string
	Send(msg domain.Message) error
}

// PerformerEnv carries the construction-time wiring for one worker: its
// parameters, intervals, resolved dependency handles, and enclosing
// identifiers.
type PerformerEnv struct {
	EnsembleID  string
	PerformerID string
	Generation  uint64
	Params      map[string]string
	Schedule    time.Duration
	Backoff     time.Duration
	Connections map[string]Conn
}

// Performer is a worker implementation produced by a WorkerFactory. The
// surrounding worker owns the mailbox and scheduling; the performer only
// reacts.
type Performer interface {
	Init(ctx context.Context) error
	Tick(ctx context.Context) error
	OnMessage(ctx context.Context, msg domain.Message) error
	Close() error
}

// WorkerFactory builds performer instances. A single factory may be asked for
// many instances: one per pool member and one per restart.
type WorkerFactory interface {
	New(env PerformerEnv) (Performer, error)
}

// FactoryFunc adapts a function to the WorkerFactory interface.
type FactoryFunc func(env PerformerEnv) (Performer, error)

func (f FactoryFunc) New(env PerformerEnv) (Performer, error) { return f(env) }

// PluginLoader resolves a worker implementation from a plugin reference and
// an artifact location. Failures are reported as *domain.LoadError.
type PluginLoader interface {
	Load(pluginRef, artifactPath, artifactName string) (WorkerFactory, error)
}

// TelemetrySink receives lifecycle notifications. Delivery is fire-and-forget;
// callers log errors and move on.
type TelemetrySink interface {
	Notify(ctx context.Context, ev domain.Event) error
}

// MetricsCollector records supervision and pool activity.
type MetricsCollector interface {
	RecordMaterialized(status string, duration time.Duration)
	RecordRestart(performerID string)
	RecordDead(performerID string)
	RecordEscalation()
	RecordDispatch(performerID string)
	SetPoolSize(performerID string, size int)
	SetQueueDepth(performerID string, depth int)
}

// NopMetrics is a MetricsCollector that discards everything. Used in tests
// and when metrics are disabled.
type NopMetrics struct{}

func (NopMetrics) RecordMaterialized(string, time.Duration) {}
func (NopMetrics) RecordRestart(string)                     {}
func (NopMetrics) RecordDead(string)                        {}
func (NopMetrics) RecordEscalation()                        {}
func (NopMetrics) RecordDispatch(string)                    {}
func (NopMetrics) SetPoolSize(string, int)                  {}
func (NopMetrics) SetQueueDepth(string, int)                {}
