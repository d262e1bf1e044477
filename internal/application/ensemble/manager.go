package ensemble

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/troupelab/troupe/internal/application/workers"
	"github.com/troupelab/troupe/internal/graph"
	"github.com/troupelab/troupe/pkg/domain"
	"github.com/troupelab/troupe/pkg/ports"
)

// State is the ensemble lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateBuilding   State = "building"
	StateRunning    State = "running"
	StateEscalating State = "escalating"
	StateTornDown   State = "torn-down"
)

// Options tunes supervision and pooling.
type Options struct {
	// MaxRestarts restarts are allowed per worker within RestartWindow before
	// the worker is declared dead.
	MaxRestarts   int
	RestartWindow time.Duration

	Roots graph.Roots

	QueueCapacity  int
	SampleEvery    int
	BacklogFactor  float64
	ShrinkFraction float64
}

func (o *Options) applyDefaults() {
	if o.MaxRestarts == 0 {
		o.MaxRestarts = 3
	}
	if o.RestartWindow == 0 {
		o.RestartWindow = time.Minute
	}
	if o.QueueCapacity == 0 {
		o.QueueCapacity = 128
	}
	if o.SampleEvery == 0 {
		o.SampleEvery = 64
	}
	if o.BacklogFactor == 0 {
		o.BacklogFactor = 0.4
	}
	if o.ShrinkFraction == 0 {
		o.ShrinkFraction = 0.1
	}
}

// Snapshot is the read-only diagnostic view of an ensemble.
type Snapshot struct {
	EnsembleID  string              `json:"ensemble_id"`
	Generation  uint64              `json:"generation"`
	State       State               `json:"state"`
	Connections map[string][]string `json:"connections"`
	Performers  []string            `json:"performers"`
	LiveWorkers []string            `json:"live_workers"`
}

// Supervisor owns the graph model and the materialized workers of one
// ensemble. It is the only mutator of the handle map and the ensemble state.
type Supervisor struct {
	id      string
	loader  ports.PluginLoader
	sink    ports.TelemetrySink
	metrics ports.MetricsCollector
	logger  *zap.Logger
	opts    Options

	mu         sync.RWMutex
	state      State
	generation uint64
	graph      *domain.Graph
	handles    map[string]workers.Handle
	windows    map[string]*workers.Window
	conns      []domain.ConnectionRecord
	perfs      []domain.PerformerRecord

	failures chan workers.Failure
	fatal    chan domain.RestartRequired
	done     chan struct{}
	stopOnce sync.Once
}

// New creates an ensemble supervisor and starts its supervision loop.
func New(
	id string,
	loader ports.PluginLoader,
	sink ports.TelemetrySink,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	opts Options,
) *Supervisor {
	opts.applyDefaults()

	s := &Supervisor{
		id:       id,
		loader:   loader,
		sink:     sink,
		metrics:  metrics,
		logger:   logger,
		opts:     opts,
		state:    StateIdle,
		handles:  make(map[string]workers.Handle),
		windows:  make(map[string]*workers.Window),
		failures: make(chan workers.Failure, 64),
		fatal:    make(chan domain.RestartRequired, 1),
		done:     make(chan struct{}),
	}

	go s.supervise()
	return s
}

// Start builds the graph model from the parsed spec records and materializes
// every worker. It returns once every handle exists; workers begin executing
// as each is created, not after the whole graph completes. Any build failure
// rolls back every worker already started.
func (s *Supervisor) Start(ctx context.Context, conns []domain.ConnectionRecord, perfs []domain.PerformerRecord) error {
	s.mu.Lock()
	if s.state == StateRunning || s.state == StateBuilding {
		s.mu.Unlock()
		return fmt.Errorf("ensemble %s: already %s", s.id, s.state)
	}
	s.state = StateBuilding
	s.generation++
	gen := s.generation
	s.conns = conns
	s.perfs = perfs
	s.handles = make(map[string]workers.Handle)
	s.windows = make(map[string]*workers.Window)
	g := graph.Build(conns, perfs, s.opts.Roots)
	s.graph = g
	s.mu.Unlock()

	s.logger.Info("building ensemble",
		zap.String("ensemble_id", s.id),
		zap.Uint64("generation", gen),
		zap.Int("performers", len(g.Performers)))

	inst := newInstantiator(s, g, gen)
	if err := inst.materializeAll(ctx); err != nil {
		s.rollback()
		s.logger.Error("ensemble build failed",
			zap.String("ensemble_id", s.id),
			zap.Uint64("generation", gen),
			zap.Error(err))
		return err
	}

	s.mu.Lock()
	s.state = StateRunning
	live := len(s.handles)
	s.mu.Unlock()

	s.notify(domain.EventEnsembleStarted, "", "")
	s.logger.Info("ensemble running",
		zap.String("ensemble_id", s.id),
		zap.Uint64("generation", gen),
		zap.Int("workers", live))
	return nil
}

// Stop sends a termination signal to every worker exactly once, without
// waiting for in-flight work, and discards the ensemble state.
func (s *Supervisor) Stop(ctx context.Context) error {
	handles := s.takeHandles(StateTornDown)
	for _, h := range handles {
		h.Stop()
	}

	s.notify(domain.EventEnsembleStopped, "", "")
	s.logger.Info("ensemble stopped",
		zap.String("ensemble_id", s.id),
		zap.Int("workers", len(handles)))
	return nil
}

// Restart re-executes Start with the original spec records under a new
// generation, discarding the current workers first.
func (s *Supervisor) Restart(ctx context.Context, reason string) error {
	s.mu.RLock()
	conns, perfs := s.conns, s.perfs
	s.mu.RUnlock()

	return s.Rebuild(ctx, conns, perfs, reason)
}

// Rebuild is Restart with freshly parsed spec records, used by the owner
// after an escalation when the spec file may have changed on disk.
func (s *Supervisor) Rebuild(ctx context.Context, conns []domain.ConnectionRecord, perfs []domain.PerformerRecord, reason string) error {
	s.mu.RLock()
	started := s.generation > 0
	s.mu.RUnlock()

	if !started {
		return fmt.Errorf("ensemble %s: never started", s.id)
	}

	for _, h := range s.takeHandles(StateTornDown) {
		h.Stop()
	}

	if err := s.Start(ctx, conns, perfs); err != nil {
		return err
	}

	s.notify(domain.EventEnsembleRestarted, "", reason)
	return nil
}

// Describe returns a diagnostic snapshot of edges, performers, and live
// workers. Read-only.
func (s *Supervisor) Describe() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		EnsembleID:  s.id,
		Generation:  s.generation,
		State:       s.state,
		Connections: make(map[string][]string),
	}

	if s.graph != nil {
		for src, deps := range s.graph.Connections {
			out := make([]string, len(deps))
			copy(out, deps)
			snap.Connections[src] = out
		}
		for id := range s.graph.Performers {
			snap.Performers = append(snap.Performers, id)
		}
		sort.Strings(snap.Performers)
	}

	for _, h := range s.handles {
		snap.LiveWorkers = append(snap.LiveWorkers, h.Address())
	}
	sort.Strings(snap.LiveWorkers)

	return snap
}

// PingWorkers broadcasts a debug request asking every worker to log its
// internal path. Returns the number of workers the request reached.
func (s *Supervisor) PingWorkers() int {
	s.mu.RLock()
	handles := make([]workers.Handle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.mu.RUnlock()

	delivered := 0
	for _, h := range handles {
		if err := h.Send(domain.Message{Kind: domain.KindDebugPath}); err != nil {
			s.logger.Warn("debug ping not delivered",
				zap.String("address", h.Address()),
				zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered
}

// Fatal returns the channel carrying the escalation signal. The owner is
// expected to rebuild the ensemble when it fires.
func (s *Supervisor) Fatal() <-chan domain.RestartRequired {
	return s.fatal
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Generation returns the current rebuild generation.
func (s *Supervisor) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Shutdown stops all workers and the supervision loop.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	for _, h := range s.takeHandles(StateTornDown) {
		h.Stop()
	}
	s.stopOnce.Do(func() { close(s.done) })
	s.logger.Info("ensemble supervisor shut down", zap.String("ensemble_id", s.id))
	return nil
}

// register adds a freshly materialized handle; the supervisor observes its
// liveness from this point on.
func (s *Supervisor) register(id string, h workers.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[id] = h
}

// lookup returns the already materialized handle for id, if any.
func (s *Supervisor) lookup(id string) (workers.Handle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handles[id]
	return h, ok
}

// takeHandles atomically snapshots and clears the handle map, moving the
// ensemble to the given state. Each handle is returned exactly once.
func (s *Supervisor) takeHandles(next State) []workers.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]workers.Handle, 0, len(s.handles))
	for _, h := range s.handles {
		out = append(out, h)
	}
	s.handles = make(map[string]workers.Handle)
	s.windows = make(map[string]*workers.Window)
	s.state = next
	return out
}

// rollback tears down everything registered during a failed build so no
// handle outlives a fatal build error.
func (s *Supervisor) rollback() {
	for _, h := range s.takeHandles(StateTornDown) {
		h.Stop()
	}
}

// supervise applies the restart policy to worker failures for the lifetime
// of the supervisor.
func (s *Supervisor) supervise() {
	for {
		select {
		case <-s.done:
			return
		case f := <-s.failures:
			s.handleFailure(f)
		}
	}
}

func (s *Supervisor) handleFailure(f workers.Failure) {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	win := s.windows[f.Address]
	if win == nil {
		win = workers.NewWindow(s.opts.MaxRestarts, s.opts.RestartWindow)
		s.windows[f.Address] = win
	}
	allowed := win.Allow(f.At)
	s.mu.Unlock()

	if allowed {
		s.logger.Warn("worker failed, restarting in place",
			zap.String("ensemble_id", s.id),
			zap.String("performer_id", f.PerformerID),
			zap.String("address", f.Address),
			zap.Error(f.Err))
		s.metrics.RecordRestart(f.PerformerID)

		if err := f.Restart(); err != nil {
			s.logger.Error("restart failed",
				zap.String("address", f.Address),
				zap.Error(err))
			s.metrics.RecordDead(f.PerformerID)
			s.escalate(f)
		}
		return
	}

	s.logger.Error("worker exceeded restart budget",
		zap.String("ensemble_id", s.id),
		zap.String("performer_id", f.PerformerID),
		zap.String("address", f.Address),
		zap.Error(f.Err))
	s.metrics.RecordDead(f.PerformerID)
	s.escalate(f)
}

// escalate is terminal for the current generation: every worker is stopped
// unconditionally and the fatal signal is raised to the owner.
func (s *Supervisor) escalate(f workers.Failure) {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.state = StateEscalating
	gen := s.generation
	handles := make([]workers.Handle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		h.Stop()
	}

	s.metrics.RecordEscalation()
	s.notifyAt(domain.EventWorkerTerminated, f.Address, f.Err.Error(), gen)

	sig := domain.RestartRequired{
		EnsembleID:    s.id,
		Generation:    gen,
		WorkerAddress: f.Address,
		Reason:        f.Err.Error(),
		Timestamp:     time.Now(),
	}
	select {
	case s.fatal <- sig:
	default:
	}

	s.logger.Error("ensemble escalating, restart required",
		zap.String("ensemble_id", s.id),
		zap.Uint64("generation", gen),
		zap.String("dead_worker", f.Address))
}

func (s *Supervisor) notify(typ domain.EventType, workerAddr, reason string) {
	s.notifyAt(typ, workerAddr, reason, s.Generation())
}

func (s *Supervisor) notifyAt(typ domain.EventType, workerAddr, reason string, gen uint64) {
	ev := domain.Event{
		ID:            uuid.New().String(),
		Type:          typ,
		EnsembleID:    s.id,
		Generation:    gen,
		WorkerAddress: workerAddr,
		Reason:        reason,
		Timestamp:     time.Now(),
	}

	if err := s.sink.Notify(context.Background(), ev); err != nil {
		s.logger.Warn("telemetry delivery failed",
			zap.String("event_type", string(typ)),
			zap.Error(err))
	}
}
