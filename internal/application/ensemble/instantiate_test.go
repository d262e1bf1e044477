package ensemble

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/troupelab/troupe/pkg/adapters/telemetry/memory"
	"github.com/troupelab/troupe/pkg/domain"
	"github.com/troupelab/troupe/pkg/ports"
)

// recordingPerformer counts lifecycle calls and optionally fails on messages.
type recordingPerformer struct {
	closes   *int32
	msgErr   error
	received chan domain.Message
}

func (p *recordingPerformer) Init(ctx context.Context) error { return nil }

func (p *recordingPerformer) Tick(ctx context.Context) error { return nil }

func (p *recordingPerformer) OnMessage(ctx context.Context, msg domain.Message) error {
	if p.msgErr != nil {
		return p.msgErr
	}
	if p.received != nil {
		select {
		case p.received <- msg:
		default:
		}
	}
	return nil
}

func (p *recordingPerformer) Close() error {
	if p.closes != nil {
		atomic.AddInt32(p.closes, 1)
	}
	return nil
}

// testLoader hands out factories that build recordingPerformers, scriptable
// per plugin reference and per performer.
type testLoader struct {
	mu         sync.Mutex
	constructs map[string]int

	loadErr map[string]error // keyed by plugin reference
	newErr  map[string]error // keyed by performer id
	msgErr  map[string]error // keyed by performer id

	closes int32
}

func newTestLoader() *testLoader {
	return &testLoader{
		constructs: make(map[string]int),
		loadErr:    make(map[string]error),
		newErr:     make(map[string]error),
		msgErr:     make(map[string]error),
	}
}

func (l *testLoader) Load(pluginRef, artifactPath, artifactName string) (ports.WorkerFactory, error) {
	if err := l.loadErr[pluginRef]; err != nil {
		return nil, &domain.LoadError{PluginRef: pluginRef, Artifact: artifactPath, Err: err}
	}
	return ports.FactoryFunc(func(env ports.PerformerEnv) (ports.Performer, error) {
		l.mu.Lock()
		l.constructs[env.PerformerID]++
		l.mu.Unlock()

		if err := l.newErr[env.PerformerID]; err != nil {
			return nil, err
		}
		return &recordingPerformer{closes: &l.closes, msgErr: l.msgErr[env.PerformerID]}, nil
	}), nil
}

func (l *testLoader) constructed(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.constructs[id]
}

func (l *testLoader) closed() int32 { return atomic.LoadInt32(&l.closes) }

func perf(id string) domain.PerformerRecord {
	return domain.PerformerRecord{ID: id, Artifact: id + ".wasm", PluginRef: "native"}
}

func conn(src string, deps ...string) domain.ConnectionRecord {
	return domain.ConnectionRecord{Source: src, DependsOn: deps}
}

func newTestSupervisor(t *testing.T, loader ports.PluginLoader, sink ports.TelemetrySink, opts Options) *Supervisor {
	t.Helper()
	s := New("ens", loader, sink, ports.NopMetrics{}, zap.NewNop(), opts)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestStartMaterializesAllPerformers(t *testing.T) {
	loader := newTestLoader()
	sink := memory.NewSink()
	s := newTestSupervisor(t, loader, sink, Options{})

	err := s.Start(context.Background(),
		[]domain.ConnectionRecord{conn("a", "b", "c")},
		[]domain.PerformerRecord{perf("a"), perf("b"), perf("c"), perf("d")})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	snap := s.Describe()
	if len(snap.LiveWorkers) != 4 {
		t.Errorf("live workers = %v, want 4", snap.LiveWorkers)
	}
	for _, id := range []string{"a", "b", "c", "d"} {
		if n := loader.constructed(id); n != 1 {
			t.Errorf("performer %s constructed %d times, want 1", id, n)
		}
	}
	if got := sink.ByType(domain.EventEnsembleStarted); len(got) != 1 {
		t.Errorf("started events = %d, want 1", len(got))
	}
	if s.State() != StateRunning {
		t.Errorf("state = %s, want running", s.State())
	}
}

func TestSharedDependencyConstructedOnce(t *testing.T) {
	loader := newTestLoader()
	s := newTestSupervisor(t, loader, memory.NewSink(), Options{})

	err := s.Start(context.Background(),
		[]domain.ConnectionRecord{conn("a", "c"), conn("b", "c")},
		[]domain.PerformerRecord{perf("a"), perf("b"), perf("c")})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if n := loader.constructed("c"); n != 1 {
		t.Errorf("shared dependency constructed %d times, want 1", n)
	}
	if got := len(s.Describe().LiveWorkers); got != 3 {
		t.Errorf("live workers = %d, want 3", got)
	}
}

func TestStartUnknownPerformerRollsBack(t *testing.T) {
	loader := newTestLoader()
	s := newTestSupervisor(t, loader, memory.NewSink(), Options{})

	err := s.Start(context.Background(),
		[]domain.ConnectionRecord{conn("a", "b"), conn("z", "ghost")},
		[]domain.PerformerRecord{perf("a"), perf("b"), perf("z")})
	if !errors.Is(err, domain.ErrUnknownPerformer) {
		t.Fatalf("err = %v, want ErrUnknownPerformer", err)
	}

	if got := len(s.Describe().LiveWorkers); got != 0 {
		t.Errorf("live workers after rollback = %d, want 0", got)
	}
	// Every worker started before the failure is torn down.
	started := loader.constructed("a") + loader.constructed("b")
	waitFor(t, time.Second, func() bool { return int(loader.closed()) >= started })
}

func TestStartRejectsDependencyCycle(t *testing.T) {
	loader := newTestLoader()
	s := newTestSupervisor(t, loader, memory.NewSink(), Options{})

	err := s.Start(context.Background(),
		[]domain.ConnectionRecord{conn("a", "b"), conn("b", "a")},
		[]domain.PerformerRecord{perf("a"), perf("b")})
	if !errors.Is(err, domain.ErrDependencyCycle) {
		t.Fatalf("err = %v, want ErrDependencyCycle", err)
	}
	if got := len(s.Describe().LiveWorkers); got != 0 {
		t.Errorf("live workers = %d, want 0", got)
	}
}

func TestConstructionFailureReportedWithArtifact(t *testing.T) {
	loader := newTestLoader()
	loader.newErr["b"] = errors.New("missing export")
	s := newTestSupervisor(t, loader, memory.NewSink(), Options{})

	err := s.Start(context.Background(),
		[]domain.ConnectionRecord{conn("a", "b")},
		[]domain.PerformerRecord{perf("a"), perf("b")})

	var ce *domain.CreationError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want CreationError", err)
	}
	if ce.PerformerID != "b" || ce.Artifact != "b.wasm" {
		t.Errorf("creation error identity = %s/%s", ce.PerformerID, ce.Artifact)
	}
}

func TestLoadFailureSurfacesAsCreationError(t *testing.T) {
	loader := newTestLoader()
	loader.loadErr["native"] = errors.New("no such plugin")
	s := newTestSupervisor(t, loader, memory.NewSink(), Options{})

	err := s.Start(context.Background(), nil, []domain.PerformerRecord{perf("a")})

	var ce *domain.CreationError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want CreationError", err)
	}
	var le *domain.LoadError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want wrapped LoadError", err)
	}
	if le.PluginRef != "native" {
		t.Errorf("load error plugin = %s", le.PluginRef)
	}
}

func TestPooledPerformerBehindSingleAddress(t *testing.T) {
	loader := newTestLoader()
	s := newTestSupervisor(t, loader, memory.NewSink(), Options{})

	rec := perf("a")
	rec.PoolMax = 3
	if err := s.Start(context.Background(), nil, []domain.PerformerRecord{rec}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	snap := s.Describe()
	if len(snap.LiveWorkers) != 1 || snap.LiveWorkers[0] != "troupe://ens/a" {
		t.Errorf("live workers = %v, want the pool address", snap.LiveWorkers)
	}
	// The pool starts at its minimum size.
	if n := loader.constructed("a"); n != 1 {
		t.Errorf("pool constructed %d members at start, want 1", n)
	}

	h, ok := s.lookup("a")
	if !ok {
		t.Fatal("pool handle not registered")
	}
	if err := h.Send(domain.Message{Kind: domain.KindData, Payload: "work"}); err != nil {
		t.Errorf("Send to pool: %v", err)
	}
}
