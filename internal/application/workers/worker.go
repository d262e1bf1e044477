package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/troupelab/troupe/pkg/domain"
	"github.com/troupelab/troupe/pkg/ports"
)

// WorkerConfig describes one worker to start.
type WorkerConfig struct {
	PerformerID string
	Address     string

	// Construct builds a fresh performer instance; called once at start and
	// once per supervised restart.
	Construct func() (ports.Performer, error)

	Schedule time.Duration

	// ControlPriority routes all of this worker's traffic onto the control
	// lane so it is never starved behind bulk data.
	ControlPriority bool

	QueueCapacity int
	Logger        *zap.Logger
	Failures      chan<- Failure
}

// Worker is a single concurrent worker: a goroutine draining a private
// mailbox and ticking at its schedule interval.
type Worker struct {
	id       string
	addr     string
	schedule time.Duration
	priority bool

	construct func() (ports.Performer, error)
	control   chan domain.Message
	data      chan domain.Message
	logger    *zap.Logger
	failures  chan<- Failure

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
}

// StartWorker constructs the performer and begins execution immediately.
func StartWorker(cfg WorkerConfig) (*Worker, error) {
	capacity := cfg.QueueCapacity
	if capacity < 1 {
		capacity = 1
	}

	w := &Worker{
		id:        cfg.PerformerID,
		addr:      cfg.Address,
		schedule:  cfg.Schedule,
		priority:  cfg.ControlPriority,
		construct: cfg.Construct,
		control:   make(chan domain.Message, capacity),
		data:      make(chan domain.Message, capacity),
		logger:    cfg.Logger,
		failures:  cfg.Failures,
	}

	if err := w.spawn(); err != nil {
		return nil, err
	}
	return w, nil
}

// ID returns the performer identifier this worker executes.
func (w *Worker) ID() string { return w.id }

// Address returns the worker's stable address.
func (w *Worker) Address() string { return w.addr }

// Send enqueues a message without blocking. Control traffic, and all traffic
// of control-priority workers, goes on the control lane.
func (w *Worker) Send(msg domain.Message) error {
	q := w.data
	if msg.Kind != domain.KindData || w.priority {
		q = w.control
	}

	select {
	case q <- msg:
		return nil
	default:
		return fmt.Errorf("%s: %w", w.addr, ErrMailboxFull)
	}
}

// QueueDepth returns the number of queued, not-yet-processed messages.
func (w *Worker) QueueDepth() int {
	return len(w.control) + len(w.data)
}

// Stop sends a termination signal to the worker. It does not wait for
// in-flight work; delivery is at-least-attempted, not graceful.
func (w *Worker) Stop() {
	w.mu.Lock()
	w.stopped = true
	cancel := w.cancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// spawn builds a performer instance and starts a fresh execution context
// behind the existing handle. Used for both first start and restart-in-place.
func (w *Worker) spawn() error {
	p, err := w.construct()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := p.Init(ctx); err != nil {
		cancel()
		return err
	}

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		cancel()
		_ = p.Close()
		return nil
	}
	w.cancel = cancel
	w.mu.Unlock()

	go w.run(ctx, p)
	return nil
}

func (w *Worker) run(ctx context.Context, p ports.Performer) {
	defer func() {
		if r := recover(); r != nil {
			_ = p.Close()
			w.report(fmt.Errorf("performer panic: %v", r))
		}
	}()

	var tick <-chan time.Time
	if w.schedule > 0 {
		ticker := time.NewTicker(w.schedule)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		// Control messages always drain ahead of data.
		select {
		case msg := <-w.control:
			if err := w.handle(ctx, p, msg); err != nil {
				_ = p.Close()
				w.report(err)
				return
			}
			continue
		default:
		}

		select {
		case <-ctx.Done():
			_ = p.Close()
			return
		case msg := <-w.control:
			if err := w.handle(ctx, p, msg); err != nil {
				_ = p.Close()
				w.report(err)
				return
			}
		case msg := <-w.data:
			if err := w.handle(ctx, p, msg); err != nil {
				_ = p.Close()
				w.report(err)
				return
			}
		case <-tick:
			if err := p.Tick(ctx); err != nil {
				_ = p.Close()
				w.report(err)
				return
			}
		}
	}
}

func (w *Worker) handle(ctx context.Context, p ports.Performer, msg domain.Message) error {
	if msg.Kind == domain.KindDebugPath {
		w.logger.Info("worker path",
			zap.String("address", w.addr),
			zap.Int("queued", w.QueueDepth()))
		return nil
	}
	return p.OnMessage(ctx, msg)
}

// report hands an abnormal termination to the supervision policy. Stopped
// workers stay silent: teardown is not a failure.
func (w *Worker) report(err error) {
	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()
	if stopped {
		return
	}

	f := Failure{
		PerformerID: w.id,
		Address:     w.addr,
		Err:         err,
		At:          time.Now(),
		restart:     w.spawn,
	}

	select {
	case w.failures <- f:
	default:
		w.logger.Error("supervision queue full, dropping failure report",
			zap.String("address", w.addr),
			zap.Error(err))
	}
}
