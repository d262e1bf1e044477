package workers

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/troupelab/troupe/pkg/domain"
	"github.com/troupelab/troupe/pkg/ports"
)

// PoolConfig describes an elastic pool of homogeneous workers behind one
// logical handle.
type PoolConfig struct {
	PerformerID string
	Address     string

	// Max is the pool upper bound; the pool size stays in [1, Max].
	Max int

	// NewMember starts one pool member; index is stable per member and used
	// for its address suffix.
	NewMember func(index int) (*Worker, error)

	QueueCapacity int
	// SampleEvery is the number of dispatches between resize decisions.
	SampleEvery int
	// BacklogFactor is both the occupancy fraction past which one member
	// counts as backlogged and the backlogged-member fraction past which the
	// pool grows.
	BacklogFactor float64
	// ShrinkFraction is the backlogged-member fraction below which the pool
	// shrinks.
	ShrinkFraction float64

	Logger  *zap.Logger
	Metrics ports.MetricsCollector
}

// ElasticPool presents a bounded set of identical workers as a single
// logical worker. Dispatch goes to the member with the fewest queued
// messages; the pool resizes asynchronously under backlog pressure.
type ElasticPool struct {
	cfg PoolConfig

	mu         sync.Mutex
	members    []*Worker
	nextIndex  int
	dispatched uint64
	stopped    bool

	resizeCh chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// StartPool starts a pool with a single member.
func StartPool(cfg PoolConfig) (*ElasticPool, error) {
	if cfg.Max < 1 {
		return nil, fmt.Errorf("pool %s: upper bound must be at least 1", cfg.PerformerID)
	}

	p := &ElasticPool{
		cfg:      cfg,
		resizeCh: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	first, err := cfg.NewMember(0)
	if err != nil {
		return nil, err
	}
	p.members = []*Worker{first}
	p.nextIndex = 1
	cfg.Metrics.SetPoolSize(cfg.PerformerID, 1)

	go p.resizeLoop()
	return p, nil
}

// ID returns the performer identifier the pool executes.
func (p *ElasticPool) ID() string { return p.cfg.PerformerID }

// Address returns the pool's logical address.
func (p *ElasticPool) Address() string { return p.cfg.Address }

// Send routes the message to the member holding the fewest queued items,
// lowest index winning ties. Every SampleEvery dispatches a resize decision
// is scheduled, asynchronous to dispatch.
func (p *ElasticPool) Send(msg domain.Message) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return fmt.Errorf("%s: pool stopped", p.cfg.Address)
	}
	depths := make([]int, len(p.members))
	for i, m := range p.members {
		depths[i] = m.QueueDepth()
	}
	target := p.members[pickMember(depths)]
	p.dispatched++
	sample := p.cfg.SampleEvery > 0 && p.dispatched%uint64(p.cfg.SampleEvery) == 0
	p.mu.Unlock()

	p.cfg.Metrics.RecordDispatch(p.cfg.PerformerID)
	if sample {
		select {
		case p.resizeCh <- struct{}{}:
		default:
		}
	}

	return target.Send(msg)
}

// pickMember returns the index of the smallest queue, lowest index on ties.
func pickMember(depths []int) int {
	best := 0
	for i, d := range depths {
		if d < depths[best] {
			best = i
		}
	}
	return best
}

// QueueDepth returns the total queued messages across members.
func (p *ElasticPool) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := 0
	for _, m := range p.members {
		total += m.QueueDepth()
	}
	return total
}

// Size returns the current number of live members.
func (p *ElasticPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.members)
}

// Stop terminates every member without waiting for in-flight work.
func (p *ElasticPool) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)

		p.mu.Lock()
		p.stopped = true
		members := make([]*Worker, len(p.members))
		copy(members, p.members)
		p.mu.Unlock()

		for _, m := range members {
			m.Stop()
		}
	})
}

func (p *ElasticPool) resizeLoop() {
	for {
		select {
		case <-p.done:
			return
		case <-p.resizeCh:
			p.resize()
		}
	}
}

// resize grows by one when the backlogged-member fraction exceeds the backlog
// factor and shrinks by one when it falls below the shrink fraction. Size
// stays in [1, Max]; anything outside is a bug, not a runtime condition.
func (p *ElasticPool) resize() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}

	n := len(p.members)
	limit := p.cfg.BacklogFactor * float64(p.cfg.QueueCapacity)
	backlogged := 0
	total := 0
	for _, m := range p.members {
		d := m.QueueDepth()
		total += d
		if float64(d) > limit {
			backlogged++
		}
	}
	frac := float64(backlogged) / float64(n)
	p.cfg.Metrics.SetQueueDepth(p.cfg.PerformerID, total)

	switch {
	case frac > p.cfg.BacklogFactor && n < p.cfg.Max:
		index := p.nextIndex
		p.nextIndex++
		p.mu.Unlock()

		member, err := p.cfg.NewMember(index)
		if err != nil {
			p.cfg.Logger.Error("pool grow failed",
				zap.String("performer_id", p.cfg.PerformerID),
				zap.Error(err))
			return
		}

		p.mu.Lock()
		if p.stopped {
			p.mu.Unlock()
			member.Stop()
			return
		}
		p.members = append(p.members, member)
		size := len(p.members)
		p.mu.Unlock()

		p.cfg.Metrics.SetPoolSize(p.cfg.PerformerID, size)
		p.cfg.Logger.Info("pool grown",
			zap.String("performer_id", p.cfg.PerformerID),
			zap.Int("size", size))

	case frac < p.cfg.ShrinkFraction && n > 1:
		victim := p.members[n-1]
		p.members = p.members[:n-1]
		size := n - 1
		p.mu.Unlock()

		p.cfg.Metrics.SetPoolSize(p.cfg.PerformerID, size)
		p.cfg.Logger.Info("pool shrinking",
			zap.String("performer_id", p.cfg.PerformerID),
			zap.Int("size", size),
			zap.String("victim", victim.Address()))
		go p.retire(victim)

	default:
		p.mu.Unlock()
	}
}

// retire waits for a removed member to drain its mailbox before stopping it.
// A slot is never released while it still holds unprocessed work.
func (p *ElasticPool) retire(w *Worker) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			w.Stop()
			return
		case <-ticker.C:
			if w.QueueDepth() == 0 {
				w.Stop()
				return
			}
		}
	}
}
