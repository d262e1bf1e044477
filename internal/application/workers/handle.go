package workers

import (
	"errors"
	"time"

	"github.com/troupelab/troupe/pkg/domain"
)

// ErrMailboxFull is returned by Send when a worker's queue is at capacity.
// Dispatch is non-blocking; callers decide whether to retry or drop.
var ErrMailboxFull = errors.New("worker mailbox full")

// Handle is the opaque reference to a live worker held by the ensemble
// supervisor. A handle's identity and address survive supervised restarts;
// only the goroutine and performer instance behind it are replaced.
type Handle interface {
	ID() string
	Address() string
	Send(msg domain.Message) error
	QueueDepth() int
	Stop()
}

// Failure reports the abnormal termination of one concurrent worker to the
// supervision policy.
type Failure struct {
	PerformerID string
	Address     string
	Err         error
	At          time.Time

	restart func() error
}

// Restart replaces the dead execution context behind the failed worker's
// handle. Mailboxes and dependency wiring are untouched.
func (f Failure) Restart() error { return f.restart() }
