package domain

import "time"

// EventType identifies an ensemble lifecycle notification.
type EventType string

const (
	EventEnsembleStarted   EventType = "ensemble.started"
	EventEnsembleStopped   EventType = "ensemble.stopped"
	EventEnsembleRestarted EventType = "ensemble.restarted"
	EventWorkerTerminated  EventType = "worker.terminated"
)

// Event is a lifecycle notification delivered to the telemetry sink.
// Delivery is best-effort: no acknowledgment, no retry.
type Event struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	EnsembleID    string    `json:"ensemble_id"`
	Generation    uint64    `json:"generation"`
	WorkerAddress string    `json:"worker_address,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// MessageKind classifies worker mailbox traffic.
type MessageKind int

const (
	// KindData is ordinary dataflow traffic.
	KindData MessageKind = iota
	// KindControl is control traffic, drained ahead of data.
	KindControl
	// KindDebugPath asks a worker to log its internal path.
	KindDebugPath
)

// Message is one unit of work delivered to a worker's private queue.
type Message struct {
	Kind    MessageKind
	From    string
	Payload any
}
