package domain

import "time"

// ConnectionRecord is one parsed connection entry: a source performer and the
// ordered dependency identifiers it declares.
type ConnectionRecord struct {
	Source    string
	DependsOn []string
}

// PerformerRecord is one parsed performer entry as produced by the spec parser.
// Intervals are raw milliseconds; resolution against repository roots happens
// at graph-build time.
type PerformerRecord struct {
	ID              string
	ScheduleMS      int
	BackoffMS       int
	PoolMax         int
	ControlPriority bool
	Artifact        string
	PluginRef       string
	Params          map[string]string
	Location        string
}

// PerformerSpec is the immutable per-performer description held by a graph.
type PerformerSpec struct {
	ID              string
	PluginRef       string
	ArtifactName    string
	ArtifactPath    string
	Params          map[string]string
	Schedule        time.Duration
	Backoff         time.Duration
	PoolMax         int
	ControlPriority bool
}

// Graph is the in-memory model of one ensemble: performer specs keyed by
// identifier plus the flattened connection edges. It is built once per
// generation and never mutated.
type Graph struct {
	Performers  map[string]PerformerSpec
	Connections map[string][]string
}

// Dependencies returns the declared dependency identifiers of a performer,
// or nil if it has no connection entry.
func (g *Graph) Dependencies(id string) []string {
	return g.Connections[id]
}
