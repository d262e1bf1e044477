package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownPerformer marks a connection referencing an identifier with no
// performer spec anywhere in the graph. Fatal to the build, never retried.
var ErrUnknownPerformer = errors.New("unknown performer")

// ErrDependencyCycle marks a connection cycle discovered during
// materialization. Fatal to the build.
var ErrDependencyCycle = errors.New("dependency cycle between performers")

// LoadError reports that a plugin reference or artifact could not be resolved.
type LoadError struct {
	PluginRef string
	Artifact  string
	Err       error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s (artifact %s): %v", e.PluginRef, e.Artifact, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// CreationError reports that plugin loading or worker construction failed for
// a performer. Fatal to the build, never retried.
type CreationError struct {
	PerformerID string
	Artifact    string
	Err         error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("create performer %s (artifact %s): %v", e.PerformerID, e.Artifact, e.Err)
}

func (e *CreationError) Unwrap() error { return e.Err }

// RestartRequired is the structured signal raised to the ensemble's owner when
// the current generation is beyond local recovery. It is a normal, expected
// outcome of the supervision protocol, delivered on a channel rather than
// thrown.
type RestartRequired struct {
	EnsembleID    string
	Generation    uint64
	WorkerAddress string
	Reason        string
	Timestamp     time.Time
}
