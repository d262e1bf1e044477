package graph

import (
	"path/filepath"
	"time"

	"github.com/troupelab/troupe/pkg/domain"
)

// Roots are the externally configured repository paths artifacts resolve
// against.
type Roots struct {
	Static  string
	Dynamic string
}

// Build assembles the graph model from parsed connection and performer
// records.
//
// Connection records are merged into a single mapping; a later record for the
// same source overwrites an earlier one, matching the flattening semantics of
// the spec format. No cross-reference validation happens here: an edge
// pointing at a performer with no spec entry only fails at materialization.
func Build(conns []domain.ConnectionRecord, perfs []domain.PerformerRecord, roots Roots) *domain.Graph {
	g := &domain.Graph{
		Performers:  make(map[string]domain.PerformerSpec, len(perfs)),
		Connections: make(map[string][]string, len(conns)),
	}

	for _, c := range conns {
		deps := make([]string, len(c.DependsOn))
		copy(deps, c.DependsOn)
		g.Connections[c.Source] = deps
	}

	for _, p := range perfs {
		g.Performers[p.ID] = domain.PerformerSpec{
			ID:              p.ID,
			PluginRef:       p.PluginRef,
			ArtifactName:    p.Artifact,
			ArtifactPath:    resolveArtifact(p, roots),
			Params:          copyParams(p.Params),
			Schedule:        time.Duration(p.ScheduleMS) * time.Millisecond,
			Backoff:         time.Duration(p.BackoffMS) * time.Millisecond,
			PoolMax:         p.PoolMax,
			ControlPriority: p.ControlPriority,
		}
	}

	return g
}

// resolveArtifact picks the repository root: records carrying an explicit
// location resolve against the dynamic root, everything else against the
// static root.
func resolveArtifact(p domain.PerformerRecord, roots Roots) string {
	if p.Location != "" {
		return filepath.Join(roots.Dynamic, p.Location, p.Artifact)
	}
	return filepath.Join(roots.Static, p.Artifact)
}

func copyParams(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
