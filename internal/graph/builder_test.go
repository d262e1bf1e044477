package graph

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/troupelab/troupe/pkg/domain"
)

var testRoots = Roots{Static: "/repo/static", Dynamic: "/repo/dynamic"}

func TestBuildMergesConnectionsLastWins(t *testing.T) {
	conns := []domain.ConnectionRecord{
		{Source: "sink", DependsOn: []string{"a", "b"}},
		{Source: "other", DependsOn: []string{"a"}},
		{Source: "sink", DependsOn: []string{"c"}},
	}

	g := Build(conns, nil, testRoots)

	if got := g.Dependencies("sink"); !reflect.DeepEqual(got, []string{"c"}) {
		t.Errorf("sink dependencies = %v, want [c]", got)
	}
	if got := g.Dependencies("other"); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("other dependencies = %v, want [a]", got)
	}
}

func TestBuildPerformerSpec(t *testing.T) {
	perfs := []domain.PerformerRecord{
		{
			ID:         "transform",
			ScheduleMS: 500,
			BackoffMS:  2000,
			PoolMax:    4,
			Artifact:   "transform.jar",
			PluginRef:  "com.example.Transform",
			Params:     map[string]string{"mode": "fast"},
		},
	}

	g := Build(nil, perfs, testRoots)

	spec, ok := g.Performers["transform"]
	if !ok {
		t.Fatal("performer transform not built")
	}
	if spec.Schedule != 500*time.Millisecond {
		t.Errorf("schedule = %v, want 500ms", spec.Schedule)
	}
	if spec.Backoff != 2*time.Second {
		t.Errorf("backoff = %v, want 2s", spec.Backoff)
	}
	if spec.PoolMax != 4 {
		t.Errorf("pool max = %d, want 4", spec.PoolMax)
	}
	if spec.ControlPriority {
		t.Error("control priority should default to false")
	}
	if spec.Params["mode"] != "fast" {
		t.Errorf("params = %v", spec.Params)
	}
}

func TestBuildArtifactRootSelection(t *testing.T) {
	tests := []struct {
		name     string
		record   domain.PerformerRecord
		wantPath string
	}{
		{
			name:     "static root when no explicit location",
			record:   domain.PerformerRecord{ID: "a", Artifact: "a.jar"},
			wantPath: filepath.Join("/repo/static", "a.jar"),
		},
		{
			name:     "dynamic root when explicit location given",
			record:   domain.PerformerRecord{ID: "b", Artifact: "b.jar", Location: "team-x"},
			wantPath: filepath.Join("/repo/dynamic", "team-x", "b.jar"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := Build(nil, []domain.PerformerRecord{tt.record}, testRoots)
			if got := g.Performers[tt.record.ID].ArtifactPath; got != tt.wantPath {
				t.Errorf("artifact path = %s, want %s", got, tt.wantPath)
			}
		})
	}
}

func TestBuildDefersReferenceValidation(t *testing.T) {
	conns := []domain.ConnectionRecord{{Source: "a", DependsOn: []string{"ghost"}}}
	perfs := []domain.PerformerRecord{{ID: "a", Artifact: "a.jar"}}

	// Building never fails; the dangling "ghost" reference surfaces at
	// materialization.
	g := Build(conns, perfs, testRoots)
	if _, ok := g.Performers["ghost"]; ok {
		t.Error("ghost should not have a performer spec")
	}
	if got := g.Dependencies("a"); !reflect.DeepEqual(got, []string{"ghost"}) {
		t.Errorf("a dependencies = %v, want [ghost]", got)
	}
}
