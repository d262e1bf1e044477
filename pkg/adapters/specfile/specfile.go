package specfile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/troupelab/troupe/pkg/domain"
)

// Version is the spec file format version this parser accepts.
const Version = 1

// Document is the raw YAML shape of a spec file. Connections are a list of
// single-key maps so the document preserves declaration order.
type Document struct {
	Version     int                   `yaml:"version"`
	Ensemble    string                `yaml:"ensemble"`
	Connections []map[string][]string `yaml:"connections"`
	Performers  []PerformerEntry      `yaml:"performers"`
}

// PerformerEntry is one performer declaration.
type PerformerEntry struct {
	ID              string            `yaml:"id"`
	ScheduleMS      int               `yaml:"schedule_ms"`
	BackoffMS       int               `yaml:"backoff_ms"`
	PoolMax         int               `yaml:"pool_max"`
	ControlPriority bool              `yaml:"control_priority"`
	Plugin          string            `yaml:"plugin"`
	Params          map[string]string `yaml:"params"`
	Source          SourceEntry       `yaml:"source"`
}

// SourceEntry locates the performer's artifact. A non-empty location selects
// the dynamic repository root; otherwise the static root applies.
type SourceEntry struct {
	Artifact string `yaml:"artifact"`
	Location string `yaml:"location"`
}

// Load reads and parses a spec file from disk.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spec file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and shape-checks a spec document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse spec file: %w", err)
	}

	if doc.Version != Version {
		return nil, fmt.Errorf("unsupported spec file version %d", doc.Version)
	}
	for i, entry := range doc.Connections {
		if len(entry) != 1 {
			return nil, fmt.Errorf("connection entry %d: want exactly one source, got %d", i, len(entry))
		}
	}
	for i, p := range doc.Performers {
		if p.ID == "" {
			return nil, fmt.Errorf("performer entry %d: missing id", i)
		}
	}

	return &doc, nil
}

// Records converts the document into the parsed record lists the ensemble
// builds its graph from, preserving declaration order.
func (d *Document) Records() ([]domain.ConnectionRecord, []domain.PerformerRecord) {
	conns := make([]domain.ConnectionRecord, 0, len(d.Connections))
	for _, entry := range d.Connections {
		for src, deps := range entry {
			conns = append(conns, domain.ConnectionRecord{Source: src, DependsOn: deps})
		}
	}

	perfs := make([]domain.PerformerRecord, 0, len(d.Performers))
	for _, p := range d.Performers {
		perfs = append(perfs, domain.PerformerRecord{
			ID:              p.ID,
			ScheduleMS:      p.ScheduleMS,
			BackoffMS:       p.BackoffMS,
			PoolMax:         p.PoolMax,
			ControlPriority: p.ControlPriority,
			Artifact:        p.Source.Artifact,
			PluginRef:       p.Plugin,
			Params:          p.Params,
			Location:        p.Source.Location,
		})
	}

	return conns, perfs
}
