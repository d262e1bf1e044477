package plugins

import (
	"fmt"
	"sort"
	"sync"

	"github.com/troupelab/troupe/pkg/ports"
)

// Provider builds a worker factory for one artifact. A provider is the
// runtime behind a plugin reference: it knows how to turn an artifact on disk
// into performer instances.
type Provider interface {
	Open(artifactPath, artifactName string) (ports.WorkerFactory, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(artifactPath, artifactName string) (ports.WorkerFactory, error)

func (f ProviderFunc) Open(artifactPath, artifactName string) (ports.WorkerFactory, error) {
	return f(artifactPath, artifactName)
}

// Registry maps plugin references to providers. Registration happens during
// startup; duplicate names are a programming error.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider under a reference name. It panics if the name is
// already taken.
func (r *Registry) Register(ref string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[ref]; exists {
		panic(fmt.Sprintf("plugin provider with name '%s' already registered", ref))
	}
	r.providers[ref] = p
}

// Lookup returns the provider for a reference.
func (r *Registry) Lookup(ref string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[ref]
	return p, ok
}

// Refs returns the registered reference names, sorted.
func (r *Registry) Refs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	refs := make([]string, 0, len(r.providers))
	for ref := range r.providers {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}
