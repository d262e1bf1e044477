package plugins

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/troupelab/troupe/pkg/domain"
	"github.com/troupelab/troupe/pkg/ports"
)

// ErrUnknownPlugin marks a reference with no registered provider.
var ErrUnknownPlugin = errors.New("unknown plugin reference")

// Loader implements ports.PluginLoader on top of a provider registry.
type Loader struct {
	registry *Registry
	logger   *zap.Logger

	// verify requires the artifact file to exist before the provider opens it,
	// turning a bad path into an immediate LoadError instead of a deferred
	// provider failure.
	verify bool
}

// NewLoader creates a loader over the registry.
func NewLoader(registry *Registry, verify bool, logger *zap.Logger) *Loader {
	return &Loader{
		registry: registry,
		logger:   logger,
		verify:   verify,
	}
}

// Load resolves a plugin reference and artifact into a worker factory.
// Failures are reported as *domain.LoadError.
func (l *Loader) Load(pluginRef, artifactPath, artifactName string) (ports.WorkerFactory, error) {
	provider, ok := l.registry.Lookup(pluginRef)
	if !ok {
		return nil, &domain.LoadError{
			PluginRef: pluginRef,
			Artifact:  artifactPath,
			Err:       fmt.Errorf("%w: %s", ErrUnknownPlugin, pluginRef),
		}
	}

	if l.verify && artifactPath != "" {
		if _, err := os.Stat(artifactPath); err != nil {
			return nil, &domain.LoadError{PluginRef: pluginRef, Artifact: artifactPath, Err: err}
		}
	}

	factory, err := provider.Open(artifactPath, artifactName)
	if err != nil {
		return nil, &domain.LoadError{PluginRef: pluginRef, Artifact: artifactPath, Err: err}
	}

	l.logger.Debug("plugin resolved",
		zap.String("plugin_ref", pluginRef),
		zap.String("artifact", artifactPath),
		zap.String("artifact_name", artifactName))
	return factory, nil
}
