package plugins

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/troupelab/troupe/pkg/domain"
	"github.com/troupelab/troupe/pkg/ports"
)

func okProvider() Provider {
	return ProviderFunc(func(artifactPath, artifactName string) (ports.WorkerFactory, error) {
		return ports.FactoryFunc(func(env ports.PerformerEnv) (ports.Performer, error) {
			return nil, errors.New("not a real performer")
		}), nil
	})
}

func TestLoaderResolvesRegisteredProvider(t *testing.T) {
	reg := NewRegistry()
	reg.Register("wasm", okProvider())
	l := NewLoader(reg, false, zap.NewNop())

	factory, err := l.Load("wasm", "/tmp/does-not-matter.wasm", "run")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if factory == nil {
		t.Fatal("nil factory")
	}
}

func TestLoaderUnknownReference(t *testing.T) {
	l := NewLoader(NewRegistry(), false, zap.NewNop())

	_, err := l.Load("missing", "a.wasm", "run")
	var le *domain.LoadError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want LoadError", err)
	}
	if !errors.Is(err, ErrUnknownPlugin) {
		t.Errorf("err = %v, want ErrUnknownPlugin", err)
	}
	if le.PluginRef != "missing" {
		t.Errorf("plugin ref = %s", le.PluginRef)
	}
}

func TestLoaderVerifiesArtifactExists(t *testing.T) {
	reg := NewRegistry()
	reg.Register("wasm", okProvider())
	l := NewLoader(reg, true, zap.NewNop())

	_, err := l.Load("wasm", filepath.Join(t.TempDir(), "absent.wasm"), "run")
	var le *domain.LoadError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want LoadError for missing artifact", err)
	}

	present := filepath.Join(t.TempDir(), "present.wasm")
	if err := os.WriteFile(present, []byte("\x00asm"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Load("wasm", present, "run"); err != nil {
		t.Errorf("Load with existing artifact: %v", err)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	reg.Register("wasm", okProvider())

	defer func() {
		if recover() == nil {
			t.Error("duplicate registration should panic")
		}
	}()
	reg.Register("wasm", okProvider())
}

func TestNoopProviderBuildsWorkingPerformer(t *testing.T) {
	reg := NewRegistry()
	reg.Register("noop", NoopProvider(zap.NewNop()))
	l := NewLoader(reg, false, zap.NewNop())

	factory, err := l.Load("noop", "", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	p, err := factory.New(ports.PerformerEnv{EnsembleID: "ens", PerformerID: "a"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Init(context.Background()); err != nil {
		t.Errorf("Init: %v", err)
	}
	if err := p.OnMessage(context.Background(), domain.Message{Kind: domain.KindData}); err != nil {
		t.Errorf("OnMessage: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
