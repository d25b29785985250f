// Package plugintest holds the conformance suite every HashFleet module
// runs against its own plugin.Plugin implementation.
package plugintest

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/hashfleet/hashfleet/pkg/plugin"
)

// TestPluginContract checks the lifecycle rules the registry relies on.
// Each module calls it from its own test file with a fresh factory:
//
//	func TestContract(t *testing.T) {
//	    plugintest.TestPluginContract(t, func() plugin.Plugin { return New() })
//	}
func TestPluginContract(t *testing.T, factory func() plugin.Plugin) {
	t.Helper()

	t.Run("metadata is complete", func(t *testing.T) {
		info := factory().Info()
		if info.Name == "" {
			t.Error("Info().Name must not be empty")
		}
		if info.Version == "" {
			t.Error("Info().Version must not be empty")
		}
		if info.APIVersion < plugin.APIVersionMin {
			t.Errorf("Info().APIVersion = %d, below supported minimum %d", info.APIVersion, plugin.APIVersionMin)
		}
	})

	t.Run("metadata is stable across calls", func(t *testing.T) {
		p := factory()
		first, second := p.Info(), p.Info()
		if first.Name != second.Name || first.Version != second.Version {
			t.Error("Info() must return the same metadata every time")
		}
	})

	t.Run("init accepts bare dependencies", func(t *testing.T) {
		p := factory()
		if err := p.Init(context.Background(), bareDeps(p.Info().Name)); err != nil {
			t.Fatalf("Init: %v", err)
		}
	})

	t.Run("start then stop", func(t *testing.T) {
		p := factory()
		if err := p.Init(context.Background(), bareDeps(p.Info().Name)); err != nil {
			t.Fatalf("Init: %v", err)
		}
		if err := p.Start(context.Background()); err != nil {
			t.Fatalf("Start: %v", err)
		}
		if err := p.Stop(context.Background()); err != nil {
			t.Fatalf("Stop: %v", err)
		}
	})

	t.Run("stop without start is safe", func(t *testing.T) {
		p := factory()
		if err := p.Init(context.Background(), bareDeps(p.Info().Name)); err != nil {
			t.Fatalf("Init: %v", err)
		}
		if err := p.Stop(context.Background()); err != nil {
			t.Fatalf("Stop before Start: %v", err)
		}
	})
}

// bareDeps is the minimal dependency set a module must tolerate. A
// module needing more than a logger should fail loudly from Init, not
// panic later.
func bareDeps(name string) plugin.Dependencies {
	return plugin.Dependencies{
		Logger: zap.NewNop().Named(name),
	}
}
