// Package registry owns the plugin lifecycle: registration, dependency
// resolution, init, start, and shutdown of HashFleet plugins.
package registry

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/hashfleet/hashfleet/pkg/plugin"
)

// Registry tracks every registered plugin and the order it may start in.
// A plugin that fails a compatibility or dependency check is disabled
// rather than removed, unless it is marked Required.
type Registry struct {
	mu       sync.RWMutex
	plugins  map[string]plugin.Plugin
	infos    map[string]plugin.PluginInfo
	order    []string // filled by Validate, dependency-sorted
	disabled map[string]bool
	logger   *zap.Logger
}

func New(logger *zap.Logger) *Registry {
	return &Registry{
		plugins:  make(map[string]plugin.Plugin),
		infos:    make(map[string]plugin.PluginInfo),
		disabled: make(map[string]bool),
		logger:   logger,
	}
}

// Register adds a plugin. All registrations happen before Validate.
func (r *Registry) Register(p plugin.Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	info := p.Info()
	name := info.Name

	if name == "" {
		return fmt.Errorf("plugin has empty name")
	}
	if _, exists := r.plugins[name]; exists {
		return fmt.Errorf("plugin %q already registered", name)
	}

	r.plugins[name] = p
	r.infos[name] = info
	r.logger.Info("plugin registered",
		zap.String("name", name),
		zap.String("version", info.Version),
		zap.Int("api_version", info.APIVersion),
	)
	return nil
}

// Validate runs the pre-flight checks: API version compatibility,
// dependency existence, cascade-disabling of dependents, and the
// topological sort that fixes start order. A failing Required plugin
// aborts; anything else is disabled with a warning.
func (r *Registry) Validate() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, info := range r.infos {
		err := r.checkAPIVersion(name, info.APIVersion)
		if err == nil {
			continue
		}
		if info.Required {
			return err
		}
		r.park(name, "api version check", err)
	}

	if err := r.checkDependencies(); err != nil {
		return err
	}
	if err := r.cascadeDisable(); err != nil {
		return err
	}

	order, err := r.topologicalSort()
	if err != nil {
		return err
	}
	r.order = order

	r.logger.Info("plugin dependency resolution complete",
		zap.Strings("start_order", r.order),
		zap.Int("active", len(r.order)),
		zap.Int("disabled", len(r.disabled)),
	)
	return nil
}

// park takes an optional plugin out of service and records why. Caller
// holds r.mu.
func (r *Registry) park(name, during string, err error) {
	r.logger.Warn("disabling plugin",
		zap.String("name", name),
		zap.String("during", during),
		zap.Error(err),
	)
	r.disabled[name] = true
}

// settle applies the shared failure policy for a lifecycle error: a
// Required plugin propagates it, an optional one is parked. Caller
// holds r.mu.
func (r *Registry) settle(name, during string, err error) error {
	if r.infos[name].Required {
		return fmt.Errorf("required plugin %q failed to %s: %w", name, during, err)
	}
	r.park(name, during, err)
	return nil
}

// checkDependencies disables plugins whose dependencies are missing or
// already disabled. Caller holds r.mu.
func (r *Registry) checkDependencies() error {
	for name, info := range r.infos {
		if r.disabled[name] {
			continue
		}
		for _, dep := range info.Dependencies {
			var depErr error
			switch {
			case r.plugins[dep] == nil:
				depErr = fmt.Errorf("plugin %q depends on %q which is not registered", name, dep)
			case r.disabled[dep]:
				depErr = fmt.Errorf("plugin %q depends on %q which is disabled", name, dep)
			default:
				continue
			}
			if info.Required {
				return depErr
			}
			r.park(name, "dependency check", depErr)
			break
		}
	}
	return nil
}

// cascadeDisable propagates disablement: a dependent of a disabled
// plugin goes down with it, repeating until nothing changes. Caller
// holds r.mu.
func (r *Registry) cascadeDisable() error {
	for changed := true; changed; {
		changed = false
		for name, info := range r.infos {
			if r.disabled[name] {
				continue
			}
			for _, dep := range info.Dependencies {
				if !r.disabled[dep] {
					continue
				}
				if info.Required {
					return fmt.Errorf("required plugin %q cannot start: dependency %q is disabled", name, dep)
				}
				r.park(name, "cascade", fmt.Errorf("dependency %q is disabled", dep))
				changed = true
				break
			}
		}
	}
	return nil
}

// callSafely invokes a lifecycle method, converting a panic into an
// error so one misbehaving plugin cannot take the host process down.
func callSafely(name, phase string, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("plugin %q panicked in %s: %v", name, phase, rec)
		}
	}()
	return fn()
}

// InitAll initializes active plugins in dependency order, wires declared
// event subscriptions, and runs post-init config validation. Optional
// plugins that fail are disabled and skipped.
func (r *Registry) InitAll(ctx context.Context, depsFn func(name string) plugin.Dependencies) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		p := r.plugins[name]

		r.logger.Info("initializing plugin", zap.String("name", name))
		deps := depsFn(name)
		if err := callSafely(name, "Init", func() error { return p.Init(ctx, deps) }); err != nil {
			if err := r.settle(name, "initialize", err); err != nil {
				return err
			}
			continue
		}

		if es, ok := p.(plugin.EventSubscriber); ok && deps.Bus != nil {
			for _, sub := range es.Subscriptions() {
				deps.Bus.Subscribe(sub.Topic, sub.Handler)
			}
		}

		if v, ok := p.(plugin.Validator); ok {
			if err := v.ValidateConfig(); err != nil {
				if err := r.settle(name, "validate config", err); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// StartAll starts initialized plugins in dependency order.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		if r.disabled[name] {
			continue
		}
		p := r.plugins[name]
		r.logger.Info("starting plugin", zap.String("name", name))
		if err := callSafely(name, "Start", func() error { return p.Start(ctx) }); err != nil {
			if err := r.settle(name, "start", err); err != nil {
				return err
			}
		}
	}
	return nil
}

// StopAll stops active plugins in reverse start order so dependents shut
// down before their dependencies.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.order) - 1; i >= 0; i-- {
		name := r.order[i]
		if r.disabled[name] {
			continue
		}
		p := r.plugins[name]
		r.logger.Info("stopping plugin", zap.String("name", name))
		if err := callSafely(name, "Stop", func() error { return p.Stop(ctx) }); err != nil {
			r.logger.Error("plugin stop failed", zap.String("name", name), zap.Error(err))
		}
	}
}

// Get returns an active plugin by name.
func (r *Registry) Get(name string) (plugin.Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	if ok && r.disabled[name] {
		return nil, false
	}
	return p, ok
}

// All returns the active plugins in start order.
func (r *Registry) All() []plugin.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := make([]plugin.Plugin, 0, len(r.order))
	for _, name := range r.order {
		if !r.disabled[name] {
			active = append(active, r.plugins[name])
		}
	}
	return active
}

// AllRoutes collects HTTP routes from active plugins implementing
// HTTPProvider, keyed by plugin name.
func (r *Registry) AllRoutes() map[string][]plugin.Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make(map[string][]plugin.Route)
	for _, name := range r.order {
		if r.disabled[name] {
			continue
		}
		if hp, ok := r.plugins[name].(plugin.HTTPProvider); ok {
			if pr := hp.Routes(); len(pr) > 0 {
				routes[name] = pr
			}
		}
	}
	return routes
}

// Resolve implements plugin.PluginResolver.
func (r *Registry) Resolve(name string) (plugin.Plugin, bool) {
	return r.Get(name)
}

// ResolveByRole returns the active plugins declaring the given role.
func (r *Registry) ResolveByRole(role string) []plugin.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []plugin.Plugin
	for _, name := range r.order {
		if r.disabled[name] {
			continue
		}
		for _, declared := range r.infos[name].Roles {
			if declared == role {
				matched = append(matched, r.plugins[name])
				break
			}
		}
	}
	return matched
}

// IsDisabled reports whether a plugin was taken out of service.
func (r *Registry) IsDisabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.disabled[name]
}

// checkAPIVersion compares a plugin's target API version to the range
// this server supports. Older-but-supported versions only warn.
func (r *Registry) checkAPIVersion(name string, apiVersion int) error {
	switch {
	case apiVersion < plugin.APIVersionMin:
		return fmt.Errorf("plugin %q targets plugin API v%d, below the minimum v%d this server accepts",
			name, apiVersion, plugin.APIVersionMin)
	case apiVersion > plugin.APIVersionCurrent:
		return fmt.Errorf("plugin %q targets plugin API v%d, above the v%d this server speaks",
			name, apiVersion, plugin.APIVersionCurrent)
	case apiVersion < plugin.APIVersionCurrent:
		r.logger.Warn("plugin targets an older plugin API",
			zap.String("name", name),
			zap.Int("plugin_api", apiVersion),
			zap.Int("server_api", plugin.APIVersionCurrent),
		)
	}
	return nil
}

// topologicalSort orders active plugins with Kahn's algorithm; a
// leftover in-degree means a cycle.
func (r *Registry) topologicalSort() ([]string, error) {
	active := make(map[string]bool)
	for name := range r.plugins {
		if !r.disabled[name] {
			active[name] = true
		}
	}

	remaining := make(map[string]int, len(active)) // unmet dependency count
	awaiting := make(map[string][]string)          // dep -> plugins waiting on it

	for name := range active {
		remaining[name] = 0
	}
	for name := range active {
		for _, dep := range r.infos[name].Dependencies {
			if active[dep] {
				remaining[name]++
				awaiting[dep] = append(awaiting[dep], name)
			}
		}
	}

	var ready []string
	for name, unmet := range remaining {
		if unmet == 0 {
			ready = append(ready, name)
		}
	}

	order := make([]string, 0, len(active))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)

		for _, waiter := range awaiting[name] {
			remaining[waiter]--
			if remaining[waiter] == 0 {
				ready = append(ready, waiter)
			}
		}
	}

	if len(order) != len(active) {
		var stuck []string
		for name := range active {
			if remaining[name] > 0 {
				stuck = append(stuck, name)
			}
		}
		return nil, fmt.Errorf("dependency cycle detected among plugins: %v", stuck)
	}

	return order, nil
}
