// Package registry implements the service registry: a map from service
// reference to factory, instantiated lazily with per-scope memoization and
// at-most-once construction under concurrent resolution.
package registry

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/c360/corewire/errors"
)

// Scope says whether a service is shared process-wide or instantiated once
// per plugin id.
type Scope int

const (
	ScopeRoot Scope = iota
	ScopePlugin
)

func (s Scope) String() string {
	if s == ScopeRoot {
		return "root"
	}
	return "plugin"
}

// RootPluginID is the pluginId factories run under for root-scoped services.
const RootPluginID = "root"

// ServiceRef identifies a service by id; identity is by ID alone, Scope is
// metadata the factory declares and the registry enforces.
type ServiceRef struct {
	ID    string
	Scope Scope
}

// Factory constructs one instance of a service given its already-resolved
// dependencies and the plugin id it is being built for.
type Factory func(deps map[string]any, pluginID string) (any, error)

// ServiceFactory is one entry of the flat list a Registry is built from.
type ServiceFactory struct {
	Service ServiceRef
	Deps    []ServiceRef
	New     Factory
}

// Registry resolves ServiceRefs to instances, caching per scope key and
// guaranteeing at-most-once instantiation per key even under concurrent
// callers (P3).
type Registry struct {
	factories map[string]ServiceFactory

	mu    sync.Mutex
	cache map[string]any

	group singleflight.Group

	metrics MetricsSink
	runID   string
}

// MetricsSink receives service instantiation counts. Any type with this
// method — such as *builtin.Metrics — satisfies it without the registry
// package importing anything metrics-specific.
type MetricsSink interface {
	ObserveServiceInstantiation(serviceID, scope, runID string)
}

// New builds a Registry from a flat factory list. Later entries win ties on
// Service.ID — "last write wins", so caller-provided overrides should be
// appended after the defaults. The pluginMetadata service id is protected
// (I5): only the first factory registered for it is honored, and any
// attempt to append a second is rejected with ForbiddenServiceOverride.
func New(factories []ServiceFactory) (*Registry, error) {
	r := &Registry{
		factories: make(map[string]ServiceFactory),
		cache:     make(map[string]any),
	}
	for _, f := range factories {
		if f.Service.ID == ProtectedPluginMetadataID {
			if _, exists := r.factories[f.Service.ID]; exists {
				return nil, errors.ForbiddenServiceOverrideError(f.Service.ID)
			}
		}
		r.factories[f.Service.ID] = f
	}
	return r, nil
}

// SetMetrics installs a metrics sink observed on every factory invocation.
// Nil-safe to call with nil — that simply leaves metrics disabled.
func (r *Registry) SetMetrics(sink MetricsSink) {
	r.metrics = sink
}

// SetRunID tags every metric this registry emits with the current Start
// run id, so overlapping runs remain distinguishable in exported metrics.
func (r *Registry) SetRunID(runID string) {
	r.runID = runID
}

// ProtectedPluginMetadataID is the one service id that can never be
// overridden (I5).
const ProtectedPluginMetadataID = "pluginMetadata"

// GetServiceRefs returns every ServiceRef known to the registry.
func (r *Registry) GetServiceRefs() []ServiceRef {
	refs := make([]ServiceRef, 0, len(r.factories))
	for _, f := range r.factories {
		refs = append(refs, f.Service)
	}
	return refs
}

// Get resolves ref under pluginID, instantiating and caching on first use.
// Returns nil, nil if no factory is registered for ref.ID — callers that
// need a hard failure on missing refs do so themselves (§4.6).
func (r *Registry) Get(ref ServiceRef, pluginID string) (any, error) {
	return r.resolve(ref.ID, pluginID, make(map[string]bool))
}

// resolve is the re-entrant worker behind Get. stack tracks the service ids
// currently being resolved on this call chain so a cycle among factory
// dependencies surfaces as ServiceCycle instead of a singleflight deadlock.
func (r *Registry) resolve(id, pluginID string, stack map[string]bool) (any, error) {
	f, ok := r.factories[id]
	if !ok {
		return nil, nil
	}

	key := id
	if f.Service.Scope == ScopePlugin {
		key = id + "\x00" + pluginID
	}

	if stack[key] {
		return nil, errors.ServiceCycleError(id)
	}

	r.mu.Lock()
	if v, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return v, nil
	}
	r.mu.Unlock()

	childStack := make(map[string]bool, len(stack)+1)
	for k := range stack {
		childStack[k] = true
	}
	childStack[key] = true

	v, err, _ := r.group.Do(key, func() (any, error) {
		r.mu.Lock()
		if v, ok := r.cache[key]; ok {
			r.mu.Unlock()
			return v, nil
		}
		r.mu.Unlock()

		resolvedPluginID := pluginID
		if f.Service.Scope == ScopeRoot {
			resolvedPluginID = RootPluginID
		}

		deps := make(map[string]any, len(f.Deps))
		for _, dep := range f.Deps {
			dv, err := r.resolve(dep.ID, resolvedPluginID, childStack)
			if err != nil {
				return nil, err
			}
			if dv == nil {
				return nil, errors.MissingDependencyError(dep.ID)
			}
			deps[dep.ID] = dv
		}

		inst, err := f.New(deps, resolvedPluginID)
		if err != nil {
			return nil, err
		}
		if r.metrics != nil {
			r.metrics.ObserveServiceInstantiation(f.Service.ID, f.Service.Scope.String(), r.runID)
		}

		r.mu.Lock()
		r.cache[key] = inst
		r.mu.Unlock()
		return inst, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// InstantiateRootServices force-instantiates every root-scoped service, the
// root phase of §4.4 step 3.
func (r *Registry) InstantiateRootServices() error {
	for _, ref := range r.GetServiceRefs() {
		if ref.Scope != ScopeRoot {
			continue
		}
		if _, err := r.Get(ref, RootPluginID); err != nil {
			return err
		}
	}
	return nil
}
