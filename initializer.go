// Package corewire is the feature-wiring initializer: it assembles a
// running backend out of independently authored plugins, modules, and
// service implementations, resolving dependencies into a concrete graph,
// rejecting illegal configurations, and driving startup/shutdown with
// maximum safe parallelism.
package corewire

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/c360/corewire/catalog"
	"github.com/c360/corewire/depgraph"
	"github.com/c360/corewire/errors"
	"github.com/c360/corewire/lifecycle"
	"github.com/c360/corewire/registry"
)

// MetricsSink receives plugin and module start durations, each tagged with
// the run id of the Start call that produced them. Any type with these
// methods — such as *builtin.Metrics — satisfies it without this package
// importing anything metrics-specific.
type MetricsSink interface {
	registry.MetricsSink
	ObservePluginStart(pluginID, runID string, d time.Duration)
	ObserveModuleStart(pluginID, moduleID, runID string, d time.Duration)
}

// Well-known service ids resolved internally by the orchestrator. Plugins
// and runtimes register factories for these under the builtin package.
const (
	RootLoggerServiceID      = "rootLogger"
	RootLifecycleServiceID   = "rootLifecycle"
	PluginLifecycleServiceID = "lifecycle"
	FeatureDiscoveryID       = "featureDiscovery"
	PluginMetadataServiceID  = registry.ProtectedPluginMetadataID
)

// Feature is re-exported from catalog so embedders can depend on this
// package alone for the common registration path.
type Feature = catalog.Feature
type FeatureKind = catalog.FeatureKind
type Ref = catalog.Ref
type InitSpec = catalog.InitSpec
type ExtensionPointImpl = catalog.ExtensionPointImpl

// ServiceFactory and ServiceRef are re-exported from registry.
type ServiceFactory = registry.ServiceFactory
type ServiceRef = registry.ServiceRef

const (
	KindServiceFactory = catalog.KindServiceFactory
	KindPlugin         = catalog.KindPlugin
	KindModule         = catalog.KindModule

	ScopeRoot   = registry.ScopeRoot
	ScopePlugin = registry.ScopePlugin
)

// unhandledErrorRateLimit caps how many unhandled async errors per second the
// root logger will actually emit, so one misbehaving plugin cannot flood
// it (§4.8, domain stack note).
const unhandledErrorRateLimit = rate.Limit(5)

// Option configures an Initializer at construction time.
type Option func(*Initializer)

// WithTestMode disables signal handling and the process-wide unhandled
// error host, substituting a lifecycle.NoopProcessHost (§6 "Process
// interface": "In test mode, signal and unhandled-error hooks are not
// installed").
func WithTestMode() Option {
	return func(init *Initializer) {
		init.testMode = true
		init.processHost = lifecycle.NewNoopProcessHost()
	}
}

// WithProcessHost overrides the process host (signals, exit, unhandled
// error reporting). Defaults to lifecycle.OSProcessHost.
func WithProcessHost(host lifecycle.ProcessHost) Option {
	return func(init *Initializer) {
		init.processHost = host
	}
}

// WithMetrics installs a metrics sink. Optional — nil disables it; a
// MetricsSink such as *builtin.Metrics is expected to be nil-receiver-safe
// so callers never have to guard each individual observe call.
func WithMetrics(sink MetricsSink) Option {
	return func(init *Initializer) {
		init.metrics = sink
	}
}

// Initializer is the top-level orchestrator: Initializer.New builds a
// configured, not-yet-started instance; Add registers features; Start and
// Stop drive the state machine (§6).
type Initializer struct {
	mu sync.Mutex

	defaultFactories []registry.ServiceFactory
	catalog          *catalog.Catalog
	registry         *registry.Registry

	state    State
	startErr error

	startedOnce bool
	startDone   chan struct{}
	stopOnce    sync.Once
	stopErr     error

	testMode     bool
	processHost  lifecycle.ProcessHost
	errorLimiter *rate.Limiter
	metrics      MetricsSink

	rootLogger Logger
}

// New builds a configured, not-yet-started Initializer from a flat list of
// default service factories.
func New(defaultFactories []registry.ServiceFactory, opts ...Option) *Initializer {
	init := &Initializer{
		defaultFactories: defaultFactories,
		catalog:          catalog.New(),
		state:            StateConfiguring,
		processHost:      lifecycle.NewOSProcessHost(nil),
		errorLimiter:     rate.NewLimiter(unhandledErrorRateLimit, 1),
	}
	for _, opt := range opts {
		opt(init)
	}
	return init
}

// Add registers a feature. Fails AlreadyStarted once Start has been
// called.
func (init *Initializer) Add(f Feature) error {
	init.mu.Lock()
	started := init.startedOnce
	init.mu.Unlock()
	if started {
		return errors.AlreadyStartedError("initializer")
	}
	return init.catalog.Add(f)
}

// Start runs the discovery phase, the root-service phase, and the
// per-plugin fan-out, then signals root lifecycle startup and transitions
// to Running. A second call on an already-started Initializer fails
// AlreadyStarted immediately (§6) rather than sharing the first call's
// outcome — that sharing behavior belongs to Stop.
func (init *Initializer) Start(ctx context.Context) error {
	init.mu.Lock()
	if init.startedOnce {
		init.mu.Unlock()
		return errors.AlreadyStartedError("initializer")
	}
	init.startedOnce = true
	init.state = StateStarting
	init.startDone = make(chan struct{})
	init.mu.Unlock()

	runID := uuid.NewString()
	err := init.doStart(ctx, runID)

	init.mu.Lock()
	init.startErr = err
	if err != nil {
		init.state = StateFailed
	} else {
		init.state = StateRunning
	}
	done := init.startDone
	init.mu.Unlock()
	close(done)

	if err == nil && !init.testMode {
		go init.runRecovered(init.watchProcessSignals)
	}
	return err
}

// Stop is idempotent and safe to call before Start (no-op). Concurrent and
// repeated calls share the same outcome (P7): the first caller runs
// shutdown, the rest block until it finishes and observe the same error.
func (init *Initializer) Stop(ctx context.Context) error {
	init.mu.Lock()
	if !init.startedOnce {
		init.mu.Unlock()
		return nil
	}
	startDone := init.startDone
	init.mu.Unlock()

	init.stopOnce.Do(func() {
		<-startDone // ignore start's error — cleanup still runs (§4.8)

		init.mu.Lock()
		init.state = StateStopping
		init.mu.Unlock()

		init.stopErr = init.doStop(ctx)

		init.mu.Lock()
		init.state = StateStopped
		init.mu.Unlock()
	})
	return init.stopErr
}

// ReportUnhandledError routes an asynchronous error that arose after the
// backend entered Running through the root logger, rate-limited so a
// misbehaving plugin cannot flood it. It never terminates the process
// (§4.8). In test mode the error goes to the process host's
// HandleUnhandledError instead of the root logger.
func (init *Initializer) ReportUnhandledError(err error) {
	if init.testMode {
		init.processHost.HandleUnhandledError(err)
		return
	}
	if init.errorLimiter.Allow() && init.rootLogger != nil {
		init.rootLogger.Error("unhandled asynchronous error", err)
	}
}

// runRecovered runs fn in the calling goroutine, converting any panic into
// an unhandled-error report instead of letting it crash the process (§4.8
// "global handlers that log otherwise-unhandled asynchronous errors").
// Every goroutine the orchestrator spawns on its own behalf after Start
// succeeds runs through this, not just bare `go`.
func (init *Initializer) runRecovered(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			init.ReportUnhandledError(fmt.Errorf("panic recovered: %v\n%s", r, debug.Stack()))
		}
	}()
	fn()
}

func (init *Initializer) watchProcessSignals() {
	ctx, release := init.processHost.NotifyShutdown(context.Background())
	defer release()
	<-ctx.Done()

	stopErr := init.Stop(context.Background())
	if stopErr != nil {
		init.processHost.Exit(1)
		return
	}
	init.processHost.Exit(0)
}

// doStart implements §4.4 (discovery + root services) and §4.5
// (orchestrator): freeze the registry, run discovery, force-instantiate
// root services, then fan the per-plugin module/plugin/lifecycle sequence
// out across every known plugin id before firing root lifecycle startup.
func (init *Initializer) doStart(ctx context.Context, runID string) error {
	factories := make([]registry.ServiceFactory, 0, len(init.defaultFactories)+4)
	factories = append(factories, init.defaultFactories...)
	factories = append(factories, init.catalog.ServiceOverrides()...)

	reg, err := registry.New(factories)
	if err != nil {
		return err
	}
	if init.metrics != nil {
		reg.SetMetrics(init.metrics)
	}
	reg.SetRunID(runID)
	init.registry = reg

	if discovery, err := reg.Get(ServiceRef{ID: FeatureDiscoveryID}, registry.RootPluginID); err != nil {
		return err
	} else if discovery != nil {
		fd, ok := discovery.(FeatureDiscovery)
		if !ok {
			return errors.MalformedFeatureError("featureDiscovery service does not implement FeatureDiscovery")
		}
		result, err := fd.GetBackendFeatures()
		if err != nil {
			return err
		}
		for _, f := range result {
			if err := init.catalog.AddDiscovered(f); err != nil {
				return err
			}
		}
	}
	init.catalog.Lock()

	if err := reg.InstantiateRootServices(); err != nil {
		return err
	}

	if rl, err := reg.Get(ServiceRef{ID: RootLoggerServiceID}, registry.RootPluginID); err != nil {
		return err
	} else if rl != nil {
		logger, ok := rl.(Logger)
		if !ok {
			return errors.MalformedFeatureError("rootLogger service does not implement Logger")
		}
		init.rootLogger = logger.Child(map[string]any{"runId": runID})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, pluginID := range init.catalog.AllPluginIDs() {
		pluginID := pluginID
		g.Go(func() error {
			return init.runPlugin(gctx, pluginID, runID)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	rootLifecycleVal, err := reg.Get(ServiceRef{ID: RootLifecycleServiceID}, registry.RootPluginID)
	if err != nil {
		return err
	}
	if rootLifecycleVal != nil {
		rootLifecycle, ok := rootLifecycleVal.(Lifecycle)
		if !ok {
			return errors.MalformedFeatureError("rootLifecycle service does not implement Lifecycle")
		}
		if err := rootLifecycle.Startup(); err != nil {
			return err
		}
	}
	return nil
}

// runPlugin drives one plugin's module sub-graph, its own init.func, and
// its per-plugin lifecycle startup (§4.5 steps 1-4). Plugins run fully
// independently of one another.
func (init *Initializer) runPlugin(ctx context.Context, pluginID, runID string) error {
	start := time.Now()
	if init.metrics != nil {
		defer func() { init.metrics.ObservePluginStart(pluginID, runID, time.Since(start)) }()
	}

	modules := init.catalog.ModuleInits(pluginID)

	graph := depgraph.New[*catalog.ModuleInit]()
	for _, m := range modules {
		// Reversed: a module's "provides" in the graph is what it
		// consumes in the registration, and vice versa, so a module
		// providing an extension point runs after every module that
		// consumes it (§4.5 step 1).
		graph.AddNode(m, m.Consumes, m.Provides)
	}

	if cycle := graph.DetectCircularDependency(); cycle != nil {
		path := make([]string, len(cycle))
		for i, n := range cycle {
			path[i] = n.Value.ModuleID
		}
		return errors.CircularModuleDependencyError(pluginID, path)
	}

	err := graph.Traverse(ctx, func(_ context.Context, n *depgraph.Node[*catalog.ModuleInit]) error {
		m := n.Value
		moduleStart := time.Now()
		if init.metrics != nil {
			defer func() {
				init.metrics.ObserveModuleStart(pluginID, m.ModuleID, runID, time.Since(moduleStart))
			}()
		}
		deps, err := init.resolveInitDeps(m.Init.Deps, pluginID)
		if err != nil {
			return err
		}
		if m.Init.Func == nil {
			return nil
		}
		if err := m.Init.Func(deps); err != nil {
			return errors.ModuleStartupFailedError(pluginID, m.ModuleID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if pi, ok := init.catalog.PluginInit(pluginID); ok && pi.Init.Func != nil {
		deps, err := init.resolveInitDeps(pi.Init.Deps, pluginID)
		if err != nil {
			return err
		}
		if err := pi.Init.Func(deps); err != nil {
			return errors.PluginStartupFailedError(pluginID, err)
		}
	}

	pluginLifecycleVal, err := init.registry.Get(ServiceRef{ID: PluginLifecycleServiceID}, pluginID)
	if err != nil {
		return err
	}
	if pluginLifecycleVal != nil {
		pluginLifecycle, ok := pluginLifecycleVal.(Lifecycle)
		if !ok {
			return errors.MalformedFeatureError("lifecycle service does not implement Lifecycle")
		}
		if err := pluginLifecycle.Startup(); err != nil {
			return err
		}
	}
	return nil
}

// resolveInitDeps implements §4.6: extension-point refs resolve through
// the catalog's global table with ownership enforcement, everything else
// resolves through the service registry. Missing service refs are
// batched into one UnresolvedDependencies diagnostic; an ownership
// violation fails immediately since it is a single, unambiguous fault.
func (init *Initializer) resolveInitDeps(deps map[string]Ref, pluginID string) (map[string]any, error) {
	resolved := make(map[string]any, len(deps))
	var missing []string

	for name, ref := range deps {
		if impl, owner, ok := init.catalog.ResolveExtensionPoint(ref.ID); ok {
			if owner != pluginID {
				return nil, errors.ExtensionPointOwnershipViolationError(ref.ID, owner, pluginID)
			}
			resolved[name] = impl
			continue
		}

		v, err := init.registry.Get(ServiceRef{ID: ref.ID}, pluginID)
		if err != nil {
			return nil, err
		}
		if v == nil {
			missing = append(missing, ref.ID)
			continue
		}
		resolved[name] = v
	}

	if len(missing) > 0 {
		return nil, errors.UnresolvedDependenciesError(pluginID, missing)
	}
	return resolved, nil
}

// doStop invokes root lifecycle shutdown, logging (not propagating) any
// failure, matching the best-effort cleanup policy of §4.8.
func (init *Initializer) doStop(ctx context.Context) error {
	if init.registry == nil {
		return nil
	}
	rootLifecycleVal, err := init.registry.Get(ServiceRef{ID: RootLifecycleServiceID}, registry.RootPluginID)
	if err != nil || rootLifecycleVal == nil {
		return nil
	}
	rootLifecycle, ok := rootLifecycleVal.(Lifecycle)
	if !ok {
		return nil
	}
	if err := rootLifecycle.Shutdown(); err != nil {
		if init.rootLogger != nil {
			init.rootLogger.Error("root lifecycle shutdown hook failed", err)
		}
	}
	return nil
}
