// Package catalog accepts feature registrations, classifies each one,
// rejects duplicates and malformed shapes, and produces the indexed maps
// the orchestrator drives its per-plugin fan-out from.
package catalog

import (
	"github.com/c360/corewire/errors"
	"github.com/c360/corewire/registry"
)

// SupportedVersion is the only feature version tag this catalog accepts.
const SupportedVersion = "v1"

// FeatureKind tags the union a Feature resolves to, replacing shape-probing
// with an explicit discriminator.
type FeatureKind int

const (
	KindServiceFactory FeatureKind = iota
	KindPlugin
	KindModule
)

// Ref names either a service or an extension point by id; which one it
// resolves to is decided by the extension-point table at resolution time
// (§4.6), not by the ref itself.
type Ref struct {
	ID string
}

// InitSpec is the deps/func pair every plugin or module registration
// carries: named refs to resolve, and the closure to invoke with them.
type InitSpec struct {
	Deps map[string]Ref
	Func func(deps map[string]any) error
}

// ExtensionPointImpl is one (id, implementation) pair a plugin or module
// contributes.
type ExtensionPointImpl struct {
	ID   string
	Impl any
}

// Feature is one registration submitted to Catalog.Add. Exactly the fields
// for its Kind are meaningful; the others are zero.
type Feature struct {
	Kind FeatureKind

	// KindServiceFactory
	ServiceFactory registry.ServiceFactory

	// KindPlugin / KindModule
	Version         string
	PluginID        string
	ModuleID        string // KindModule only
	ExtensionPoints []ExtensionPointImpl
	Init            InitSpec
}

// PluginInit is the indexed record for a plugin-kind feature.
type PluginInit struct {
	PluginID        string
	ExtensionPoints []ExtensionPointImpl
	Init            InitSpec
	Provides        []string // extension point ids this plugin owns
	Consumes        []string // ref ids named in Init.Deps
}

// ModuleInit is the indexed record for a module-kind feature.
type ModuleInit struct {
	PluginID        string
	ModuleID        string
	ExtensionPoints []ExtensionPointImpl
	Init            InitSpec
	Provides        []string
	Consumes        []string
}

// extensionPointEntry is one row of the global extension-point table.
type extensionPointEntry struct {
	Impl           any
	OwningPluginID string
}

// Catalog accumulates features prior to start() and indexes them once.
type Catalog struct {
	started bool

	overrides []registry.ServiceFactory

	pluginInits map[string]*PluginInit
	moduleInits map[string]map[string]*ModuleInit

	extensionPoints map[string]extensionPointEntry
}

// New returns an empty Catalog.
func New() *Catalog {
	return &Catalog{
		pluginInits:     make(map[string]*PluginInit),
		moduleInits:     make(map[string]map[string]*ModuleInit),
		extensionPoints: make(map[string]extensionPointEntry),
	}
}

// Lock marks the catalog started; subsequent Add calls fail AlreadyStarted.
// Add is still permitted internally by the discovery phase (§4.4 step 2),
// which adds through AddDiscovered before Lock runs.
func (c *Catalog) Lock() {
	c.started = true
}

// Add classifies and indexes feature per §4.3's rules. Fails AlreadyStarted
// once the catalog has been locked.
func (c *Catalog) Add(f Feature) error {
	if c.started {
		return errors.AlreadyStartedError("catalog")
	}
	return c.addUnlocked(f)
}

// AddDiscovered is the discovery-phase entry point (§4.4 step 2): it runs
// the same classification rules as Add but bypasses the started guard,
// since discovered features are added between freezing the registry and
// locking the catalog.
func (c *Catalog) AddDiscovered(f Feature) error {
	return c.addUnlocked(f)
}

func (c *Catalog) addUnlocked(f Feature) error {
	switch f.Kind {
	case KindServiceFactory:
		return c.addServiceFactory(f.ServiceFactory)
	case KindPlugin:
		return c.addPlugin(f)
	case KindModule:
		return c.addModule(f)
	default:
		return errors.MalformedFeatureError("unknown feature kind")
	}
}

func (c *Catalog) addServiceFactory(sf registry.ServiceFactory) error {
	if sf.Service.ID == "" {
		return errors.MalformedFeatureError("service factory missing service id")
	}
	if sf.Service.ID == registry.ProtectedPluginMetadataID {
		return errors.ForbiddenServiceOverrideError(sf.Service.ID)
	}
	for _, existing := range c.overrides {
		if existing.Service.ID == sf.Service.ID {
			return errors.DuplicateServiceImplError(sf.Service.ID)
		}
	}
	c.overrides = append(c.overrides, sf)
	return nil
}

func (c *Catalog) addPlugin(f Feature) error {
	if err := c.checkVersion(f.Version); err != nil {
		return err
	}
	if f.PluginID == "" {
		return errors.MalformedFeatureError("plugin feature missing pluginId")
	}
	if _, exists := c.pluginInits[f.PluginID]; exists {
		return errors.DuplicatePluginRegistrationError(f.PluginID)
	}
	provides, err := c.registerExtensionPoints(f.PluginID, f.ExtensionPoints)
	if err != nil {
		return err
	}
	c.pluginInits[f.PluginID] = &PluginInit{
		PluginID:        f.PluginID,
		ExtensionPoints: f.ExtensionPoints,
		Init:            f.Init,
		Provides:        provides,
		Consumes:        refIDs(f.Init.Deps),
	}
	return nil
}

func (c *Catalog) addModule(f Feature) error {
	if err := c.checkVersion(f.Version); err != nil {
		return err
	}
	if f.PluginID == "" || f.ModuleID == "" {
		return errors.MalformedFeatureError("module feature missing pluginId or moduleId")
	}
	modules, ok := c.moduleInits[f.PluginID]
	if !ok {
		modules = make(map[string]*ModuleInit)
		c.moduleInits[f.PluginID] = modules
	}
	if _, exists := modules[f.ModuleID]; exists {
		return errors.DuplicateModuleRegistrationError(f.PluginID, f.ModuleID)
	}
	provides, err := c.registerExtensionPoints(f.PluginID, f.ExtensionPoints)
	if err != nil {
		return err
	}
	modules[f.ModuleID] = &ModuleInit{
		PluginID:        f.PluginID,
		ModuleID:        f.ModuleID,
		ExtensionPoints: f.ExtensionPoints,
		Init:            f.Init,
		Provides:        provides,
		Consumes:        refIDs(f.Init.Deps),
	}
	return nil
}

func (c *Catalog) checkVersion(version string) error {
	if version == "" {
		return errors.MalformedFeatureError("feature missing version tag")
	}
	if version != SupportedVersion {
		return errors.UnsupportedFeatureVersionError(version)
	}
	return nil
}

// registerExtensionPoints enforces I2 (global uniqueness) and populates the
// extension-point table, returning the ids just registered.
func (c *Catalog) registerExtensionPoints(pluginID string, eps []ExtensionPointImpl) ([]string, error) {
	ids := make([]string, 0, len(eps))
	for _, ep := range eps {
		if _, exists := c.extensionPoints[ep.ID]; exists {
			return nil, errors.DuplicateExtensionPointError(ep.ID)
		}
		c.extensionPoints[ep.ID] = extensionPointEntry{Impl: ep.Impl, OwningPluginID: pluginID}
		ids = append(ids, ep.ID)
	}
	return ids, nil
}

func refIDs(deps map[string]Ref) []string {
	ids := make([]string, 0, len(deps))
	for _, ref := range deps {
		ids = append(ids, ref.ID)
	}
	return ids
}

// ServiceOverrides returns the accumulated service-factory overrides, in
// registration order, ready to append after a runtime's default factories.
func (c *Catalog) ServiceOverrides() []registry.ServiceFactory {
	return c.overrides
}

// AllPluginIDs returns the union of plugin ids with a plugin registration
// and plugin ids with at least one module registration (§4.5: "modules may
// exist without their plugin").
func (c *Catalog) AllPluginIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for id := range c.pluginInits {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for id := range c.moduleInits {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// PluginInit returns the plugin-kind registration for pluginID, if any.
func (c *Catalog) PluginInit(pluginID string) (*PluginInit, bool) {
	pi, ok := c.pluginInits[pluginID]
	return pi, ok
}

// ModuleInits returns every module registered for pluginID, in no
// particular order — ordering within a plugin is the module graph's job.
func (c *Catalog) ModuleInits(pluginID string) []*ModuleInit {
	modules := c.moduleInits[pluginID]
	out := make([]*ModuleInit, 0, len(modules))
	for _, m := range modules {
		out = append(out, m)
	}
	return out
}

// ResolveExtensionPoint looks up extID in the global table. ok is false if
// no feature registered it.
func (c *Catalog) ResolveExtensionPoint(extID string) (impl any, owningPluginID string, ok bool) {
	e, ok := c.extensionPoints[extID]
	if !ok {
		return nil, "", false
	}
	return e.Impl, e.OwningPluginID, true
}
