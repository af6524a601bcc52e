package corewire

// Logger is the collaborator interface the orchestrator drives structured
// logging through (§6). It never logs directly to stdout itself — every
// log line goes through whatever implementation the "rootLogger" service
// resolves to.
type Logger interface {
	Child(fields map[string]any) Logger
	Error(msg string, err error)
}

// Lifecycle is the collaborator interface both the root and per-plugin
// lifecycle services must satisfy. The registry returns the service as any
// through the same Get path as any other service; the orchestrator asserts
// it to this interface, not to a concrete type, and fails with
// MalformedFeature when it does not satisfy it (§9).
type Lifecycle interface {
	Startup() error
	Shutdown() error
	AddStartupHook(fn func() error)
	AddShutdownHook(fn func() error)
}

// FeatureDiscovery is the optional collaborator resolved under the
// "featureDiscovery" service id at root scope. When present, the features
// it returns are added to the catalog before indexing (§4.4).
type FeatureDiscovery interface {
	GetBackendFeatures() ([]Feature, error)
}

// Feature and ServiceFactory are re-exported from catalog/registry so
// embedders only need to import the root package for the common path.
