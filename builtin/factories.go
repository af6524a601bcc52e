package builtin

import (
	"log/slog"

	"github.com/c360/corewire"
	"github.com/c360/corewire/lifecycle"
)

// DefaultFactories returns the factory set every Initializer is expected to
// be built with: the protected pluginMetadata service, a slog-backed
// rootLogger, and the root and per-plugin lifecycle services. logger may be
// nil, in which case slog.Default() backs rootLogger.
func DefaultFactories(logger *slog.Logger) []corewire.ServiceFactory {
	return []corewire.ServiceFactory{
		pluginMetadataFactory(),
		rootLoggerFactory(logger),
		rootLifecycleFactory(),
		pluginLifecycleFactory(),
	}
}

func pluginMetadataFactory() corewire.ServiceFactory {
	return corewire.ServiceFactory{
		Service: corewire.ServiceRef{ID: corewire.PluginMetadataServiceID, Scope: corewire.ScopePlugin},
		New: func(_ map[string]any, pluginID string) (any, error) {
			return &PluginMetadata{PluginID: pluginID}, nil
		},
	}
}

func rootLoggerFactory(logger *slog.Logger) corewire.ServiceFactory {
	return corewire.ServiceFactory{
		Service: corewire.ServiceRef{ID: corewire.RootLoggerServiceID, Scope: corewire.ScopeRoot},
		New: func(map[string]any, string) (any, error) {
			return NewSlogLogger(logger), nil
		},
	}
}

func rootLifecycleFactory() corewire.ServiceFactory {
	return corewire.ServiceFactory{
		Service: corewire.ServiceRef{ID: corewire.RootLifecycleServiceID, Scope: corewire.ScopeRoot},
		New: func(map[string]any, string) (any, error) {
			return lifecycle.New(), nil
		},
	}
}

func pluginLifecycleFactory() corewire.ServiceFactory {
	return corewire.ServiceFactory{
		Service: corewire.ServiceRef{ID: corewire.PluginLifecycleServiceID, Scope: corewire.ScopePlugin},
		New: func(map[string]any, string) (any, error) {
			return lifecycle.New(), nil
		},
	}
}
