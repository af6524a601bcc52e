package registry

import (
	"sync"
	"sync/atomic"
	"testing"

	corewireerrors "github.com/c360/corewire/errors"
)

func TestGetMemoizesRootScoped(t *testing.T) {
	var calls int32
	r, err := New([]ServiceFactory{
		{
			Service: ServiceRef{ID: "clock", Scope: ScopeRoot},
			New: func(map[string]any, string) (any, error) {
				atomic.AddInt32(&calls, 1)
				return "tick", nil
			},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 5; i++ {
		v, err := r.Get(ServiceRef{ID: "clock"}, "anyplugin")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v != "tick" {
			t.Fatalf("expected tick, got %v", v)
		}
	}
	if calls != 1 {
		t.Fatalf("expected factory to run once, ran %d times", calls)
	}
}

func TestGetMemoizesPerPluginScope(t *testing.T) {
	var calls int32
	r, err := New([]ServiceFactory{
		{
			Service: ServiceRef{ID: "cache", Scope: ScopePlugin},
			New: func(map[string]any, string) (any, error) {
				atomic.AddInt32(&calls, 1)
				return struct{}{}, nil
			},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := r.Get(ServiceRef{ID: "cache"}, "A"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Get(ServiceRef{ID: "cache"}, "A"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Get(ServiceRef{ID: "cache"}, "B"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected one instantiation per plugin id, got %d calls", calls)
	}
}

func TestGetAtMostOnceUnderConcurrency(t *testing.T) {
	var calls int32
	r, err := New([]ServiceFactory{
		{
			Service: ServiceRef{ID: "shared", Scope: ScopeRoot},
			New: func(map[string]any, string) (any, error) {
				atomic.AddInt32(&calls, 1)
				return "v", nil
			},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Get(ServiceRef{ID: "shared"}, "root")
		}()
	}
	wg.Wait()

	if calls != 1 {
		t.Fatalf("expected exactly one instantiation, got %d", calls)
	}
}

func TestGetMissingDependencyFails(t *testing.T) {
	r, err := New([]ServiceFactory{
		{
			Service: ServiceRef{ID: "needsGhost", Scope: ScopeRoot},
			Deps:    []ServiceRef{{ID: "ghost"}},
			New:     func(map[string]any, string) (any, error) { return "unreachable", nil },
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = r.Get(ServiceRef{ID: "needsGhost"}, "root")
	if !corewireerrors.Is(err, corewireerrors.MissingDependency) {
		t.Fatalf("expected MissingDependency, got %v", err)
	}
}

func TestGetServiceCycleFails(t *testing.T) {
	r, err := New([]ServiceFactory{
		{
			Service: ServiceRef{ID: "a", Scope: ScopeRoot},
			Deps:    []ServiceRef{{ID: "b"}},
			New:     func(map[string]any, string) (any, error) { return "a", nil },
		},
		{
			Service: ServiceRef{ID: "b", Scope: ScopeRoot},
			Deps:    []ServiceRef{{ID: "a"}},
			New:     func(map[string]any, string) (any, error) { return "b", nil },
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = r.Get(ServiceRef{ID: "a"}, "root")
	if !corewireerrors.Is(err, corewireerrors.ServiceCycle) {
		t.Fatalf("expected ServiceCycle, got %v", err)
	}
}

func TestGetUnknownRefReturnsNil(t *testing.T) {
	r, err := New(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, err := r.Get(ServiceRef{ID: "nope"}, "root")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != nil {
		t.Fatalf("expected nil for unknown ref, got %v", v)
	}
}

func TestNewRejectsSecondPluginMetadataFactory(t *testing.T) {
	_, err := New([]ServiceFactory{
		{Service: ServiceRef{ID: ProtectedPluginMetadataID, Scope: ScopeRoot}, New: func(map[string]any, string) (any, error) { return 1, nil }},
		{Service: ServiceRef{ID: ProtectedPluginMetadataID, Scope: ScopeRoot}, New: func(map[string]any, string) (any, error) { return 2, nil }},
	})
	if !corewireerrors.Is(err, corewireerrors.ForbiddenServiceOverride) {
		t.Fatalf("expected ForbiddenServiceOverride, got %v", err)
	}
}

func TestInstantiateRootServicesSkipsPluginScoped(t *testing.T) {
	var pluginCalls int32
	r, err := New([]ServiceFactory{
		{Service: ServiceRef{ID: "root1", Scope: ScopeRoot}, New: func(map[string]any, string) (any, error) { return 1, nil }},
		{
			Service: ServiceRef{ID: "plugin1", Scope: ScopePlugin},
			New: func(map[string]any, string) (any, error) {
				atomic.AddInt32(&pluginCalls, 1)
				return 1, nil
			},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.InstantiateRootServices(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pluginCalls != 0 {
		t.Fatalf("expected plugin-scoped service to stay uninstantiated, got %d calls", pluginCalls)
	}
}
