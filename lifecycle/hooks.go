// Package lifecycle implements the hook-ordered finite-state machines that
// back root and per-plugin startup/shutdown, plus the process-signal and
// unhandled-error host installed once the backend reaches Running.
package lifecycle

import (
	"sync"

	"github.com/c360/corewire/errors"
)

// State is one point in a Hooks machine's Idle -> Running -> Done|Failed
// path. Both Startup and Shutdown walk this path independently and each
// fires at most once.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Hook is one registered callback. ID is optional and only used in
// diagnostics; nothing in the machine keys on it.
type Hook struct {
	ID string
	Fn func() error
}

// Hooks is one FSM instance: an ordered startup hook list and an ordered
// shutdown hook list, each with fire-once Idle->Running->Done|Failed
// semantics (§4.7). The same zero-value-safe Hooks is used for both the
// root instance and each plugin's instance.
type Hooks struct {
	mu sync.Mutex

	startupHooks  []Hook
	shutdownHooks []Hook

	startupState  State
	shutdownState State
}

// New returns an idle Hooks instance.
func New() *Hooks {
	return &Hooks{}
}

// AddStartupHook appends fn to the startup list. Safe to call any time
// before Startup runs; has no effect on an already-fired machine beyond
// being ignored by that run.
func (h *Hooks) AddStartupHook(fn func() error) {
	h.AddNamedStartupHook("", fn)
}

// AddNamedStartupHook is AddStartupHook with a diagnostic id.
func (h *Hooks) AddNamedStartupHook(id string, fn func() error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.startupHooks = append(h.startupHooks, Hook{ID: id, Fn: fn})
}

// AddShutdownHook appends fn to the shutdown list.
func (h *Hooks) AddShutdownHook(fn func() error) {
	h.AddNamedShutdownHook("", fn)
}

// AddNamedShutdownHook is AddShutdownHook with a diagnostic id.
func (h *Hooks) AddNamedShutdownHook(id string, fn func() error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.shutdownHooks = append(h.shutdownHooks, Hook{ID: id, Fn: fn})
}

// Startup fires every startup hook in registration order. The first
// failure aborts remaining hooks and is returned; a second call to Startup
// always fails LifecycleAlreadyInvoked, win or lose the first time.
func (h *Hooks) Startup() error {
	h.mu.Lock()
	if h.startupState != StateIdle {
		h.mu.Unlock()
		return errors.LifecycleAlreadyInvokedError("startup")
	}
	h.startupState = StateRunning
	hooks := append([]Hook(nil), h.startupHooks...)
	h.mu.Unlock()

	var err error
	for _, hook := range hooks {
		if err = hook.Fn(); err != nil {
			break
		}
	}

	h.mu.Lock()
	if err != nil {
		h.startupState = StateFailed
	} else {
		h.startupState = StateDone
	}
	h.mu.Unlock()
	return err
}

// Shutdown fires every shutdown hook in reverse registration order.
// Individual hook failures are collected but do not stop the remaining
// hooks from running — shutdown is best-effort cleanup (§4.8, P5): every
// hook that can run, does. The first error encountered is returned.
func (h *Hooks) Shutdown() error {
	h.mu.Lock()
	if h.shutdownState != StateIdle {
		h.mu.Unlock()
		return errors.LifecycleAlreadyInvokedError("shutdown")
	}
	h.shutdownState = StateRunning
	hooks := append([]Hook(nil), h.shutdownHooks...)
	h.mu.Unlock()

	var firstErr error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i].Fn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	h.mu.Lock()
	if firstErr != nil {
		h.shutdownState = StateFailed
	} else {
		h.shutdownState = StateDone
	}
	h.mu.Unlock()
	return firstErr
}

// StartupState reports the current state of the startup machine.
func (h *Hooks) StartupState() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.startupState
}

// ShutdownState reports the current state of the shutdown machine.
func (h *Hooks) ShutdownState() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.shutdownState
}
