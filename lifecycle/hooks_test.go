package lifecycle

import (
	"errors"
	"testing"

	corewireerrors "github.com/c360/corewire/errors"
)

func TestStartupRunsHooksInOrder(t *testing.T) {
	h := New()
	var order []int
	h.AddStartupHook(func() error { order = append(order, 1); return nil })
	h.AddStartupHook(func() error { order = append(order, 2); return nil })
	h.AddStartupHook(func() error { order = append(order, 3); return nil })

	if err := h.Startup(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("expected [1 2 3], got %v", order)
	}
}

func TestStartupAbortsOnFirstFailure(t *testing.T) {
	h := New()
	boom := errors.New("boom")
	var ran3 bool
	h.AddStartupHook(func() error { return nil })
	h.AddStartupHook(func() error { return boom })
	h.AddStartupHook(func() error { ran3 = true; return nil })

	err := h.Startup()
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if ran3 {
		t.Fatalf("expected third hook to be skipped after abort")
	}
}

func TestStartupTwiceFailsLifecycleAlreadyInvoked(t *testing.T) {
	h := New()
	if err := h.Startup(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := h.Startup()
	if !corewireerrors.Is(err, corewireerrors.LifecycleAlreadyInvoked) {
		t.Fatalf("expected LifecycleAlreadyInvoked, got %v", err)
	}
}

func TestShutdownRunsInReverseOrderAndDoesNotAbort(t *testing.T) {
	h := New()
	var order []int
	boom := errors.New("boom")
	h.AddShutdownHook(func() error { order = append(order, 1); return nil })
	h.AddShutdownHook(func() error { order = append(order, 2); return boom })
	h.AddShutdownHook(func() error { order = append(order, 3); return nil })

	err := h.Shutdown()
	if !errors.Is(err, boom) {
		t.Fatalf("expected first error to be boom, got %v", err)
	}
	// reverse registration order is 3, 2, 1 — and every hook still runs
	// despite hook 2 failing (P5: shutdown is best-effort).
	if len(order) != 3 || order[0] != 3 || order[1] != 2 || order[2] != 1 {
		t.Fatalf("expected [3 2 1], got %v", order)
	}
}

func TestShutdownTwiceFailsLifecycleAlreadyInvoked(t *testing.T) {
	h := New()
	if err := h.Shutdown(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := h.Shutdown()
	if !corewireerrors.Is(err, corewireerrors.LifecycleAlreadyInvoked) {
		t.Fatalf("expected LifecycleAlreadyInvoked, got %v", err)
	}
}

func TestStartupAndShutdownAreIndependentMachines(t *testing.T) {
	h := New()
	if err := h.Startup(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := h.Shutdown(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.StartupState() != StateDone || h.ShutdownState() != StateDone {
		t.Fatalf("expected both machines done, got startup=%v shutdown=%v", h.StartupState(), h.ShutdownState())
	}
}
