package errors

import (
	"errors"
	"testing"
)

func TestIsMatchesKind(t *testing.T) {
	err := DuplicateServiceImplError("foo")
	if !Is(err, DuplicateServiceImpl) {
		t.Fatalf("expected Is to match DuplicateServiceImpl")
	}
	if Is(err, ServiceCycle) {
		t.Fatalf("did not expect Is to match ServiceCycle")
	}
}

func TestWrapNilCauseReturnsNil(t *testing.T) {
	if Wrap(ServiceCycle, nil, "Registry", "Get", "resolve") != nil {
		t.Fatalf("expected nil cause to produce nil error")
	}
}

func TestUnwrapReachesCause(t *testing.T) {
	cause := errors.New("boom")
	wrapped := ModuleStartupFailedError("p", "m", cause)
	if !errors.Is(wrapped, cause) {
		t.Fatalf("expected errors.Is to find the wrapped cause")
	}
}

func TestUnresolvedDependenciesBatchesRefs(t *testing.T) {
	err := UnresolvedDependenciesError("p", []string{"a", "b"})
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *Error")
	}
	if len(e.Refs) != 2 {
		t.Fatalf("expected 2 refs, got %d", len(e.Refs))
	}
}
