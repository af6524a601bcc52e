// Package errors implements the error taxonomy from the initializer
// specification: a closed set of named failure kinds instead of the
// classify-by-pattern scheme a generic framework would use, because every
// failure here is already known at the point it is raised.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies one of the named failure modes the initializer can raise.
type Kind int

const (
	AlreadyStarted Kind = iota
	MalformedFeature
	UnsupportedFeatureVersion
	DuplicateServiceImpl
	ForbiddenServiceOverride
	DuplicateExtensionPoint
	DuplicatePluginRegistration
	DuplicateModuleRegistration
	ExtensionPointOwnershipViolation
	MissingDependency
	UnresolvedDependencies
	CircularModuleDependency
	ServiceCycle
	ModuleStartupFailed
	PluginStartupFailed
	LifecycleAlreadyInvoked
)

func (k Kind) String() string {
	switch k {
	case AlreadyStarted:
		return "AlreadyStarted"
	case MalformedFeature:
		return "MalformedFeature"
	case UnsupportedFeatureVersion:
		return "UnsupportedFeatureVersion"
	case DuplicateServiceImpl:
		return "DuplicateServiceImpl"
	case ForbiddenServiceOverride:
		return "ForbiddenServiceOverride"
	case DuplicateExtensionPoint:
		return "DuplicateExtensionPoint"
	case DuplicatePluginRegistration:
		return "DuplicatePluginRegistration"
	case DuplicateModuleRegistration:
		return "DuplicateModuleRegistration"
	case ExtensionPointOwnershipViolation:
		return "ExtensionPointOwnershipViolation"
	case MissingDependency:
		return "MissingDependency"
	case UnresolvedDependencies:
		return "UnresolvedDependencies"
	case CircularModuleDependency:
		return "CircularModuleDependency"
	case ServiceCycle:
		return "ServiceCycle"
	case ModuleStartupFailed:
		return "ModuleStartupFailed"
	case PluginStartupFailed:
		return "PluginStartupFailed"
	case LifecycleAlreadyInvoked:
		return "LifecycleAlreadyInvoked"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type raised throughout corewire. It always
// carries a Kind so callers can branch with Is/As instead of string
// matching, and an optional Cause for wrapped failures.
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	PluginID string
	ModuleID string
	Refs     []string // batched ids, for UnresolvedDependencies
	Path     []string // node sequence, for CircularModuleDependency
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.PluginID != "" {
		fmt.Fprintf(&b, " plugin=%s", e.PluginID)
	}
	if e.ModuleID != "" {
		fmt.Fprintf(&b, " module=%s", e.ModuleID)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if len(e.Refs) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Refs, ", "))
	}
	if len(e.Path) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(e.Path, " -> "))
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether err is an *Error of the given kind. errors.Is can't be
// used directly since Kind values aren't themselves sentinel errors.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// New creates a bare Error of the given kind with a message.
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind, wrapping cause, with a
// "component.method: action failed" message shape, keyed on Kind rather
// than a retry classification.
func Wrap(kind Kind, cause error, component, method, action string) error {
	if cause == nil {
		return nil
	}
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf("%s.%s: %s failed", component, method, action),
		Cause:   cause,
	}
}

// AlreadyStartedError returns the AlreadyStarted error.
func AlreadyStartedError(what string) error {
	return &Error{Kind: AlreadyStarted, Message: what}
}

// MalformedFeatureError reports a feature that failed its shape checks.
func MalformedFeatureError(reason string) error {
	return &Error{Kind: MalformedFeature, Message: reason}
}

// UnsupportedFeatureVersionError reports an unrecognized version tag.
func UnsupportedFeatureVersionError(version string) error {
	return &Error{Kind: UnsupportedFeatureVersion, Message: fmt.Sprintf("unsupported feature version %q", version)}
}

// DuplicateServiceImplError reports a second factory for the same service id.
func DuplicateServiceImplError(id string) error {
	return &Error{Kind: DuplicateServiceImpl, Message: fmt.Sprintf("service %q already has a factory", id)}
}

// ForbiddenServiceOverrideError reports an attempt to override a protected service.
func ForbiddenServiceOverrideError(id string) error {
	return &Error{Kind: ForbiddenServiceOverride, Message: fmt.Sprintf("service %q cannot be overridden", id)}
}

// DuplicateExtensionPointError reports two registrations sharing an ExtRef id.
func DuplicateExtensionPointError(id string) error {
	return &Error{Kind: DuplicateExtensionPoint, Message: fmt.Sprintf("extension point %q already registered", id)}
}

// DuplicatePluginRegistrationError reports two plugin-kind registrations for one pluginId.
func DuplicatePluginRegistrationError(pluginID string) error {
	return &Error{Kind: DuplicatePluginRegistration, PluginID: pluginID, Message: "plugin already registered"}
}

// DuplicateModuleRegistrationError reports two modules with the same (pluginId, moduleId).
func DuplicateModuleRegistrationError(pluginID, moduleID string) error {
	return &Error{
		Kind: DuplicateModuleRegistration, PluginID: pluginID, ModuleID: moduleID,
		Message: "module already registered",
	}
}

// ExtensionPointOwnershipViolationError reports a module consuming an extension
// point owned by a different plugin than the module itself.
func ExtensionPointOwnershipViolationError(extID, owner, consumer string) error {
	return &Error{
		Kind:     ExtensionPointOwnershipViolation,
		PluginID: consumer,
		Message:  fmt.Sprintf("extension point %q is owned by plugin %q, not %q", extID, owner, consumer),
	}
}

// MissingDependencyError reports a service factory dependency that does not exist.
func MissingDependencyError(id string) error {
	return &Error{Kind: MissingDependency, Message: fmt.Sprintf("no factory for service %q", id)}
}

// UnresolvedDependenciesError batches every missing init.deps ref into one diagnostic.
func UnresolvedDependenciesError(pluginID string, refs []string) error {
	return &Error{
		Kind: UnresolvedDependencies, PluginID: pluginID, Refs: refs,
		Message: "one or more dependencies could not be resolved",
	}
}

// CircularModuleDependencyError reports a cycle in a plugin's module graph.
func CircularModuleDependencyError(pluginID string, path []string) error {
	return &Error{
		Kind: CircularModuleDependency, PluginID: pluginID, Path: path,
		Message: "module dependency graph has a cycle",
	}
}

// ServiceCycleError reports a cycle among service factory dependencies.
func ServiceCycleError(id string) error {
	return &Error{Kind: ServiceCycle, Message: fmt.Sprintf("cycle resolving service %q", id)}
}

// ModuleStartupFailedError wraps a module init.func failure.
func ModuleStartupFailedError(pluginID, moduleID string, cause error) error {
	return &Error{Kind: ModuleStartupFailed, PluginID: pluginID, ModuleID: moduleID, Cause: cause}
}

// PluginStartupFailedError wraps a plugin init.func failure.
func PluginStartupFailedError(pluginID string, cause error) error {
	return &Error{Kind: PluginStartupFailed, PluginID: pluginID, Cause: cause}
}

// LifecycleAlreadyInvokedError reports a second startup()/shutdown() call.
func LifecycleAlreadyInvokedError(what string) error {
	return &Error{Kind: LifecycleAlreadyInvoked, Message: what}
}
