package labmod

import (
	"errors"
	"fmt"
	"strings"
)

// Core errors
var (
	// Document errors
	ErrDocumentEmpty     = errors.New("document contains no module sections")
	ErrDocumentNotMap    = errors.New("document root must be a mapping")
	ErrSectionNotMap     = errors.New("section must be a mapping of module names")
	ErrModuleEntryNotMap = errors.New("module entry must be a mapping")

	// Registry errors
	ErrDuplicateModuleName = errors.New("duplicate module name")
	ErrMissingClass        = errors.New("module entry lacks module.Class")
	ErrModuleNotFound      = errors.New("module not found in registry")

	// Graph errors
	ErrUnresolvedConnector = errors.New("connector references unknown module")
	ErrSelfConnector       = errors.New("connector references its own module")
	ErrCategoryMismatch    = errors.New("connector target belongs to a disallowed category")
	ErrCircularDependency  = errors.New("circular dependency detected")

	// Factory errors
	ErrClassNotRegistered = errors.New("no factory registered for class")
	ErrFactoryNil         = errors.New("factory cannot be nil")
	ErrFactoryReturnedNil = errors.New("factory returned nil module")

	// Lifecycle errors
	ErrDependencyFailed  = errors.New("dependency failed to activate")
	ErrInvalidTransition = errors.New("invalid lifecycle state transition")
	ErrReloadInProgress  = errors.New("reload already in progress for module")
	ErrModuleNotInError  = errors.New("module is not in error state")
	ErrActivationRefused = errors.New("activation refused: fatal diagnostics present")
	ErrManagerStopped    = errors.New("lifecycle manager is stopped")
)

// ParseError describes a structural problem in the configuration document.
// Line is the 1-based source line the problem was detected at.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d: %s", e.Line, e.Reason)
}

// DuplicateModuleNameError reports a module name declared in more than one
// place. Names are globally unique across the hardware, logic, and gui
// sections because any module may be a connector target regardless of the
// referrer's category.
type DuplicateModuleNameError struct {
	Name   string
	First  Category
	Second Category
	Line   int
}

func (e *DuplicateModuleNameError) Error() string {
	return fmt.Sprintf("%v: %q declared in %s and %s (line %d)",
		ErrDuplicateModuleName, e.Name, e.First, e.Second, e.Line)
}

func (e *DuplicateModuleNameError) Unwrap() error { return ErrDuplicateModuleName }

// MissingClassError reports a module entry without a module.Class field.
type MissingClassError struct {
	Module string
	Line   int
}

func (e *MissingClassError) Error() string {
	return fmt.Sprintf("%v: module %q (line %d)", ErrMissingClass, e.Module, e.Line)
}

func (e *MissingClassError) Unwrap() error { return ErrMissingClass }

// UnresolvedConnectorError reports a connector whose target is absent from
// the registry.
type UnresolvedConnectorError struct {
	Module    string
	Connector string
	Target    string
}

func (e *UnresolvedConnectorError) Error() string {
	return fmt.Sprintf("%v: %s.%s -> %q", ErrUnresolvedConnector, e.Module, e.Connector, e.Target)
}

func (e *UnresolvedConnectorError) Unwrap() error { return ErrUnresolvedConnector }

// SelfConnectorError reports a connector that names its own module.
type SelfConnectorError struct {
	Module    string
	Connector string
}

func (e *SelfConnectorError) Error() string {
	return fmt.Sprintf("%v: %s.%s", ErrSelfConnector, e.Module, e.Connector)
}

func (e *SelfConnectorError) Unwrap() error { return ErrSelfConnector }

// CategoryMismatchError reports a connector whose target exists but belongs
// to a category the consumer is not allowed to depend on (for example a gui
// module wired directly to hardware).
type CategoryMismatchError struct {
	Module    string
	Connector string
	Target    string
	Got       Category
	Allowed   []Category
}

func (e *CategoryMismatchError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, c := range e.Allowed {
		allowed[i] = c.String()
	}
	return fmt.Sprintf("%v: %s.%s -> %q is %s, allowed: %s",
		ErrCategoryMismatch, e.Module, e.Connector, e.Target, e.Got, strings.Join(allowed, ", "))
}

func (e *CategoryMismatchError) Unwrap() error { return ErrCategoryMismatch }

// CycleError reports a dependency cycle. Cycle holds the module names in
// dependency order, rotated so the lexicographically smallest name is first;
// the last element depends on the first.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: cycle: %s", ErrCircularDependency, strings.Join(e.Cycle, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCircularDependency }

// ActivationError wraps a failure from a module's activation hook, retaining
// the module name for status reporting.
type ActivationError struct {
	Module string
	Err    error
}

func (e *ActivationError) Error() string {
	return fmt.Sprintf("activation of module %q failed: %v", e.Module, e.Err)
}

func (e *ActivationError) Unwrap() error { return e.Err }
