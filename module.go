package labmod

import "context"

// Module is the runtime counterpart of a descriptor: the instantiated unit
// of hardware, logic, or gui functionality. Implementations live outside the
// core (instrument drivers, experiment logic, GUI panels); the core only
// drives the activation hooks.
//
// OnActivate is called once every provider named in the module's connectors
// is Active. The Connections map carries the resolved providers keyed by
// connector name; together with the options passed at construction it is the
// only state shared between the core and the module. OnActivate may block on
// device I/O; it runs off the coordinator in a bounded worker pool and
// should honor ctx cancellation where the underlying device allows it.
//
// OnDeactivate is called only after every dependent module has been torn
// down, so a provider is never unplugged under an active consumer.
type Module interface {
	// Name returns the module's configured name, unique across the setup.
	Name() string

	// OnActivate brings the module up with its resolved connectors.
	OnActivate(ctx context.Context, conns Connections) error

	// OnDeactivate releases the module's resources.
	OnDeactivate(ctx context.Context) error
}

// Connections maps connector names to the active provider modules they
// resolved to.
type Connections map[string]Module

// HardwareModule marks modules instantiable from the hardware section.
// The marker method gives each category a distinct compile-time-checked
// interface while the core stays ignorant of concrete behavior.
type HardwareModule interface {
	Module
	HardwareModule()
}

// LogicModule marks modules instantiable from the logic section.
type LogicModule interface {
	Module
	LogicModule()
}

// GUIModule marks modules instantiable from the gui section.
type GUIModule interface {
	Module
	GUIModule()
}
