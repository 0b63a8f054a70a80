package labmod

import "fmt"

// HardwareFactory constructs a hardware module from its configured name and
// options.
type HardwareFactory func(name string, opts Options) (HardwareModule, error)

// LogicFactory constructs a logic module from its configured name and options.
type LogicFactory func(name string, opts Options) (LogicModule, error)

// GUIFactory constructs a gui module from its configured name and options.
type GUIFactory func(name string, opts Options) (GUIModule, error)

// FactoryRegistry maps opaque class references to module constructors, one
// namespace per category. The core never inspects what a class does; it only
// asks the registry to build it. Host applications register their driver and
// widget constructors here before activation.
//
// A per-category fallback can be set for simulation runs, standing in for
// any class without a registered factory.
type FactoryRegistry struct {
	hardware map[string]HardwareFactory
	logic    map[string]LogicFactory
	gui      map[string]GUIFactory

	hardwareFallback HardwareFactory
	logicFallback    LogicFactory
	guiFallback      GUIFactory
}

// NewFactoryRegistry returns an empty factory registry.
func NewFactoryRegistry() *FactoryRegistry {
	return &FactoryRegistry{
		hardware: map[string]HardwareFactory{},
		logic:    map[string]LogicFactory{},
		gui:      map[string]GUIFactory{},
	}
}

// RegisterHardware registers a constructor for a hardware class reference.
func (f *FactoryRegistry) RegisterHardware(class string, factory HardwareFactory) error {
	if factory == nil {
		return fmt.Errorf("%w: hardware class %q", ErrFactoryNil, class)
	}
	f.hardware[class] = factory
	return nil
}

// RegisterLogic registers a constructor for a logic class reference.
func (f *FactoryRegistry) RegisterLogic(class string, factory LogicFactory) error {
	if factory == nil {
		return fmt.Errorf("%w: logic class %q", ErrFactoryNil, class)
	}
	f.logic[class] = factory
	return nil
}

// RegisterGUI registers a constructor for a gui class reference.
func (f *FactoryRegistry) RegisterGUI(class string, factory GUIFactory) error {
	if factory == nil {
		return fmt.Errorf("%w: gui class %q", ErrFactoryNil, class)
	}
	f.gui[class] = factory
	return nil
}

// SetHardwareFallback installs a constructor used for hardware classes with
// no registered factory.
func (f *FactoryRegistry) SetHardwareFallback(factory HardwareFactory) { f.hardwareFallback = factory }

// SetLogicFallback installs a constructor used for logic classes with no
// registered factory.
func (f *FactoryRegistry) SetLogicFallback(factory LogicFactory) { f.logicFallback = factory }

// SetGUIFallback installs a constructor used for gui classes with no
// registered factory.
func (f *FactoryRegistry) SetGUIFallback(factory GUIFactory) { f.guiFallback = factory }

// New constructs the module a descriptor declares. The returned module's
// concrete type must satisfy the category interface the factory was
// registered under; descriptors with unknown classes fail with
// ErrClassNotRegistered unless a fallback is set for the category.
func (f *FactoryRegistry) New(desc *ModuleDescriptor) (Module, error) {
	var (
		mod Module
		err error
	)
	switch desc.Category {
	case CategoryHardware:
		factory := f.hardware[desc.Class]
		if factory == nil {
			factory = f.hardwareFallback
		}
		if factory == nil {
			return nil, fmt.Errorf("%w: hardware class %q (module %s)", ErrClassNotRegistered, desc.Class, desc.Name)
		}
		mod, err = factory(desc.Name, desc.Options)
	case CategoryLogic:
		factory := f.logic[desc.Class]
		if factory == nil {
			factory = f.logicFallback
		}
		if factory == nil {
			return nil, fmt.Errorf("%w: logic class %q (module %s)", ErrClassNotRegistered, desc.Class, desc.Name)
		}
		mod, err = factory(desc.Name, desc.Options)
	case CategoryGUI:
		factory := f.gui[desc.Class]
		if factory == nil {
			factory = f.guiFallback
		}
		if factory == nil {
			return nil, fmt.Errorf("%w: gui class %q (module %s)", ErrClassNotRegistered, desc.Class, desc.Name)
		}
		mod, err = factory(desc.Name, desc.Options)
	default:
		return nil, fmt.Errorf("%w: unknown category for module %s", ErrClassNotRegistered, desc.Name)
	}

	if err != nil {
		return nil, err
	}
	if mod == nil {
		return nil, fmt.Errorf("%w: class %q (module %s)", ErrFactoryReturnedNil, desc.Class, desc.Name)
	}
	return mod, nil
}

// Knows reports whether a factory (or fallback) exists for the descriptor's
// class. The diagnostics reporter uses it to warn about unloadable classes
// before activation is attempted.
func (f *FactoryRegistry) Knows(desc *ModuleDescriptor) bool {
	switch desc.Category {
	case CategoryHardware:
		return f.hardware[desc.Class] != nil || f.hardwareFallback != nil
	case CategoryLogic:
		return f.logic[desc.Class] != nil || f.logicFallback != nil
	case CategoryGUI:
		return f.gui[desc.Class] != nil || f.guiFallback != nil
	default:
		return false
	}
}
