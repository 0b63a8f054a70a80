package labmod

import (
	"context"
	"sync"
)

// DummyModule is a no-op module used for simulation runs and tests, standing
// in for instrument drivers and GUI panels that are not available on the
// machine the configuration is loaded on. It records its activation state
// and the connections it was handed.
type DummyModule struct {
	name string
	opts Options

	mu     sync.Mutex
	active bool
	conns  Connections
}

// NewDummyModule creates a dummy module with the given name and options.
func NewDummyModule(name string, opts Options) *DummyModule {
	return &DummyModule{name: name, opts: opts}
}

func (m *DummyModule) Name() string { return m.name }

func (m *DummyModule) OnActivate(_ context.Context, conns Connections) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = true
	m.conns = conns
	return nil
}

func (m *DummyModule) OnDeactivate(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = false
	m.conns = nil
	return nil
}

// Active reports whether the module is currently activated.
func (m *DummyModule) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Connections returns the connector map the module was activated with.
func (m *DummyModule) Connections() Connections {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conns
}

// Options returns the options the module was constructed with.
func (m *DummyModule) Options() Options { return m.opts }

// DummyHardware is a DummyModule satisfying HardwareModule.
type DummyHardware struct{ DummyModule }

func (*DummyHardware) HardwareModule() {}

// DummyLogic is a DummyModule satisfying LogicModule.
type DummyLogic struct{ DummyModule }

func (*DummyLogic) LogicModule() {}

// DummyGUI is a DummyModule satisfying GUIModule.
type DummyGUI struct{ DummyModule }

func (*DummyGUI) GUIModule() {}

// RegisterDummyFallbacks installs dummy constructors as the fallback for all
// three categories, so any document activates without real drivers present.
// cmd/labmodd enables this behind its -simulate flag.
func RegisterDummyFallbacks(f *FactoryRegistry) {
	f.SetHardwareFallback(func(name string, opts Options) (HardwareModule, error) {
		return &DummyHardware{DummyModule{name: name, opts: opts}}, nil
	})
	f.SetLogicFallback(func(name string, opts Options) (LogicModule, error) {
		return &DummyLogic{DummyModule{name: name, opts: opts}}, nil
	})
	f.SetGUIFallback(func(name string, opts Options) (GUIModule, error) {
		return &DummyGUI{DummyModule{name: name, opts: opts}}, nil
	})
}
