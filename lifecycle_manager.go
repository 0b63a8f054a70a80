package labmod

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Source supplies the configuration document. Reload re-reads it through
// this interface to pick up changes.
type Source interface {
	Load() (*Document, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func() (*Document, error)

func (f SourceFunc) Load() (*Document, error) { return f() }

// StaticSource wraps an already-parsed document as a Source. Reloads through
// a static source always see the same descriptors.
func StaticSource(doc *Document) Source {
	return SourceFunc(func() (*Document, error) { return doc, nil })
}

const defaultWorkers = 4

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(logger Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// WithSubject sets the event subject lifecycle events are published to.
func WithSubject(subject Subject) ManagerOption {
	return func(m *Manager) { m.subject = subject }
}

// WithWorkers bounds the number of activation hooks running concurrently.
func WithWorkers(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.workers = n
		}
	}
}

type moduleState struct {
	state ActivationState
	err   error
	since time.Time
}

// Manager tracks every module's activation state and drives all lifecycle
// transitions. All registry, graph, and state mutations are serialized
// through one coordinator (opMu) so partial activations never interleave;
// the blocking activation hooks themselves run off the coordinator in a
// bounded worker pool, with independent branches of the plan activating
// concurrently.
type Manager struct {
	source    Source
	factories *FactoryRegistry
	logger    Logger
	subject   Subject
	workers   int

	// opMu is the coordinator: one lifecycle operation at a time. A reload
	// or deactivate issued while modules are Loading blocks here until the
	// in-flight operation completes; hardware calls are never preempted.
	// stopped is guarded by opMu; once set, lifecycle operations are
	// rejected with ErrManagerStopped.
	opMu    sync.Mutex
	stopped bool

	// mu guards the snapshot fields below for concurrent readers (Status,
	// the HTTP API) while an operation is running.
	mu        sync.RWMutex
	doc       *Document
	registry  *Registry
	graph     *Graph
	plan      ActivationPlan
	states    map[string]*moduleState
	instances map[string]Module
	warnings  []Diagnostic

	reloadMu  sync.Mutex
	reloading map[string]bool
}

// NewManager loads the document from source, validates it, and prepares the
// activation plan. Construction fails if any fatal diagnostic is present;
// warnings are retained and available via Warnings().
func NewManager(source Source, factories *FactoryRegistry, opts ...ManagerOption) (*Manager, error) {
	if factories == nil {
		factories = NewFactoryRegistry()
	}
	m := &Manager{
		source:    source,
		factories: factories,
		workers:   defaultWorkers,
		states:    map[string]*moduleState{},
		instances: map[string]Module{},
		reloading: map[string]bool{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = NewSlogLogger(nil)
	}

	if err := m.resolve(); err != nil {
		return nil, err
	}
	return m, nil
}

// resolve loads and validates the document and rebuilds registry, graph, and
// plan. Existing module states are kept; states for modules that vanished
// from the document are dropped, new modules start Unloaded.
func (m *Manager) resolve() error {
	doc, err := m.source.Load()
	if err != nil {
		return fmt.Errorf("loading configuration document: %w", err)
	}

	diags := Validate(doc)
	if HasFatal(diags) {
		errs := make([]error, 0, len(diags))
		for _, d := range diags {
			if d.Severity != SeverityFatal {
				continue
			}
			if d.Err != nil {
				errs = append(errs, d.Err)
			} else {
				errs = append(errs, errors.New(d.String()))
			}
		}
		return fmt.Errorf("%w: %w", ErrActivationRefused, errors.Join(errs...))
	}

	registry, err := BuildRegistry(doc)
	if err != nil {
		return err
	}
	graph, err := BuildGraph(registry)
	if err != nil {
		return err
	}
	plan, err := graph.Plan()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc = doc
	m.registry = registry
	m.graph = graph
	m.plan = plan
	m.warnings = diags

	for name := range m.states {
		if _, ok := registry.Lookup(name); !ok {
			delete(m.states, name)
			delete(m.instances, name)
		}
	}
	for _, name := range registry.Names() {
		if _, ok := m.states[name]; !ok {
			m.states[name] = &moduleState{state: StateUnloaded, since: time.Now()}
		}
	}

	m.logger.Debug("Configuration resolved",
		"modules", registry.Len(), "edges", len(graph.Edges()), "warnings", len(diags))
	return nil
}

// Warnings returns the non-fatal diagnostics from the last resolution.
func (m *Manager) Warnings() []Diagnostic {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Diagnostic, len(m.warnings))
	copy(out, m.warnings)
	return out
}

// Plan returns the current full activation plan.
func (m *Manager) Plan() ActivationPlan {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(ActivationPlan, len(m.plan))
	copy(out, m.plan)
	return out
}

// Registry returns the current descriptor registry.
func (m *Manager) Registry() *Registry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registry
}

// Graph returns the current dependency graph.
func (m *Manager) Graph() *Graph {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.graph
}

// ActivateAll activates the startup set: the modules named in the global
// startup list plus their dependency closure, or every module when the list
// is empty. Modules activate in plan order; modules with no edge between
// them may activate concurrently. A failed module poisons its transitive
// dependents with ErrDependencyFailed without their hooks ever being
// invoked; unrelated branches of the plan are unaffected.
func (m *Manager) ActivateAll(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	if m.stopped {
		return ErrManagerStopped
	}

	m.mu.RLock()
	startup := m.doc.Global.Startup
	graph := m.graph
	m.mu.RUnlock()

	var plan ActivationPlan
	var err error
	if len(startup) > 0 {
		plan, err = graph.PlanFor(startup...)
	} else {
		plan, err = graph.Plan()
	}
	if err != nil {
		return err
	}
	return m.activatePlan(ctx, plan)
}

// Activate activates one module and its dependency closure.
func (m *Manager) Activate(ctx context.Context, name string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	if m.stopped {
		return ErrManagerStopped
	}

	m.mu.RLock()
	_, known := m.registry.Lookup(name)
	graph := m.graph
	m.mu.RUnlock()
	if !known {
		return fmt.Errorf("%w: %q", ErrModuleNotFound, name)
	}

	plan, err := graph.PlanFor(name)
	if err != nil {
		return err
	}
	return m.activatePlan(ctx, plan)
}

type activationResult struct {
	name string
	err  error
}

// activatePlan walks the plan with a bounded worker pool. The coordinator
// dispatches every module whose providers are Active, collects hook results,
// and releases dependents as providers come up. Caller holds opMu.
func (m *Manager) activatePlan(ctx context.Context, plan ActivationPlan) error {
	inSet := map[string]bool{}
	for _, name := range plan {
		inSet[name] = true
	}

	// pending counts providers that still have to come up before a module
	// may start. Providers already Active (from a previous operation) do
	// not count.
	pending := map[string]int{}
	for _, name := range plan {
		if m.stateOf(name) != StateUnloaded {
			continue
		}
		for _, dep := range m.graph.DirectDependencies(name) {
			if m.stateOf(dep) != StateActive {
				pending[name]++
			}
		}
	}

	sem := make(chan struct{}, m.workers)
	results := make(chan activationResult)
	inflight := 0
	var errs []error

	dispatch := func(name string) {
		desc, _ := m.registry.Lookup(name)
		if err := m.transition(name, StateLoading, nil); err != nil {
			errs = append(errs, err)
			return
		}
		instance, err := m.factories.New(desc)
		if err != nil {
			m.transition(name, StateError, err)
			errs = append(errs, err)
			m.failDependents(name, inSet, pending)
			return
		}
		m.mu.Lock()
		m.instances[name] = instance
		m.mu.Unlock()

		conns := m.connectionsFor(desc)
		inflight++
		go func() {
			sem <- struct{}{}
			defer func() { <-sem }()
			err := instance.OnActivate(ctx, conns)
			results <- activationResult{name: name, err: err}
		}()
	}

	ready := func() []string {
		var names []string
		for _, name := range plan {
			if m.stateOf(name) == StateUnloaded && pending[name] == 0 {
				names = append(names, name)
			}
		}
		return names
	}

	// Modules already in Error poison their dependents up front; their
	// hooks were never going to run.
	for _, name := range plan {
		if m.stateOf(name) == StateError {
			m.failDependents(name, inSet, pending)
		}
	}

	for _, name := range ready() {
		dispatch(name)
	}

	for inflight > 0 {
		res := <-results
		inflight--

		if res.err != nil {
			actErr := &ActivationError{Module: res.name, Err: res.err}
			m.transition(res.name, StateError, actErr)
			errs = append(errs, actErr)
			m.failDependents(res.name, inSet, pending)
			continue
		}

		if err := m.transition(res.name, StateActive, nil); err != nil {
			errs = append(errs, err)
			continue
		}
		for _, consumer := range m.graph.DirectDependents(res.name) {
			if inSet[consumer] && pending[consumer] > 0 {
				pending[consumer]--
			}
		}
		for _, name := range ready() {
			dispatch(name)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// failDependents marks every transitive dependent of name inside the plan
// set as Error(DependencyFailed) unless it is already past Unloaded. The
// dependents' hooks are never invoked; a broken instrument connection is
// propagated, not silently bypassed.
func (m *Manager) failDependents(name string, inSet map[string]bool, pending map[string]int) {
	for _, dependent := range m.graph.TransitiveDependents(name) {
		if !inSet[dependent] || m.stateOf(dependent) != StateUnloaded {
			continue
		}
		m.transition(dependent, StateError, fmt.Errorf("%w: %s", ErrDependencyFailed, name))
		delete(pending, dependent)
	}
}

// connectionsFor resolves a descriptor's connectors against the live
// instances. All providers are Active when this is called.
func (m *Manager) connectionsFor(desc *ModuleDescriptor) Connections {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conns := Connections{}
	for connector, target := range desc.Connectors {
		if instance, ok := m.instances[target]; ok {
			conns[connector] = instance
		}
	}
	return conns
}

// Deactivate tears down the named module after first tearing down every
// module that transitively depends on it, in reverse plan order. A module is
// never unloaded while an Active dependent still references it. Dependents
// that are not Active are skipped.
func (m *Manager) Deactivate(ctx context.Context, name string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	if m.stopped {
		return ErrManagerStopped
	}
	_, err := m.deactivateLocked(ctx, name)
	return err
}

// deactivateLocked performs the teardown and returns the names that were
// Active before the call, in teardown order. Caller holds opMu.
func (m *Manager) deactivateLocked(ctx context.Context, name string) ([]string, error) {
	m.mu.RLock()
	_, known := m.registry.Lookup(name)
	m.mu.RUnlock()
	if !known {
		return nil, fmt.Errorf("%w: %q", ErrModuleNotFound, name)
	}

	subtree := append(m.graph.TransitiveDependents(name), name)
	return m.teardown(ctx, m.plan.Restrict(subtree).Reversed())
}

// teardown deactivates the Active members of order, in order, and returns
// the names actually torn down. Caller holds opMu.
func (m *Manager) teardown(ctx context.Context, order ActivationPlan) ([]string, error) {
	var torndown []string
	var errs []error
	for _, member := range order {
		if m.stateOf(member) != StateActive {
			continue
		}
		if err := m.transition(member, StateDeactivating, nil); err != nil {
			errs = append(errs, err)
			continue
		}

		m.mu.RLock()
		instance := m.instances[member]
		m.mu.RUnlock()

		if err := instance.OnDeactivate(ctx); err != nil {
			m.transition(member, StateError, fmt.Errorf("deactivation of module %q failed: %w", member, err))
			errs = append(errs, err)
			continue
		}
		m.transition(member, StateUnloaded, nil)
		m.mu.Lock()
		delete(m.instances, member)
		m.mu.Unlock()
		torndown = append(torndown, member)
	}

	if len(errs) > 0 {
		return torndown, errors.Join(errs...)
	}
	return torndown, nil
}

// Stop tears down every active module in reverse plan order and marks the
// manager stopped; later lifecycle operations fail with ErrManagerStopped.
// Status queries keep working on the final snapshot.
func (m *Manager) Stop(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	if m.stopped {
		return ErrManagerStopped
	}
	m.stopped = true

	m.logger.Info("Stopping lifecycle manager")
	_, err := m.teardown(ctx, m.Plan().Reversed())
	return err
}

// Reload deactivates the named module and its transitive dependents,
// re-resolves the configuration document (picking up descriptor changes),
// and restores the previously active set in forward plan order. At most one
// reload is in flight per module name; a second request fails with
// ErrReloadInProgress instead of queueing.
//
// When the re-resolved descriptor is unchanged, the final Active set is
// identical to the pre-reload Active set.
func (m *Manager) Reload(ctx context.Context, name string) error {
	m.reloadMu.Lock()
	if m.reloading[name] {
		m.reloadMu.Unlock()
		return fmt.Errorf("%w: %q", ErrReloadInProgress, name)
	}
	m.reloading[name] = true
	m.reloadMu.Unlock()
	defer func() {
		m.reloadMu.Lock()
		delete(m.reloading, name)
		m.reloadMu.Unlock()
	}()

	m.opMu.Lock()
	defer m.opMu.Unlock()
	if m.stopped {
		return ErrManagerStopped
	}

	reloadID := newEventID()
	start := time.Now()

	m.mu.RLock()
	oldDesc, known := m.registry.Lookup(name)
	m.mu.RUnlock()
	if !known {
		return fmt.Errorf("%w: %q", ErrModuleNotFound, name)
	}

	m.emit(ctx, EventTypeReloadStarted, ReloadEventData{ReloadID: reloadID, Module: name})
	m.logger.Info("Reloading module", "module", name, "reloadId", reloadID)

	restore, err := m.deactivateLocked(ctx, name)
	if err != nil {
		m.emit(ctx, EventTypeReloadFailed, ReloadEventData{ReloadID: reloadID, Module: name, Error: err.Error()})
		return fmt.Errorf("reload %q: teardown: %w", name, err)
	}

	if err := m.resolve(); err != nil {
		// The new document is unusable; the subtree stays unloaded and the
		// previous registry remains in effect.
		m.emit(ctx, EventTypeReloadFailed, ReloadEventData{ReloadID: reloadID, Module: name, Error: err.Error()})
		return fmt.Errorf("reload %q: re-resolution: %w", name, err)
	}

	m.mu.RLock()
	newDesc, stillKnown := m.registry.Lookup(name)
	graph := m.graph
	m.mu.RUnlock()

	if stillKnown && !newDesc.Equal(oldDesc) {
		m.logger.Info("Module descriptor changed on reload", "module", name)
	}

	// Restore the exact set that was active, plus whatever new dependencies
	// the changed descriptors pull in.
	if len(restore) > 0 {
		plan, err := graph.PlanFor(restore...)
		if err != nil {
			m.emit(ctx, EventTypeReloadFailed, ReloadEventData{ReloadID: reloadID, Module: name, Error: err.Error()})
			return err
		}
		if err := m.activatePlan(ctx, plan); err != nil {
			m.emit(ctx, EventTypeReloadFailed, ReloadEventData{ReloadID: reloadID, Module: name, Error: err.Error()})
			return fmt.Errorf("reload %q: reactivation: %w", name, err)
		}
	}

	sort.Strings(restore)
	m.emit(ctx, EventTypeReloadCompleted, ReloadEventData{
		ReloadID: reloadID,
		Module:   name,
		Affected: restore,
		Duration: time.Since(start).String(),
	})
	return nil
}

// Refresh re-reads the configuration document and rebuilds the registry,
// graph, and plan without touching running modules. Callers that want
// changed descriptors applied to running modules use Reload instead.
func (m *Manager) Refresh() error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	if m.stopped {
		return ErrManagerStopped
	}
	return m.resolve()
}

// Reset returns a module from Error to Unloaded. It is the only way out of
// the Error state.
func (m *Manager) Reset(name string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	if m.stopped {
		return ErrManagerStopped
	}

	m.mu.RLock()
	_, known := m.registry.Lookup(name)
	m.mu.RUnlock()
	if !known {
		return fmt.Errorf("%w: %q", ErrModuleNotFound, name)
	}
	if m.stateOf(name) != StateError {
		return fmt.Errorf("%w: %q", ErrModuleNotInError, name)
	}

	m.mu.Lock()
	delete(m.instances, name)
	m.mu.Unlock()
	m.transition(name, StateUnloaded, nil)
	m.emit(context.Background(), EventTypeModuleReset, ModuleEventData{Module: name, State: StateUnloaded.String()})
	return nil
}

// Status returns the status snapshot of one module.
func (m *Manager) Status(name string) (ModuleStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	desc, ok := m.registry.Lookup(name)
	if !ok {
		return ModuleStatus{}, fmt.Errorf("%w: %q", ErrModuleNotFound, name)
	}
	return m.statusLocked(desc), nil
}

// Statuses returns status snapshots for every module in document order.
func (m *Manager) Statuses() []ModuleStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ModuleStatus, 0, m.registry.Len())
	for _, desc := range m.registry.All() {
		out = append(out, m.statusLocked(desc))
	}
	return out
}

func (m *Manager) statusLocked(desc *ModuleDescriptor) ModuleStatus {
	st := m.states[desc.Name]
	status := ModuleStatus{
		Name:     desc.Name,
		Category: desc.Category.String(),
		Class:    desc.Class,
		State:    st.state.String(),
		Since:    st.since,
	}
	if st.err != nil {
		status.Error = st.err.Error()
	}
	return status
}

// ActiveModules returns the names of all Active modules in plan order.
func (m *Manager) ActiveModules() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, name := range m.plan {
		if st, ok := m.states[name]; ok && st.state == StateActive {
			out = append(out, name)
		}
	}
	return out
}

func (m *Manager) stateOf(name string) ActivationState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st, ok := m.states[name]; ok {
		return st.state
	}
	return StateUnloaded
}

// transition moves a module to a new state, enforcing the state machine.
func (m *Manager) transition(name string, to ActivationState, cause error) error {
	m.mu.Lock()
	st, ok := m.states[name]
	if !ok {
		st = &moduleState{state: StateUnloaded}
		m.states[name] = st
	}
	from := st.state
	if !canTransition(from, to) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s: %s -> %s", ErrInvalidTransition, name, from, to)
	}
	st.state = to
	st.err = cause
	st.since = time.Now()
	m.mu.Unlock()

	m.logger.Debug("Module state transition", "module", name, "from", from.String(), "to", to.String())

	switch to {
	case StateLoading:
		m.emitModule(name, EventTypeModuleLoading, nil)
	case StateActive:
		m.logger.Info("Module active", "module", name)
		m.emitModule(name, EventTypeModuleActivated, nil)
	case StateUnloaded:
		if from == StateDeactivating {
			m.logger.Info("Module deactivated", "module", name)
			m.emitModule(name, EventTypeModuleDeactivated, nil)
		}
	case StateError:
		m.logger.Error("Module entered error state", "module", name, "error", cause)
		m.emitModule(name, EventTypeModuleFailed, cause)
	}
	return nil
}

func (m *Manager) emitModule(name, eventType string, cause error) {
	m.mu.RLock()
	desc, ok := m.registry.Lookup(name)
	st := m.states[name]
	m.mu.RUnlock()
	if !ok {
		return
	}
	data := ModuleEventData{Module: name, Category: desc.Category.String(), State: st.state.String()}
	if cause != nil {
		data.Error = cause.Error()
	}
	m.emit(context.Background(), eventType, data)
}

func (m *Manager) emit(ctx context.Context, eventType string, data any) {
	if m.subject == nil {
		return
	}
	if err := m.subject.NotifyObservers(ctx, NewCloudEvent(eventType, data)); err != nil {
		m.logger.Error("Failed to notify observers", "type", eventType, "error", err)
	}
}
