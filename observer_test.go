package labmod

import (
	"context"
	"errors"
	"sync"
	"testing"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	id string

	mu     sync.Mutex
	events []cloudevents.Event
	err    error
}

func (o *recordingObserver) OnEvent(_ context.Context, event cloudevents.Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
	return o.err
}

func (o *recordingObserver) ObserverID() string { return o.id }

func (o *recordingObserver) types() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []string
	for _, e := range o.events {
		out = append(out, e.Type())
	}
	return out
}

func TestEventBusFanOut(t *testing.T) {
	bus := NewEventBus(quietLogger{})
	a := &recordingObserver{id: "a"}
	b := &recordingObserver{id: "b"}
	require.NoError(t, bus.RegisterObserver(a))
	require.NoError(t, bus.RegisterObserver(b))

	require.NoError(t, bus.NotifyObservers(context.Background(),
		NewCloudEvent(EventTypeModuleActivated, ModuleEventData{Module: "cam"})))

	assert.Equal(t, []string{EventTypeModuleActivated}, a.types())
	assert.Equal(t, []string{EventTypeModuleActivated}, b.types())
}

func TestEventBusTypeFilter(t *testing.T) {
	bus := NewEventBus(quietLogger{})
	filtered := &recordingObserver{id: "filtered"}
	require.NoError(t, bus.RegisterObserver(filtered, EventTypeModuleFailed))

	ctx := context.Background()
	require.NoError(t, bus.NotifyObservers(ctx, NewCloudEvent(EventTypeModuleActivated, nil)))
	require.NoError(t, bus.NotifyObservers(ctx, NewCloudEvent(EventTypeModuleFailed, nil)))

	assert.Equal(t, []string{EventTypeModuleFailed}, filtered.types())
}

func TestEventBusReRegisterReplacesFilter(t *testing.T) {
	bus := NewEventBus(quietLogger{})
	obs := &recordingObserver{id: "obs"}
	require.NoError(t, bus.RegisterObserver(obs, EventTypeModuleFailed))
	require.NoError(t, bus.RegisterObserver(obs, EventTypeModuleActivated))

	ctx := context.Background()
	require.NoError(t, bus.NotifyObservers(ctx, NewCloudEvent(EventTypeModuleFailed, nil)))
	require.NoError(t, bus.NotifyObservers(ctx, NewCloudEvent(EventTypeModuleActivated, nil)))

	// The second registration replaced the filter; only one delivery.
	assert.Equal(t, []string{EventTypeModuleActivated}, obs.types())
}

func TestEventBusUnregister(t *testing.T) {
	bus := NewEventBus(quietLogger{})
	obs := &recordingObserver{id: "obs"}
	require.NoError(t, bus.RegisterObserver(obs))
	require.NoError(t, bus.UnregisterObserver(obs))
	require.NoError(t, bus.UnregisterObserver(obs))

	require.NoError(t, bus.NotifyObservers(context.Background(), NewCloudEvent(EventTypeModuleActivated, nil)))
	assert.Empty(t, obs.types())
}

func TestEventBusObserverErrorDoesNotPropagate(t *testing.T) {
	bus := NewEventBus(quietLogger{})
	failing := &recordingObserver{id: "failing", err: errors.New("handler broke")}
	healthy := &recordingObserver{id: "healthy"}
	require.NoError(t, bus.RegisterObserver(failing))
	require.NoError(t, bus.RegisterObserver(healthy))

	err := bus.NotifyObservers(context.Background(), NewCloudEvent(EventTypeModuleActivated, nil))
	require.NoError(t, err)
	assert.Len(t, healthy.types(), 1)
}

func TestNewCloudEventShape(t *testing.T) {
	event := NewCloudEvent(EventTypeReloadStarted, ReloadEventData{ReloadID: "r1", Module: "cam"})

	assert.Equal(t, EventTypeReloadStarted, event.Type())
	assert.Equal(t, "labmod/lifecycle-manager", event.Source())
	assert.NotEmpty(t, event.ID())
	assert.False(t, event.Time().IsZero())
	assert.Equal(t, cloudevents.ApplicationJSON, event.DataContentType())

	var data ReloadEventData
	require.NoError(t, event.DataAs(&data))
	assert.Equal(t, "r1", data.ReloadID)
	assert.Equal(t, "cam", data.Module)

	// IDs are unique per event.
	other := NewCloudEvent(EventTypeReloadStarted, nil)
	assert.NotEqual(t, event.ID(), other.ID())
}

func TestFunctionalObserver(t *testing.T) {
	var got cloudevents.Event
	obs := NewFunctionalObserver("fn", func(_ context.Context, event cloudevents.Event) error {
		got = event
		return nil
	})
	assert.Equal(t, "fn", obs.ObserverID())

	require.NoError(t, obs.OnEvent(context.Background(), NewCloudEvent(EventTypeStatusSweep, nil)))
	assert.Equal(t, EventTypeStatusSweep, got.Type())
}
