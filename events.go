package labmod

import (
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// CloudEvent type constants for lifecycle events, in reverse domain notation
// per the CloudEvents specification.
const (
	EventTypeModuleLoading     = "io.labmod.module.loading"
	EventTypeModuleActivated   = "io.labmod.module.activated"
	EventTypeModuleFailed      = "io.labmod.module.failed"
	EventTypeModuleDeactivated = "io.labmod.module.deactivated"
	EventTypeModuleReset       = "io.labmod.module.reset"

	EventTypeReloadStarted   = "io.labmod.reload.started"
	EventTypeReloadCompleted = "io.labmod.reload.completed"
	EventTypeReloadFailed    = "io.labmod.reload.failed"

	EventTypeStatusSweep = "io.labmod.status.sweep"
)

// eventSource identifies the lifecycle manager as the CloudEvents source.
const eventSource = "labmod/lifecycle-manager"

// NewCloudEvent creates a properly formed CloudEvent with a UUIDv7 ID
// (time-ordered uniqueness) and JSON-encoded data.
func NewCloudEvent(eventType string, data any) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(newEventID())
	event.SetSource(eventSource)
	event.SetType(eventType)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)
	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	return event
}

func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// v4 fallback; only reachable if the entropy source fails.
		id = uuid.New()
	}
	return id.String()
}

// ModuleEventData is the payload of per-module lifecycle events.
type ModuleEventData struct {
	Module   string `json:"module"`
	Category string `json:"category"`
	State    string `json:"state"`
	Error    string `json:"error,omitempty"`
}

// ReloadEventData is the payload of reload lifecycle events.
type ReloadEventData struct {
	ReloadID string   `json:"reloadId"`
	Module   string   `json:"module"`
	Affected []string `json:"affected,omitempty"`
	Error    string   `json:"error,omitempty"`
	Duration string   `json:"duration,omitempty"`
}

// StatusSweepData is the payload of periodic status sweep events.
type StatusSweepData struct {
	Active   int      `json:"active"`
	Unloaded int      `json:"unloaded"`
	Errored  []string `json:"errored,omitempty"`
}
