package labmod

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

// StatusSweeper periodically snapshots the manager's module states on a cron
// schedule (global status_schedule), logs the summary, and publishes it as a
// CloudEvent so dashboards can track setup health between operations.
type StatusSweeper struct {
	manager *Manager
	subject Subject
	logger  Logger
	cron    *cron.Cron
	entry   cron.EntryID
}

// NewStatusSweeper creates a sweeper with the given cron schedule (standard
// five-field syntax, e.g. "*/5 * * * *").
func NewStatusSweeper(manager *Manager, schedule string, subject Subject, logger Logger) (*StatusSweeper, error) {
	if logger == nil {
		logger = NewSlogLogger(nil)
	}
	s := &StatusSweeper{
		manager: manager,
		subject: subject,
		logger:  logger,
		cron:    cron.New(),
	}
	entry, err := s.cron.AddFunc(schedule, s.sweep)
	if err != nil {
		return nil, fmt.Errorf("invalid status schedule %q: %w", schedule, err)
	}
	s.entry = entry
	return s, nil
}

// Start begins the schedule.
func (s *StatusSweeper) Start() {
	s.cron.Start()
	s.logger.Info("Status sweep scheduled", "next", s.cron.Entry(s.entry).Next)
}

// Stop ends the schedule, waiting for a running sweep to finish.
func (s *StatusSweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep runs one sweep immediately, outside the schedule.
func (s *StatusSweeper) Sweep() { s.sweep() }

func (s *StatusSweeper) sweep() {
	data := StatusSweepData{}
	for _, status := range s.manager.Statuses() {
		switch status.State {
		case StateActive.String():
			data.Active++
		case StateUnloaded.String():
			data.Unloaded++
		case StateError.String():
			data.Errored = append(data.Errored, status.Name)
		}
	}

	s.logger.Info("Status sweep",
		"active", data.Active, "unloaded", data.Unloaded, "errored", len(data.Errored))
	for _, name := range data.Errored {
		status, err := s.manager.Status(name)
		if err != nil {
			continue
		}
		s.logger.Warn("Module in error state", "module", name, "error", status.Error)
	}

	if s.subject != nil {
		if err := s.subject.NotifyObservers(context.Background(), NewCloudEvent(EventTypeStatusSweep, data)); err != nil {
			s.logger.Error("Failed to publish status sweep", "error", err)
		}
	}
}
