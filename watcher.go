package labmod

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 250 * time.Millisecond

// ConfigWatcher watches the configuration document on disk and applies
// changes to a running Manager: removed modules are deactivated, changed
// descriptors trigger a reload of the affected subtree, and additions become
// visible through a registry refresh. Editors that replace the file on save
// (rename + create) are handled by watching the parent directory.
type ConfigWatcher struct {
	path     string
	source   Source
	manager  *Manager
	logger   Logger
	debounce time.Duration

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewConfigWatcher creates a watcher for the document at path. The source is
// used to re-read the document when the file changes; it must point at the
// same location.
func NewConfigWatcher(path string, source Source, manager *Manager, logger Logger) *ConfigWatcher {
	if logger == nil {
		logger = NewSlogLogger(nil)
	}
	return &ConfigWatcher{
		path:     filepath.Clean(path),
		source:   source,
		manager:  manager,
		logger:   logger,
		debounce: defaultDebounce,
	}
}

// SetDebounce overrides the quiet period before a change is applied.
func (w *ConfigWatcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

// Start begins watching. It returns once the watch is established; change
// handling runs in a background goroutine until ctx is cancelled or Stop is
// called.
func (w *ConfigWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", filepath.Dir(w.path), err)
	}
	w.watcher = watcher
	w.done = make(chan struct{})

	go w.run(ctx)
	w.logger.Info("Watching configuration document", "path", w.path)
	return nil
}

// Stop ends the watch and waits for the handler goroutine to exit.
func (w *ConfigWatcher) Stop() {
	if w.watcher != nil {
		w.watcher.Close()
		<-w.done
	}
}

func (w *ConfigWatcher) run(ctx context.Context) {
	defer close(w.done)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", "error", err)
		case <-timerC:
			timer = nil
			timerC = nil
			w.apply(ctx)
		}
	}
}

// apply diffs the re-read document against the manager's current registry
// and drives the necessary lifecycle operations.
func (w *ConfigWatcher) apply(ctx context.Context) {
	w.logger.Info("Configuration document changed", "path", w.path)

	doc, err := w.source.Load()
	if err != nil {
		w.logger.Error("Ignoring configuration change: document unreadable", "error", err)
		return
	}
	if diags := Validate(doc); HasFatal(diags) {
		for _, d := range diags {
			if d.Severity == SeverityFatal {
				w.logger.Error("Ignoring configuration change: " + d.String())
			}
		}
		return
	}
	newReg, err := BuildRegistry(doc)
	if err != nil {
		w.logger.Error("Ignoring configuration change", "error", err)
		return
	}

	oldReg := w.manager.Registry()

	// Modules removed from the document are torn down before the registry
	// forgets them.
	for _, desc := range oldReg.All() {
		if _, still := newReg.Lookup(desc.Name); !still {
			w.logger.Info("Module removed from configuration, deactivating", "module", desc.Name)
			if err := w.manager.Deactivate(ctx, desc.Name); err != nil {
				w.logger.Error("Failed to deactivate removed module", "module", desc.Name, "error", err)
			}
		}
	}

	if err := w.manager.Refresh(); err != nil {
		w.logger.Error("Failed to refresh configuration", "error", err)
		return
	}

	// Changed descriptors reload their subtree; brand-new modules stay
	// unloaded until something activates them.
	for _, desc := range oldReg.All() {
		newDesc, still := newReg.Lookup(desc.Name)
		if !still || newDesc.Equal(desc) {
			continue
		}
		w.logger.Info("Module descriptor changed, reloading", "module", desc.Name)
		if err := w.manager.Reload(ctx, desc.Name); err != nil {
			w.logger.Error("Failed to reload changed module", "module", desc.Name, "error", err)
		}
	}
}
