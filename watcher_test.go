package labmod

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, path, text string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
}

func startWatchedManager(t *testing.T, r *rig, text string) (*Manager, *ConfigWatcher, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "setup.cfg")
	writeConfig(t, path, text)

	source := SourceFunc(func() (*Document, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return ParseDocument(data)
	})

	m, err := NewManager(source, r.factories(), WithLogger(quietLogger{}))
	require.NoError(t, err)
	require.NoError(t, m.ActivateAll(context.Background()))

	w := NewConfigWatcher(path, source, m, quietLogger{})
	w.SetDebounce(20 * time.Millisecond)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return m, w, path
}

func TestConfigWatcherReloadsChangedModule(t *testing.T) {
	r := newRig()
	m, _, path := startWatchedManager(t, r, `
logic:
    cam_logic:
        module.Class: 'cl.CL'
        fps: 20
`)
	first := r.module("cam_logic")

	writeConfig(t, path, `
logic:
    cam_logic:
        module.Class: 'cl.CL'
        fps: 30
`)

	require.Eventually(t, func() bool {
		desc, ok := m.Registry().Lookup("cam_logic")
		return ok && desc.Options.Int("fps", 0) == 30 && r.module("cam_logic") != first
	}, 5*time.Second, 10*time.Millisecond, "changed descriptor was not reloaded")

	status, err := m.Status("cam_logic")
	require.NoError(t, err)
	assert.Equal(t, "active", status.State)
}

func TestConfigWatcherDeactivatesRemovedModule(t *testing.T) {
	r := newRig()
	m, _, path := startWatchedManager(t, r, `
hardware:
    cam:
        module.Class: 'c.C'
    piezo:
        module.Class: 'p.P'
`)
	require.Equal(t, []string{"cam", "piezo"}, m.ActiveModules())

	writeConfig(t, path, `
hardware:
    cam:
        module.Class: 'c.C'
`)

	require.Eventually(t, func() bool {
		_, still := m.Registry().Lookup("piezo")
		return !still
	}, 5*time.Second, 10*time.Millisecond, "removed module still in registry")

	// The removed module was deactivated before the registry forgot it.
	assert.Contains(t, r.log.snapshot(), "deactivate:piezo")
	assert.Equal(t, []string{"cam"}, m.ActiveModules())
}

func TestConfigWatcherIgnoresBrokenDocument(t *testing.T) {
	r := newRig()
	m, _, path := startWatchedManager(t, r, `
logic:
    cam_logic:
        module.Class: 'cl.CL'
`)

	writeConfig(t, path, "logic:\n    cam_logic: [broken\n")

	// The broken write is ignored; the manager keeps the previous registry
	// and the module stays up.
	time.Sleep(200 * time.Millisecond)
	_, ok := m.Registry().Lookup("cam_logic")
	assert.True(t, ok)
	status, err := m.Status("cam_logic")
	require.NoError(t, err)
	assert.Equal(t, "active", status.State)
}

func TestConfigWatcherAddedModuleStaysUnloaded(t *testing.T) {
	r := newRig()
	m, _, path := startWatchedManager(t, r, `
hardware:
    cam:
        module.Class: 'c.C'
`)

	writeConfig(t, path, `
hardware:
    cam:
        module.Class: 'c.C'
    piezo:
        module.Class: 'p.P'
`)

	require.Eventually(t, func() bool {
		_, ok := m.Registry().Lookup("piezo")
		return ok
	}, 5*time.Second, 10*time.Millisecond, "added module never appeared in registry")

	status, err := m.Status("piezo")
	require.NoError(t, err)
	assert.Equal(t, "unloaded", status.State)
	status, err = m.Status("cam")
	require.NoError(t, err)
	assert.Equal(t, "active", status.State)
}
