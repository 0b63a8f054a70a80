package feeders

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlabkit/labmod"
)

func TestYamlFeederNativeDocument(t *testing.T) {
	doc, err := Load("../testdata/microscopy.cfg")
	require.NoError(t, err)

	assert.Equal(t, 11, doc.ModuleCount())
	assert.Equal(t, []string{"basic_gui", "focus_gui"}, doc.Global.Startup)

	// YAML preserves document order and source lines.
	hardware := doc.SectionFor(labmod.CategoryHardware)
	require.NotNil(t, hardware)
	assert.Equal(t, "camera_dummy", hardware.Entries[0].Name)
	assert.Positive(t, hardware.Entries[0].Line)
}

func TestTomlFeeder(t *testing.T) {
	doc, err := Load("testdata/setup.toml")
	require.NoError(t, err)

	assert.Equal(t, []string{"cam_logic"}, doc.Global.Startup)
	assert.Equal(t, "localhost", doc.Global.ServerAddress)
	assert.Equal(t, 8090, doc.Global.ServerPort)

	// TOML metadata preserves file order.
	hardware := doc.SectionFor(labmod.CategoryHardware)
	require.NotNil(t, hardware)
	require.Len(t, hardware.Entries, 2)
	assert.Equal(t, "cam", hardware.Entries[0].Name)
	assert.Equal(t, "piezo", hardware.Entries[1].Name)

	// The document feeds the registry like the native encoding does.
	reg, err := labmod.BuildRegistry(doc)
	require.NoError(t, err)
	desc, ok := reg.Lookup("cam_logic")
	require.True(t, ok)
	assert.Equal(t, "camera_logic.CameraLogic", desc.Class)
	assert.Equal(t, map[string]string{"hardware": "cam"}, desc.Connectors)
	assert.Equal(t, 20, desc.Options.Int("fps", 0))
}

func TestJSONFeeder(t *testing.T) {
	doc, err := Load("testdata/setup.json")
	require.NoError(t, err)

	assert.Equal(t, []string{"cam_logic"}, doc.Global.Startup)
	assert.Equal(t, 8090, doc.Global.ServerPort)

	// JSON objects carry no order; entries fall back to name order.
	hardware := doc.SectionFor(labmod.CategoryHardware)
	require.NotNil(t, hardware)
	require.Len(t, hardware.Entries, 2)
	assert.Equal(t, "cam", hardware.Entries[0].Name)

	reg, err := labmod.BuildRegistry(doc)
	require.NoError(t, err)
	desc, ok := reg.Lookup("cam_logic")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"hardware": "cam"}, desc.Connectors)
}

func TestFeedersProduceEquivalentRegistries(t *testing.T) {
	tomlDoc, err := Load("testdata/setup.toml")
	require.NoError(t, err)
	jsonDoc, err := Load("testdata/setup.json")
	require.NoError(t, err)

	tomlReg, err := labmod.BuildRegistry(tomlDoc)
	require.NoError(t, err)
	jsonReg, err := labmod.BuildRegistry(jsonDoc)
	require.NoError(t, err)

	require.Equal(t, tomlReg.Len(), jsonReg.Len())
	for _, name := range tomlReg.Names() {
		td, _ := tomlReg.Lookup(name)
		jd, ok := jsonReg.Lookup(name)
		require.True(t, ok, "module %q missing from json registry", name)
		assert.Equal(t, td.Class, jd.Class, "module %q", name)
		assert.Equal(t, td.Connectors, jd.Connectors, "module %q", name)
	}
}

func TestLoadUnknownExtensionDefaultsToYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setup.conf")
	require.NoError(t, os.WriteFile(path, []byte("hardware:\n    cam:\n        module.Class: 'c.C'\n"), 0o644))

	doc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.ModuleCount())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.cfg"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading")
}

func TestSourceReflectsFileChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setup.cfg")
	require.NoError(t, os.WriteFile(path, []byte("hardware:\n    cam:\n        module.Class: 'c.C'\n"), 0o644))

	source := Source(path)
	doc, err := source.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, doc.ModuleCount())

	require.NoError(t, os.WriteFile(path, []byte(
		"hardware:\n    cam:\n        module.Class: 'c.C'\n    piezo:\n        module.Class: 'p.P'\n"), 0o644))
	doc, err = source.Load()
	require.NoError(t, err)
	assert.Equal(t, 2, doc.ModuleCount())
}

func TestTomlFeederRejectsBrokenDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("[hardware.cam\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestJSONFeederRejectsNonObjectSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"hardware": {"cam": 42}}`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, labmod.ErrModuleEntryNotMap)
}
