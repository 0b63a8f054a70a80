package labmod

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustGraph(t *testing.T, text string) *Graph {
	t.Helper()
	g, err := BuildGraph(mustRegistry(t, text))
	require.NoError(t, err)
	return g
}

const chainConfig = `
hardware:
    cam:
        module.Class: 'c.C'
logic:
    cam_logic:
        module.Class: 'cl.CL'
        connect:
            hardware: 'cam'
gui:
    panel:
        module.Class: 'p.P'
        connect:
            camera: 'cam_logic'
`

func TestBuildGraphEdges(t *testing.T) {
	g := mustGraph(t, chainConfig)

	assert.Equal(t, []Edge{
		{Consumer: "cam_logic", Connector: "hardware", Provider: "cam"},
		{Consumer: "panel", Connector: "camera", Provider: "cam_logic"},
	}, g.Edges())

	assert.Equal(t, []string{"cam"}, g.DirectDependencies("cam_logic"))
	assert.Empty(t, g.DirectDependencies("cam"))
	assert.Equal(t, []string{"cam_logic"}, g.DirectDependents("cam"))
}

func TestGraphTransitiveQueries(t *testing.T) {
	g := mustGraph(t, chainConfig)

	assert.Equal(t, []string{"cam_logic", "panel"}, g.TransitiveDependents("cam"))
	assert.Equal(t, []string{"cam", "cam_logic"}, g.TransitiveDependencies("panel"))
	assert.Empty(t, g.TransitiveDependents("panel"))

	assert.Equal(t, []string{"cam", "cam_logic", "panel"}, g.DependencyClosure("panel"))
	assert.Equal(t, []string{"cam", "cam_logic"}, g.DependencyClosure("cam_logic"))
	assert.Empty(t, g.DependencyClosure("nope"))
}

func TestBuildGraphUnresolvedConnector(t *testing.T) {
	_, err := BuildGraph(mustRegistry(t, `
logic:
    cam_logic:
        module.Class: 'cl.CL'
        connect:
            hardware: 'ghost'
`))
	require.Error(t, err)

	var unresolved *UnresolvedConnectorError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, "cam_logic", unresolved.Module)
	assert.Equal(t, "hardware", unresolved.Connector)
	assert.Equal(t, "ghost", unresolved.Target)
	assert.ErrorIs(t, err, ErrUnresolvedConnector)
}

func TestBuildGraphSelfConnector(t *testing.T) {
	_, err := BuildGraph(mustRegistry(t, `
logic:
    loop:
        module.Class: 'l.L'
        connect:
            me: 'loop'
`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSelfConnector)
}

func TestBuildGraphCategoryMismatch(t *testing.T) {
	// A gui module may only connect to logic.
	_, err := BuildGraph(mustRegistry(t, `
hardware:
    cam:
        module.Class: 'c.C'
gui:
    panel:
        module.Class: 'p.P'
        connect:
            camera: 'cam'
`))
	require.Error(t, err)

	var mismatch *CategoryMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "panel", mismatch.Module)
	assert.Equal(t, CategoryHardware, mismatch.Got)
	assert.ErrorIs(t, err, ErrCategoryMismatch)

	// Hardware may not depend on logic either.
	_, err = BuildGraph(mustRegistry(t, `
hardware:
    cam:
        module.Class: 'c.C'
        connect:
            brain: 'cam_logic'
logic:
    cam_logic:
        module.Class: 'cl.CL'
`))
	assert.ErrorIs(t, err, ErrCategoryMismatch)
}

func TestBuildGraphTwoModuleCycle(t *testing.T) {
	_, err := BuildGraph(mustRegistry(t, `
logic:
    a:
        module.Class: 'a.A'
        connect:
            other: 'b'
    b:
        module.Class: 'b.B'
        connect:
            other: 'a'
`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircularDependency)

	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"a", "b"}, cycle.Cycle)
}

func TestBuildGraphCycleRotatedToSmallest(t *testing.T) {
	_, err := BuildGraph(mustRegistry(t, `
logic:
    zeta:
        module.Class: 'z.Z'
        connect:
            next: 'mid'
    mid:
        module.Class: 'm.M'
        connect:
            next: 'alpha'
    alpha:
        module.Class: 'a.A'
        connect:
            next: 'zeta'
`))
	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, "alpha", cycle.Cycle[0])
	assert.Len(t, cycle.Cycle, 3)
}

func TestBuildGraphCollectsMultipleErrors(t *testing.T) {
	_, err := BuildGraph(mustRegistry(t, `
logic:
    a:
        module.Class: 'a.A'
        connect:
            other: 'ghost'
    b:
        module.Class: 'b.B'
        connect:
            me: 'b'
`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnresolvedConnector)
	assert.ErrorIs(t, err, ErrSelfConnector)
}

func TestBuildGraphMicroscopySetup(t *testing.T) {
	data, err := os.ReadFile("testdata/microscopy.cfg")
	require.NoError(t, err)
	doc, err := ParseDocument(data)
	require.NoError(t, err)
	reg, err := BuildRegistry(doc)
	require.NoError(t, err)
	g, err := BuildGraph(reg)
	require.NoError(t, err)

	assert.Equal(t, []string{"autofocus_logic", "piezo_dummy"}, g.DirectDependencies("focus_logic"))
	assert.Equal(t,
		[]string{"autofocus_logic", "basic_gui", "camera_logic", "focus_gui", "focus_logic"},
		g.TransitiveDependents("camera_dummy"),
	)
}
