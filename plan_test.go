package labmod

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readMicroscopy(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("testdata/microscopy.cfg")
	require.NoError(t, err)
	return string(data)
}

func TestPlanChain(t *testing.T) {
	// A depends on B depends on C: providers come first.
	g := mustGraph(t, `
logic:
    a:
        module.Class: 'a.A'
        connect:
            next: 'b'
    b:
        module.Class: 'b.B'
        connect:
            next: 'c'
    c:
        module.Class: 'c.C'
`)
	plan, err := g.Plan()
	require.NoError(t, err)
	assert.Equal(t, ActivationPlan{"c", "b", "a"}, plan)
}

func TestPlanTieBreakAscendingName(t *testing.T) {
	// Independent modules come out in ascending name order regardless of
	// document order.
	g := mustGraph(t, `
hardware:
    zebra:
        module.Class: 'z.Z'
    alpha:
        module.Class: 'a.A'
    mike:
        module.Class: 'm.M'
`)
	plan, err := g.Plan()
	require.NoError(t, err)
	assert.Equal(t, ActivationPlan{"alpha", "mike", "zebra"}, plan)
}

func TestPlanDiamond(t *testing.T) {
	g := mustGraph(t, `
hardware:
    base:
        module.Class: 'b.B'
logic:
    left:
        module.Class: 'l.L'
        connect:
            dep: 'base'
    right:
        module.Class: 'r.R'
        connect:
            dep: 'base'
    top:
        module.Class: 't.T'
        connect:
            l: 'left'
            r: 'right'
`)
	plan, err := g.Plan()
	require.NoError(t, err)
	assert.Equal(t, ActivationPlan{"base", "left", "right", "top"}, plan)
}

func TestPlanForClosure(t *testing.T) {
	g := mustGraph(t, chainConfig)

	plan, err := g.PlanFor("cam_logic")
	require.NoError(t, err)
	assert.Equal(t, ActivationPlan{"cam", "cam_logic"}, plan)

	// Unknown roots are ignored.
	plan, err = g.PlanFor("ghost")
	require.NoError(t, err)
	assert.Empty(t, plan)
}

func TestPlanMicroscopyStartupClosure(t *testing.T) {
	g := mustGraph(t, readMicroscopy(t))

	plan, err := g.PlanFor("focus_gui")
	require.NoError(t, err)
	assert.Equal(t, ActivationPlan{
		"camera_dummy",
		"autofocus_logic",
		"piezo_dummy",
		"focus_logic",
		"focus_gui",
	}, plan)

	// Every provider precedes its consumers in the full plan.
	full, err := g.Plan()
	require.NoError(t, err)
	require.Len(t, full, g.Registry().Len())
	for _, edge := range g.Edges() {
		assert.Less(t, full.Index(edge.Provider), full.Index(edge.Consumer),
			"provider %s must precede consumer %s", edge.Provider, edge.Consumer)
	}
}

func TestPlanHelpers(t *testing.T) {
	plan := ActivationPlan{"c", "b", "a"}

	assert.Equal(t, 1, plan.Index("b"))
	assert.Equal(t, -1, plan.Index("x"))
	assert.Equal(t, ActivationPlan{"a", "b", "c"}, plan.Reversed())
	assert.Equal(t, ActivationPlan{"c", "a"}, plan.Restrict([]string{"a", "c"}))
}
