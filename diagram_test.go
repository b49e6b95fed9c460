package signalctl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDiagram(t *testing.T) {
	d := BuildDiagram(DefaultPlan())

	assert.Equal(t, "startup", d.Initial)
	assert.Len(t, d.States, 10)
	assert.Len(t, d.Transitions, 19)

	children := d.Children("normal")
	require.Len(t, children, 4)
	assert.Equal(t, "normal.phase1.green", children[0].ID)
	assert.Equal(t, sec(9), children[0].Duration)
	assert.Equal(t, Green, children[0].H)

	emergency, ok := d.State("emergency")
	require.True(t, ok)
	assert.Equal(t, DiagramMode, emergency.Kind)
	assert.Equal(t, "emergency (red flash 500ms)", emergency.Label)

	_, ok = d.State("party")
	assert.False(t, ok)
}

func TestBuildDiagram_Transitions(t *testing.T) {
	d := BuildDiagram(DefaultPlan())

	find := func(from, to string) (DiagramTransition, bool) {
		for _, tr := range d.Transitions {
			if tr.From == from && tr.To == to {
				return tr, true
			}
		}
		return DiagramTransition{}, false
	}

	tr, ok := find("normal.phase2.yellow", "normal.phase1.green")
	require.True(t, ok, "the cycle wraps around")
	assert.Equal(t, "after 3s", tr.Trigger)

	tr, ok = find("emergency", "normal")
	require.True(t, ok)
	assert.Equal(t, "emergency_acknowledged", tr.Guard)

	_, ok = find("emergency", "night")
	assert.False(t, ok, "emergency hands back to normal only")

	tr, ok = find("night", "emergency")
	require.True(t, ok)
	assert.Equal(t, "emergency", tr.Trigger)
	assert.Empty(t, tr.Guard)

	_, ok = find("maintenance", "shutdown")
	assert.True(t, ok)
}

func TestBuildDiagram_Labels(t *testing.T) {
	plan := DefaultPlan()
	plan.StartupFlashes = 3
	plan.EmergencyFlash = 0

	d := BuildDiagram(plan)
	startup, _ := d.State("startup")
	assert.Equal(t, "3 yellow flashes", startup.Label)
	emergency, _ := d.State("emergency")
	assert.Equal(t, "emergency (steady red)", emergency.Label)
}
