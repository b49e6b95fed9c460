package signalctl

import (
	"fmt"
	"time"
)

// DiagramStateKind classifies the nodes of a controller diagram
type DiagramStateKind int

const (
	// DiagramMode is an operating mode
	DiagramMode DiagramStateKind = iota
	// DiagramSubPhase is a timed sub-phase of the base cycle, nested in Normal
	DiagramSubPhase
	// DiagramLifecycle is the startup or shutdown sequence
	DiagramLifecycle
)

// DiagramState is one node of the diagram
type DiagramState struct {
	ID     string
	Label  string
	Kind   DiagramStateKind
	Parent string
	// Duration and colours are set for sub-phases
	Duration time.Duration
	V, H     Color
}

// DiagramTransition is one edge of the diagram
type DiagramTransition struct {
	From    string
	To      string
	Trigger string
	Guard   string
}

// Diagram describes the controller as a state graph for visualization
type Diagram struct {
	Initial     string
	States      []DiagramState
	Transitions []DiagramTransition
}

// State returns the state with id
func (d Diagram) State(id string) (DiagramState, bool) {
	for _, s := range d.States {
		if s.ID == id {
			return s, true
		}
	}
	return DiagramState{}, false
}

// Children returns the states nested in parent
func (d Diagram) Children(parent string) []DiagramState {
	var out []DiagramState
	for _, s := range d.States {
		if s.Parent == parent {
			out = append(out, s)
		}
	}
	return out
}

const (
	diagramStartup  = "startup"
	diagramShutdown = "shutdown"
)

// BuildDiagram derives the state graph of a controller running plan: the
// lifecycle states, the operating modes and their allowed transitions, and
// the timed sub-phases of the base cycle nested in Normal.
func BuildDiagram(plan PhasePlan) Diagram {
	d := Diagram{Initial: diagramStartup}

	startup := "both red"
	if plan.StartupFlashes > 0 {
		startup = fmt.Sprintf("%d yellow flashes", plan.StartupFlashes)
	}
	d.States = append(d.States, DiagramState{ID: diagramStartup, Label: startup, Kind: DiagramLifecycle, V: Red, H: Red})

	modes := []OperatingMode{ModeNormal, ModeNight, ModeMaintenance, ModeEmergency}
	for _, m := range modes {
		d.States = append(d.States, DiagramState{ID: m.String(), Label: modeLabel(plan, m), Kind: DiagramMode})
	}

	entries := Timeline(plan)
	for _, e := range entries {
		d.States = append(d.States, DiagramState{
			ID:       subPhaseID(e.State),
			Label:    e.State.String(),
			Kind:     DiagramSubPhase,
			Parent:   ModeNormal.String(),
			Duration: e.Duration,
			V:        e.V,
			H:        e.H,
		})
	}
	d.States = append(d.States, DiagramState{ID: diagramShutdown, Label: "red, settle, dark", Kind: DiagramLifecycle})

	d.Transitions = append(d.Transitions, DiagramTransition{From: diagramStartup, To: ModeNormal.String(), Trigger: "start"})
	for i, e := range entries {
		next := entries[(i+1)%len(entries)]
		d.Transitions = append(d.Transitions, DiagramTransition{
			From:    subPhaseID(e.State),
			To:      subPhaseID(next.State),
			Trigger: fmt.Sprintf("after %v", e.Duration),
		})
	}

	for _, t := range NewModeSupervisor().Transitions() {
		trigger := "request " + t.To.String()
		if t.To == ModeEmergency {
			trigger = "emergency"
		}
		d.Transitions = append(d.Transitions, DiagramTransition{
			From:    t.From.String(),
			To:      t.To.String(),
			Trigger: trigger,
			Guard:   t.GuardName,
		})
	}
	for _, m := range modes {
		d.Transitions = append(d.Transitions, DiagramTransition{From: m.String(), To: diagramShutdown, Trigger: "shutdown"})
	}
	return d
}

func subPhaseID(state CycleState) string {
	return "normal." + state.String()
}

func modeLabel(plan PhasePlan, m OperatingMode) string {
	switch m {
	case ModeNormal:
		return fmt.Sprintf("normal (cycle %v)", plan.CycleLength())
	case ModeNight:
		return fmt.Sprintf("night (yellow flash %v)", plan.NightBlink)
	case ModeMaintenance:
		return "maintenance (dark)"
	case ModeEmergency:
		if plan.EmergencyFlash > 0 {
			return fmt.Sprintf("emergency (red flash %v)", plan.EmergencyFlash)
		}
		return "emergency (steady red)"
	default:
		return m.String()
	}
}
