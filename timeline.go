package signalctl

import (
	"fmt"
	"strings"
	"time"
)

// TimelineEntry is one sub-phase of the base cycle
type TimelineEntry struct {
	At       time.Duration
	Duration time.Duration
	State    CycleState
	V        Color
	H        Color
}

// Timeline lists the sub-phases of one base cycle of plan, starting at
// Phase1 green. The last entry ends at plan.CycleLength().
func Timeline(plan PhasePlan) []TimelineEntry {
	yellow := Yellow
	if plan.YellowOverlap {
		yellow = GreenYellow
	}

	var (
		out []TimelineEntry
		at  time.Duration
	)
	add := func(state CycleState, d time.Duration, v, h Color) {
		out = append(out, TimelineEntry{At: at, Duration: d, State: state, V: v, H: h})
		at += d
	}
	for _, phase := range []Phase{Phase1HFlowing, Phase2VFlowing} {
		flow := phase.Flowing()
		colors := func(c Color) (Color, Color) {
			if flow == StreetV {
				return c, Red
			}
			return Red, c
		}
		v, h := colors(Green)
		add(CycleState{Phase: phase, Sub: SubGreen}, plan.Green(flow), v, h)
		v, h = colors(yellow)
		add(CycleState{Phase: phase, Sub: SubYellow}, plan.Yellow(flow), v, h)
		if plan.AllRedClearance > 0 {
			add(CycleState{Phase: phase, Sub: SubAllRed}, plan.AllRedClearance, Red, Red)
		}
	}
	return out
}

// ColorsAt returns the colours shown at offset t into a cycle of plan
func ColorsAt(plan PhasePlan, t time.Duration) (v, h Color) {
	entries := Timeline(plan)
	if n := plan.CycleLength(); n > 0 {
		t %= n
	}
	for _, e := range entries {
		if t >= e.At && t < e.At+e.Duration {
			return e.V, e.H
		}
	}
	return Red, Red
}

// FormatTimeline renders a timing table of one cycle
func FormatTimeline(entries []TimelineEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%8s %8s  %-16s %-13s %-13s\n", "start", "length", "state", "V", "H")
	for _, e := range entries {
		fmt.Fprintf(&b, "%8v %8v  %-16s %-13s %-13s\n", e.At, e.Duration, e.State, e.V, e.H)
	}
	return b.String()
}
