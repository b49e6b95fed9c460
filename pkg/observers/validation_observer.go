package observers

import (
	"fmt"
	"sync"
	"time"

	"github.com/1thirty-five/signalctl"
)

// ValidationObserver checks the observed lamp sequence against the
// intersection's safety rules and the allowed mode transitions
type ValidationObserver struct {
	signalctl.BaseObserver

	colors             map[signalctl.Street]signalctl.Color
	cycle              signalctl.CycleState
	mode               signalctl.OperatingMode
	visitedModes       map[signalctl.OperatingMode]bool
	allowedTransitions map[signalctl.OperatingMode]map[signalctl.OperatingMode]bool
	violations         []string
	mutex              sync.RWMutex
}

// NewValidationObserver creates a validation observer expecting the
// controller to start in Normal mode
func NewValidationObserver() *ValidationObserver {
	return &ValidationObserver{
		colors:             map[signalctl.Street]signalctl.Color{},
		visitedModes:       map[signalctl.OperatingMode]bool{signalctl.ModeNormal: true},
		allowedTransitions: make(map[signalctl.OperatingMode]map[signalctl.OperatingMode]bool),
		violations:         make([]string, 0),
	}
}

// AddAllowedTransition adds an allowed mode transition. Without any
// registered transition every mode change is accepted.
func (o *ValidationObserver) AddAllowedTransition(from, to signalctl.OperatingMode) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if _, exists := o.allowedTransitions[from]; !exists {
		o.allowedTransitions[from] = make(map[signalctl.OperatingMode]bool)
	}
	o.allowedTransitions[from][to] = true
}

// OnSignalChange checks mutual exclusion after every lamp change
func (o *ValidationObserver) OnSignalChange(street signalctl.Street, from, to signalctl.Color, at time.Time) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.colors[street] = to
	v, h := o.colors[signalctl.StreetV], o.colors[signalctl.StreetH]
	switch {
	case v.Permissive() && h.Permissive():
		o.violations = append(o.violations, fmt.Sprintf("both streets green at %s [V=%s H=%s]", at.Format(time.RFC3339Nano), v, h))
	case o.cycle.Phase != signalctl.PhaseNone && v.Flowing() && h.Flowing():
		o.violations = append(o.violations, fmt.Sprintf("both streets flowing in %s at %s [V=%s H=%s]", o.cycle, at.Format(time.RFC3339Nano), v, h))
	}
}

// OnPhaseChange tracks the cycle position
func (o *ValidationObserver) OnPhaseChange(state signalctl.CycleState, at time.Time) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.cycle = state
}

// OnModeChange validates mode transitions
func (o *ValidationObserver) OnModeChange(from, to signalctl.OperatingMode, at time.Time) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.mode = to
	o.visitedModes[to] = true
	if allowed, exists := o.allowedTransitions[from]; exists {
		if !allowed[to] {
			o.violations = append(o.violations, fmt.Sprintf("invalid mode transition from '%s' to '%s'", from, to))
		}
	}
}

// OnFault records invariant violations reported by the controller
func (o *ValidationObserver) OnFault(err error, at time.Time) {
	if signalctl.IsInvariantViolation(err) {
		o.mutex.Lock()
		defer o.mutex.Unlock()
		o.violations = append(o.violations, err.Error())
	}
}

// GetViolations returns all validation violations
func (o *ValidationObserver) GetViolations() []string {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	result := make([]string, len(o.violations))
	copy(result, o.violations)
	return result
}

// VisitedModes reports whether each mode was entered at least once
func (o *ValidationObserver) VisitedModes() map[signalctl.OperatingMode]bool {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	result := make(map[signalctl.OperatingMode]bool, len(o.visitedModes))
	for mode, visited := range o.visitedModes {
		result[mode] = visited
	}
	return result
}

// HasViolations returns whether any violations occurred
func (o *ValidationObserver) HasViolations() bool {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return len(o.violations) > 0
}

// Reset resets the validation state
func (o *ValidationObserver) Reset() {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.colors = map[signalctl.Street]signalctl.Color{}
	o.cycle = signalctl.CycleState{}
	o.visitedModes = map[signalctl.OperatingMode]bool{o.mode: true}
	o.violations = make([]string, 0)
}
