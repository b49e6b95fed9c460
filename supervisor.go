package signalctl

import (
	"sync"
)

// ModeSupervisor holds the operating mode and arbitrates mode requests.
// It never touches hardware; the coordinator reads it on every poll tick
// and commits pending changes at sub-phase boundaries.
type ModeSupervisor struct {
	mutex       sync.Mutex
	mode        OperatingMode
	pending     *OperatingMode
	emergency   bool
	transitions map[OperatingMode][]*Transition
}

// NewModeSupervisor creates a supervisor in Normal mode with the standard
// transition table
func NewModeSupervisor() *ModeSupervisor {
	s := &ModeSupervisor{
		mode:        ModeNormal,
		transitions: make(map[OperatingMode][]*Transition),
	}

	regular := []OperatingMode{ModeNormal, ModeNight, ModeMaintenance}
	for _, from := range regular {
		for _, to := range regular {
			if from != to {
				s.AddTransition(NewTransition(from, to))
			}
		}
		s.AddTransition(NewTransition(from, ModeEmergency))
	}
	// Emergency always hands back to Normal
	s.AddTransition(NewTransition(ModeEmergency, ModeNormal).
		WithGuard("emergency_acknowledged", func(s *ModeSupervisor) bool { return !s.emergency }))
	return s
}

// AddTransition registers an allowed transition
func (s *ModeSupervisor) AddTransition(t *Transition) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.transitions[t.From] = append(s.transitions[t.From], t)
}

// Mode returns the active operating mode
func (s *ModeSupervisor) Mode() OperatingMode {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.mode
}

// Pending returns the requested mode awaiting the next boundary
func (s *ModeSupervisor) Pending() (OperatingMode, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.pending == nil {
		return s.mode, false
	}
	return *s.pending, true
}

// RequestMode asks for mode. Requesting the mode that is already active or
// already pending is a no-op and returns false. Requesting Emergency is the
// same as TriggerEmergency.
func (s *ModeSupervisor) RequestMode(mode OperatingMode) (bool, error) {
	if mode == ModeEmergency {
		return s.TriggerEmergency(), nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	target := s.mode
	if s.pending != nil {
		target = *s.pending
	}
	if mode == target {
		return false, nil
	}
	if mode == s.mode {
		// Withdraws the pending request
		s.pending = nil
		return true, nil
	}
	if s.find(s.mode, mode) == nil {
		return false, NewTransitionNotAllowedError(s.mode, mode, "no such transition")
	}
	s.pending = &mode
	return true, nil
}

// TriggerEmergency latches the emergency trigger until the coordinator
// acknowledges it. It returns false if the latch was already set.
func (s *ModeSupervisor) TriggerEmergency() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.emergency {
		return false
	}
	s.emergency = true
	return true
}

// EmergencyLatched reports an unacknowledged emergency trigger
func (s *ModeSupervisor) EmergencyLatched() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.emergency
}

// AcknowledgeEmergency clears the latch and switches to Emergency, dropping
// any pending request. It returns the preempted mode.
func (s *ModeSupervisor) AcknowledgeEmergency() OperatingMode {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	from := s.mode
	s.emergency = false
	s.pending = nil
	if from != ModeEmergency {
		if t := s.find(from, ModeEmergency); t != nil && t.Action != nil {
			t.Action(from, ModeEmergency)
		}
	}
	s.mode = ModeEmergency
	return from
}

// Commit applies the pending request. ok is false when nothing is pending
// or a guard holds the request back; a rejected request stays pending.
func (s *ModeSupervisor) Commit() (from, to OperatingMode, ok bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	from = s.mode
	if s.pending == nil {
		return from, from, false
	}
	to = *s.pending
	t := s.find(from, to)
	if t == nil {
		s.pending = nil
		return from, from, false
	}
	if !t.allowed(s) {
		return from, from, false
	}
	s.mode = to
	s.pending = nil
	if t.Action != nil {
		t.Action(from, to)
	}
	return from, to, true
}

// find returns the transition from→to; s must be locked
func (s *ModeSupervisor) find(from, to OperatingMode) *Transition {
	for _, t := range s.transitions[from] {
		if t.To == to {
			return t
		}
	}
	return nil
}

// Transitions lists the registered transitions ordered by source mode
func (s *ModeSupervisor) Transitions() []*Transition {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var out []*Transition
	for _, mode := range []OperatingMode{ModeNormal, ModeNight, ModeMaintenance, ModeEmergency} {
		out = append(out, s.transitions[mode]...)
	}
	return out
}
