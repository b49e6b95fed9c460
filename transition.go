package signalctl

// GuardFunc evaluates whether a mode transition may be taken
type GuardFunc func(s *ModeSupervisor) bool

// ActionFunc runs when a mode transition is committed
type ActionFunc func(from, to OperatingMode)

// Transition represents an allowed mode transition
type Transition struct {
	From   OperatingMode
	To     OperatingMode
	Guard  GuardFunc
	Action ActionFunc
	// GuardName is reported when the guard rejects the transition
	GuardName string
}

// NewTransition creates a new transition
func NewTransition(from, to OperatingMode) *Transition {
	return &Transition{
		From: from,
		To:   to,
	}
}

// WithGuard adds a guard condition to the transition
func (t *Transition) WithGuard(name string, guard GuardFunc) *Transition {
	t.Guard = guard
	t.GuardName = name
	return t
}

// WithAction adds an action to the transition
func (t *Transition) WithAction(action ActionFunc) *Transition {
	t.Action = action
	return t
}

// allowed evaluates the guard; s must be locked by the caller
func (t *Transition) allowed(s *ModeSupervisor) bool {
	return t.Guard == nil || t.Guard(s)
}
