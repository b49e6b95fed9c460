package signalctl

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventKind enumerates the external inputs the controller understands
type EventKind int

const (
	// PedestrianRequest asks to cross Street
	PedestrianRequest EventKind = iota
	// ModeChangeRequest asks for Mode
	ModeChangeRequest
	// EmergencyTriggered forces the emergency override
	EmergencyTriggered
)

func (k EventKind) String() string {
	switch k {
	case PedestrianRequest:
		return "pedestrian_request"
	case ModeChangeRequest:
		return "mode_change_request"
	case EmergencyTriggered:
		return "emergency_triggered"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one debounced, edge-triggered input
type Event struct {
	ID        string
	Kind      EventKind
	Street    Street
	Mode      OperatingMode
	Timestamp time.Time
}

// NewPedestrianRequest creates a crossing request for street
func NewPedestrianRequest(street Street) Event {
	return Event{
		ID:        uuid.New().String(),
		Kind:      PedestrianRequest,
		Street:    street,
		Timestamp: time.Now(),
	}
}

// NewModeChangeRequest creates a request for mode
func NewModeChangeRequest(mode OperatingMode) Event {
	return Event{
		ID:        uuid.New().String(),
		Kind:      ModeChangeRequest,
		Mode:      mode,
		Timestamp: time.Now(),
	}
}

// NewEmergencyTriggered creates an emergency trigger
func NewEmergencyTriggered() Event {
	return Event{
		ID:        uuid.New().String(),
		Kind:      EmergencyTriggered,
		Mode:      ModeEmergency,
		Timestamp: time.Now(),
	}
}

func (e Event) String() string {
	switch e.Kind {
	case PedestrianRequest:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Street)
	case ModeChangeRequest:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Mode)
	default:
		return e.Kind.String()
	}
}

// Events is the result of one poll of an InputSource
type Events struct {
	PedestrianV bool
	PedestrianH bool
	// ModeRequest is nil when no mode change was requested
	ModeRequest *OperatingMode
	Emergency   bool

	// Received lists the individual events folded into this batch
	Received []Event
}

// Pedestrian reports whether a crossing of street was requested
func (e Events) Pedestrian(street Street) bool {
	if street == StreetV {
		return e.PedestrianV
	}
	return e.PedestrianH
}

// Empty reports whether the batch carries nothing
func (e Events) Empty() bool {
	return !e.PedestrianV && !e.PedestrianH && e.ModeRequest == nil && !e.Emergency
}

// Add folds ev into the batch
func (e *Events) Add(ev Event) {
	switch ev.Kind {
	case PedestrianRequest:
		if ev.Street == StreetV {
			e.PedestrianV = true
		} else {
			e.PedestrianH = true
		}
	case ModeChangeRequest:
		if ev.Mode == ModeEmergency {
			e.Emergency = true
		} else {
			mode := ev.Mode
			e.ModeRequest = &mode
		}
	case EmergencyTriggered:
		e.Emergency = true
	}
	e.Received = append(e.Received, ev)
}

// Merge folds every event of other into the batch
func (e *Events) Merge(other Events) {
	for _, ev := range other.Received {
		e.Add(ev)
	}
	// Batches built without Received still carry their flags
	e.PedestrianV = e.PedestrianV || other.PedestrianV
	e.PedestrianH = e.PedestrianH || other.PedestrianH
	e.Emergency = e.Emergency || other.Emergency
	if other.ModeRequest != nil {
		mode := *other.ModeRequest
		e.ModeRequest = &mode
	}
}
