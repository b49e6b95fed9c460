package signalctl

import (
	"fmt"
	"strings"
)

// ColorBits is the set of lamps lit on one signal head
type ColorBits uint8

const (
	LampRed ColorBits = 1 << iota
	LampYellow
	LampGreen
)

// Has reports whether every lamp in mask is lit
func (b ColorBits) Has(mask ColorBits) bool {
	return b&mask == mask
}

func (b ColorBits) String() string {
	if b == 0 {
		return "dark"
	}
	var parts []string
	if b.Has(LampRed) {
		parts = append(parts, "R")
	}
	if b.Has(LampYellow) {
		parts = append(parts, "Y")
	}
	if b.Has(LampGreen) {
		parts = append(parts, "G")
	}
	return strings.Join(parts, "+")
}

// Color is the logical aspect displayed by a signal head
type Color int

const (
	// Off means every lamp on the head is dark
	Off Color = iota
	Red
	Yellow
	Green
	// GreenYellow is the transitional overlap where green and yellow are both lit
	GreenYellow
)

// Bits returns the lamps that must be lit, every other lamp is cleared
func (c Color) Bits() ColorBits {
	switch c {
	case Red:
		return LampRed
	case Yellow:
		return LampYellow
	case Green:
		return LampGreen
	case GreenYellow:
		return LampGreen | LampYellow
	default:
		return 0
	}
}

// Flowing reports whether traffic on the street may move (anything but Red or Off)
func (c Color) Flowing() bool {
	return c == Green || c == Yellow || c == GreenYellow
}

// Permissive reports whether the aspect shows green
func (c Color) Permissive() bool {
	return c == Green || c == GreenYellow
}

func (c Color) String() string {
	switch c {
	case Off:
		return "off"
	case Red:
		return "red"
	case Yellow:
		return "yellow"
	case Green:
		return "green"
	case GreenYellow:
		return "green+yellow"
	default:
		return fmt.Sprintf("color(%d)", int(c))
	}
}

// Street identifies one of the two perpendicular traffic streams
type Street int

const (
	StreetV Street = iota
	StreetH
)

// Streets lists both streets in a fixed order
var Streets = [2]Street{StreetV, StreetH}

// Other returns the perpendicular street
func (s Street) Other() Street {
	if s == StreetV {
		return StreetH
	}
	return StreetV
}

func (s Street) String() string {
	switch s {
	case StreetV:
		return "V"
	case StreetH:
		return "H"
	default:
		return fmt.Sprintf("street(%d)", int(s))
	}
}

// OperatingMode is the controller's top-level mode
type OperatingMode int

const (
	ModeNormal OperatingMode = iota
	ModeNight
	ModeMaintenance
	ModeEmergency
)

func (m OperatingMode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeNight:
		return "night"
	case ModeMaintenance:
		return "maintenance"
	case ModeEmergency:
		return "emergency"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses a mode name case-insensitively
func ParseMode(s string) (OperatingMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal":
		return ModeNormal, nil
	case "night":
		return ModeNight, nil
	case "maintenance":
		return ModeMaintenance, nil
	case "emergency":
		return ModeEmergency, nil
	}
	return ModeNormal, fmt.Errorf("unknown operating mode %q", s)
}

// Phase identifies which street is flowing in the base cycle
type Phase int

const (
	// PhaseNone is reported outside the base cycle
	PhaseNone Phase = iota
	// Phase1HFlowing: V is red, H runs green then yellow
	Phase1HFlowing
	// Phase2VFlowing: H is red, V runs green then yellow
	Phase2VFlowing
)

// Flowing returns the street that moves during the phase
func (p Phase) Flowing() Street {
	if p == Phase2VFlowing {
		return StreetV
	}
	return StreetH
}

func (p Phase) String() string {
	switch p {
	case Phase1HFlowing:
		return "phase1"
	case Phase2VFlowing:
		return "phase2"
	default:
		return "none"
	}
}

// SubPhase is the active sub-interval of the flowing street
type SubPhase int

const (
	SubNone SubPhase = iota
	SubGreen
	SubYellow
	SubAllRed
)

func (s SubPhase) String() string {
	switch s {
	case SubGreen:
		return "green"
	case SubYellow:
		return "yellow"
	case SubAllRed:
		return "all_red"
	default:
		return "none"
	}
}

// CycleState is the coordinator's position within the base cycle
type CycleState struct {
	Phase Phase
	Sub   SubPhase
}

func (c CycleState) String() string {
	if c.Phase == PhaseNone {
		return "none"
	}
	return c.Phase.String() + "." + c.Sub.String()
}

// WalkSignal is the pedestrian aspect shown across a street
type WalkSignal int

const (
	DontWalk WalkSignal = iota
	Walk
	// Clearance is the flashing don't-walk interval after Walk
	Clearance
)

func (w WalkSignal) String() string {
	switch w {
	case Walk:
		return "walk"
	case Clearance:
		return "clearance"
	default:
		return "dont_walk"
	}
}
