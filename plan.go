package signalctl

import (
	"errors"
	"fmt"
	"time"
)

// PhasePlan holds every timing constant of the controller. It is built once
// at startup, validated, and only read afterwards.
type PhasePlan struct {
	VRed    time.Duration
	VGreen  time.Duration
	VYellow time.Duration
	HRed    time.Duration
	HGreen  time.Duration
	HYellow time.Duration

	PedestrianWalk      time.Duration
	PedestrianClearance time.Duration

	NightBlink   time.Duration
	PollInterval time.Duration

	// AllRedClearance holds both streets red between phases
	AllRedClearance time.Duration
	// ShutdownSettle is how long both streets stay red before going dark
	ShutdownSettle time.Duration
	// EmergencyFlash is the on/off period of the emergency red; zero means steady red
	EmergencyFlash time.Duration
	// StartupFlashes is the number of yellow flashes shown before the first cycle
	StartupFlashes int
	// YellowOverlap shows GreenYellow instead of Yellow in the yellow sub-phase
	YellowOverlap bool
}

// DefaultPlan returns the 12/9/3 plan used at the reference intersection
func DefaultPlan() PhasePlan {
	return PhasePlan{
		VRed:                12 * time.Second,
		VGreen:              9 * time.Second,
		VYellow:             3 * time.Second,
		HRed:                12 * time.Second,
		HGreen:              9 * time.Second,
		HYellow:             3 * time.Second,
		PedestrianWalk:      8 * time.Second,
		PedestrianClearance: 2 * time.Second,
		NightBlink:          1 * time.Second,
		PollInterval:        100 * time.Millisecond,
		ShutdownSettle:      2 * time.Second,
		EmergencyFlash:      500 * time.Millisecond,
	}
}

// Red returns the red duration of a street
func (p PhasePlan) Red(s Street) time.Duration {
	if s == StreetV {
		return p.VRed
	}
	return p.HRed
}

// Green returns the green duration of a street
func (p PhasePlan) Green(s Street) time.Duration {
	if s == StreetV {
		return p.VGreen
	}
	return p.HGreen
}

// Yellow returns the yellow duration of a street
func (p PhasePlan) Yellow(s Street) time.Duration {
	if s == StreetV {
		return p.VYellow
	}
	return p.HYellow
}

// PedestrianService is the full walk plus clearance time
func (p PhasePlan) PedestrianService() time.Duration {
	return p.PedestrianWalk + p.PedestrianClearance
}

// PedestrianWindow is the part of a street's red in which the other street
// flows; crossings of s must fit inside it.
func (p PhasePlan) PedestrianWindow(s Street) time.Duration {
	return p.Green(s.Other()) + p.Yellow(s.Other())
}

// CycleLength is the duration of one full Phase1+Phase2 cycle
func (p PhasePlan) CycleLength() time.Duration {
	return p.VGreen + p.VYellow + p.HGreen + p.HYellow + 2*p.AllRedClearance
}

// Validate checks the plan and reports every problem found
func (p PhasePlan) Validate() error {
	var errs []error

	required := []struct {
		field string
		value time.Duration
	}{
		{"v_red_s", p.VRed},
		{"v_green_s", p.VGreen},
		{"v_yellow_s", p.VYellow},
		{"h_red_s", p.HRed},
		{"h_green_s", p.HGreen},
		{"h_yellow_s", p.HYellow},
		{"pedestrian_walk_s", p.PedestrianWalk},
		{"pedestrian_clearance_s", p.PedestrianClearance},
		{"night_blink_s", p.NightBlink},
		{"poll_interval_s", p.PollInterval},
	}
	for _, r := range required {
		if r.value <= 0 {
			errs = append(errs, NewConfigurationError(r.field, fmt.Sprintf("must be positive, got %v", r.value)))
		}
	}

	optional := []struct {
		field string
		value time.Duration
	}{
		{"all_red_s", p.AllRedClearance},
		{"shutdown_settle_s", p.ShutdownSettle},
		{"emergency_flash_s", p.EmergencyFlash},
	}
	for _, o := range optional {
		if o.value < 0 {
			errs = append(errs, NewConfigurationError(o.field, fmt.Sprintf("must not be negative, got %v", o.value)))
		}
	}
	if p.StartupFlashes < 0 {
		errs = append(errs, NewConfigurationError("startup_flashes", "must not be negative"))
	}

	// Remaining checks compare durations and only make sense on positive values.
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	for _, s := range Streets {
		want := p.Green(s.Other()) + p.Yellow(s.Other()) + 2*p.AllRedClearance
		if p.Red(s) != want {
			errs = append(errs, NewConfigurationError(
				fmt.Sprintf("%s_red_s", lower(s)),
				fmt.Sprintf("red of %s (%v) must equal green+yellow of %s plus all-red clearances (%v)", s, p.Red(s), s.Other(), want),
			))
		}
		if p.PedestrianService() > p.PedestrianWindow(s) {
			errs = append(errs, NewConfigurationError(
				"pedestrian_walk_s",
				fmt.Sprintf("walk+clearance (%v) exceeds the red window of %s (%v)", p.PedestrianService(), s, p.PedestrianWindow(s)),
			))
		}
	}

	shortest := min(p.VGreen, p.VYellow, p.HGreen, p.HYellow, p.PedestrianWalk, p.PedestrianClearance, p.NightBlink)
	if p.PollInterval > shortest {
		errs = append(errs, NewConfigurationError(
			"poll_interval_s",
			fmt.Sprintf("poll interval %v is longer than the shortest timed interval %v", p.PollInterval, shortest),
		))
	}

	return errors.Join(errs...)
}

func lower(s Street) string {
	if s == StreetV {
		return "v"
	}
	return "h"
}
