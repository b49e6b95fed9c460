// Package signalctl implements a fixed-time controller for a two-street
// intersection. A PhaseCoordinator drives one SignalHead per street through
// the Red→Green→Yellow cycle while keeping the streets mutually exclusive,
// and interleaves pedestrian requests, night flash, maintenance and
// emergency override into the schedule.
//
// Hardware is reached only through the OutputSink and InputSource
// interfaces, so the same controller runs against GPIO drivers, consoles
// or the test doubles in this package.
package signalctl

import (
	"math"
	"time"
)

// Seconds converts a floating point number of seconds to a time.Duration
func Seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

// Duration converts an integer to a time.Duration
func Duration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
