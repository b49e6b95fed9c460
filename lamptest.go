package signalctl

import (
	"context"
	"errors"
	"time"
)

// LampPattern selects a lamp self-test sequence
type LampPattern int

const (
	// PatternIndividual lights every lamp of both heads one at a time
	PatternIndividual LampPattern = iota
	// PatternByColor lights the same lamp on both heads together
	PatternByColor
	// PatternAll lights every lamp at once
	PatternAll
	// PatternBlink blinks every lamp five times
	PatternBlink
)

func (p LampPattern) String() string {
	switch p {
	case PatternIndividual:
		return "individual"
	case PatternByColor:
		return "by_color"
	case PatternAll:
		return "all"
	case PatternBlink:
		return "blink"
	default:
		return "unknown"
	}
}

const lampTestBlinks = 5

var lampOrder = []ColorBits{LampRed, LampYellow, LampGreen}

// LampTest drives the heads directly to check the wiring. It must never run
// while a controller owns the sink: it lights green on both heads. Both heads
// are dark when it returns, even when ctx is cancelled.
func LampTest(ctx context.Context, sink OutputSink, clock Clock, dwell time.Duration, patterns ...LampPattern) error {
	if clock == nil {
		clock = RealClock{}
	}
	if len(patterns) == 0 {
		patterns = []LampPattern{PatternIndividual}
	}

	t := &lampTester{sink: sink, clock: clock}
	defer t.dark()

	t.dark()
	for _, p := range patterns {
		if err := t.run(ctx, p, dwell); err != nil {
			t.faults = append(t.faults, err)
			break
		}
	}
	return errors.Join(t.faults...)
}

type lampTester struct {
	sink   OutputSink
	clock  Clock
	faults []error
}

func (t *lampTester) assert(street Street, bits ColorBits) {
	if err := t.sink.Assert(street, bits); err != nil {
		t.faults = append(t.faults, NewHardwareFault(street, bits, err))
	}
}

func (t *lampTester) both(bits ColorBits) {
	for _, s := range Streets {
		t.assert(s, bits)
	}
}

func (t *lampTester) dark() {
	t.both(0)
}

// hold shows bits on the given heads for dwell, then clears them
func (t *lampTester) hold(ctx context.Context, streets []Street, bits ColorBits, dwell time.Duration) error {
	for _, s := range streets {
		t.assert(s, bits)
	}
	if err := t.clock.Sleep(ctx, dwell); err != nil {
		return err
	}
	for _, s := range streets {
		t.assert(s, 0)
	}
	return t.clock.Sleep(ctx, dwell/4)
}

func (t *lampTester) run(ctx context.Context, p LampPattern, dwell time.Duration) error {
	all := LampRed | LampYellow | LampGreen
	switch p {
	case PatternIndividual:
		for _, s := range Streets {
			for _, lamp := range lampOrder {
				if err := t.hold(ctx, []Street{s}, lamp, dwell); err != nil {
					return err
				}
			}
		}
	case PatternByColor:
		for _, lamp := range lampOrder {
			if err := t.hold(ctx, Streets[:], lamp, dwell); err != nil {
				return err
			}
		}
	case PatternAll:
		return t.hold(ctx, Streets[:], all, dwell)
	case PatternBlink:
		for i := 0; i < lampTestBlinks; i++ {
			t.both(all)
			if err := t.clock.Sleep(ctx, dwell); err != nil {
				return err
			}
			t.dark()
			if err := t.clock.Sleep(ctx, dwell); err != nil {
				return err
			}
		}
	}
	return nil
}
