package signalctl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	clock    *VirtualClock
	sink     *RecordingSink
	script   *ScriptedInput
	observer *RecordingObserver
	c        *PhaseCoordinator
}

func newHarness(plan PhasePlan) *harness {
	clock := NewVirtualClock()
	sink := NewRecordingSink(clock)
	return newHarnessWithSink(plan, clock, sink, sink)
}

func newHarnessWithSink(plan PhasePlan, clock *VirtualClock, recording *RecordingSink, sink OutputSink) *harness {
	script := NewScriptedInput(clock)
	observer := NewRecordingObserver()
	observers := NewObserverManager()
	observers.AddObserver(observer)
	return &harness{
		clock:    clock,
		sink:     recording,
		script:   script,
		observer: observer,
		c:        NewPhaseCoordinator(plan, sink, script, clock, nil, observers),
	}
}

// runUntil runs the coordinator until virtual time stop, which ends the
// loop through the shutdown sequence
func (h *harness) runUntil(t *testing.T, stop time.Duration) {
	t.Helper()
	h.clock.StopAt(stop)
	require.NoError(t, h.c.Run(context.Background()))
}

func (h *harness) elapsed(at time.Time) time.Duration {
	return at.Sub(h.clock.Start())
}

func sec(s float64) time.Duration {
	return Seconds(s)
}

// assertMatchesTimeline samples the recorded lamps every poll interval
// from offset until end and compares them with the planned cycle
func assertMatchesTimeline(t *testing.T, sink *RecordingSink, plan PhasePlan, offset, end time.Duration) {
	t.Helper()
	for at := offset; at < end; at += plan.PollInterval {
		v, h := sink.SampleAt(at)
		wantV, wantH := ColorsAt(plan, at-offset)
		if !assert.Equal(t, wantV.Bits(), v, "V at %v", at) || !assert.Equal(t, wantH.Bits(), h, "H at %v", at) {
			return
		}
	}
}

func walkEntries(entries []WalkEntry, street Street) []WalkEntry {
	var out []WalkEntry
	for _, e := range entries {
		if e.Street == street {
			out = append(out, e)
		}
	}
	return out
}

func entriesAt(entries []SinkEntry, at time.Duration) []SinkEntry {
	var out []SinkEntry
	for _, e := range entries {
		if e.At == at {
			out = append(out, e)
		}
	}
	return out
}

func TestCoordinator_DefaultCycle(t *testing.T) {
	plan := DefaultPlan()
	h := newHarness(plan)
	h.runUntil(t, sec(50))

	assertMatchesTimeline(t, h.sink, plan, 0, sec(50))

	at, ok := h.sink.FirstAt(StreetH, LampGreen, 0)
	require.True(t, ok)
	assert.Equal(t, time.Duration(0), at)

	at, _ = h.sink.FirstAt(StreetH, LampYellow, 0)
	assert.Equal(t, sec(9), at)

	at, _ = h.sink.FirstAt(StreetV, LampGreen, 0)
	assert.Equal(t, sec(12), at)

	at, _ = h.sink.FirstAt(StreetV, LampYellow, 0)
	assert.Equal(t, sec(21), at)

	at, _ = h.sink.FirstAt(StreetH, LampGreen, sec(1))
	assert.Equal(t, sec(24), at, "cycle restarts identically")
}

func TestCoordinator_PhaseAlignment(t *testing.T) {
	plan := DefaultPlan()
	h := newHarness(plan)
	h.runUntil(t, sec(50))

	vYellowEnd, _ := h.sink.FirstAt(StreetV, LampRed, sec(21))
	hRedEnd, _ := h.sink.FirstAt(StreetH, LampGreen, sec(13))
	assert.Equal(t, sec(24), vYellowEnd)
	assert.Equal(t, vYellowEnd, hRedEnd)

	hYellowEnd, _ := h.sink.FirstAt(StreetH, LampRed, sec(9))
	vRedEnd, _ := h.sink.FirstAt(StreetV, LampGreen, 0)
	assert.Equal(t, sec(12), hYellowEnd)
	assert.Equal(t, hYellowEnd, vRedEnd)
}

func TestCoordinator_MutualExclusion(t *testing.T) {
	plans := map[string]PhasePlan{
		"default": DefaultPlan(),
		"overlap": func() PhasePlan {
			p := DefaultPlan()
			p.YellowOverlap = true
			return p
		}(),
		"all red": func() PhasePlan {
			p := DefaultPlan()
			p.AllRedClearance = time.Second
			p.VRed = 14 * time.Second
			p.HRed = 14 * time.Second
			return p
		}(),
	}

	for name, plan := range plans {
		t.Run(name, func(t *testing.T) {
			h := newHarness(plan)
			h.script.
				At(sec(2), NewPedestrianRequest(StreetV)).
				At(sec(7), NewPedestrianRequest(StreetH)).
				At(sec(40), NewModeChangeRequest(ModeNight)).
				At(sec(55), NewPedestrianRequest(StreetV)).
				At(sec(60), NewModeChangeRequest(ModeNormal)).
				At(sec(75), NewEmergencyTriggered()).
				At(sec(80), NewModeChangeRequest(ModeNormal)).
				At(sec(90), NewModeChangeRequest(ModeMaintenance)).
				At(sec(100), NewModeChangeRequest(ModeNormal))
			h.runUntil(t, sec(130))

			assert.Empty(t, CheckMutualExclusion(h.sink.Entries()))
			for at := time.Duration(0); at < sec(130); at += plan.PollInterval {
				v, hb := h.sink.SampleAt(at)
				require.False(t, v.Has(LampGreen) && hb.Has(LampGreen), "both green at %v", at)
			}
			assert.Empty(t, h.observer.Faults)
		})
	}
}

func TestCoordinator_PedestrianServedInsideRedWindow(t *testing.T) {
	h := newHarness(DefaultPlan())
	h.script.At(sec(2), NewPedestrianRequest(StreetV))
	h.runUntil(t, sec(30))

	walks := walkEntries(h.sink.WalkEntries(), StreetV)
	require.Len(t, walks, 3)
	assert.Equal(t, WalkEntry{At: sec(2), Street: StreetV, Signal: Walk}, walks[0])
	assert.Equal(t, WalkEntry{At: sec(10), Street: StreetV, Signal: Clearance}, walks[1])
	assert.Equal(t, WalkEntry{At: sec(12), Street: StreetV, Signal: DontWalk}, walks[2])

	vGreen, _ := h.sink.FirstAt(StreetV, LampGreen, 0)
	assert.Equal(t, walks[2].At, vGreen, "crossing completes exactly at the red/green boundary")
	assert.False(t, h.c.Status().PedestrianRequests[StreetV], "latch cleared after service")
}

func TestCoordinator_PedestrianDeferredToNextRed(t *testing.T) {
	h := newHarness(DefaultPlan())
	h.script.At(sec(3), NewPedestrianRequest(StreetV))
	h.runUntil(t, sec(40))

	walks := walkEntries(h.sink.WalkEntries(), StreetV)
	require.Len(t, walks, 3)
	assert.Equal(t, sec(24), walks[0].At, "not enough red left at t=3, served at the next red of V")
	assert.Equal(t, Walk, walks[0].Signal)
	assert.Equal(t, sec(32), walks[1].At)
	assert.Equal(t, sec(34), walks[2].At)
}

func TestCoordinator_PedestrianRequestWhileFlowing(t *testing.T) {
	h := newHarness(DefaultPlan())
	h.script.At(sec(1), NewPedestrianRequest(StreetH))
	h.runUntil(t, sec(30))

	walks := walkEntries(h.sink.WalkEntries(), StreetH)
	require.Len(t, walks, 3)
	assert.Equal(t, WalkEntry{At: sec(12), Street: StreetH, Signal: Walk}, walks[0])
	assert.Equal(t, WalkEntry{At: sec(20), Street: StreetH, Signal: Clearance}, walks[1])
	assert.Equal(t, WalkEntry{At: sec(22), Street: StreetH, Signal: DontWalk}, walks[2])

	for _, w := range walks[:2] {
		_, hBits := h.sink.SampleAt(w.At)
		assert.Equal(t, LampRed, hBits, "H is red while its crossing is served")
	}
}

func TestCoordinator_ModeChangeAtSubPhaseBoundary(t *testing.T) {
	h := newHarness(DefaultPlan())
	h.script.At(sec(5), NewModeChangeRequest(ModeNight))
	h.runUntil(t, sec(20))

	modes := h.observer.ModeChanges()
	require.Len(t, modes, 1)
	assert.Equal(t, ModeNormal, modes[0].From)
	assert.Equal(t, ModeNight, modes[0].To)
	assert.Equal(t, sec(9), h.elapsed(modes[0].At), "committed at the end of H green")

	v, hb := h.sink.SampleAt(sec(9.5))
	assert.Equal(t, LampYellow, v)
	assert.Equal(t, LampYellow, hb)

	v, hb = h.sink.SampleAt(sec(10.5))
	assert.Equal(t, ColorBits(0), v)
	assert.Equal(t, ColorBits(0), hb)

	assert.Equal(t, ModeNight, h.c.Status().Mode)
}

func TestCoordinator_EmergencyIsImmediate(t *testing.T) {
	h := newHarness(DefaultPlan())
	h.script.
		At(sec(5), NewEmergencyTriggered()).
		At(sec(10), NewModeChangeRequest(ModeNormal))
	h.runUntil(t, sec(20))

	modes := h.observer.ModeChanges()
	require.Len(t, modes, 2)
	assert.Equal(t, ModeRecord{From: ModeNormal, To: ModeEmergency, At: modes[0].At}, modes[0])
	assert.Equal(t, sec(5), h.elapsed(modes[0].At))
	assert.Equal(t, ModeEmergency, modes[1].From)
	assert.Equal(t, ModeNormal, modes[1].To)
	assert.Equal(t, sec(10), h.elapsed(modes[1].At))

	hRed, _ := h.sink.FirstAt(StreetH, LampRed, sec(1))
	assert.Equal(t, sec(5), hRed, "H green cut to red immediately")

	v, hb := h.sink.SampleAt(sec(5.2))
	assert.Equal(t, LampRed, v)
	assert.Equal(t, LampRed, hb)
	v, hb = h.sink.SampleAt(sec(5.7))
	assert.Equal(t, ColorBits(0), v, "emergency red flashes")
	assert.Equal(t, ColorBits(0), hb)

	hGreen, _ := h.sink.FirstAt(StreetH, LampGreen, sec(1))
	assert.Equal(t, sec(10), hGreen, "normal restarts at Phase1")
}

func TestCoordinator_EmergencySteadyRed(t *testing.T) {
	plan := DefaultPlan()
	plan.EmergencyFlash = 0
	h := newHarness(plan)
	h.script.At(sec(5), NewEmergencyTriggered())
	h.runUntil(t, sec(15))

	for at := sec(5); at < sec(15); at += plan.PollInterval {
		v, hb := h.sink.SampleAt(at)
		require.Equal(t, LampRed, v, "at %v", at)
		require.Equal(t, LampRed, hb, "at %v", at)
	}
}

func TestCoordinator_EmergencyAbortsCrossingAndKeepsLatch(t *testing.T) {
	h := newHarness(DefaultPlan())
	h.script.
		At(sec(2), NewPedestrianRequest(StreetV)).
		At(sec(5), NewEmergencyTriggered()).
		At(sec(10), NewModeChangeRequest(ModeNormal))

	var latched bool
	h.script.Do(sec(8), func() {
		latched = h.c.Status().PedestrianRequests[StreetV]
	})
	h.runUntil(t, sec(30))

	assert.True(t, latched, "aborted request stays latched")

	walks := walkEntries(h.sink.WalkEntries(), StreetV)
	require.Len(t, walks, 5)
	assert.Equal(t, WalkEntry{At: sec(2), Street: StreetV, Signal: Walk}, walks[0])
	assert.Equal(t, WalkEntry{At: sec(5), Street: StreetV, Signal: DontWalk}, walks[1])
	assert.Equal(t, WalkEntry{At: sec(10), Street: StreetV, Signal: Walk}, walks[2])
	assert.Equal(t, WalkEntry{At: sec(18), Street: StreetV, Signal: Clearance}, walks[3])
	assert.Equal(t, WalkEntry{At: sec(20), Street: StreetV, Signal: DontWalk}, walks[4])
}

func TestCoordinator_RequestingActiveModeIsNoop(t *testing.T) {
	baseline := newHarness(DefaultPlan())
	baseline.runUntil(t, sec(30))

	h := newHarness(DefaultPlan())
	h.script.At(sec(5), NewModeChangeRequest(ModeNormal))
	h.runUntil(t, sec(30))

	assert.Equal(t, baseline.sink.Entries(), h.sink.Entries())
	assert.Empty(t, h.observer.ModeChanges())
}

func TestCoordinator_RoundTripThroughNight(t *testing.T) {
	h := newHarness(DefaultPlan())
	h.script.
		At(sec(5), NewModeChangeRequest(ModeNight)).
		At(sec(20), NewModeChangeRequest(ModeNormal))
	h.runUntil(t, sec(50))

	v, hb := h.sink.SampleAt(sec(19.9))
	assert.Equal(t, LampYellow, v)
	assert.Equal(t, LampYellow, hb)

	assert.Equal(t, []SinkEntry{
		{At: sec(20), Street: StreetV, Bits: LampRed},
		{At: sec(20), Street: StreetH, Bits: LampRed},
		{At: sec(20), Street: StreetH, Bits: LampGreen},
	}, entriesAt(h.sink.Entries(), sec(20)), "both red before Phase1 H green")

	assertMatchesTimeline(t, h.sink, DefaultPlan(), sec(20), sec(50))

	var phase1 []PhaseRecord
	for _, p := range h.observer.Phases {
		if p.State == (CycleState{Phase: Phase1HFlowing, Sub: SubGreen}) {
			phase1 = append(phase1, p)
		}
	}
	require.GreaterOrEqual(t, len(phase1), 2)
	assert.Equal(t, sec(20), h.elapsed(phase1[1].At))
}

func TestCoordinator_RoundTripThroughMaintenance(t *testing.T) {
	h := newHarness(DefaultPlan())
	h.script.
		At(sec(5), NewModeChangeRequest(ModeMaintenance)).
		At(sec(15), NewModeChangeRequest(ModeNormal))
	h.runUntil(t, sec(30))

	v, hb := h.sink.SampleAt(sec(12))
	assert.Equal(t, ColorBits(0), v, "maintenance keeps the heads dark")
	assert.Equal(t, ColorBits(0), hb)

	assert.Equal(t, []SinkEntry{
		{At: sec(15), Street: StreetV, Bits: LampRed},
		{At: sec(15), Street: StreetH, Bits: LampRed},
		{At: sec(15), Street: StreetH, Bits: LampGreen},
	}, entriesAt(h.sink.Entries(), sec(15)))

	modes := h.observer.ModeChanges()
	require.Len(t, modes, 2)
	assert.Equal(t, ModeMaintenance, modes[0].To)
	assert.Equal(t, ModeNormal, modes[1].To)
}

func TestCoordinator_NightServesPedestriansWithBothRed(t *testing.T) {
	h := newHarness(DefaultPlan())
	h.script.
		At(sec(5), NewModeChangeRequest(ModeNight)).
		At(sec(12), NewPedestrianRequest(StreetV))
	h.runUntil(t, sec(30))

	walks := walkEntries(h.sink.WalkEntries(), StreetV)
	require.Len(t, walks, 3)
	assert.Equal(t, WalkEntry{At: sec(13), Street: StreetV, Signal: Walk}, walks[0])
	assert.Equal(t, WalkEntry{At: sec(21), Street: StreetV, Signal: Clearance}, walks[1])
	assert.Equal(t, WalkEntry{At: sec(23), Street: StreetV, Signal: DontWalk}, walks[2])

	v, hb := h.sink.SampleAt(sec(15))
	assert.Equal(t, LampRed, v)
	assert.Equal(t, LampRed, hb)

	v, hb = h.sink.SampleAt(sec(23.5))
	assert.Equal(t, LampYellow, v, "flashing resumes after the crossing")
	assert.Equal(t, LampYellow, hb)
}

func TestCoordinator_ShutdownSequence(t *testing.T) {
	h := newHarness(DefaultPlan())
	h.script.Do(sec(30), h.c.RequestShutdown)

	require.NoError(t, h.c.Run(context.Background()))

	entries := h.sink.Entries()
	require.GreaterOrEqual(t, len(entries), 4)
	assert.Equal(t, []SinkEntry{
		{At: sec(30), Street: StreetV, Bits: LampRed},
		{At: sec(30), Street: StreetH, Bits: LampRed},
		{At: sec(32), Street: StreetV, Bits: 0},
		{At: sec(32), Street: StreetH, Bits: 0},
	}, entries[len(entries)-4:])

	assert.False(t, h.c.IsRunning())
	assert.Equal(t, 1, h.observer.Started)
	assert.Equal(t, 1, h.observer.StoppedCount())
}

func TestCoordinator_ContextCancelRunsShutdown(t *testing.T) {
	h := newHarness(DefaultPlan())
	ctx, cancel := context.WithCancel(context.Background())
	h.script.Do(sec(4), cancel)

	require.NoError(t, h.c.Run(ctx))

	entries := h.sink.Entries()
	assert.Equal(t, SinkEntry{At: sec(6), Street: StreetH, Bits: 0}, entries[len(entries)-1])
	v, hb := h.sink.SampleAt(sec(5))
	assert.Equal(t, LampRed, v)
	assert.Equal(t, LampRed, hb)
}

func assertNoGreen(t *testing.T, entries []SinkEntry) {
	t.Helper()
	for _, e := range entries {
		assert.False(t, e.Bits.Has(LampGreen), "green asserted: %s", e)
	}
}

func TestCoordinator_ShutdownRequestedBeforeRun(t *testing.T) {
	h := newHarness(DefaultPlan())
	h.c.RequestShutdown()

	require.NoError(t, h.c.Run(context.Background()))

	entries := h.sink.Entries()
	assertNoGreen(t, entries)
	assert.Equal(t, []SinkEntry{
		{At: sec(2), Street: StreetV, Bits: 0},
		{At: sec(2), Street: StreetH, Bits: 0},
	}, entries[len(entries)-2:])
	v, hb := h.sink.SampleAt(sec(1))
	assert.Equal(t, LampRed, v)
	assert.Equal(t, LampRed, hb)
	assert.Equal(t, 1, h.observer.StoppedCount())
}

func TestCoordinator_CancelledContextBeforeRun(t *testing.T) {
	h := newHarness(DefaultPlan())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, h.c.Run(ctx))

	entries := h.sink.Entries()
	assertNoGreen(t, entries)
	assert.Equal(t, SinkEntry{At: sec(2), Street: StreetH, Bits: 0}, entries[len(entries)-1])
}

func TestCoordinator_EmergencyPendingAtStart(t *testing.T) {
	h := newHarness(DefaultPlan())
	h.script.At(0, NewEmergencyTriggered())
	h.runUntil(t, sec(3))

	assertNoGreen(t, h.sink.Entries())
	modes := h.observer.ModeChanges()
	require.Len(t, modes, 1)
	assert.Equal(t, ModeEmergency, modes[0].To)
	assert.Equal(t, time.Duration(0), h.elapsed(modes[0].At))
}

func TestCoordinator_ExpandCoversFlagOnlySources(t *testing.T) {
	h := newHarness(DefaultPlan())

	var events Events
	events.Add(NewPedestrianRequest(StreetV))
	events.Merge(Events{PedestrianV: true, PedestrianH: true, Emergency: true})

	got := h.c.expand(events, h.clock.Now())
	require.Len(t, got, 3)
	assert.Equal(t, PedestrianRequest, got[0].Kind)
	assert.Equal(t, StreetV, got[0].Street)
	assert.Equal(t, PedestrianRequest, got[1].Kind)
	assert.Equal(t, StreetH, got[1].Street)
	assert.Equal(t, EmergencyTriggered, got[2].Kind)
	assert.Equal(t, h.clock.Now(), got[2].Timestamp)
}

func TestCoordinator_FlagOnlySourceIsObserved(t *testing.T) {
	clock := NewVirtualClock()
	sink := NewRecordingSink(clock)
	queue := NewEventQueue()
	flags := &flagSource{at: sec(1), clock: clock, start: clock.Now()}
	observer := NewRecordingObserver()
	observers := NewObserverManager()
	observers.AddObserver(observer)
	c := NewPhaseCoordinator(DefaultPlan(), sink, MultiInput{queue, flags}, clock, nil, observers)

	queue.RequestPedestrian(StreetV)
	clock.StopAt(sec(5))
	require.NoError(t, c.Run(context.Background()))

	var streets []Street
	for _, ev := range observer.Inputs {
		streets = append(streets, ev.Street)
	}
	assert.Equal(t, []Street{StreetV, StreetH}, streets)
}

// flagSource reports a crossing of H once, without an Event record
type flagSource struct {
	at    time.Duration
	clock Clock
	start time.Time
	fired bool
}

func (f *flagSource) Poll() Events {
	if f.fired || f.clock.Now().Sub(f.start) < f.at {
		return Events{}
	}
	f.fired = true
	return Events{PedestrianH: true}
}

func TestCoordinator_StartupFlashes(t *testing.T) {
	plan := DefaultPlan()
	plan.StartupFlashes = 2
	h := newHarness(plan)
	h.runUntil(t, sec(10))

	v, hb := h.sink.SampleAt(sec(0.2))
	assert.Equal(t, LampYellow, v)
	assert.Equal(t, LampYellow, hb)

	v, hb = h.sink.SampleAt(sec(0.7))
	assert.Equal(t, ColorBits(0), v)
	assert.Equal(t, ColorBits(0), hb)

	at, _ := h.sink.FirstAt(StreetH, LampGreen, 0)
	assert.Equal(t, sec(2), at)
	assertMatchesTimeline(t, h.sink, plan, sec(2), sec(10))
}

func TestCoordinator_AllRedClearance(t *testing.T) {
	plan := DefaultPlan()
	plan.AllRedClearance = time.Second
	plan.VRed = 14 * time.Second
	plan.HRed = 14 * time.Second
	require.NoError(t, plan.Validate())

	h := newHarness(plan)
	h.runUntil(t, sec(60))

	at, _ := h.sink.FirstAt(StreetH, LampGreen, 0)
	assert.Equal(t, sec(1), at)
	at, _ = h.sink.FirstAt(StreetH, LampRed, sec(5))
	assert.Equal(t, sec(13), at)
	at, _ = h.sink.FirstAt(StreetV, LampGreen, 0)
	assert.Equal(t, sec(14), at)
	at, _ = h.sink.FirstAt(StreetH, LampGreen, sec(2))
	assert.Equal(t, sec(27), at)

	assertMatchesTimeline(t, h.sink, plan, sec(1), sec(60))
}

func TestCoordinator_YellowOverlap(t *testing.T) {
	plan := DefaultPlan()
	plan.YellowOverlap = true
	h := newHarness(plan)
	h.runUntil(t, sec(30))

	_, hb := h.sink.SampleAt(sec(10))
	assert.Equal(t, LampGreen|LampYellow, hb)
	assertMatchesTimeline(t, h.sink, plan, 0, sec(30))
}

func TestCoordinator_HardwareFaultKeepsLogicalState(t *testing.T) {
	clock := NewVirtualClock()
	recording := NewRecordingSink(clock)
	failing := NewFailingSink(recording)
	h := newHarnessWithSink(DefaultPlan(), clock, recording, failing)

	var v, hc Color
	h.script.
		Do(sec(5), func() { failing.SetFailing(true) }).
		Do(sec(13), func() { v, hc = h.c.Colors() }).
		Do(sec(15), func() { failing.SetFailing(false) })
	h.runUntil(t, sec(40))

	assert.Equal(t, Green, v, "logical state advanced while the sink failed")
	assert.Equal(t, Red, hc)

	require.NotEmpty(t, h.observer.Faults)
	for _, err := range h.observer.Faults {
		assert.True(t, IsHardwareFault(err), "unexpected fault %v", err)
	}
	assert.Equal(t, failing.FailedCount(), len(h.observer.Faults))
	assert.NotEmpty(t, h.c.Status().Faults)

	for _, e := range h.sink.Entries() {
		assert.False(t, e.At > sec(5) && e.At < sec(15), "no output reached the lamps at %v", e.At)
	}
	at, _ := h.sink.FirstAt(StreetV, LampGreen, 0)
	assert.Equal(t, sec(36), at, "lamps follow again once the sink recovers")
}

func TestCoordinator_CommandRefusesBothGreen(t *testing.T) {
	h := newHarness(DefaultPlan())

	err := h.c.command(Green, Green)
	require.Error(t, err)
	assert.True(t, IsInvariantViolation(err))
	assert.Empty(t, h.sink.Entries(), "refused command never reaches the sink")

	err = h.c.command(GreenYellow, Green)
	assert.True(t, IsInvariantViolation(err))
}

func TestCoordinator_CommandRefusesBothFlowingInCycle(t *testing.T) {
	h := newHarness(DefaultPlan())

	require.NoError(t, h.c.command(Yellow, Green), "outside the base cycle only both-green is refused")

	h.c.setCycleState(CycleState{Phase: Phase1HFlowing, Sub: SubGreen})
	err := h.c.command(Yellow, Green)
	require.Error(t, err)
	var violation *InvariantViolation
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, Yellow, violation.V)
	assert.Equal(t, Green, violation.H)

	assert.NoError(t, h.c.command(Red, Green))
}

func TestCoordinator_HaltGoesSafe(t *testing.T) {
	h := newHarness(DefaultPlan())
	h.c.setCycleState(CycleState{Phase: Phase2VFlowing, Sub: SubGreen})
	require.NoError(t, h.c.command(Green, Red))

	err := h.c.command(Green, Green)
	returned := h.c.halt(err)
	assert.Equal(t, err, returned)

	entries := h.sink.Entries()
	assert.Equal(t, []SinkEntry{
		{At: h.clock.Elapsed() - DefaultPlan().ShutdownSettle, Street: StreetV, Bits: LampRed},
		{At: h.clock.Elapsed() - DefaultPlan().ShutdownSettle, Street: StreetH, Bits: LampRed},
		{At: h.clock.Elapsed(), Street: StreetV, Bits: 0},
		{At: h.clock.Elapsed(), Street: StreetH, Bits: 0},
	}, entries[len(entries)-4:])
	require.Len(t, h.observer.Faults, 1)
	assert.True(t, IsInvariantViolation(h.observer.Faults[0]))
	assert.Equal(t, CycleState{}, h.c.Status().Cycle)
}

func TestCoordinator_StatusIsACopy(t *testing.T) {
	h := newHarness(DefaultPlan())
	h.script.At(sec(40), NewPedestrianRequest(StreetV))
	h.runUntil(t, sec(10))

	status := h.c.Status()
	status.Colors[StreetV] = Green
	status.PedestrianRequests[StreetH] = true

	fresh := h.c.Status()
	assert.Equal(t, Off, fresh.Colors[StreetV])
	assert.False(t, fresh.PedestrianRequests[StreetH])
	assert.False(t, fresh.Running)
	assert.Nil(t, fresh.PendingMode)
	assert.Empty(t, fresh.Flowing())
}

func TestCoordinator_InputsAreObserved(t *testing.T) {
	h := newHarness(DefaultPlan())
	h.script.
		At(sec(1), NewPedestrianRequest(StreetH)).
		At(sec(3), NewModeChangeRequest(ModeNight))
	h.runUntil(t, sec(12))

	require.Len(t, h.observer.Inputs, 2)
	assert.Equal(t, PedestrianRequest, h.observer.Inputs[0].Kind)
	assert.Equal(t, ModeChangeRequest, h.observer.Inputs[1].Kind)
	assert.NotEmpty(t, h.observer.Inputs[0].ID)
}

func TestWaitOutcome_String(t *testing.T) {
	assert.Equal(t, "completed", CompletedNormally.String())
	assert.Equal(t, "cancelled_by_emergency", CancelledByEmergency.String())
	assert.Equal(t, "cancelled_by_shutdown", CancelledByShutdown.String())
}
