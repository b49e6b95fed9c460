package signalctl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrClockStopped is returned by VirtualClock.Sleep once the stop time is reached
var ErrClockStopped = errors.New("virtual clock stopped")

// VirtualClock is a Clock whose Sleep advances virtual time instantly
type VirtualClock struct {
	mutex  sync.Mutex
	start  time.Time
	now    time.Time
	stopAt time.Duration
}

// NewVirtualClock creates a virtual clock at a fixed epoch
func NewVirtualClock() *VirtualClock {
	epoch := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	return &VirtualClock{start: epoch, now: epoch}
}

// StopAt makes Sleep fail with ErrClockStopped once elapsed reaches d,
// which ends a control loop as if the context had been cancelled
func (c *VirtualClock) StopAt(d time.Duration) *VirtualClock {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.stopAt = d
	return c
}

// Now implements Clock
func (c *VirtualClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.now
}

// Start returns the epoch the clock started at
func (c *VirtualClock) Start() time.Time {
	return c.start
}

// Elapsed returns the virtual time since the epoch
func (c *VirtualClock) Elapsed() time.Duration {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.now.Sub(c.start)
}

// Sleep implements Clock
func (c *VirtualClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.stopAt > 0 {
		limit := c.start.Add(c.stopAt)
		if !c.now.Add(d).Before(limit) {
			c.now = limit
			return ErrClockStopped
		}
	}
	if d > 0 {
		c.now = c.now.Add(d)
	}
	return nil
}

// SinkEntry is one Assert call seen by a RecordingSink
type SinkEntry struct {
	At     time.Duration
	Street Street
	Bits   ColorBits
}

func (e SinkEntry) String() string {
	return fmt.Sprintf("%v %s=%s", e.At, e.Street, e.Bits)
}

// WalkEntry is one AssertWalk call seen by a RecordingSink
type WalkEntry struct {
	At     time.Duration
	Street Street
	Signal WalkSignal
}

// RecordingSink records every output with its time since the clock's start
type RecordingSink struct {
	mutex sync.Mutex
	clock Clock
	start time.Time
	Lamps []SinkEntry
	Walks []WalkEntry
}

// NewRecordingSink creates a sink stamping entries relative to clock.Now()
func NewRecordingSink(clock Clock) *RecordingSink {
	return &RecordingSink{
		clock: clock,
		start: clock.Now(),
		Lamps: make([]SinkEntry, 0),
		Walks: make([]WalkEntry, 0),
	}
}

// Assert implements OutputSink
func (s *RecordingSink) Assert(street Street, bits ColorBits) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.Lamps = append(s.Lamps, SinkEntry{At: s.clock.Now().Sub(s.start), Street: street, Bits: bits})
	return nil
}

// AssertWalk implements WalkSink
func (s *RecordingSink) AssertWalk(street Street, signal WalkSignal) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.Walks = append(s.Walks, WalkEntry{At: s.clock.Now().Sub(s.start), Street: street, Signal: signal})
	return nil
}

// Entries returns a copy of the lamp entries
func (s *RecordingSink) Entries() []SinkEntry {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make([]SinkEntry, len(s.Lamps))
	copy(out, s.Lamps)
	return out
}

// WalkEntries returns a copy of the pedestrian entries
func (s *RecordingSink) WalkEntries() []WalkEntry {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make([]WalkEntry, len(s.Walks))
	copy(out, s.Walks)
	return out
}

// SampleAt replays the entries and returns the lamps lit on both heads at
// elapsed time at. Entries stamped exactly at are included.
func (s *RecordingSink) SampleAt(at time.Duration) (v, h ColorBits) {
	var bits [2]ColorBits
	for _, e := range s.Entries() {
		if e.At > at {
			break
		}
		bits[e.Street] = e.Bits
	}
	return bits[StreetV], bits[StreetH]
}

// WalkAt replays the pedestrian entries for street up to at
func (s *RecordingSink) WalkAt(street Street, at time.Duration) WalkSignal {
	signal := DontWalk
	for _, e := range s.WalkEntries() {
		if e.At > at {
			break
		}
		if e.Street == street {
			signal = e.Signal
		}
	}
	return signal
}

// FirstAt returns the time of the first entry at or after from that lights
// bits on street
func (s *RecordingSink) FirstAt(street Street, bits ColorBits, from time.Duration) (time.Duration, bool) {
	for _, e := range s.Entries() {
		if e.At >= from && e.Street == street && e.Bits == bits {
			return e.At, true
		}
	}
	return 0, false
}

// Reset drops all entries
func (s *RecordingSink) Reset() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.Lamps = make([]SinkEntry, 0)
	s.Walks = make([]WalkEntry, 0)
}

// FailingSink forwards to another sink and fails every call while failing is set
type FailingSink struct {
	mutex   sync.Mutex
	next    OutputSink
	failing bool
	Failed  int
}

// NewFailingSink wraps next; next may be nil
func NewFailingSink(next OutputSink) *FailingSink {
	return &FailingSink{next: next}
}

// SetFailing switches failure injection on or off
func (s *FailingSink) SetFailing(failing bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.failing = failing
}

// FailedCount returns how many calls failed
func (s *FailingSink) FailedCount() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.Failed
}

// Assert implements OutputSink
func (s *FailingSink) Assert(street Street, bits ColorBits) error {
	s.mutex.Lock()
	failing := s.failing
	if failing {
		s.Failed++
	}
	s.mutex.Unlock()
	if failing {
		return fmt.Errorf("driver for street %s not responding", street)
	}
	if s.next != nil {
		return s.next.Assert(street, bits)
	}
	return nil
}

// SafetyMonitor is an OutputSink decorator that checks the lamps actually
// asserted on both heads after every call
type SafetyMonitor struct {
	mutex      sync.Mutex
	next       OutputSink
	bits       [2]ColorBits
	violations []string
}

// NewSafetyMonitor wraps next; next may be nil
func NewSafetyMonitor(next OutputSink) *SafetyMonitor {
	return &SafetyMonitor{next: next}
}

// Assert implements OutputSink
func (m *SafetyMonitor) Assert(street Street, bits ColorBits) error {
	m.mutex.Lock()
	m.bits[street] = bits
	if m.bits[StreetV].Has(LampGreen) && m.bits[StreetH].Has(LampGreen) {
		m.violations = append(m.violations, fmt.Sprintf("green on both heads [V=%s H=%s]", m.bits[StreetV], m.bits[StreetH]))
	}
	m.mutex.Unlock()
	if m.next != nil {
		return m.next.Assert(street, bits)
	}
	return nil
}

// AssertWalk implements WalkSink
func (m *SafetyMonitor) AssertWalk(street Street, signal WalkSignal) error {
	if ws, ok := m.next.(WalkSink); ok {
		return ws.AssertWalk(street, signal)
	}
	return nil
}

// Violations returns every unsafe state seen
func (m *SafetyMonitor) Violations() []string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	out := make([]string, len(m.violations))
	copy(out, m.violations)
	return out
}

// CheckMutualExclusion replays recorded entries and reports every instant
// at which both heads showed green
func CheckMutualExclusion(entries []SinkEntry) []string {
	monitor := NewSafetyMonitor(nil)
	for _, e := range entries {
		_ = monitor.Assert(e.Street, e.Bits)
	}
	return monitor.Violations()
}

// ScriptStep is one scripted input, delivered at the first poll at or after At
type ScriptStep struct {
	At     time.Duration
	Events Events
	Do     func()
}

// ScriptedInput is an InputSource that replays steps in virtual time
type ScriptedInput struct {
	mutex sync.Mutex
	clock Clock
	start time.Time
	steps []ScriptStep
}

// NewScriptedInput creates a script timed relative to clock.Now()
func NewScriptedInput(clock Clock) *ScriptedInput {
	return &ScriptedInput{clock: clock, start: clock.Now()}
}

// At adds events delivered at elapsed time d
func (s *ScriptedInput) At(d time.Duration, events ...Event) *ScriptedInput {
	var batch Events
	for _, ev := range events {
		batch.Add(ev)
	}
	return s.add(ScriptStep{At: d, Events: batch})
}

// Do adds a callback run from the control loop at elapsed time d
func (s *ScriptedInput) Do(d time.Duration, fn func()) *ScriptedInput {
	return s.add(ScriptStep{At: d, Do: fn})
}

func (s *ScriptedInput) add(step ScriptStep) *ScriptedInput {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	i := len(s.steps)
	for i > 0 && s.steps[i-1].At > step.At {
		i--
	}
	s.steps = append(s.steps, ScriptStep{})
	copy(s.steps[i+1:], s.steps[i:])
	s.steps[i] = step
	return s
}

// Poll implements InputSource
func (s *ScriptedInput) Poll() Events {
	elapsed := s.clock.Now().Sub(s.start)

	s.mutex.Lock()
	var (
		due   []ScriptStep
		batch Events
	)
	for len(s.steps) > 0 && s.steps[0].At <= elapsed {
		due = append(due, s.steps[0])
		s.steps = s.steps[1:]
	}
	s.mutex.Unlock()

	for _, step := range due {
		batch.Merge(step.Events)
		if step.Do != nil {
			step.Do()
		}
	}
	return batch
}

// Remaining returns the number of steps not yet delivered
func (s *ScriptedInput) Remaining() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.steps)
}

// SignalRecord is one OnSignalChange call
type SignalRecord struct {
	Street   Street
	From, To Color
	At       time.Time
}

// PhaseRecord is one OnPhaseChange call
type PhaseRecord struct {
	State CycleState
	At    time.Time
}

// ModeRecord is one OnModeChange call
type ModeRecord struct {
	From, To OperatingMode
	At       time.Time
}

// PedestrianRecord is one OnPedestrian call
type PedestrianRecord struct {
	Street Street
	Signal WalkSignal
	At     time.Time
}

// RecordingObserver captures every observer callback
type RecordingObserver struct {
	mutex       sync.RWMutex
	Signals     []SignalRecord
	Phases      []PhaseRecord
	Modes       []ModeRecord
	Pedestrians []PedestrianRecord
	Inputs      []Event
	Faults      []error
	Started     int
	Stopped     int
}

// NewRecordingObserver creates a new recording observer
func NewRecordingObserver() *RecordingObserver {
	return &RecordingObserver{}
}

// OnSignalChange implements Observer
func (o *RecordingObserver) OnSignalChange(street Street, from Color, to Color, at time.Time) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Signals = append(o.Signals, SignalRecord{Street: street, From: from, To: to, At: at})
}

// OnPhaseChange implements Observer
func (o *RecordingObserver) OnPhaseChange(state CycleState, at time.Time) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Phases = append(o.Phases, PhaseRecord{State: state, At: at})
}

// OnModeChange implements ExtendedObserver
func (o *RecordingObserver) OnModeChange(from OperatingMode, to OperatingMode, at time.Time) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Modes = append(o.Modes, ModeRecord{From: from, To: to, At: at})
}

// OnPedestrian implements ExtendedObserver
func (o *RecordingObserver) OnPedestrian(street Street, signal WalkSignal, at time.Time) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Pedestrians = append(o.Pedestrians, PedestrianRecord{Street: street, Signal: signal, At: at})
}

// OnInput implements ExtendedObserver
func (o *RecordingObserver) OnInput(event Event, at time.Time) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Inputs = append(o.Inputs, event)
}

// OnFault implements ExtendedObserver
func (o *RecordingObserver) OnFault(err error, at time.Time) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Faults = append(o.Faults, err)
}

// OnStarted implements ExtendedObserver
func (o *RecordingObserver) OnStarted(at time.Time) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Started++
}

// OnStopped implements ExtendedObserver
func (o *RecordingObserver) OnStopped(at time.Time) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Stopped++
}

// ModeChanges returns a copy of the recorded mode changes
func (o *RecordingObserver) ModeChanges() []ModeRecord {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	out := make([]ModeRecord, len(o.Modes))
	copy(out, o.Modes)
	return out
}

// FaultCount returns the number of recorded faults
func (o *RecordingObserver) FaultCount() int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return len(o.Faults)
}

// StoppedCount returns the number of OnStopped calls
func (o *RecordingObserver) StoppedCount() int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.Stopped
}
