package signalctl

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tiendc/go-deepcopy"
)

// WaitOutcome is the result of a timed wait
type WaitOutcome int

const (
	// CompletedNormally means the full duration elapsed
	CompletedNormally WaitOutcome = iota
	// CancelledByEmergency means an emergency trigger cut the wait short
	CancelledByEmergency
	// CancelledByShutdown means shutdown was requested or the context ended
	CancelledByShutdown
)

func (o WaitOutcome) String() string {
	switch o {
	case CompletedNormally:
		return "completed"
	case CancelledByEmergency:
		return "cancelled_by_emergency"
	case CancelledByShutdown:
		return "cancelled_by_shutdown"
	default:
		return "unknown"
	}
}

// handoff tells the run loop why a mode runner returned
type handoff int

const (
	handoffModeChange handoff = iota
	handoffEmergency
	handoffShutdown
)

const (
	startupFlashPeriod = 500 * time.Millisecond
	maxRecordedFaults  = 16
)

// crossing is a pedestrian service in progress
type crossing struct {
	street Street
	signal WalkSignal
	until  time.Time
}

// redWindow is the red interval of a street inside the base cycle
type redWindow struct {
	street Street
	end    time.Time
	served bool
}

// Status is a point-in-time view of the controller
type Status struct {
	Mode               OperatingMode
	PendingMode        *OperatingMode
	EmergencyLatched   bool
	Cycle              CycleState
	CycleCount         int
	Colors             map[Street]Color
	Walk               map[Street]WalkSignal
	PedestrianRequests map[Street]bool
	Running            bool
	Faults             []string
}

// Flowing returns the streets whose heads currently let traffic move
func (s Status) Flowing() []Street {
	var out []Street
	for _, street := range Streets {
		if s.Colors[street].Flowing() {
			out = append(out, street)
		}
	}
	return out
}

// PhaseCoordinator is the timing and safety state machine. Run is the only
// writer of the signal heads; every other method may be called from any
// goroutine.
type PhaseCoordinator struct {
	id         string
	plan       PhasePlan
	heads      [2]*SignalHead
	supervisor *ModeSupervisor
	input      InputSource
	clock      Clock
	observers  *ObserverManager

	shutdown atomic.Bool

	// mutex guards status; the heads are only written while it is held
	mutex  sync.RWMutex
	status Status

	// owned by the control loop
	window *redWindow
	cross  *crossing
}

// NewPhaseCoordinator wires a coordinator. The plan must already be valid.
func NewPhaseCoordinator(plan PhasePlan, sink OutputSink, input InputSource, clock Clock, supervisor *ModeSupervisor, observers *ObserverManager) *PhaseCoordinator {
	if input == nil {
		input = NoInput{}
	}
	if clock == nil {
		clock = RealClock{}
	}
	if supervisor == nil {
		supervisor = NewModeSupervisor()
	}
	if observers == nil {
		observers = NewObserverManager()
	}
	return &PhaseCoordinator{
		id:         uuid.NewString(),
		plan:       plan,
		heads:      [2]*SignalHead{NewSignalHead(StreetV, sink), NewSignalHead(StreetH, sink)},
		supervisor: supervisor,
		input:      input,
		clock:      clock,
		observers:  observers,
		status: Status{
			Mode:               supervisor.Mode(),
			Colors:             map[Street]Color{StreetV: Off, StreetH: Off},
			Walk:               map[Street]WalkSignal{StreetV: DontWalk, StreetH: DontWalk},
			PedestrianRequests: map[Street]bool{StreetV: false, StreetH: false},
		},
	}
}

// ID identifies the coordinator instance in logs
func (c *PhaseCoordinator) ID() string {
	return c.id
}

// Plan returns the timing plan
func (c *PhaseCoordinator) Plan() PhasePlan {
	return c.plan
}

// Supervisor returns the mode supervisor
func (c *PhaseCoordinator) Supervisor() *ModeSupervisor {
	return c.supervisor
}

// RequestShutdown asks the control loop to run the shutdown sequence at
// its next poll tick
func (c *PhaseCoordinator) RequestShutdown() {
	c.shutdown.Store(true)
}

// IsRunning reports whether Run is active
func (c *PhaseCoordinator) IsRunning() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.status.Running
}

// Status returns a deep copy of the live status
func (c *PhaseCoordinator) Status() Status {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var out Status
	if err := deepcopy.Copy(&out, &c.status); err != nil {
		// Fall back to a shallow copy, still consistent under the read lock
		out = c.status
	}
	mode, pending := c.supervisor.Pending()
	out.Mode = c.supervisor.Mode()
	out.PendingMode = nil
	if pending {
		out.PendingMode = &mode
	}
	out.EmergencyLatched = c.supervisor.EmergencyLatched()
	return out
}

// Colors returns the commanded colour of both heads as one consistent pair
func (c *PhaseCoordinator) Colors() (v, h Color) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.heads[StreetV].Color(), c.heads[StreetH].Color()
}

// Run drives the intersection until shutdown is requested or ctx ends, then
// runs the shutdown sequence. It returns an *InvariantViolation if the loop
// had to halt for safety.
func (c *PhaseCoordinator) Run(ctx context.Context) error {
	c.setRunning(true)
	defer c.setRunning(false)
	c.observers.NotifyStarted(c.clock.Now())

	c.apply(Off, Off, true)
	if err := c.command(Red, Red); err != nil {
		return c.halt(err)
	}

	if c.startupFlash(ctx) == CancelledByShutdown {
		c.shutdownSequence()
		return nil
	}

	for {
		// Requests that arrived before Run or during a handoff are seen
		// before any mode runner asserts a colour.
		if c.sample(ctx) == CancelledByShutdown {
			c.shutdownSequence()
			return nil
		}

		var (
			h   handoff
			err error
		)
		if c.supervisor.EmergencyLatched() {
			h = handoffEmergency
		} else {
			switch c.supervisor.Mode() {
			case ModeNight:
				h, err = c.runNight(ctx)
			case ModeMaintenance:
				h, err = c.runMaintenance(ctx)
			case ModeEmergency:
				h, err = c.runEmergency(ctx)
			default:
				h, err = c.runNormal(ctx)
			}
		}
		if err != nil {
			return c.halt(err)
		}

		switch h {
		case handoffShutdown:
			c.shutdownSequence()
			return nil
		case handoffEmergency:
			c.abortCrossing()
			from := c.supervisor.AcknowledgeEmergency()
			if from != ModeEmergency {
				c.setMode(from, ModeEmergency)
			}
		case handoffModeChange:
			c.abortCrossing()
			c.setCycleState(CycleState{})
			if err := c.command(Red, Red); err != nil {
				return c.halt(err)
			}
			if from, to, ok := c.supervisor.Commit(); ok {
				c.setMode(from, to)
			}
		}
	}
}

// wait is the only suspension point of the control loop. It sleeps at most
// one poll interval at a time, re-samples the input on every tick and
// advances an active pedestrian crossing.
func (c *PhaseCoordinator) wait(ctx context.Context, d time.Duration) WaitOutcome {
	deadline := c.clock.Now().Add(d)
	for {
		if o := c.sample(ctx); o != CompletedNormally {
			return o
		}
		now := c.clock.Now()
		c.tickCrossing(now)
		if !now.Before(deadline) {
			return CompletedNormally
		}

		step := min(c.plan.PollInterval, deadline.Sub(now))
		if c.cross != nil {
			if r := c.cross.until.Sub(now); r > 0 && r < step {
				step = r
			}
		}
		if err := c.clock.Sleep(ctx, step); err != nil {
			return CancelledByShutdown
		}
	}
}

// sample polls the input once and folds it into the latches
func (c *PhaseCoordinator) sample(ctx context.Context) WaitOutcome {
	if ctx.Err() != nil || c.shutdown.Load() {
		return CancelledByShutdown
	}

	events := c.input.Poll()
	now := c.clock.Now()
	for _, ev := range c.expand(events, now) {
		c.observers.NotifyInput(ev, now)
	}
	for _, s := range Streets {
		if events.Pedestrian(s) {
			c.latchPedestrian(s)
		}
	}
	if events.ModeRequest != nil {
		if _, err := c.supervisor.RequestMode(*events.ModeRequest); err != nil {
			c.fault(err)
		}
	}
	if events.Emergency {
		c.supervisor.TriggerEmergency()
	}

	if c.shutdown.Load() {
		return CancelledByShutdown
	}
	if c.supervisor.EmergencyLatched() {
		return CancelledByEmergency
	}
	return CompletedNormally
}

// expand lists the events of a batch, synthesising entries for sources
// that only set flags
func (c *PhaseCoordinator) expand(events Events, now time.Time) []Event {
	out := append([]Event(nil), events.Received...)

	var covered Events
	for _, ev := range events.Received {
		covered.Add(ev)
	}
	synthesize := func(ev Event) {
		ev.Timestamp = now
		out = append(out, ev)
	}
	for _, s := range Streets {
		if events.Pedestrian(s) && !covered.Pedestrian(s) {
			synthesize(NewPedestrianRequest(s))
		}
	}
	if events.ModeRequest != nil && (covered.ModeRequest == nil || *covered.ModeRequest != *events.ModeRequest) {
		synthesize(NewModeChangeRequest(*events.ModeRequest))
	}
	if events.Emergency && !covered.Emergency {
		synthesize(NewEmergencyTriggered())
	}
	return out
}

func interrupted(o WaitOutcome) (handoff, bool) {
	switch o {
	case CancelledByEmergency:
		return handoffEmergency, true
	case CancelledByShutdown:
		return handoffShutdown, true
	default:
		return 0, false
	}
}

// boundary is checked at the end of every sub-phase
func (c *PhaseCoordinator) boundary(o WaitOutcome) (handoff, bool) {
	if h, stop := interrupted(o); stop {
		return h, true
	}
	if _, pending := c.supervisor.Pending(); pending {
		return handoffModeChange, true
	}
	return 0, false
}

func (c *PhaseCoordinator) startupFlash(ctx context.Context) WaitOutcome {
	for i := 0; i < c.plan.StartupFlashes; i++ {
		c.apply(Yellow, Yellow, false)
		if o := c.wait(ctx, startupFlashPeriod); o != CompletedNormally {
			return o
		}
		c.apply(Off, Off, false)
		if o := c.wait(ctx, startupFlashPeriod); o != CompletedNormally {
			return o
		}
	}
	c.apply(Red, Red, false)
	return CompletedNormally
}

// runNormal restarts the base cycle from Phase1 with cycle count zero
func (c *PhaseCoordinator) runNormal(ctx context.Context) (handoff, error) {
	c.setCycleCount(0)
	if err := c.command(Red, Red); err != nil {
		return 0, err
	}
	if c.plan.AllRedClearance > 0 {
		c.setCycleState(CycleState{Phase: Phase1HFlowing, Sub: SubAllRed})
		if h, stop := c.boundary(c.wait(ctx, c.plan.AllRedClearance)); stop {
			return h, nil
		}
	}

	for {
		c.setCycleCount(c.cycleCount() + 1)
		for _, phase := range []Phase{Phase1HFlowing, Phase2VFlowing} {
			if h, stop, err := c.runPhase(ctx, phase); err != nil || stop {
				return h, err
			}
		}
	}
}

// runPhase runs Green then Yellow of the flowing street while the other
// street holds red. The swap into the phase is a single command.
func (c *PhaseCoordinator) runPhase(ctx context.Context, phase Phase) (handoff, bool, error) {
	flow := phase.Flowing()
	stopped := flow.Other()
	start := c.clock.Now()

	c.window = &redWindow{street: stopped, end: start.Add(c.plan.PedestrianWindow(stopped))}
	defer func() { c.window = nil }()

	c.setCycleState(CycleState{Phase: phase, Sub: SubGreen})
	if err := c.commandStreet(flow, Green); err != nil {
		return 0, true, err
	}
	if h, stop := c.boundary(c.wait(ctx, c.plan.Green(flow))); stop {
		return h, true, nil
	}

	yellow := Yellow
	if c.plan.YellowOverlap {
		yellow = GreenYellow
	}
	c.setCycleState(CycleState{Phase: phase, Sub: SubYellow})
	if err := c.commandStreet(flow, yellow); err != nil {
		return 0, true, err
	}
	o := c.wait(ctx, c.plan.Yellow(flow))
	if o == CompletedNormally {
		c.finishCrossing()
	}
	if h, stop := c.boundary(o); stop {
		return h, true, nil
	}

	if c.plan.AllRedClearance > 0 {
		c.setCycleState(CycleState{Phase: phase, Sub: SubAllRed})
		if err := c.command(Red, Red); err != nil {
			return 0, true, err
		}
		if h, stop := c.boundary(c.wait(ctx, c.plan.AllRedClearance)); stop {
			return h, true, nil
		}
	}
	return 0, false, nil
}

// runNight flashes yellow on both streets and serves pedestrians by holding
// both streets red
func (c *PhaseCoordinator) runNight(ctx context.Context) (handoff, error) {
	c.setCycleState(CycleState{})
	for {
		if h, stop := c.boundary(c.serveNightCrossings(ctx)); stop {
			return h, nil
		}
		if err := c.command(Yellow, Yellow); err != nil {
			return 0, err
		}
		if h, stop := c.boundary(c.wait(ctx, c.plan.NightBlink)); stop {
			return h, nil
		}
		if err := c.command(Off, Off); err != nil {
			return 0, err
		}
		if h, stop := c.boundary(c.wait(ctx, c.plan.NightBlink)); stop {
			return h, nil
		}
	}
}

func (c *PhaseCoordinator) serveNightCrossings(ctx context.Context) WaitOutcome {
	var streets []Street
	for _, s := range Streets {
		if c.pedestrianLatched(s) {
			streets = append(streets, s)
		}
	}
	if len(streets) == 0 {
		return CompletedNormally
	}

	c.apply(Red, Red, false)
	abort := func() {
		for _, s := range streets {
			c.setWalk(s, DontWalk)
		}
	}
	for _, s := range streets {
		c.setWalk(s, Walk)
	}
	if o := c.wait(ctx, c.plan.PedestrianWalk); o != CompletedNormally {
		abort()
		return o
	}
	for _, s := range streets {
		c.setWalk(s, Clearance)
	}
	if o := c.wait(ctx, c.plan.PedestrianClearance); o != CompletedNormally {
		abort()
		return o
	}
	for _, s := range streets {
		c.setWalk(s, DontWalk)
		c.clearPedestrian(s)
	}
	return CompletedNormally
}

// runMaintenance darkens both heads and idles until a mode change
func (c *PhaseCoordinator) runMaintenance(ctx context.Context) (handoff, error) {
	c.setCycleState(CycleState{})
	if err := c.command(Off, Off); err != nil {
		return 0, err
	}
	for {
		if h, stop := c.boundary(c.wait(ctx, c.plan.PollInterval)); stop {
			return h, nil
		}
	}
}

// runEmergency holds both streets red, flashing if the plan asks for it
func (c *PhaseCoordinator) runEmergency(ctx context.Context) (handoff, error) {
	c.setCycleState(CycleState{})
	if err := c.command(Red, Red); err != nil {
		return 0, err
	}
	if c.plan.EmergencyFlash <= 0 {
		for {
			if h, stop := c.boundary(c.wait(ctx, c.plan.PollInterval)); stop {
				return h, nil
			}
		}
	}
	for {
		if err := c.command(Red, Red); err != nil {
			return 0, err
		}
		if h, stop := c.boundary(c.wait(ctx, c.plan.EmergencyFlash)); stop {
			return h, nil
		}
		if err := c.command(Off, Off); err != nil {
			return 0, err
		}
		if h, stop := c.boundary(c.wait(ctx, c.plan.EmergencyFlash)); stop {
			return h, nil
		}
	}
}

// tickCrossing advances the pedestrian service of the current red window
func (c *PhaseCoordinator) tickCrossing(now time.Time) {
	for c.cross != nil && !now.Before(c.cross.until) {
		switch c.cross.signal {
		case Walk:
			c.cross.signal = Clearance
			c.cross.until = c.cross.until.Add(c.plan.PedestrianClearance)
			c.setWalk(c.cross.street, Clearance)
		default:
			c.finishCrossing()
		}
	}

	w := c.window
	if c.cross != nil || w == nil || w.served || !c.pedestrianLatched(w.street) {
		return
	}
	if w.end.Sub(now) < c.plan.PedestrianService() {
		// Not enough red left, deferred to the next red of this street
		return
	}
	w.served = true
	c.cross = &crossing{street: w.street, signal: Walk, until: now.Add(c.plan.PedestrianWalk)}
	c.setWalk(w.street, Walk)
}

// finishCrossing completes the active crossing and clears its latch
func (c *PhaseCoordinator) finishCrossing() {
	if c.cross == nil {
		return
	}
	street := c.cross.street
	c.cross = nil
	c.setWalk(street, DontWalk)
	c.clearPedestrian(street)
}

// abortCrossing stops the active crossing; its latch stays set
func (c *PhaseCoordinator) abortCrossing() {
	if c.cross == nil {
		return
	}
	street := c.cross.street
	c.cross = nil
	c.setWalk(street, DontWalk)
}

// commandStreet sets street to color and the other street to Red
func (c *PhaseCoordinator) commandStreet(street Street, color Color) error {
	if street == StreetV {
		return c.command(color, Red)
	}
	return c.command(Red, color)
}

// command moves both heads in one step. A step that would release both
// streets is refused with an *InvariantViolation.
func (c *PhaseCoordinator) command(v, h Color) error {
	c.mutex.RLock()
	state := c.status.Cycle
	c.mutex.RUnlock()

	if v.Permissive() && h.Permissive() {
		return NewInvariantViolation(c.supervisor.Mode(), v, h, "both streets green")
	}
	if state.Phase != PhaseNone && v.Flowing() && h.Flowing() {
		return NewInvariantViolation(c.supervisor.Mode(), v, h, "both streets flowing inside the base cycle")
	}
	c.apply(v, h, false)
	return nil
}

type signalChange struct {
	street   Street
	from, to Color
}

// apply sets both heads while holding the status lock. Heads that stop
// traffic are driven before heads that release it.
func (c *PhaseCoordinator) apply(v, h Color, force bool) {
	targets := [2]Color{v, h}
	order := [2]Street{StreetV, StreetH}
	if v.Flowing() && !h.Flowing() {
		order = [2]Street{StreetH, StreetV}
	}

	var (
		changes []signalChange
		faults  []error
	)
	c.mutex.Lock()
	for _, s := range order {
		prev := c.heads[s].Color()
		if prev == targets[s] && !force {
			continue
		}
		if err := c.heads[s].Set(targets[s]); err != nil {
			faults = append(faults, err)
		}
		c.status.Colors[s] = targets[s]
		changes = append(changes, signalChange{street: s, from: prev, to: targets[s]})
	}
	c.mutex.Unlock()

	now := c.clock.Now()
	for _, ch := range changes {
		if ch.from != ch.to {
			c.observers.NotifySignalChange(ch.street, ch.from, ch.to, now)
		}
	}
	for _, err := range faults {
		c.fault(err)
	}
}

// halt forces the safe all-red state after an invariant violation
func (c *PhaseCoordinator) halt(err error) error {
	c.fault(err)
	c.shutdownSequence()
	return err
}

// shutdownSequence: both red, settle, then dark
func (c *PhaseCoordinator) shutdownSequence() {
	c.abortCrossing()
	c.setCycleState(CycleState{})
	c.apply(Red, Red, true)
	_ = c.clock.Sleep(context.Background(), c.plan.ShutdownSettle)
	c.apply(Off, Off, true)
	c.observers.NotifyStopped(c.clock.Now())
}

func (c *PhaseCoordinator) fault(err error) {
	c.mutex.Lock()
	c.status.Faults = append(c.status.Faults, err.Error())
	if n := len(c.status.Faults); n > maxRecordedFaults {
		c.status.Faults = c.status.Faults[n-maxRecordedFaults:]
	}
	c.mutex.Unlock()
	c.observers.NotifyFault(err, c.clock.Now())
}

func (c *PhaseCoordinator) setWalk(street Street, signal WalkSignal) {
	c.mutex.Lock()
	prev := c.status.Walk[street]
	c.status.Walk[street] = signal
	c.mutex.Unlock()
	if prev == signal {
		return
	}
	if err := c.heads[street].SetWalk(signal); err != nil {
		c.fault(err)
	}
	c.observers.NotifyPedestrian(street, signal, c.clock.Now())
}

func (c *PhaseCoordinator) latchPedestrian(street Street) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.status.PedestrianRequests[street] = true
}

func (c *PhaseCoordinator) clearPedestrian(street Street) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.status.PedestrianRequests[street] = false
}

func (c *PhaseCoordinator) pedestrianLatched(street Street) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.status.PedestrianRequests[street]
}

func (c *PhaseCoordinator) setCycleState(state CycleState) {
	c.mutex.Lock()
	prev := c.status.Cycle
	c.status.Cycle = state
	c.mutex.Unlock()
	if prev != state {
		c.observers.NotifyPhaseChange(state, c.clock.Now())
	}
}

func (c *PhaseCoordinator) setCycleCount(n int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.status.CycleCount = n
}

func (c *PhaseCoordinator) cycleCount() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.status.CycleCount
}

func (c *PhaseCoordinator) setMode(from, to OperatingMode) {
	c.mutex.Lock()
	c.status.Mode = to
	c.mutex.Unlock()
	c.observers.NotifyModeChange(from, to, c.clock.Now())
}

func (c *PhaseCoordinator) setRunning(running bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.status.Running = running
}
