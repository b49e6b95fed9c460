package signalctl

import (
	"context"
	"sync"
)

// Option configures a Controller
type Option func(*Controller)

// WithClock replaces the wall clock
func WithClock(clock Clock) Option {
	return func(c *Controller) {
		c.clock = clock
	}
}

// WithInput adds an input source polled next to the controller's own queue
func WithInput(input InputSource) Option {
	return func(c *Controller) {
		c.inputs = append(c.inputs, input)
	}
}

// WithObserver adds an observer
func WithObserver(observer Observer) Option {
	return func(c *Controller) {
		c.observers.AddObserver(observer)
	}
}

// Controller owns one intersection: the plan, both signal heads, the mode
// supervisor and the coordinator's control loop.
type Controller struct {
	plan      PhasePlan
	clock     Clock
	queue     *EventQueue
	inputs    []InputSource
	observers *ObserverManager

	coordinator *PhaseCoordinator

	mutex   sync.Mutex
	started bool
	done    chan struct{}
	err     error
}

// NewController validates plan and wires a controller. A configuration
// error is returned before any output is asserted.
func NewController(plan PhasePlan, sink OutputSink, opts ...Option) (*Controller, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, NewConfigurationError("sink", "output sink is required")
	}

	c := &Controller{
		plan:      plan,
		clock:     RealClock{},
		queue:     NewEventQueue(),
		observers: NewObserverManager(),
	}
	for _, opt := range opts {
		opt(c)
	}

	input := MultiInput(append([]InputSource{c.queue}, c.inputs...))
	c.coordinator = NewPhaseCoordinator(plan, sink, input, c.clock, NewModeSupervisor(), c.observers)
	return c, nil
}

// ID identifies the controller in logs
func (c *Controller) ID() string {
	return c.coordinator.ID()
}

// Plan returns the validated timing plan
func (c *Controller) Plan() PhasePlan {
	return c.plan
}

// Start launches the control loop. It fails with ErrAlreadyRunning if the
// controller was started before; a controller runs once.
func (c *Controller) Start(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.started {
		return ErrAlreadyRunning
	}
	c.started = true
	c.done = make(chan struct{})

	go func() {
		err := c.coordinator.Run(ctx)
		c.mutex.Lock()
		c.err = err
		c.mutex.Unlock()
		close(c.done)
	}()
	return nil
}

// RequestShutdown triggers the all-red, settle, dark sequence
func (c *Controller) RequestShutdown() {
	c.coordinator.RequestShutdown()
}

// IsRunning reports whether the control loop is active
func (c *Controller) IsRunning() bool {
	return c.coordinator.IsRunning()
}

// Wait blocks until the control loop has finished and returns its error
func (c *Controller) Wait() error {
	c.mutex.Lock()
	done := c.done
	c.mutex.Unlock()
	if done == nil {
		return ErrNotRunning
	}
	<-done

	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.err
}

// Done is closed when the control loop has finished
func (c *Controller) Done() <-chan struct{} {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.done
}

// RequestMode asks for a mode change at the next sub-phase boundary
func (c *Controller) RequestMode(mode OperatingMode) (bool, error) {
	return c.coordinator.Supervisor().RequestMode(mode)
}

// TriggerEmergency latches the emergency override
func (c *Controller) TriggerEmergency() {
	c.queue.TriggerEmergency()
}

// RequestPedestrian latches a crossing request for street
func (c *Controller) RequestPedestrian(street Street) {
	c.queue.RequestPedestrian(street)
}

// Events returns the controller's input queue for external producers
func (c *Controller) Events() *EventQueue {
	return c.queue
}

// Status returns a snapshot of the controller
func (c *Controller) Status() Status {
	return c.coordinator.Status()
}

// Colors returns the commanded colours of both heads
func (c *Controller) Colors() (v, h Color) {
	return c.coordinator.Colors()
}

// AddObserver registers an observer
func (c *Controller) AddObserver(observer Observer) {
	c.observers.AddObserver(observer)
}

// RemoveObserver unregisters an observer
func (c *Controller) RemoveObserver(observer Observer) {
	c.observers.RemoveObserver(observer)
}
