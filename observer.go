package signalctl

import (
	"fmt"
	"sync"
	"time"
)

// Observer watches the signal heads of a running controller
type Observer interface {
	// Required methods

	// OnSignalChange is called after a head has been commanded to a new colour
	OnSignalChange(street Street, from Color, to Color, at time.Time)

	// OnPhaseChange is called when the coordinator moves within the base cycle
	OnPhaseChange(state CycleState, at time.Time)
}

// ExtendedObserver provides additional optional observation methods
type ExtendedObserver interface {
	Observer

	// OnModeChange is called when the operating mode changes
	OnModeChange(from OperatingMode, to OperatingMode, at time.Time)

	// OnPedestrian is called when a pedestrian head changes aspect
	OnPedestrian(street Street, signal WalkSignal, at time.Time)

	// OnInput is called for every input event the coordinator consumes
	OnInput(event Event, at time.Time)

	// OnFault is called for hardware faults and invariant violations
	OnFault(err error, at time.Time)

	// OnStarted is called when the control loop starts
	OnStarted(at time.Time)

	// OnStopped is called after the shutdown sequence completed
	OnStopped(at time.Time)
}

// BaseObserver provides a default implementation with no-op methods
type BaseObserver struct{}

// OnSignalChange implements the required Observer method
func (o *BaseObserver) OnSignalChange(street Street, from Color, to Color, at time.Time) {}

// OnPhaseChange implements the required Observer method
func (o *BaseObserver) OnPhaseChange(state CycleState, at time.Time) {}

// OnModeChange implements the optional ExtendedObserver method
func (o *BaseObserver) OnModeChange(from OperatingMode, to OperatingMode, at time.Time) {}

// OnPedestrian implements the optional ExtendedObserver method
func (o *BaseObserver) OnPedestrian(street Street, signal WalkSignal, at time.Time) {}

// OnInput implements the optional ExtendedObserver method
func (o *BaseObserver) OnInput(event Event, at time.Time) {}

// OnFault implements the optional ExtendedObserver method
func (o *BaseObserver) OnFault(err error, at time.Time) {}

// OnStarted implements the optional ExtendedObserver method
func (o *BaseObserver) OnStarted(at time.Time) {}

// OnStopped implements the optional ExtendedObserver method
func (o *BaseObserver) OnStopped(at time.Time) {}

// ObserverManager manages a collection of observers. A panicking observer
// is reported through OnFault and never stops the control loop.
type ObserverManager struct {
	mutex     sync.RWMutex
	observers []Observer
}

// NewObserverManager creates a new observer manager
func NewObserverManager() *ObserverManager {
	return &ObserverManager{
		observers: make([]Observer, 0),
	}
}

// AddObserver adds an observer to the manager
func (om *ObserverManager) AddObserver(observer Observer) {
	om.mutex.Lock()
	defer om.mutex.Unlock()
	om.observers = append(om.observers, observer)
}

// RemoveObserver removes an observer from the manager
func (om *ObserverManager) RemoveObserver(observer Observer) {
	om.mutex.Lock()
	defer om.mutex.Unlock()
	for i, obs := range om.observers {
		if obs == observer {
			om.observers = append(om.observers[:i], om.observers[i+1:]...)
			break
		}
	}
}

func (om *ObserverManager) snapshot() []Observer {
	om.mutex.RLock()
	defer om.mutex.RUnlock()
	observers := make([]Observer, len(om.observers))
	copy(observers, om.observers)
	return observers
}

// each calls fn for every observer, recovering panics
func (om *ObserverManager) each(hook string, at time.Time, fn func(Observer)) {
	for _, observer := range om.snapshot() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					if extObs, ok := observer.(ExtendedObserver); ok {
						func() {
							defer func() { recover() }()
							extObs.OnFault(fmt.Errorf("observer panic in %s: %v", hook, r), at)
						}()
					}
				}
			}()
			fn(observer)
		}()
	}
}

// eachExtended is each restricted to ExtendedObservers
func (om *ObserverManager) eachExtended(hook string, at time.Time, fn func(ExtendedObserver)) {
	om.each(hook, at, func(o Observer) {
		if extObs, ok := o.(ExtendedObserver); ok {
			fn(extObs)
		}
	})
}

// NotifySignalChange notifies all observers of a head colour change
func (om *ObserverManager) NotifySignalChange(street Street, from, to Color, at time.Time) {
	om.each("OnSignalChange", at, func(o Observer) { o.OnSignalChange(street, from, to, at) })
}

// NotifyPhaseChange notifies all observers of a cycle position change
func (om *ObserverManager) NotifyPhaseChange(state CycleState, at time.Time) {
	om.each("OnPhaseChange", at, func(o Observer) { o.OnPhaseChange(state, at) })
}

// NotifyModeChange notifies all observers of a mode change
func (om *ObserverManager) NotifyModeChange(from, to OperatingMode, at time.Time) {
	om.eachExtended("OnModeChange", at, func(o ExtendedObserver) { o.OnModeChange(from, to, at) })
}

// NotifyPedestrian notifies all observers of a pedestrian head change
func (om *ObserverManager) NotifyPedestrian(street Street, signal WalkSignal, at time.Time) {
	om.eachExtended("OnPedestrian", at, func(o ExtendedObserver) { o.OnPedestrian(street, signal, at) })
}

// NotifyInput notifies all observers of a consumed input event
func (om *ObserverManager) NotifyInput(event Event, at time.Time) {
	om.eachExtended("OnInput", at, func(o ExtendedObserver) { o.OnInput(event, at) })
}

// NotifyFault notifies all observers of a fault
func (om *ObserverManager) NotifyFault(err error, at time.Time) {
	for _, observer := range om.snapshot() {
		if extObs, ok := observer.(ExtendedObserver); ok {
			func() {
				defer func() { recover() }()
				extObs.OnFault(err, at)
			}()
		}
	}
}

// NotifyStarted notifies all observers that the control loop started
func (om *ObserverManager) NotifyStarted(at time.Time) {
	om.eachExtended("OnStarted", at, func(o ExtendedObserver) { o.OnStarted(at) })
}

// NotifyStopped notifies all observers that the controller stopped
func (om *ObserverManager) NotifyStopped(at time.Time) {
	om.eachExtended("OnStopped", at, func(o ExtendedObserver) { o.OnStopped(at) })
}
