package observers

import (
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"

	"github.com/1thirty-five/signalctl"
)

// LatencySummary describes pedestrian request-to-walk latencies
type LatencySummary struct {
	Count  int
	Mean   time.Duration
	StdDev time.Duration
	Max    time.Duration
}

// MetricsObserver collects metrics about controller execution
type MetricsObserver struct {
	signalctl.BaseObserver

	transitionCounts map[string]int
	colorTime        map[signalctl.Street]map[signalctl.Color]time.Duration
	lastChange       map[signalctl.Street]time.Time
	lastColor        map[signalctl.Street]signalctl.Color
	modeCounts       map[signalctl.OperatingMode]int
	cycles           int
	faultCount       int
	requested        map[signalctl.Street]time.Time
	latencies        []float64
	mutex            sync.RWMutex
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	o := &MetricsObserver{}
	o.reset()
	return o
}

func (o *MetricsObserver) reset() {
	o.transitionCounts = make(map[string]int)
	o.colorTime = map[signalctl.Street]map[signalctl.Color]time.Duration{
		signalctl.StreetV: {},
		signalctl.StreetH: {},
	}
	o.lastChange = make(map[signalctl.Street]time.Time)
	o.lastColor = make(map[signalctl.Street]signalctl.Color)
	o.modeCounts = make(map[signalctl.OperatingMode]int)
	o.cycles = 0
	o.faultCount = 0
	o.requested = make(map[signalctl.Street]time.Time)
	o.latencies = nil
}

// OnSignalChange records colour transitions and the time spent in the previous colour
func (o *MetricsObserver) OnSignalChange(street signalctl.Street, from, to signalctl.Color, at time.Time) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.transitionCounts[fmt.Sprintf("%s:%s->%s", street, from, to)]++
	if since, ok := o.lastChange[street]; ok {
		o.colorTime[street][o.lastColor[street]] += at.Sub(since)
	}
	o.lastChange[street] = at
	o.lastColor[street] = to
}

// OnPhaseChange counts completed base cycles
func (o *MetricsObserver) OnPhaseChange(state signalctl.CycleState, at time.Time) {
	if state.Phase == signalctl.Phase1HFlowing && state.Sub == signalctl.SubGreen {
		o.mutex.Lock()
		o.cycles++
		o.mutex.Unlock()
	}
}

// OnModeChange counts entries per mode
func (o *MetricsObserver) OnModeChange(from, to signalctl.OperatingMode, at time.Time) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.modeCounts[to]++
}

// OnInput remembers when a crossing was first requested
func (o *MetricsObserver) OnInput(event signalctl.Event, at time.Time) {
	if event.Kind != signalctl.PedestrianRequest {
		return
	}
	o.mutex.Lock()
	defer o.mutex.Unlock()
	if _, pending := o.requested[event.Street]; !pending {
		o.requested[event.Street] = at
	}
}

// OnPedestrian records the request-to-walk latency
func (o *MetricsObserver) OnPedestrian(street signalctl.Street, signal signalctl.WalkSignal, at time.Time) {
	if signal != signalctl.Walk {
		return
	}
	o.mutex.Lock()
	defer o.mutex.Unlock()
	if since, pending := o.requested[street]; pending {
		o.latencies = append(o.latencies, at.Sub(since).Seconds())
		delete(o.requested, street)
	}
}

// OnFault counts faults
func (o *MetricsObserver) OnFault(err error, at time.Time) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.faultCount++
}

// GetTransitionCounts returns the number of times each colour transition
// occurred, keyed "V:red->green"
func (o *MetricsObserver) GetTransitionCounts() map[string]int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return lo.Assign(o.transitionCounts)
}

// GetColorTime returns the time a street spent in each colour, up to its
// last change
func (o *MetricsObserver) GetColorTime(street signalctl.Street) map[signalctl.Color]time.Duration {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return lo.Assign(o.colorTime[street])
}

// GetModeCounts returns how often each mode was entered
func (o *MetricsObserver) GetModeCounts() map[signalctl.OperatingMode]int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return lo.Assign(o.modeCounts)
}

// GetCycleCount returns the number of base cycles started
func (o *MetricsObserver) GetCycleCount() int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.cycles
}

// GetFaultCount returns the number of faults
func (o *MetricsObserver) GetFaultCount() int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.faultCount
}

// PedestrianLatency summarises how long pedestrians waited for Walk
func (o *MetricsObserver) PedestrianLatency() LatencySummary {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	if len(o.latencies) == 0 {
		return LatencySummary{}
	}
	summary := LatencySummary{
		Count: len(o.latencies),
		Mean:  signalctl.Seconds(stat.Mean(o.latencies, nil)),
		Max:   signalctl.Seconds(lo.Max(o.latencies)),
	}
	if len(o.latencies) > 1 {
		summary.StdDev = signalctl.Seconds(stat.StdDev(o.latencies, nil))
	}
	return summary
}

// Reset resets all metrics
func (o *MetricsObserver) Reset() {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.reset()
}
