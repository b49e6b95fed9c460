package signalctl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_RejectsInvalidPlan(t *testing.T) {
	plan := DefaultPlan()
	plan.VRed = 10 * time.Second

	sink := NewRecordingSink(NewVirtualClock())
	controller, err := NewController(plan, sink)
	require.Error(t, err)
	assert.Nil(t, controller)
	assert.True(t, IsConfigurationError(err))
	assert.Equal(t, ErrCodeInvalidConfiguration, GetErrorCode(err))
	assert.Empty(t, sink.Entries(), "nothing is asserted before the plan is valid")
}

func TestController_RequiresSink(t *testing.T) {
	_, err := NewController(DefaultPlan(), nil)
	assert.True(t, IsConfigurationError(err))
}

func TestController_Lifecycle(t *testing.T) {
	clock := NewVirtualClock()
	sink := NewRecordingSink(clock)
	script := NewScriptedInput(clock)
	observer := NewRecordingObserver()

	controller, err := NewController(DefaultPlan(), sink,
		WithClock(clock),
		WithInput(script),
		WithObserver(observer),
	)
	require.NoError(t, err)
	assert.NotEmpty(t, controller.ID())
	assert.Equal(t, DefaultPlan(), controller.Plan())

	assert.ErrorIs(t, controller.Wait(), ErrNotRunning)
	assert.False(t, controller.IsRunning())

	var running bool
	script.Do(sec(5), func() { running = controller.IsRunning() })
	script.Do(sec(30), controller.RequestShutdown)

	require.NoError(t, controller.Start(context.Background()))
	assert.ErrorIs(t, controller.Start(context.Background()), ErrAlreadyRunning)

	require.NoError(t, controller.Wait())
	<-controller.Done()

	assert.True(t, running)
	assert.False(t, controller.IsRunning())
	assert.False(t, controller.Status().Running)
	assert.Equal(t, 1, observer.StoppedCount())

	v, h := controller.Colors()
	assert.Equal(t, Off, v)
	assert.Equal(t, Off, h)
}

func TestController_RequestsFromOtherGoroutines(t *testing.T) {
	clock := NewVirtualClock().StopAt(sec(40))
	sink := NewRecordingSink(clock)
	script := NewScriptedInput(clock)
	observer := NewRecordingObserver()

	controller, err := NewController(DefaultPlan(), sink, WithClock(clock), WithInput(script))
	require.NoError(t, err)
	controller.AddObserver(observer)

	script.
		Do(sec(1), func() { controller.RequestPedestrian(StreetV) }).
		Do(sec(14), func() { controller.TriggerEmergency() }).
		Do(sec(20), func() {
			_, err := controller.RequestMode(ModeNight)
			assert.True(t, IsTransitionError(err), "emergency only hands back to normal")
			changed, err := controller.RequestMode(ModeNormal)
			assert.NoError(t, err)
			assert.True(t, changed)
		}).
		Do(sec(25), func() {
			changed, err := controller.RequestMode(ModeNight)
			assert.NoError(t, err)
			assert.True(t, changed)
		})

	require.NoError(t, controller.Start(context.Background()))
	require.NoError(t, controller.Wait())

	walks := walkEntries(sink.WalkEntries(), StreetV)
	require.NotEmpty(t, walks)
	assert.Equal(t, WalkEntry{At: sec(1.1), Street: StreetV, Signal: Walk}, walks[0], "queued request is picked up at the next poll")

	modes := observer.ModeChanges()
	require.Len(t, modes, 3)
	assert.Equal(t, ModeEmergency, modes[0].To)
	assert.Equal(t, sec(14.1), modes[0].At.Sub(clock.Start()))
	assert.Equal(t, ModeNormal, modes[1].To)
	assert.Equal(t, ModeNight, modes[2].To)

	status := controller.Status()
	assert.Equal(t, ModeNight, status.Mode)
	assert.False(t, status.EmergencyLatched)
}

func TestController_EventsQueue(t *testing.T) {
	clock := NewVirtualClock().StopAt(sec(20))
	sink := NewRecordingSink(clock)
	controller, err := NewController(DefaultPlan(), sink, WithClock(clock))
	require.NoError(t, err)

	controller.Events().RequestMode(ModeMaintenance)

	require.NoError(t, controller.Start(context.Background()))
	require.NoError(t, controller.Wait())

	assert.Equal(t, ModeMaintenance, controller.Status().Mode)
	v, h := sink.SampleAt(sec(15))
	assert.Equal(t, ColorBits(0), v)
	assert.Equal(t, ColorBits(0), h)
}

func TestController_RejectsUnknownTransition(t *testing.T) {
	controller, err := NewController(DefaultPlan(), NewRecordingSink(NewVirtualClock()))
	require.NoError(t, err)

	_, err = controller.RequestMode(OperatingMode(42))
	require.Error(t, err)
	assert.True(t, IsTransitionError(err))
	assert.Equal(t, ErrCodeTransitionNotAllowed, GetErrorCode(err))
	assert.False(t, errors.Is(err, ErrNotRunning))
}

func TestController_RemoveObserver(t *testing.T) {
	clock := NewVirtualClock().StopAt(sec(5))
	observer := NewRecordingObserver()
	controller, err := NewController(DefaultPlan(), NewRecordingSink(clock), WithClock(clock), WithObserver(observer))
	require.NoError(t, err)
	controller.RemoveObserver(observer)

	require.NoError(t, controller.Start(context.Background()))
	require.NoError(t, controller.Wait())
	assert.Empty(t, observer.Signals)
}
