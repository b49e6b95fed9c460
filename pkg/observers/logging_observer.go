// Package observers provides observers for monitoring a running controller
package observers

import (
	"context"
	"log/slog"
	"time"

	"github.com/1thirty-five/signalctl"
)

// LogLevel represents the logging level
type LogLevel int

const (
	// LogError logs only faults
	LogError LogLevel = iota
	// LogWarning logs faults and mode changes
	LogWarning
	// LogInfo logs faults, mode changes, phases and pedestrian service
	LogInfo
	// LogDebug logs everything including every lamp change and input event
	LogDebug
)

func (l LogLevel) slog() slog.Level {
	switch l {
	case LogError:
		return slog.LevelError
	case LogWarning:
		return slog.LevelWarn
	case LogInfo:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// LoggingObserver writes controller events as structured log records
type LoggingObserver struct {
	signalctl.BaseObserver

	level  LogLevel
	logger *slog.Logger
}

// NewLoggingObserver creates a logging observer. Every record carries the
// controller id so several intersections can share one log.
func NewLoggingObserver(logger *slog.Logger, level LogLevel, controllerID string) *LoggingObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{
		level:  level,
		logger: logger.With(slog.String("controller", controllerID)),
	}
}

func (o *LoggingObserver) log(level LogLevel, msg string, at time.Time, args ...any) {
	if level > o.level {
		return
	}
	args = append(args, slog.Time("at", at))
	o.logger.Log(context.Background(), level.slog(), msg, args...)
}

// OnSignalChange logs lamp changes
func (o *LoggingObserver) OnSignalChange(street signalctl.Street, from, to signalctl.Color, at time.Time) {
	o.log(LogDebug, "signal change", at,
		slog.String("street", street.String()),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
		slog.String("lamps", to.Bits().String()),
	)
}

// OnPhaseChange logs cycle positions
func (o *LoggingObserver) OnPhaseChange(state signalctl.CycleState, at time.Time) {
	o.log(LogInfo, "phase change", at, slog.String("cycle", state.String()))
}

// OnModeChange logs mode changes
func (o *LoggingObserver) OnModeChange(from, to signalctl.OperatingMode, at time.Time) {
	o.log(LogWarning, "mode change", at,
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)
}

// OnPedestrian logs pedestrian head changes
func (o *LoggingObserver) OnPedestrian(street signalctl.Street, signal signalctl.WalkSignal, at time.Time) {
	o.log(LogInfo, "pedestrian signal", at,
		slog.String("street", street.String()),
		slog.String("signal", signal.String()),
	)
}

// OnInput logs consumed input events
func (o *LoggingObserver) OnInput(event signalctl.Event, at time.Time) {
	o.log(LogDebug, "input", at,
		slog.String("event", event.String()),
		slog.String("id", event.ID),
	)
}

// OnFault logs hardware faults and invariant violations
func (o *LoggingObserver) OnFault(err error, at time.Time) {
	o.log(LogError, "fault", at,
		slog.Any("error", err),
		slog.Int("code", int(signalctl.GetErrorCode(err))),
	)
}

// OnStarted logs controller startup
func (o *LoggingObserver) OnStarted(at time.Time) {
	o.log(LogWarning, "controller started", at)
}

// OnStopped logs the end of the shutdown sequence
func (o *LoggingObserver) OnStopped(at time.Time) {
	o.log(LogWarning, "controller stopped", at)
}
