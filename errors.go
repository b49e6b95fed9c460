package signalctl

import (
	"errors"
	"fmt"
)

// ErrorCode represents specific error conditions in the controller
type ErrorCode int

const (
	// No error occurred
	ErrCodeNone ErrorCode = iota
	// Timing configuration is invalid or contradictory
	ErrCodeInvalidConfiguration
	// Output sink failed to drive a signal head
	ErrCodeHardwareFault
	// Both streets would have been released at once
	ErrCodeInvariantViolation
	// Mode transition is not allowed from the current mode
	ErrCodeTransitionNotAllowed
	// Controller lifecycle misuse
	ErrCodeLifecycle
)

var (
	// ErrAlreadyRunning is returned by Start on a running controller
	ErrAlreadyRunning = errors.New("controller is already running")

	// ErrNotRunning is returned when an operation needs a running controller
	ErrNotRunning = errors.New("controller is not running")
)

// ConfigurationError represents an invalid timing value. It is fatal at startup.
type ConfigurationError struct {
	Field string
	Issue string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Field, e.Issue)
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(field, issue string) *ConfigurationError {
	return &ConfigurationError{
		Field: field,
		Issue: issue,
	}
}

// HardwareFault reports a failed write to the output sink. The controller
// keeps its logical state and does not retry.
type HardwareFault struct {
	Street      Street
	Bits        ColorBits
	OriginalErr error
}

func (e *HardwareFault) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("hardware fault on street %s asserting %s: %v", e.Street, e.Bits, e.OriginalErr)
	}
	return fmt.Sprintf("hardware fault on street %s asserting %s", e.Street, e.Bits)
}

func (e *HardwareFault) Unwrap() error {
	return e.OriginalErr
}

// NewHardwareFault creates a new hardware fault
func NewHardwareFault(street Street, bits ColorBits, err error) *HardwareFault {
	return &HardwareFault{
		Street:      street,
		Bits:        bits,
		OriginalErr: err,
	}
}

// InvariantViolation is raised when a command would release both streets.
// The controller halts to all-red when it sees one.
type InvariantViolation struct {
	V      Color
	H      Color
	Mode   OperatingMode
	Reason string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation in %s mode [V=%s H=%s]: %s", e.Mode, e.V, e.H, e.Reason)
}

// NewInvariantViolation creates a new invariant violation
func NewInvariantViolation(mode OperatingMode, v, h Color, reason string) *InvariantViolation {
	return &InvariantViolation{
		V:      v,
		H:      h,
		Mode:   mode,
		Reason: reason,
	}
}

// TransitionError represents a rejected mode transition
type TransitionError struct {
	Code   ErrorCode
	From   OperatingMode
	To     OperatingMode
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition error [%s->%s]: %s", e.From, e.To, e.Reason)
}

// NewTransitionNotAllowedError creates a new transition not allowed error
func NewTransitionNotAllowedError(from, to OperatingMode, reason string) *TransitionError {
	return &TransitionError{
		Code:   ErrCodeTransitionNotAllowed,
		From:   from,
		To:     to,
		Reason: reason,
	}
}

// IsConfigurationError checks if an error is or wraps a ConfigurationError
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsHardwareFault checks if an error is or wraps a HardwareFault
func IsHardwareFault(err error) bool {
	var target *HardwareFault
	return errors.As(err, &target)
}

// IsInvariantViolation checks if an error is or wraps an InvariantViolation
func IsInvariantViolation(err error) bool {
	var target *InvariantViolation
	return errors.As(err, &target)
}

// IsTransitionError checks if an error is or wraps a TransitionError
func IsTransitionError(err error) bool {
	var target *TransitionError
	return errors.As(err, &target)
}

// GetErrorCode returns the error code for known error types
func GetErrorCode(err error) ErrorCode {
	switch {
	case err == nil:
		return ErrCodeNone
	case IsConfigurationError(err):
		return ErrCodeInvalidConfiguration
	case IsHardwareFault(err):
		return ErrCodeHardwareFault
	case IsInvariantViolation(err):
		return ErrCodeInvariantViolation
	case IsTransitionError(err):
		return ErrCodeTransitionNotAllowed
	case errors.Is(err, ErrAlreadyRunning), errors.Is(err, ErrNotRunning):
		return ErrCodeLifecycle
	default:
		return ErrCodeNone
	}
}
