package signalctl

import "sync"

// OutputSink drives the lamps. Assert is called once per colour transition
// with the complete bit set for the head; lamps not in bits must go dark.
type OutputSink interface {
	Assert(street Street, bits ColorBits) error
}

// WalkSink is implemented by sinks that also drive pedestrian heads
type WalkSink interface {
	AssertWalk(street Street, signal WalkSignal) error
}

// SinkFunc adapts a function to OutputSink
type SinkFunc func(street Street, bits ColorBits) error

// Assert implements OutputSink
func (f SinkFunc) Assert(street Street, bits ColorBits) error {
	return f(street, bits)
}

// SignalHead owns the displayed colour of one street
type SignalHead struct {
	street Street
	sink   OutputSink
	color  Color
	mutex  sync.Mutex
}

// NewSignalHead creates a dark head for street
func NewSignalHead(street Street, sink OutputSink) *SignalHead {
	return &SignalHead{
		street: street,
		sink:   sink,
		color:  Off,
	}
}

// Street returns the street the head belongs to
func (h *SignalHead) Street() Street {
	return h.street
}

// Color returns the last commanded colour
func (h *SignalHead) Color() Color {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.color
}

// Set displays color. The logical colour is updated even when the sink
// fails, the failure is returned as a *HardwareFault.
func (h *SignalHead) Set(color Color) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.color = color
	bits := color.Bits()
	if err := h.sink.Assert(h.street, bits); err != nil {
		return NewHardwareFault(h.street, bits, err)
	}
	return nil
}

// SetWalk drives the pedestrian head across the street if the sink has one
func (h *SignalHead) SetWalk(signal WalkSignal) error {
	ws, ok := h.sink.(WalkSink)
	if !ok {
		return nil
	}
	if err := ws.AssertWalk(h.street, signal); err != nil {
		return NewHardwareFault(h.street, 0, err)
	}
	return nil
}
