package pipeline

import (
	"context"
	"time"
)

// Buffer is a buffer delivered to the appsink.
//
// Implementations are only valid for the duration of the OnBuffer call,
// except for the release func returned by Retain.
type Buffer interface {
	// PTS returns the presentation timestamp, ok=false when the buffer
	// carries none (GST_CLOCK_TIME_NONE).
	PTS() (pts time.Duration, ok bool)
	// Size is the buffer size in bytes. For NVMM memory this is the
	// surface descriptor, not the image.
	Size() int
	// Retain takes an extra reference on the underlying buffer so it is
	// not returned to the source's pool. The returned func drops that
	// reference; calling it more than once is a no-op.
	Retain() (release func())
}

// EventKind identifies the bus message behind an Event.
type EventKind int

const (
	EventEOS EventKind = iota
	EventError
	EventWarning
	EventQoS
	EventStateChanged
)

func (k EventKind) String() string {
	switch k {
	case EventEOS:
		return "eos"
	case EventError:
		return "error"
	case EventWarning:
		return "warning"
	case EventQoS:
		return "qos"
	case EventStateChanged:
		return "state_changed"
	default:
		return "unknown"
	}
}

// Event is a bus message relevant to the harness.
type Event struct {
	Kind EventKind
	At   time.Time

	// Error and Warning
	Message  string
	Debug    string
	Category ErrorCategory

	// QoS statistics reported by the element that dropped
	Source    string
	Processed uint64
	Dropped   uint64

	// StateChanged (pipeline only)
	From string
	To   string
}

// Handler receives buffers from the streaming thread and events from
// the bus monitor. OnBuffer blocks the streaming thread for as long as
// it runs.
type Handler interface {
	OnBuffer(buf Buffer)
	OnEvent(ev Event)
}

// Runner is a capture pipeline that can be run to completion.
type Runner interface {
	// Launch returns the pipeline description.
	Launch() string
	// Run blocks until ctx is cancelled, EOS or an error. It returns nil
	// on cancellation and EOS.
	Run(ctx context.Context, h Handler) error
}

// Checker is implemented by captures that can verify their elements are
// installed without starting the pipeline.
type Checker interface {
	Check() error
}
