package bufferhold

import (
	"errors"
	"fmt"

	"github.com/e7canasta/orion-care-sensor/modules/buffer-hold/internal/analysis"
	"github.com/e7canasta/orion-care-sensor/modules/buffer-hold/internal/pipeline"
)

// Source selects the camera element at the head of the pipeline
type Source string

const (
	// SourceZed uses the ZED SDK element (zedsrc) in NV12 zero-copy mode
	SourceZed Source = "zedsrc"
	// SourceArgus uses nvarguscamerasrc directly, without the ZED SDK
	SourceArgus Source = "argus"
)

// Resolution is the ZED camera-resolution enum
type Resolution int

const (
	// ResHD2K represents 2208x1242
	ResHD2K Resolution = iota
	// ResHD1080 represents 1920x1080
	ResHD1080
	// ResHD1200 represents 1920x1200 (ZED X native)
	ResHD1200
	// ResHD720 represents 1280x720
	ResHD720
	// ResVGA represents 672x376
	ResVGA
	// ResWVGA represents 640x480 (Argus)
	ResWVGA
)

// Dimensions returns the width and height for the resolution
func (r Resolution) Dimensions() (width, height int) {
	switch r {
	case ResHD2K:
		return 2208, 1242
	case ResHD1080:
		return 1920, 1080
	case ResHD1200:
		return 1920, 1200
	case ResHD720:
		return 1280, 720
	case ResVGA:
		return 672, 376
	case ResWVGA:
		return 640, 480
	default:
		// Unknown enum values still reach zedsrc as-is; caps use the native size
		return 1920, 1200
	}
}

// String returns a human-readable string representation of the resolution
func (r Resolution) String() string {
	switch r {
	case ResHD2K:
		return "HD2K"
	case ResHD1080:
		return "HD1080"
	case ResHD1200:
		return "HD1200"
	case ResHD720:
		return "HD720"
	case ResVGA:
		return "VGA"
	case ResWVGA:
		return "WVGA"
	default:
		return fmt.Sprintf("Resolution(%d)", int(r))
	}
}

// Config describes one test run
type Config struct {
	// Source is the camera element (zedsrc or argus)
	Source Source `json:"source" yaml:"source" toml:"source"`
	// HoldTimeMS is how long each buffer is held inside the callback
	HoldTimeMS int `json:"hold_time_ms" yaml:"hold_time_ms" toml:"hold_time_ms"`
	// HoldBuffers keeps references to the last N buffers (0 = disabled)
	HoldBuffers int `json:"hold_buffers" yaml:"hold_buffers" toml:"hold_buffers"`
	// NumBuffers stops the run after N buffers (0 = unlimited)
	NumBuffers int `json:"num_buffers" yaml:"num_buffers" toml:"num_buffers"`
	// Resolution is the camera-resolution enum
	Resolution Resolution `json:"resolution" yaml:"resolution" toml:"resolution"`
	// FPS is the target frame rate
	FPS int `json:"fps" yaml:"fps" toml:"fps"`
	// Stereo requests side-by-side NV12 (zedsrc only)
	Stereo bool `json:"stereo" yaml:"stereo" toml:"stereo"`
	// SensorID selects the Argus sensor
	SensorID int `json:"sensor_id" yaml:"sensor_id" toml:"sensor_id"`
	// AppsinkDrop lets the appsink drop old buffers when its queue is full
	AppsinkDrop bool `json:"appsink_drop" yaml:"appsink_drop" toml:"appsink_drop"`
	// AppsinkMaxBuffers is the appsink queue length
	AppsinkMaxBuffers int `json:"appsink_max_buffers" yaml:"appsink_max_buffers" toml:"appsink_max_buffers"`
	// StartRetries restarts a pipeline that fails before the first buffer
	StartRetries int `json:"start_retries" yaml:"start_retries" toml:"start_retries"`
}

// DefaultConfig returns the configuration used when nothing is specified
func DefaultConfig() Config {
	return Config{
		Source:            SourceZed,
		HoldTimeMS:        50,
		HoldBuffers:       0,
		NumBuffers:        0,
		Resolution:        ResHD1200,
		FPS:               60,
		AppsinkMaxBuffers: 1,
	}
}

// Validate checks the configuration
//
// Returns the first problem found:
//   - stereo requires zedsrc
//   - hold time, hold buffers, buffer limit, appsink queue and retries must be >= 0
//   - FPS must be > 0
func (c Config) Validate() error {
	switch c.Source {
	case SourceZed, SourceArgus:
	default:
		return fmt.Errorf("unknown source %q (must be zedsrc or argus)", c.Source)
	}
	if c.Stereo && c.Source != SourceZed {
		return errors.New("stereo mode is only supported with zedsrc")
	}
	if c.HoldTimeMS < 0 {
		return errors.New("hold-time must be >= 0")
	}
	if c.HoldBuffers < 0 {
		return errors.New("hold-buffers must be >= 0")
	}
	if c.NumBuffers < 0 {
		return errors.New("num-buffers must be >= 0")
	}
	if c.FPS <= 0 {
		return fmt.Errorf("invalid fps %d (must be > 0)", c.FPS)
	}
	if c.AppsinkMaxBuffers < 0 {
		return errors.New("appsink-max-buffers must be >= 0")
	}
	if c.StartRetries < 0 {
		return errors.New("start-retries must be >= 0")
	}
	return nil
}

// Dimensions returns the frame size, with the width doubled for stereo
// side-by-side output
func (c Config) Dimensions() (width, height int) {
	width, height = c.Resolution.Dimensions()
	if c.Stereo {
		width *= 2
	}
	return width, height
}

// Launch returns the GStreamer pipeline description
func (c Config) Launch() string {
	width, height := c.Dimensions()

	var source, caps string
	switch c.Source {
	case SourceArgus:
		source = pipeline.ArgusSource(c.SensorID)
		caps = pipeline.NVMMCaps(width, height, c.FPS)
	default:
		streamType := pipeline.StreamTypeRawNV12
		if c.Stereo {
			streamType = pipeline.StreamTypeRawNV12Stereo
		}
		source = pipeline.ZedSource(streamType, int(c.Resolution), c.FPS)
		caps = pipeline.NVMMCaps(width, height, 0)
	}

	return pipeline.Chain(
		source,
		caps,
		pipeline.AppSink(pipeline.SinkName, c.AppsinkMaxBuffers, c.AppsinkDrop),
	)
}

// requires lists the element factories the launch string depends on
func (c Config) requires() []string {
	if c.Source == SourceArgus {
		return []string{pipeline.ArgusFactory, "appsink"}
	}
	return []string{pipeline.ZedFactory, "appsink"}
}

// FrameBytes is the nominal NV12 size of one frame (12 bits per pixel).
// NVMM buffers carry a surface descriptor, so this is the memory pinned
// on the device, not the mapped size.
func (c Config) FrameBytes() uint64 {
	width, height := c.Dimensions()
	return uint64(width) * uint64(height) * 3 / 2
}

// Pipeline types re-exported for library users.
type (
	// Buffer is a buffer delivered to the appsink
	Buffer = pipeline.Buffer
	// Event is a pipeline bus message
	Event = pipeline.Event
	// EventKind identifies the bus message behind an Event
	EventKind = pipeline.EventKind
	// Handler receives buffers and bus events from a Capture
	Handler = pipeline.Handler
	// Capture runs a pipeline and feeds a Handler
	Capture = pipeline.Runner
	// BusError is a runtime error posted on the pipeline bus
	BusError = pipeline.BusError
	// Gap is a PTS discontinuity
	Gap = analysis.Gap
	// IntervalStats describes receive-side delivery timing
	IntervalStats = analysis.IntervalStats
)

const (
	EventEOS          = pipeline.EventEOS
	EventError        = pipeline.EventError
	EventWarning      = pipeline.EventWarning
	EventQoS          = pipeline.EventQoS
	EventStateChanged = pipeline.EventStateChanged
)

// ErrLaunch wraps every failure that happens before buffers can flow
// (missing plugin, parse error, pipeline refused to start).
var ErrLaunch = pipeline.ErrLaunch
