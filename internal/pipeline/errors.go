package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrLaunch wraps every failure that happens before the pipeline
	// reaches PLAYING: missing plugins, parse errors, state change refused.
	ErrLaunch = errors.New("pipeline: launch failed")

	// ErrCGORequired is returned when the binary was built without cgo
	// and therefore without GStreamer bindings. It is a launch failure.
	ErrCGORequired = fmt.Errorf("%w: GStreamer support requires cgo", ErrLaunch)
)

// ErrorCategory represents the classification of GStreamer errors for telemetry
type ErrorCategory int

const (
	// ErrCategoryPlugin indicates a missing element or plugin
	ErrCategoryPlugin ErrorCategory = iota
	// ErrCategoryMemory indicates buffer pool / NvBufSurface allocation failures
	ErrCategoryMemory
	// ErrCategoryNegotiation indicates caps negotiation failures
	ErrCategoryNegotiation
	// ErrCategoryResource indicates the camera could not be opened or is busy
	ErrCategoryResource
	// ErrCategoryUnknown indicates unclassified errors
	ErrCategoryUnknown
)

// String returns a human-readable string representation of the error category
func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryPlugin:
		return "plugin"
	case ErrCategoryMemory:
		return "memory"
	case ErrCategoryNegotiation:
		return "negotiation"
	case ErrCategoryResource:
		return "resource"
	default:
		return "unknown"
	}
}

// BusError is an ERROR message received on the pipeline bus while running.
type BusError struct {
	Category ErrorCategory
	Message  string
	Debug    string
}

func (e *BusError) Error() string {
	return fmt.Sprintf("pipeline error [%s]: %s", e.Category, e.Message)
}

var (
	pluginKeywords = []string{
		"no element",
		"no such element",
		"missing plugin",
		"could not create",
		"not found in registry",
	}
	memoryKeywords = []string{
		"nvbuf",
		"nvbufsurface",
		"buffer pool",
		"bufferpool",
		"out of memory",
		"allocation",
		"allocate",
		"dmabuf",
	}
	negotiationKeywords = []string{
		"not negotiated",
		"not-negotiated",
		"negotiation",
		"caps",
		"invalid format",
		"unsupported format",
	}
	resourceKeywords = []string{
		"busy",
		"no cameras available",
		"camera",
		"sensor",
		"argus",
		"failed to open",
		"could not open",
		"resource",
		"timeout",
		"device",
	}
)

// ClassifyError categorizes an error message (and its debug string) for
// telemetry. Classification is keyword based; the more specific
// categories are checked first.
func ClassifyError(message, debug string) ErrorCategory {
	combined := strings.ToLower(message + " " + debug)
	switch {
	case strings.TrimSpace(combined) == "":
		return ErrCategoryUnknown
	case containsAny(combined, pluginKeywords):
		return ErrCategoryPlugin
	case containsAny(combined, memoryKeywords):
		return ErrCategoryMemory
	case containsAny(combined, negotiationKeywords):
		return ErrCategoryNegotiation
	case containsAny(combined, resourceKeywords):
		return ErrCategoryResource
	default:
		return ErrCategoryUnknown
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
