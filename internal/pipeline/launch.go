package pipeline

import (
	"fmt"
	"strings"
)

// SinkName is the name given to the appsink in every launch string.
// The session looks the element up by this name to install callbacks.
const SinkName = "sink"

// Element factories required by each capture source.
const (
	ZedFactory   = "zedsrc"
	ArgusFactory = "nvarguscamerasrc"
)

// ZED SDK stream types for the NV12 zero-copy path
const (
	StreamTypeRawNV12       = 6
	StreamTypeRawNV12Stereo = 7
)

// ZedSource returns the zedsrc element description for the NV12
// zero-copy stream. Positional tracking and depth are disabled so the
// SDK only delivers images.
func ZedSource(streamType, resolution, fps int) string {
	return fmt.Sprintf(
		"%s stream-type=%d camera-resolution=%d camera-fps=%d "+
			"enable-positional-tracking=false depth-mode=0",
		ZedFactory, streamType, resolution, fps,
	)
}

// ArgusSource returns the nvarguscamerasrc element description.
func ArgusSource(sensorID int) string {
	return fmt.Sprintf("%s sensor-id=%d", ArgusFactory, sensorID)
}

// NVMMCaps returns NV12 caps in NVMM memory.
//
// framerate is only constrained when fps > 0 (zedsrc negotiates it from
// camera-fps, Argus needs it in caps).
func NVMMCaps(width, height, fps int) string {
	caps := fmt.Sprintf("video/x-raw(memory:NVMM),format=NV12,width=%d,height=%d", width, height)
	if fps > 0 {
		caps += fmt.Sprintf(",framerate=%d/1", fps)
	}
	return caps
}

// AppSink returns the appsink description.
//
// drop=false makes every buffer visible to the callback (or stalls the
// source when its pool is exhausted); drop=true with max-buffers=1 lets
// the sink discard old buffers instead.
func AppSink(name string, maxBuffers int, drop bool) string {
	return fmt.Sprintf(
		"appsink name=%s emit-signals=true drop=%t max-buffers=%d sync=false",
		name, drop, maxBuffers,
	)
}

// Chain links element descriptions with " ! ". Empty parts are skipped.
func Chain(parts ...string) string {
	links := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		links = append(links, p)
	}
	return strings.Join(links, " ! ")
}
