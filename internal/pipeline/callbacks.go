//go:build cgo

package pipeline

import (
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// gstBuffer adapts *gst.Buffer to Buffer.
type gstBuffer struct {
	buf *gst.Buffer
}

func (b *gstBuffer) PTS() (time.Duration, bool) {
	// GST_CLOCK_TIME_NONE is all ones, which is negative as a Duration
	pts := time.Duration(b.buf.PresentationTimestamp())
	if pts < 0 {
		return 0, false
	}
	return pts, true
}

func (b *gstBuffer) Size() int {
	return int(b.buf.GetSize())
}

func (b *gstBuffer) Retain() func() {
	buf := b.buf
	buf.Ref()

	var once sync.Once
	return func() {
		once.Do(buf.Unref)
	}
}

// OnNewSample is called by GStreamer when a new buffer reaches the appsink
//
// This callback:
//  1. Pulls the sample from the appsink
//  2. Hands the buffer to the handler (which may sleep or retain it)
//  3. Drops the sample and buffer references once the handler returns
//  4. Returns FlowOK so the source keeps producing
//
// A nil sample means the sink is flushing or at EOS, which is reported
// upstream as FlowError.
func OnNewSample(sink *app.Sink, h Handler) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		slog.Warn("pipeline: failed to pull sample from appsink")
		return gst.FlowError
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		// Graceful degradation: skip the sample instead of failing the stream
		slog.Warn("pipeline: sample without buffer, skipping")
		releaseSample(sample)
		return gst.FlowOK
	}

	// The buffer goes back to the source pool when the handler returns,
	// unless it was retained.
	deliver(h, &gstBuffer{buf: buffer},
		func() { releaseBuffer(buffer) },
		func() { releaseSample(sample) },
	)

	return gst.FlowOK
}

// releaseBuffer drops the wrapper's reference now instead of waiting for
// its finalizer.
func releaseBuffer(buf *gst.Buffer) {
	runtime.SetFinalizer(buf, nil)
	buf.Unref()
}

func releaseSample(sample *gst.Sample) {
	runtime.SetFinalizer(sample, nil)
	sample.Unref()
}
