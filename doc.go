// Package bufferhold measures how a zero-copy NV12 camera pipeline reacts
// when the consumer holds on to its buffers.
//
// A test builds a GStreamer pipeline (zedsrc or nvarguscamerasrc, an NVMM
// NV12 caps filter and an appsink), then applies artificial backpressure
// from the appsink callback while recording PTS and receive times. Gaps in
// the PTS sequence estimate how many frames the source dropped because its
// buffer pool ran dry.
//
// # Quick Start
//
//	cfg := bufferhold.DefaultConfig()
//	cfg.HoldTimeMS = 50
//	cfg.NumBuffers = 300
//
//	test, err := bufferhold.NewTest(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	report, err := test.Run(ctx)
//	if errors.Is(err, bufferhold.ErrLaunch) {
//	    log.Fatal(err)
//	}
//	report.WriteSummary(os.Stdout)
//
// # Hold Strategies
//
//   - Hold time: the callback sleeps HoldTimeMS before returning. The
//     streaming thread is blocked, so this simulates slow downstream
//     processing.
//   - Hold buffers: the callback keeps a reference to the last HoldBuffers
//     buffers. They cannot return to the source's pool until they are
//     evicted or the test ends, which simulates caching consumers.
//
// Both strategies can be combined.
//
// # Gap Detection
//
// Consecutive buffers whose PTS differ by more than 1.5 frame intervals
// count as a gap; int(interval/expected) - 1 frames are added to the
// estimated drop count. Buffers without a PTS reset the comparison.
//
// # Requirements
//
// The pipeline is driven through go-gst and needs cgo plus a GStreamer
// runtime with the camera plugin installed. Binaries built without cgo
// fail every run with an error wrapping ErrLaunch.
package bufferhold
