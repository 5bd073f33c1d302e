package bufferhold

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	// maxGapDetails bounds the gap list printed in the summary
	maxGapDetails = 10
	// degradedRatio flags runs below 90% of the target frame rate
	degradedRatio = 0.9
)

var (
	ruleHeavy = strings.Repeat("=", 70)
	ruleLight = strings.Repeat("-", 70)
)

// ErrorInfo is a pipeline error recorded in a report
type ErrorInfo struct {
	Category string `json:"category" yaml:"category"`
	Message  string `json:"message" yaml:"message"`
	Debug    string `json:"debug,omitempty" yaml:"debug,omitempty"`
}

// Report is the outcome of a run
type Report struct {
	RunID     string    `json:"run_id" yaml:"run_id"`
	StartedAt time.Time `json:"started_at" yaml:"started_at"`
	Config    Config    `json:"config" yaml:"config"`
	Launch    string    `json:"launch" yaml:"launch"`
	// Width and Height are the sensor resolution (not doubled for stereo)
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`

	Duration         time.Duration `json:"duration" yaml:"duration"`
	Buffers          uint64        `json:"buffers" yaml:"buffers"`
	ExpectedFrames   int           `json:"expected_frames" yaml:"expected_frames"`
	ActualFPS        float64       `json:"actual_fps" yaml:"actual_fps"`
	Gaps             []Gap         `json:"gaps" yaml:"gaps"`
	EstimatedDropped uint64        `json:"estimated_dropped" yaml:"estimated_dropped"`
	DropRate         float64       `json:"drop_rate_pct" yaml:"drop_rate_pct"`
	Intervals        IntervalStats `json:"intervals" yaml:"intervals"`

	PeakHeld int    `json:"peak_held" yaml:"peak_held"`
	Evicted  uint64 `json:"evicted" yaml:"evicted"`

	QoSMessages uint64   `json:"qos_messages" yaml:"qos_messages"`
	QoSDropped  uint64   `json:"qos_dropped" yaml:"qos_dropped"`
	Warnings    []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`

	StopReason string     `json:"stop_reason" yaml:"stop_reason"`
	Error      *ErrorInfo `json:"error,omitempty" yaml:"error,omitempty"`
	Restarts   uint32     `json:"restarts" yaml:"restarts"`
}

// Degraded reports whether the achieved frame rate fell below 90% of the
// target.
func (r *Report) Degraded() bool {
	return r.ActualFPS < float64(r.Config.FPS)*degradedRatio
}

// PinnedBytes is the nominal NV12 memory kept alive by held buffers.
func (r *Report) PinnedBytes() uint64 {
	return uint64(r.Config.HoldBuffers) * r.Config.FrameBytes()
}

// WriteBanner prints the test header for cfg
func WriteBanner(w io.Writer, cfg Config) {
	width, height := cfg.Resolution.Dimensions()
	mode := "mono"
	if cfg.Stereo {
		mode = "stereo SBS"
	}
	numBuffers := "unlimited"
	if cfg.NumBuffers > 0 {
		numBuffers = fmt.Sprintf("%d", cfg.NumBuffers)
	}

	fmt.Fprintln(w, ruleHeavy)
	fmt.Fprintln(w, "Buffer Hold Test - Zero-Copy NV12 Analysis")
	fmt.Fprintln(w, ruleHeavy)
	fmt.Fprintf(w, "  Source:       %s\n", cfg.Source)
	fmt.Fprintf(w, "  Resolution:   (%d, %d) (%s)\n", width, height, mode)
	fmt.Fprintf(w, "  FPS:          %d\n", cfg.FPS)
	fmt.Fprintf(w, "  Hold time:    %dms per buffer\n", cfg.HoldTimeMS)
	fmt.Fprintf(w, "  Hold buffers: %d (keep last N in memory)\n", cfg.HoldBuffers)
	fmt.Fprintf(w, "  Num buffers:  %s\n", numBuffers)
	fmt.Fprintln(w, ruleHeavy)
}

// WriteSummary prints the end-of-run summary and analysis
func (r *Report) WriteSummary(w io.Writer) {
	cfg := r.Config

	fmt.Fprintln(w)
	fmt.Fprintln(w, ruleHeavy)
	fmt.Fprintln(w, "Test Summary")
	fmt.Fprintln(w, ruleHeavy)

	if r.Buffers == 0 {
		fmt.Fprintln(w, "  No buffers received!")
		return
	}

	fmt.Fprintf(w, "  Duration:         %.2fs\n", r.Duration.Seconds())
	fmt.Fprintf(w, "  Buffers received: %d\n", r.Buffers)
	fmt.Fprintf(w, "  Expected frames:  %d (at %d fps)\n", r.ExpectedFrames, cfg.FPS)
	fmt.Fprintf(w, "  Actual FPS:       %.2f\n", r.ActualFPS)
	fmt.Fprintf(w, "  PTS gaps:         %d (est. %d dropped frames)\n", len(r.Gaps), r.EstimatedDropped)

	if cfg.HoldTimeMS > 0 {
		theoreticalMax := 1000 / float64(cfg.HoldTimeMS)
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  Hold time impact:")
		fmt.Fprintf(w, "    Hold time:       %dms\n", cfg.HoldTimeMS)
		fmt.Fprintf(w, "    Theoretical max: %.1f fps\n", theoreticalMax)
		fmt.Fprintf(w, "    Achieved:        %.1f fps\n", r.ActualFPS)

		if r.Degraded() {
			fmt.Fprintln(w)
			fmt.Fprintln(w, "  ⚠ Frame rate degraded! Buffer hold time is causing backpressure.")
			fmt.Fprintf(w, "    The source cannot sustain %d fps with %dms hold time.\n", cfg.FPS, cfg.HoldTimeMS)
		}
	}

	if cfg.HoldBuffers > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  Buffer holding impact:")
		fmt.Fprintf(w, "    Max held:        %d buffers (peak %d)\n", cfg.HoldBuffers, r.PeakHeld)
		fmt.Fprintln(w, "    Memory impact:   Buffers kept in NVMM until dequeued")
		fmt.Fprintf(w, "    Pinned (NV12):   ~%s\n", humanize.IBytes(r.PinnedBytes()))
	}

	if len(r.Gaps) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  PTS Gap Details (frame drops):")
		for i, g := range r.Gaps {
			if i == maxGapDetails {
				break
			}
			fmt.Fprintf(w, "    At buffer %d: %d frames dropped (interval: %.1fms)\n",
				g.Buffer, g.Frames, float64(g.Interval)/float64(time.Millisecond))
		}
		if len(r.Gaps) > maxGapDetails {
			fmt.Fprintf(w, "    ... and %d more gaps\n", len(r.Gaps)-maxGapDetails)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, ruleLight)
	fmt.Fprintln(w, "Analysis")
	fmt.Fprintln(w, ruleLight)

	if r.EstimatedDropped > 0 {
		fmt.Fprintf(w, "  Drop rate: %.1f%%\n", r.DropRate)
		fmt.Fprintln(w)
		if cfg.Source == SourceZed {
			fmt.Fprintln(w, "  ZED SDK zero-copy behavior:")
			fmt.Fprintln(w, "    When buffers aren't returned quickly, the SDK's internal")
			fmt.Fprintln(w, "    buffer pool may become exhausted. The SDK will either:")
			fmt.Fprintln(w, "    - Wait for buffers (causing latency)")
			fmt.Fprintln(w, "    - Drop frames (if configured to do so)")
			fmt.Fprintln(w, "    - Return errors if pool is fully exhausted")
		} else {
			fmt.Fprintln(w, "  nvarguscamerasrc behavior:")
			fmt.Fprintln(w, "    Argus uses a fixed buffer pool. When exhausted:")
			fmt.Fprintln(w, "    - New captures are blocked until a buffer is returned")
			fmt.Fprintln(w, "    - This can cause frame drops at the ISP level")
			fmt.Fprintln(w, "    - May see 'nvbuf_utils' warnings in the console")
		}
	} else {
		fmt.Fprintln(w, "  No frame drops detected - buffer pool is sufficient for this hold time.")
	}

	if iv := r.Intervals; iv.FPSMean > 0 && iv.FPSMax > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  Delivery: %.1f fps (min %.1f, max %.1f, stddev %.2f), jitter %.1fms mean / %.1fms max\n",
			iv.FPSMean, iv.FPSMin, iv.FPSMax, iv.FPSStdDev, iv.JitterMean*1000, iv.JitterMax*1000)
	}
	if r.QoSMessages > 0 {
		fmt.Fprintf(w, "  QoS messages: %d (last reported dropped: %d)\n", r.QoSMessages, r.QoSDropped)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, ruleHeavy)
}
