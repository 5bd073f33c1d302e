package bufferhold

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func sampleReport() *Report {
	cfg := DefaultConfig()
	cfg.NumBuffers = 300
	cfg.HoldBuffers = 3

	return &Report{
		RunID:            "3f0c7f5e-1d8a-4a39-9d57-0d6a4a0c2a11",
		StartedAt:        time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		Config:           cfg,
		Launch:           cfg.Launch(),
		Width:            1920,
		Height:           1200,
		Duration:         15 * time.Second,
		Buffers:          300,
		ExpectedFrames:   900,
		ActualFPS:        20,
		EstimatedDropped: 0,
		PeakHeld:         3,
		StopReason:       StopLimit,
	}
}

func TestWriteBanner(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Stereo = true

	var buf bytes.Buffer
	WriteBanner(&buf, cfg)
	out := buf.String()

	for _, want := range []string{
		"Buffer Hold Test - Zero-Copy NV12 Analysis",
		"  Source:       zedsrc\n",
		"  Resolution:   (1920, 1200) (stereo SBS)\n",
		"  FPS:          60\n",
		"  Hold time:    50ms per buffer\n",
		"  Hold buffers: 0 (keep last N in memory)\n",
		"  Num buffers:  unlimited\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("banner missing %q:\n%s", want, out)
		}
	}
}

func TestReport_WriteSummary(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(r *Report)
		want    []string
		notWant []string
	}{
		{
			name:   "no buffers",
			modify: func(r *Report) { r.Buffers = 0 },
			want:   []string{"  No buffers received!\n"},
			notWant: []string{
				"Analysis",
				"Duration:",
			},
		},
		{
			name:   "degraded by hold time",
			modify: func(r *Report) {},
			want: []string{
				"  Duration:         15.00s\n",
				"  Buffers received: 300\n",
				"  Expected frames:  900 (at 60 fps)\n",
				"  Actual FPS:       20.00\n",
				"  PTS gaps:         0 (est. 0 dropped frames)\n",
				"    Theoretical max: 20.0 fps\n",
				"    Achieved:        20.0 fps\n",
				"⚠ Frame rate degraded!",
				"    The source cannot sustain 60 fps with 50ms hold time.\n",
				"    Max held:        3 buffers (peak 3)\n",
				"    Pinned (NV12):   ~9.9 MiB\n",
				"  No frame drops detected - buffer pool is sufficient for this hold time.\n",
			},
		},
		{
			name: "no hold time section when zero",
			modify: func(r *Report) {
				r.Config.HoldTimeMS = 0
				r.Config.HoldBuffers = 0
				r.ActualFPS = 59.8
			},
			notWant: []string{"Hold time impact", "Buffer holding impact", "degraded"},
		},
		{
			name: "zedsrc drops",
			modify: func(r *Report) {
				r.Gaps = make([]Gap, 12)
				for i := range r.Gaps {
					r.Gaps[i] = Gap{Buffer: uint64(10 * (i + 1)), Frames: 2, Interval: 50 * time.Millisecond}
				}
				r.EstimatedDropped = 24
				r.DropRate = 7.4
			},
			want: []string{
				"  PTS gaps:         12 (est. 24 dropped frames)\n",
				"    At buffer 10: 2 frames dropped (interval: 50.0ms)\n",
				"    At buffer 100: 2 frames dropped (interval: 50.0ms)\n",
				"    ... and 2 more gaps\n",
				"  Drop rate: 7.4%\n",
				"  ZED SDK zero-copy behavior:\n",
			},
			notWant: []string{"At buffer 110:", "nvarguscamerasrc behavior"},
		},
		{
			name: "argus drops",
			modify: func(r *Report) {
				r.Config.Source = SourceArgus
				r.Gaps = []Gap{{Buffer: 5, Frames: 1, Interval: 40 * time.Millisecond}}
				r.EstimatedDropped = 1
				r.DropRate = 0.3
			},
			want: []string{
				"  Drop rate: 0.3%\n",
				"  nvarguscamerasrc behavior:\n",
				"    - May see 'nvbuf_utils' warnings in the console\n",
			},
			notWant: []string{"... and", "ZED SDK zero-copy behavior"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := sampleReport()
			tt.modify(r)

			var buf bytes.Buffer
			r.WriteSummary(&buf)
			out := buf.String()

			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("summary missing %q:\n%s", want, out)
				}
			}
			for _, notWant := range tt.notWant {
				if strings.Contains(out, notWant) {
					t.Errorf("summary unexpectedly contains %q:\n%s", notWant, out)
				}
			}
		})
	}
}

func TestReport_Degraded(t *testing.T) {
	r := sampleReport()

	tests := []struct {
		fps  float64
		want bool
	}{
		{20, true},
		{53.9, true},
		{54.5, false},
		{60, false},
	}
	for _, tt := range tests {
		r.ActualFPS = tt.fps
		if got := r.Degraded(); got != tt.want {
			t.Errorf("Degraded() at %.1f fps = %v, want %v", tt.fps, got, tt.want)
		}
	}
}
