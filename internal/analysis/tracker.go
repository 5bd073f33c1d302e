// Package analysis detects PTS gaps in a buffer stream and summarizes
// delivery timing.
package analysis

import (
	"sync"
	"time"
)

// gapTolerance is the fraction of the expected frame interval a PTS
// interval may exceed before it counts as a gap.
// Example: 60 fps (16.7ms) -> intervals above 25ms are gaps
const gapTolerance = 1.5

// Gap is a PTS discontinuity between two consecutive buffers.
type Gap struct {
	// Buffer is the number of the buffer that arrived after the gap (1-based)
	Buffer uint64 `json:"buffer" yaml:"buffer"`
	// Frames is the estimated number of frames missing
	Frames int `json:"frames" yaml:"frames"`
	// Interval is the PTS distance to the previous buffer
	Interval time.Duration `json:"interval" yaml:"interval"`
}

// Record is the timing of one received buffer.
type Record struct {
	Buffer     uint64
	ReceivedAt time.Time
	Elapsed    time.Duration // since the first buffer was received
	PTS        time.Duration
	HasPTS     bool
}

// Observation is what Observe learned about one buffer.
type Observation struct {
	Record

	// Interval to the previous buffer's PTS, valid when HasInterval
	Interval    time.Duration
	HasInterval bool

	// Gap is set when the interval exceeded the tolerance
	Gap *Gap
}

// Tracker accumulates buffer timing and PTS gaps.
//
// Thread-safe: Observe runs on the streaming thread while Snapshot may
// be called from any goroutine.
type Tracker struct {
	fps int

	mu      sync.Mutex
	count   uint64
	dropped uint64
	start   time.Time
	lastPTS time.Duration
	hasLast bool
	gaps    []Gap
	records []Record
}

// NewTracker creates a tracker for a source running at fps.
func NewTracker(fps int) *Tracker {
	return &Tracker{
		fps:     fps,
		records: make([]Record, 0, 256),
	}
}

// Observe records a buffer received at `at`.
//
// Gap rule: when both this and the previous buffer carry a PTS and the
// interval exceeds 1.5 expected intervals, frames = int(interval /
// expected) - 1 are counted as dropped (this may be 0 for intervals
// between 1.5 and 2 frames; the gap is still recorded). A buffer
// without PTS resets the reference so the next buffer is not compared.
func (t *Tracker) Observe(pts time.Duration, hasPTS bool, at time.Time) Observation {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.count == 0 {
		t.start = at
	}
	t.count++

	obs := Observation{
		Record: Record{
			Buffer:     t.count,
			ReceivedAt: at,
			Elapsed:    at.Sub(t.start),
			PTS:        pts,
			HasPTS:     hasPTS,
		},
	}

	if t.hasLast && hasPTS {
		interval := pts - t.lastPTS
		obs.Interval = interval
		obs.HasInterval = true

		if t.fps > 0 {
			expected := 1.0 / float64(t.fps)
			actual := interval.Seconds()
			if actual > expected*gapTolerance {
				gap := Gap{
					Buffer:   t.count,
					Frames:   int(actual/expected) - 1,
					Interval: interval,
				}
				t.gaps = append(t.gaps, gap)
				t.dropped += uint64(gap.Frames)
				obs.Gap = &gap
			}
		}
	}

	t.lastPTS = pts
	t.hasLast = hasPTS

	t.records = append(t.records, obs.Record)

	return obs
}

// Count returns the number of buffers observed.
func (t *Tracker) Count() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// Snapshot is a copy of the tracker state.
type Snapshot struct {
	Buffers uint64
	Dropped uint64
	Start   time.Time
	Gaps    []Gap
	Records []Record
}

// Snapshot returns a consistent copy of everything observed so far.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	gaps := make([]Gap, len(t.gaps))
	copy(gaps, t.gaps)
	records := make([]Record, len(t.records))
	copy(records, t.records)

	return Snapshot{
		Buffers: t.count,
		Dropped: t.dropped,
		Start:   t.start,
		Gaps:    gaps,
		Records: records,
	}
}

// Progress is a cheap view of the tracker for periodic reporting.
type Progress struct {
	Buffers uint64
	Dropped uint64
	Gaps    int
	Elapsed time.Duration
}

// Progress returns counters without copying records.
func (t *Tracker) Progress() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()

	var elapsed time.Duration
	if n := len(t.records); n > 0 {
		elapsed = t.records[n-1].Elapsed
	}
	return Progress{
		Buffers: t.count,
		Dropped: t.dropped,
		Gaps:    len(t.gaps),
		Elapsed: elapsed,
	}
}
