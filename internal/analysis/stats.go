package analysis

import (
	"math"
	"time"
)

const (
	// fpsStabilityThreshold is the maximum allowed FPS standard deviation as a fraction of mean FPS.
	// A stream is considered stable if stddev < 15% of mean FPS.
	// Example: 60 FPS mean → stable if stddev < 9 FPS
	fpsStabilityThreshold = 0.15

	// jitterStabilityThreshold is the maximum allowed mean jitter as a fraction of expected interval.
	// A stream is considered stable if mean jitter < 20% of expected inter-frame interval.
	// Example: 60 FPS (16.7ms interval) → stable if jitter < 3.3ms
	jitterStabilityThreshold = 0.20
)

// IntervalStats describes receive-side delivery timing (wall clock at the
// appsink, not PTS).
type IntervalStats struct {
	FPSMean      float64 `json:"fps_mean" yaml:"fps_mean"`
	FPSStdDev    float64 `json:"fps_stddev" yaml:"fps_stddev"`
	FPSMin       float64 `json:"fps_min" yaml:"fps_min"`
	FPSMax       float64 `json:"fps_max" yaml:"fps_max"`
	JitterMean   float64 `json:"jitter_mean_s" yaml:"jitter_mean_s"`     // seconds
	JitterStdDev float64 `json:"jitter_stddev_s" yaml:"jitter_stddev_s"` // seconds
	JitterMax    float64 `json:"jitter_max_s" yaml:"jitter_max_s"`       // seconds
	IsStable     bool    `json:"stable" yaml:"stable"`
}

// CalculateIntervalStats calculates FPS and jitter statistics from buffer
// receive times
//
// This function:
//  1. Calculates mean FPS (overall)
//  2. Calculates instantaneous FPS for each interval
//  3. Finds min/max instantaneous FPS
//  4. Calculates standard deviation of instantaneous FPS
//  5. Calculates jitter statistics (deviation from the mean interval)
//  6. Determines stability (stddev < 15% of mean AND jitter < 20%)
func CalculateIntervalStats(times []time.Time, total time.Duration) IntervalStats {
	n := len(times)
	if n == 0 || total <= 0 {
		return IntervalStats{}
	}

	fpsMean := float64(n) / total.Seconds()

	instantaneous := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		interval := times[i].Sub(times[i-1]).Seconds()
		if interval > 0 {
			instantaneous = append(instantaneous, 1.0/interval)
		}
	}

	// Handle edge case: no valid intervals
	if len(instantaneous) == 0 {
		return IntervalStats{FPSMean: fpsMean}
	}

	fpsMin := instantaneous[0]
	fpsMax := instantaneous[0]
	for _, fps := range instantaneous {
		fpsMin = math.Min(fpsMin, fps)
		fpsMax = math.Max(fpsMax, fps)
	}

	var sumSquares float64
	for _, fps := range instantaneous {
		diff := fps - fpsMean
		sumSquares += diff * diff
	}
	fpsStdDev := math.Sqrt(sumSquares / float64(len(instantaneous)))

	// Jitter = deviation from expected inter-frame interval
	expectedInterval := 1.0 / fpsMean

	jitters := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		actual := times[i].Sub(times[i-1]).Seconds()
		jitters = append(jitters, math.Abs(actual-expectedInterval))
	}

	var jitterSum, jitterMax float64
	for _, j := range jitters {
		jitterSum += j
		jitterMax = math.Max(jitterMax, j)
	}
	jitterMean := jitterSum / float64(len(jitters))

	var jitterSumSquares float64
	for _, j := range jitters {
		diff := j - jitterMean
		jitterSumSquares += diff * diff
	}
	jitterStdDev := math.Sqrt(jitterSumSquares / float64(len(jitters)))

	fpsStable := fpsStdDev < fpsMean*fpsStabilityThreshold
	jitterStable := jitterMean < expectedInterval*jitterStabilityThreshold

	return IntervalStats{
		FPSMean:      fpsMean,
		FPSStdDev:    fpsStdDev,
		FPSMin:       fpsMin,
		FPSMax:       fpsMax,
		JitterMean:   jitterMean,
		JitterStdDev: jitterStdDev,
		JitterMax:    jitterMax,
		IsStable:     fpsStable && jitterStable,
	}
}

// Summary is the end-of-run analysis.
type Summary struct {
	Duration         time.Duration
	Buffers          uint64
	ExpectedFrames   int
	ActualFPS        float64
	Gaps             []Gap
	EstimatedDropped uint64
	// DropRate is dropped / (received + dropped) in percent
	DropRate  float64
	Intervals IntervalStats
}

// Summarize derives the run summary from a snapshot.
//
// Duration is the elapsed time of the last buffer relative to the first
// one, so a single buffer yields a zero duration and zero FPS.
func Summarize(s Snapshot, fps int) Summary {
	sum := Summary{
		Buffers:          s.Buffers,
		Gaps:             s.Gaps,
		EstimatedDropped: s.Dropped,
	}
	if s.Buffers == 0 {
		return sum
	}

	if n := len(s.Records); n > 0 {
		sum.Duration = s.Records[n-1].Elapsed
	}
	if sum.Duration > 0 {
		sum.ActualFPS = float64(s.Buffers) / sum.Duration.Seconds()
	}
	sum.ExpectedFrames = int(sum.Duration.Seconds() * float64(fps))

	if s.Dropped > 0 {
		sum.DropRate = float64(s.Dropped) / float64(s.Buffers+s.Dropped) * 100
	}

	times := make([]time.Time, len(s.Records))
	for i, r := range s.Records {
		times[i] = r.ReceivedAt
	}
	sum.Intervals = CalculateIntervalStats(times, sum.Duration)

	return sum
}
