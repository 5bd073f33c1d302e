// Package metrics exposes buffer-hold counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bufferhold"

// Recorder owns one registry per run so parallel runs (and tests) do not
// collide on the global registry.
//
// All methods are safe on a nil *Recorder.
type Recorder struct {
	registry *prometheus.Registry

	buffers     prometheus.Counter
	gaps        prometheus.Counter
	dropped     prometheus.Counter
	held        prometheus.Gauge
	ptsInterval prometheus.Histogram
	busMessages *prometheus.CounterVec
	qosDropped  prometheus.Gauge
}

// NewRecorder creates a recorder whose series carry a constant source
// label (zedsrc, argus).
func NewRecorder(source string) *Recorder {
	labels := prometheus.Labels{"source": source}

	r := &Recorder{
		registry: prometheus.NewRegistry(),
		buffers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "buffers_total",
			Help:        "Buffers received by the appsink.",
			ConstLabels: labels,
		}),
		gaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "pts_gaps_total",
			Help:        "PTS discontinuities above 1.5 frame intervals.",
			ConstLabels: labels,
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "estimated_dropped_frames_total",
			Help:        "Frames estimated missing from PTS gaps.",
			ConstLabels: labels,
		}),
		held: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "held_buffers",
			Help:        "Buffers currently referenced by the hold queue.",
			ConstLabels: labels,
		}),
		ptsInterval: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "pts_interval_seconds",
			Help:        "PTS distance between consecutive buffers.",
			ConstLabels: labels,
			// 1ms .. ~1s
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 11),
		}),
		busMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "bus",
			Name:        "messages_total",
			Help:        "Pipeline bus messages by kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
		qosDropped: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "bus",
			Name:        "qos_dropped",
			Help:        "Dropped count from the latest QoS message.",
			ConstLabels: labels,
		}),
	}

	r.registry.MustRegister(
		r.buffers,
		r.gaps,
		r.dropped,
		r.held,
		r.ptsInterval,
		r.busMessages,
		r.qosDropped,
	)
	return r
}

// Buffer records one received buffer. interval is ignored unless
// hasInterval is set and it is not negative.
func (r *Recorder) Buffer(interval time.Duration, hasInterval bool) {
	if r == nil {
		return
	}
	r.buffers.Inc()
	if hasInterval && interval >= 0 {
		r.ptsInterval.Observe(interval.Seconds())
	}
}

// Gap records a PTS gap with its estimated missing frames.
func (r *Recorder) Gap(frames int) {
	if r == nil {
		return
	}
	r.gaps.Inc()
	if frames > 0 {
		r.dropped.Add(float64(frames))
	}
}

// SetHeld sets the number of held buffers.
func (r *Recorder) SetHeld(n int) {
	if r == nil {
		return
	}
	r.held.Set(float64(n))
}

// BusMessage counts one bus message of the given kind.
func (r *Recorder) BusMessage(kind string) {
	if r == nil {
		return
	}
	r.busMessages.WithLabelValues(kind).Inc()
}

// QoSDropped stores the dropped count reported by a QoS message.
func (r *Recorder) QoSDropped(n uint64) {
	if r == nil {
		return
	}
	r.qosDropped.Set(float64(n))
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the recorder's registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, r *Recorder) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())

	svr := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		defer close(idleConnsClosed)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := svr.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics: shutdown failed", "error", err)
		}
	}()

	slog.Info("metrics: serving", "addr", addr)
	if err := svr.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-idleConnsClosed
	return nil
}
