// Package metrics exposes Prometheus metrics for download requests and for
// responses captured by the traffic proxy.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for downloads_total.
const (
	OutcomeSuccess     = "success"
	OutcomeNotFound    = "not_found"
	OutcomeActionError = "action_error"
	OutcomeIOError     = "io_error"
	OutcomeUnavailable = "proxy_unavailable"
	OutcomeCanceled    = "canceled"
)

// Recorder holds the download metrics for one namespace.
type Recorder struct {
	downloadsTotal  *prometheus.CounterVec
	durationSeconds *prometheus.HistogramVec
	fileSizeBytes   *prometheus.HistogramVec
	capturedTotal   prometheus.Counter
	inProgress      prometheus.Gauge
}

// New creates a Recorder and registers its collectors with reg. A nil reg
// uses the default Prometheus registerer.
//
// Metrics:
//   - {namespace}_downloads_total{mode,outcome}
//   - {namespace}_download_duration_seconds{mode}
//   - {namespace}_downloaded_file_size_bytes{mode}
//   - {namespace}_captured_responses_total
//   - {namespace}_downloads_in_progress
func New(namespace string, reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &Recorder{
		downloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: fmt.Sprintf("%s_downloads_total", namespace),
				Help: "Download requests by capture mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		durationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    fmt.Sprintf("%s_download_duration_seconds", namespace),
				Help:    "Time from request start to the file being available",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		// 1KB to 1GB
		fileSizeBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    fmt.Sprintf("%s_downloaded_file_size_bytes", namespace),
				Help:    "Size of delivered files",
				Buckets: prometheus.ExponentialBuckets(1024, 10, 7),
			},
			[]string{"mode"},
		),
		capturedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_captured_responses_total", namespace),
			Help: "Responses captured by the traffic proxy as download candidates",
		}),
		inProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_downloads_in_progress", namespace),
			Help: "Download requests currently waiting for a file",
		}),
	}

	for _, c := range []prometheus.Collector{r.downloadsTotal, r.durationSeconds, r.fileSizeBytes, r.capturedTotal, r.inProgress} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return r, nil
}

// Started marks a download request as in progress.
func (r *Recorder) Started() {
	r.inProgress.Inc()
}

// Finished records the outcome of a download request.
func (r *Recorder) Finished(mode, outcome string, elapsed time.Duration) {
	r.inProgress.Dec()
	r.downloadsTotal.WithLabelValues(mode, outcome).Inc()
	r.durationSeconds.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// FileDelivered records the size of a returned file.
func (r *Recorder) FileDelivered(mode string, size int64) {
	r.fileSizeBytes.WithLabelValues(mode).Observe(float64(size))
}

// ResponseCaptured counts one response retained by the proxy.
func (r *Recorder) ResponseCaptured() {
	r.capturedTotal.Inc()
}
