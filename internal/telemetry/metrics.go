package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	UploadsAccepted  = prometheus.NewCounter(prometheus.CounterOpts{Name: "transcribe_uploads_accepted_total", Help: "Uploads accepted and enqueued"})
	UploadsRejected  = prometheus.NewCounter(prometheus.CounterOpts{Name: "transcribe_uploads_rejected_total", Help: "Uploads rejected for unsupported media type"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "transcribe_rate_limit_rejects_total", Help: "Uploads rejected by the rate limiter"})
	JobsCompleted    = prometheus.NewCounter(prometheus.CounterOpts{Name: "transcribe_jobs_completed_total", Help: "Jobs that finished with a transcript"})
	JobsFailed       = prometheus.NewCounter(prometheus.CounterOpts{Name: "transcribe_jobs_failed_total", Help: "Jobs that finished with an error"})
	AudioSeconds     = prometheus.NewCounter(prometheus.CounterOpts{Name: "transcribe_audio_seconds_total", Help: "Seconds of audio transcribed"})
	QueueDepthGauge  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "transcribe_queue_depth", Help: "Tasks waiting in the ready queue"})
	InFlightGauge    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "transcribe_inflight", Help: "Tasks currently being processed"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			UploadsAccepted,
			UploadsRejected,
			RateLimitRejects,
			JobsCompleted,
			JobsFailed,
			AudioSeconds,
			QueueDepthGauge,
			InFlightGauge,
		)
	})
	return promhttp.Handler()
}
