package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsStartedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listing_jobs_started_total",
		Help: "Total number of generation jobs started",
	}, []string{"kind"})

	JobsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listing_jobs_completed_total",
		Help: "Total number of generation jobs completed successfully",
	}, []string{"kind"})

	JobsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listing_jobs_failed_total",
		Help: "Total number of generation jobs that failed",
	}, []string{"kind"})

	JobsRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listing_jobs_rejected_total",
		Help: "Total number of generation requests rejected before job creation",
	})

	JobsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "listing_jobs_running",
		Help: "Current number of running generation jobs",
	})

	JobsSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listing_jobs_swept_total",
		Help: "Total number of terminal job records evicted by the sweeper",
	})

	RenderDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "listing_render_duration_seconds",
		Help:    "Time taken by the renderer to produce an asset",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 90, 120},
	}, []string{"kind"})

	CachedPayloads = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "listing_cached_payloads",
		Help: "Current number of scrape payloads held by the in-memory cache",
	})
)
