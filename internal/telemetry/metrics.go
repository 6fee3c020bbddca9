package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsEnqueued     = prometheus.NewCounter(prometheus.CounterOpts{Name: "jobs_enqueued_total", Help: "Jobs accepted by the enqueue API"})
	JobsLeased       = prometheus.NewCounter(prometheus.CounterOpts{Name: "jobs_leased_total", Help: "Leases granted to this worker"})
	JobsSucceeded    = prometheus.NewCounter(prometheus.CounterOpts{Name: "jobs_succeeded_total", Help: "Jobs reported complete_success"})
	JobsRetried      = prometheus.NewCounter(prometheus.CounterOpts{Name: "jobs_retried_total", Help: "Jobs reported attempt_failed and eligible for retry"})
	JobsDead         = prometheus.NewCounter(prometheus.CounterOpts{Name: "jobs_dead_total", Help: "Jobs that exhausted attempts or failed permanently"})
	ListErrors       = prometheus.NewCounter(prometheus.CounterOpts{Name: "job_list_errors_total", Help: "Failed leasable-batch listing queries"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "enqueue_rate_limit_rejects_total", Help: "Enqueue requests rejected by the rate limiter"})
	LeasableDepth    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "jobs_leasable_depth", Help: "Jobs currently leasable"})
	InFlightGauge    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "jobs_inflight", Help: "Jobs this worker currently holds a lease on"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsEnqueued,
			JobsLeased,
			JobsSucceeded,
			JobsRetried,
			JobsDead,
			ListErrors,
			RateLimitRejects,
			LeasableDepth,
			InFlightGauge,
		)
	})
	return promhttp.Handler()
}
