package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds the netlink client metrics.
type Registry struct {
	// Requests counts every request dispatched by a subsystem server
	// loop, labeled with its outcome.
	Requests *prometheus.CounterVec

	// RequestDuration observes wall time per request, including all
	// kernel round trips the request needed.
	RequestDuration *prometheus.HistogramVec

	// WorkerDialErrors counts failed transport dials.
	WorkerDialErrors prometheus.Counter
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry()
	})
	return registry
}

func newRegistry() *Registry {
	r := &Registry{}

	r.Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtnl_requests_total",
		Help: "Total subsystem requests processed by the netlink worker",
	}, []string{"subsystem", "operation", "result"})

	r.RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rtnl_request_duration_seconds",
		Help:    "Request latency per subsystem, kernel round trips included",
		Buckets: prometheus.DefBuckets,
	}, []string{"subsystem"})

	r.WorkerDialErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtnl_worker_dial_errors_total",
		Help: "Netlink transport dial failures",
	})

	return r
}

// RecordRequest records one processed request and its duration.
func (r *Registry) RecordRequest(subsystem, operation, result string, start time.Time) {
	r.Requests.WithLabelValues(subsystem, operation, result).Inc()
	r.RequestDuration.WithLabelValues(subsystem).Observe(time.Since(start).Seconds())
}
