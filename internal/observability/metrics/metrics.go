// Package metrics exposes prometheus instruments for the HTTP surface
// and the billing sweep.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics instruments the gin engine.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewHTTPMetrics() *HTTPMetrics {
	return &HTTPMetrics{
		requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "copiflow_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "copiflow_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// GinMiddleware records request counts and latency per route.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// SchedulerMetrics instruments the daily reading sweep.
type SchedulerMetrics struct {
	sweepRuns        prometheus.Counter
	sweepDuration    prometheus.Histogram
	devicesProcessed prometheus.Counter
	readingsCreated  prometheus.Counter
	devicesSkipped   *prometheus.CounterVec
	deviceErrors     prometheus.Counter
}

var (
	schedulerOnce sync.Once
	schedulerInst *SchedulerMetrics
)

// Scheduler returns the process-wide sweep metrics.
func Scheduler() *SchedulerMetrics {
	schedulerOnce.Do(func() {
		schedulerInst = &SchedulerMetrics{
			sweepRuns: promauto.NewCounter(prometheus.CounterOpts{
				Name: "copiflow_scheduler_sweep_runs_total",
				Help: "Completed daily sweep executions.",
			}),
			sweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "copiflow_scheduler_sweep_duration_seconds",
				Help:    "Daily sweep duration.",
				Buckets: prometheus.DefBuckets,
			}),
			devicesProcessed: promauto.NewCounter(prometheus.CounterOpts{
				Name: "copiflow_scheduler_devices_processed_total",
				Help: "Devices examined by the sweep.",
			}),
			readingsCreated: promauto.NewCounter(prometheus.CounterOpts{
				Name: "copiflow_scheduler_readings_created_total",
				Help: "Draft readings created by the sweep.",
			}),
			devicesSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "copiflow_scheduler_devices_skipped_total",
				Help: "Devices the sweep examined but did not bill, by reason.",
			}, []string{"reason"}),
			deviceErrors: promauto.NewCounter(prometheus.CounterOpts{
				Name: "copiflow_scheduler_device_errors_total",
				Help: "Per-device failures isolated by the sweep.",
			}),
		}
	})
	return schedulerInst
}

func (m *SchedulerMetrics) IncSweepRun() { m.sweepRuns.Inc() }

func (m *SchedulerMetrics) ObserveSweep(d time.Duration) { m.sweepDuration.Observe(d.Seconds()) }

func (m *SchedulerMetrics) IncProcessed() { m.devicesProcessed.Inc() }

func (m *SchedulerMetrics) IncCreated() { m.readingsCreated.Inc() }

func (m *SchedulerMetrics) IncSkipped(reason string) { m.devicesSkipped.WithLabelValues(reason).Inc() }

func (m *SchedulerMetrics) IncDeviceError() { m.deviceErrors.Inc() }
