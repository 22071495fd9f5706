package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"expressless/internal/config"
	"expressless/pkg/lambda"
)

// Collector records Prometheus metrics for adapter invocations.
//
// Metrics:
//   - <namespace>_invocations_total: invocations by method and status
//   - <namespace>_invocation_duration_seconds: time from event to outcome
//   - <namespace>_response_size_bytes: artifact body size
//   - <namespace>_invocation_errors_total: invocations that ended in an error
type Collector struct {
	config   config.MetricsConfig
	registry *prometheus.Registry

	invocationsTotal   *prometheus.CounterVec
	invocationDuration *prometheus.HistogramVec
	responseSize       prometheus.Histogram
	errorsTotal        *prometheus.CounterVec
}

// NewCollector creates a collector and registers its metrics with registry.
// If registry is nil a fresh one is created.
func NewCollector(cfg config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "expressless"
	}

	c := &Collector{
		config:   cfg,
		registry: registry,
		invocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "invocations_total",
				Help:      "Total number of events handled",
			},
			[]string{"method", "status"},
		),
		invocationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "invocation_duration_seconds",
				Help:      "Time from receiving an event to its outcome in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method"},
		),
		responseSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "response_size_bytes",
				Help:      "Size of response bodies in bytes",
				Buckets:   prometheus.ExponentialBuckets(64, 4, 8), // 64B to 1MB
			},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "invocation_errors_total",
				Help:      "Total number of invocations that ended in an error",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		c.invocationsTotal,
		c.invocationDuration,
		c.responseSize,
		c.errorsTotal,
	)

	return c
}

// Registry returns the registry the collector's metrics live in
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordInvocation records one finished invocation
func (c *Collector) RecordInvocation(method string, status int, duration time.Duration, bodySize int) {
	if !c.config.Enabled {
		return
	}

	c.invocationsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.invocationDuration.WithLabelValues(method).Observe(duration.Seconds())
	c.responseSize.Observe(float64(bodySize))
}

// RecordError counts an invocation that ended in err
func (c *Collector) RecordError(err error) {
	if !c.config.Enabled || err == nil {
		return
	}

	kind := "internal"
	var httpErr *lambda.HTTPError
	switch {
	case errors.As(err, &httpErr):
		kind = "http"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		kind = "timeout"
	}
	c.errorsTotal.WithLabelValues(kind).Inc()
}

// OnFinished returns a hook that records every outcome. It never changes
// the outcome.
func (c *Collector) OnFinished() lambda.OnFinishedFunc {
	return func(ctx context.Context, err error, out *lambda.Artifact, req *lambda.Request, res *lambda.Response) (*lambda.Artifact, error) {
		status := res.StatusCode()
		size := 0
		if out != nil {
			status = out.StatusCode
			size = len(out.Body)
		} else if err != nil {
			status = http.StatusInternalServerError
			var httpErr *lambda.HTTPError
			if errors.As(err, &httpErr) {
				status = httpErr.Status
			}
		}

		c.RecordInvocation(req.Method, status, time.Since(req.ReceivedAt), size)
		c.RecordError(err)
		return nil, nil
	}
}

// Handler returns an HTTP handler exposing the collector's registry
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
