package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/avrabe/raco/service/event"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects HTTP and workflow metrics in its own registry. It also
// implements event.Sink so that engine events are counted by type.
type Metrics struct {
	registry     *prometheus.Registry
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	events       *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	ret := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "raco",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "raco",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "raco",
				Subsystem: "engine",
				Name:      "events_total",
				Help:      "Engine events by type, e.g. workflow.completed.",
			},
			[]string{"type"},
		),
	}
	ret.registry.MustRegister(ret.httpRequests, ret.httpDuration, ret.events)
	return ret
}

// Handle counts an engine event.
func (m *Metrics) Handle(_ context.Context, e *event.Event[any]) error {
	if e == nil || e.Context == nil {
		return nil
	}
	m.events.WithLabelValues(e.Context.EventType).Inc()
	return nil
}

// Middleware records request counts and durations by route pattern.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			status := c.Response().Status
			if err != nil {
				if httpErr, ok := err.(*echo.HTTPError); ok {
					status = httpErr.Code
				}
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			labels := []string{c.Request().Method, path, strconv.Itoa(status)}
			m.httpRequests.WithLabelValues(labels...).Inc()
			m.httpDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
