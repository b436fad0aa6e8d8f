// Package metrics provides Prometheus metrics for the iris service.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Ramsey-B/iris/pkg/database"
	"github.com/Ramsey-B/iris/pkg/identity"
)

var (
	// IdentifyTotal tracks committed identify calls by outcome
	IdentifyTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "iris",
			Subsystem: "identity",
			Name:      "identify_total",
			Help:      "Total number of committed identify calls by outcome",
		},
		[]string{"outcome"},
	)

	// ClustersMergedTotal tracks primaries demoted by merges
	ClustersMergedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "iris",
			Subsystem: "identity",
			Name:      "clusters_merged_total",
			Help:      "Total number of clusters folded into an older cluster",
		},
	)

	// ContactsRelinkedTotal tracks secondaries re-pointed during merges
	ContactsRelinkedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "iris",
			Subsystem: "identity",
			Name:      "contacts_relinked_total",
			Help:      "Total number of secondaries re-pointed to a new primary",
		},
	)

	// ClusterSize tracks the size of clusters returned by identify
	ClusterSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "iris",
			Subsystem: "identity",
			Name:      "cluster_size",
			Help:      "Number of contacts in the cluster returned by identify",
			Buckets:   []float64{1, 2, 3, 5, 10, 20, 50, 100},
		},
	)

	// HTTPRequestsTotal tracks inbound HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "iris",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	// HTTPRequestDuration tracks inbound HTTP request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "iris",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of inbound HTTP requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)
)

// Observer records identify outcomes.
type Observer struct{}

func (Observer) OnIdentify(_ context.Context, outcome identity.Outcome) error {
	IdentifyTotal.WithLabelValues(outcome.Kind()).Inc()
	if outcome.Merge != nil {
		ClustersMergedTotal.Add(float64(len(outcome.Merge.Demoted)))
		ContactsRelinkedTotal.Add(float64(len(outcome.Merge.Relinked)))
	}
	ClusterSize.Observe(float64(len(outcome.Cluster)))
	return nil
}

// Middleware records request counts and latency by matched route.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				status = statusOf(err)
			}

			method := c.Request().Method
			HTTPRequestsTotal.WithLabelValues(method, c.Path(), strconv.Itoa(status)).Inc()
			HTTPRequestDuration.WithLabelValues(method, c.Path()).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// statusOf mirrors the status the error handler will render for an error that has not been handled yet.
func statusOf(err error) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case httperror.IsHTTPError(err):
		return httperror.GetStatusCode(err)
	case database.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
