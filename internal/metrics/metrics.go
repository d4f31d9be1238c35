package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

var (
	// HTTPRequestsTotal counts responses by route pattern, method and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cinequiz_http_requests_total",
		Help: "Total HTTP responses by route, method and status code",
	}, []string{"route", "method", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cinequiz_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	// AuthEventsTotal counts signup, login, refresh and logout attempts.
	AuthEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cinequiz_auth_events_total",
		Help: "Authentication events by kind and outcome",
	}, []string{"event", "outcome"})

	PointsAwardedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cinequiz_points_awarded_total",
		Help: "Total points awarded to users",
	})

	// GameResultsTotal counts game result messages handled by the worker.
	GameResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cinequiz_game_results_total",
		Help: "Game result messages by outcome",
	}, []string{"outcome"})
)

// ObserveAuth records one authentication event.
func ObserveAuth(event string, err error, rejected func(error) bool) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
		if rejected != nil && rejected(err) {
			outcome = OutcomeRejected
		}
	}
	AuthEventsTotal.WithLabelValues(event, outcome).Inc()
}

// Middleware records request counts and latency labelled with the chi
// route pattern, so path parameters do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
