// Package httpapi serves the report relay, health and metrics endpoints.
package httpapi

import (
	"net/http"
	"time"

	"attendpro/internal/app"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RelayMetrics counts relay responses by HTTP status.
type RelayMetrics interface {
	RelayRequest(status string)
}

type noopRelayMetrics struct{}

func (noopRelayMetrics) RelayRequest(string) {}

// StatusSource is the scheduler status the health endpoint reports.
type StatusSource interface {
	Snapshot() app.SchedulerSnapshot
}

// Deps wires the router to the application.
type Deps struct {
	Dispatcher         app.ReportDispatcher
	Status             StatusSource
	Metrics            RelayMetrics
	Clock              app.Clock
	Location           *time.Location
	TelegramConfigured bool
	Limiter            *rate.Limiter
	MetricsHandler     http.Handler
	Logger             *logrus.Entry
}

// NewRouter builds the chi router with every route registered.
func NewRouter(d Deps) chi.Router {
	if d.Metrics == nil {
		d.Metrics = noopRelayMetrics{}
	}
	if d.Clock == nil {
		d.Clock = app.SystemClock()
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Limiter == nil {
		d.Limiter = rate.NewLimiter(5, 10)
	}
	if d.MetricsHandler == nil {
		d.MetricsHandler = promhttp.Handler()
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		RequestLogger(d.Logger),
		middleware.Recoverer,
	)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", NewHealthHandler(d.Status, d.TelegramConfigured).ServeHTTP)
		r.Group(func(r chi.Router) {
			r.Use(RateLimit(d.Limiter, d.Logger))
			r.Post("/telegram/send-report", NewRelayHandler(d).ServeHTTP)
		})
	})

	r.Handle("/metrics", d.MetricsHandler)
	return r
}

// NewServer wraps the router in an http.Server with conservative timeouts.
func NewServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
