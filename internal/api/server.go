// Package api exposes the run commands over HTTP using the routes load
// test controllers already call.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/RevCBH/loadnode/internal/container"
	"github.com/RevCBH/loadnode/internal/events"
	"github.com/RevCBH/loadnode/internal/orchestrator"
)

// Service is the command surface the handlers drive.
type Service interface {
	Start(ctx context.Context, req orchestrator.RunRequest) error
	Stop(ctx context.Context, runID string) error
	Status(ctx context.Context, runID string) ([]container.Summary, error)
	Logs(ctx context.Context, runID string) string
	FetchArtifact(reportID string) []byte
	DeleteArtifact(reportID string) bool
}

// Options configures the router.
type Options struct {
	// AllowedOrigins enables CORS when non-empty.
	AllowedOrigins []string

	// Metrics, when set, backs GET /metrics.
	Metrics func(ctx context.Context) map[string]float64

	// Events, when set, backs GET /events.
	Events *events.Hub

	Version string
	Logger  *slog.Logger
}

type handler struct {
	svc     Service
	metrics func(ctx context.Context) map[string]float64
	events  *events.Hub
	version string
	logger  *slog.Logger
}

// NewRouter builds the HTTP handler for svc.
func NewRouter(svc Service, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{svc: svc, metrics: opts.Metrics, events: opts.Events, version: opts.Version, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(logger.Handler(), slog.LevelDebug),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		}))
	}

	r.Get("/status", h.health)
	r.Get("/metrics", h.getMetrics)
	r.Get("/events", h.streamEvents)

	r.Route("/jmeter", func(r chi.Router) {
		r.Post("/container/start", h.start)
		r.With(validateID("testId")).Get("/container/stop/{testId}", h.stop)
		r.With(validateID("testId")).Get("/container/log/{testId}", h.logs)
		r.With(validateID("testId")).Get("/task/status/{testId}", h.status)
		r.With(validateID("reportId")).Get("/download/jtl/{reportId}", h.downloadJTL)
		r.With(validateID("reportId")).Get("/delete/jtl/{reportId}", h.deleteJTL)
	})
	return r
}
