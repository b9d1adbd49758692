package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medbook/scheduling-core/internal/appointment"
	"github.com/medbook/scheduling-core/internal/metrics"
)

type RouterConfig struct {
	Service  *appointment.Service
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Logger   zerolog.Logger
	Metrics  *metrics.SchedulingMetrics
	Registry *prometheus.Registry
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger, cfg.Metrics))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}

	r.Get("/professionals/{professionalID}/availability", availabilityHandler(cfg.Service))
	r.Put("/professionals/{professionalID}/template", upsertTemplateHandler(cfg.Service))
	r.Post("/professionals/{professionalID}/exceptions", createExceptionHandler(cfg.Service))

	r.Post("/appointments", reserveHandler(cfg.Service))
	r.Get("/appointments", listAppointmentsHandler(cfg.Service))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/status", transitionHandler(cfg.Service))

	return r
}
