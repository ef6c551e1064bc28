package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medbook/clinic-scheduling/internal/clinic"
)

type RouterConfig struct {
	Service *clinic.Service
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Logger  zerolog.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Post("/slots", createSlotHandler(cfg.Service))
	r.Get("/slots", listOpenSlotsHandler(cfg.Service))
	r.Delete("/slots/{id}", deleteSlotHandler(cfg.Service))

	r.Post("/appointments", bookAppointmentHandler(cfg.Service))
	r.Get("/appointments", listAppointmentsHandler(cfg.Service))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
	r.Get("/appointments/{id}/history", listHistoryHandler(cfg.Service))
	r.Post("/appointments/{id}/confirm", confirmAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/reschedule", rescheduleAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/payment", confirmPaymentHandler(cfg.Service))

	r.Post("/queue", enqueueHandler(cfg.Service))
	r.Get("/queue", listQueueHandler(cfg.Service))
	r.Post("/queue/leave", leaveQueueHandler(cfg.Service))
	r.Post("/queue/{id}/status", changeQueueStatusHandler(cfg.Service))
	r.Post("/queue/{id}/approve", approveQueueEntryHandler(cfg.Service))
	r.Post("/queue/{id}/complete", completeQueueHandler(cfg.Service))
	r.Delete("/queue/{id}", removeQueueEntryHandler(cfg.Service))
	r.Delete("/queue/doctor/{id}", clearDoctorQueueHandler(cfg.Service))
	r.Delete("/queue/patient/{id}", clearPatientQueueHandler(cfg.Service))

	return r
}
