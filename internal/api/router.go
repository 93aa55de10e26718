package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hemolink/bloodbank/internal/blood"
	"github.com/hemolink/bloodbank/internal/slot"
	"github.com/hemolink/bloodbank/internal/transit"
)

type RouterConfig struct {
	Slots     *slot.Service
	Blood     *blood.Service
	Inventory *blood.Inventory
	Transits  *transit.Service
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	Logger    *zap.Logger
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(MetricsMiddleware)

	// Health and metrics
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Method(http.MethodGet, "/metrics", MetricsHandler())

	// Slot generation and appointments
	r.Post("/appointment-slots", generateSlotsHandler(cfg.Slots))
	r.Get("/appointment-slots", listSlotsHandler(cfg.Slots))
	r.Post("/appointments/createAppointments", createAppointmentHandler(cfg.Slots))
	r.Post("/appointments/create", createAppointmentHandler(cfg.Slots))
	r.Post("/appointments/{id}/cancel", appointmentTransitionHandler(cfg.Slots, true))
	r.Post("/appointments/{id}/complete", appointmentTransitionHandler(cfg.Slots, false))

	// Donations and unit lifecycle
	r.Post("/donations", recordDonationHandler(cfg.Blood))
	r.Post("/blood/record-test", recordTestHandler(cfg.Blood))
	r.Post("/blood/consume-unit", consumeUnitHandler(cfg.Blood))
	r.Post("/blood/discard-unit", discardUnitHandler(cfg.Blood))
	r.Post("/blood/place-in-inventory", placeInInventoryHandler(cfg.Blood))

	// Inventory projections
	r.Post("/blood/check-availability", checkAvailabilityHandler(cfg.Inventory))
	r.Post("/blood/list-units", unitListHandler(func(req *http.Request, inventoryID uuid.UUID, filter blood.GroupFilter) ([]blood.BloodUnit, error) {
		return cfg.Inventory.ListAvailable(req.Context(), inventoryID, filter)
	}))
	r.Post("/blood/expired-units", unitListHandler(func(req *http.Request, inventoryID uuid.UUID, _ blood.GroupFilter) ([]blood.BloodUnit, error) {
		return cfg.Inventory.ListExpired(req.Context(), inventoryID)
	}))
	r.Post("/blood/nearing-expiry", unitListHandler(func(req *http.Request, inventoryID uuid.UUID, _ blood.GroupFilter) ([]blood.BloodUnit, error) {
		return cfg.Inventory.ListNearingExpiry(req.Context(), inventoryID)
	}))
	r.Post("/blood/by-inventory", unitListHandler(func(req *http.Request, inventoryID uuid.UUID, _ blood.GroupFilter) ([]blood.BloodUnit, error) {
		return cfg.Inventory.ListByInventory(req.Context(), inventoryID)
	}))
	r.Get("/blood/group-buckets", groupBucketsHandler(cfg.Inventory))

	// Transit and requests
	r.Post("/transits", dispatchTransitHandler(cfg.Transits))
	r.Post("/transits/{id}/deliver", transitTransitionHandler(cfg.Transits, true))
	r.Post("/transits/{id}/fail", transitTransitionHandler(cfg.Transits, false))
	r.Get("/blood-bank/transit-requests", listTransitsHandler(cfg.Transits))
	r.Post("/requests", createRequestHandler(cfg.Transits))
	r.Get("/requests/{id}", getRequestHandler(cfg.Transits))

	return r
}
