package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/playpasshq/playpass-backend/api/controllers"
	"github.com/playpasshq/playpass-backend/api/middleware"
	"github.com/playpasshq/playpass-backend/internal/devices"
	"github.com/playpasshq/playpass-backend/internal/redemptions"
	"github.com/playpasshq/playpass-backend/internal/sales"
	"github.com/playpasshq/playpass-backend/internal/shifts"
	syncpkg "github.com/playpasshq/playpass-backend/internal/sync"
	"github.com/playpasshq/playpass-backend/internal/tickets"
	"github.com/playpasshq/playpass-backend/pkg/config"
	"github.com/playpasshq/playpass-backend/pkg/db"
	"github.com/playpasshq/playpass-backend/pkg/logger"
	"github.com/playpasshq/playpass-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	deviceService devices.Service,
	ticketService tickets.Service,
	redemptionService redemptions.Service,
	saleService sales.Service,
	shiftService shifts.Service,
	syncApplier syncpkg.Applier,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, dbP, redisClient))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/devices", func(r chi.Router) {
		r.Post("/register", controllers.RegisterDevice(deviceService, logg))
		r.Post("/login", controllers.DeviceLogin(deviceService, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.DeviceAuth(cfg.JWT, logg))

		r.Route("/tickets", func(r chi.Router) {
			r.Post("/issue", controllers.IssueTickets(ticketService, logg))
			r.Get("/{ticketID}", controllers.GetTicket(ticketService, logg))
			r.Post("/{ticketID}/cancel", controllers.CancelTicket(ticketService, logg))
			r.Post("/{ticketID}/refund", controllers.RefundTicket(ticketService, logg))
			r.Get("/{ticketID}/redemptions", controllers.RedemptionHistory(redemptionService, logg))
		})

		r.Post("/redeem", controllers.Redeem(redemptionService, logg))
		r.Post("/sales", controllers.RecordSale(saleService, logg))

		r.Route("/shifts", func(r chi.Router) {
			r.Post("/open", controllers.OpenShift(shiftService, logg))
			r.Get("/current", controllers.CurrentShift(shiftService, logg))
			r.Get("/{shiftID}", controllers.GetShift(shiftService, logg))
			r.Post("/{shiftID}/close", controllers.CloseShift(shiftService, logg))
		})

		r.Post("/sync", controllers.ApplySyncBatch(syncApplier, logg))
	})

	return r
}
