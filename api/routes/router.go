package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/kiosk-backend/api/controllers"
	"github.com/angelmondragon/kiosk-backend/api/middleware"
	"github.com/angelmondragon/kiosk-backend/internal/checkins"
	"github.com/angelmondragon/kiosk-backend/internal/events"
	"github.com/angelmondragon/kiosk-backend/internal/notifications"
	"github.com/angelmondragon/kiosk-backend/pkg/auth/session"
	"github.com/angelmondragon/kiosk-backend/pkg/config"
	"github.com/angelmondragon/kiosk-backend/pkg/logger"
	"github.com/angelmondragon/kiosk-backend/pkg/redis"
)

// Deps carries everything the route table needs.
type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	Redis         *redis.Client
	Pingers       map[string]controllers.Pinger
	Sessions      session.Checker
	Notifications notifications.Service
	Events        events.Service
	Checkins      checkins.Service
	Socket        http.Handler
}

func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(deps.Logger),
		middleware.RequestID(deps.Logger),
		middleware.Logging(deps.Logger),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(deps.Config))
		r.Get("/ready", controllers.HealthReady(deps.Config, deps.Logger, deps.Pingers))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	if deps.Socket != nil {
		r.Handle("/ws", deps.Socket)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(deps.Config.JWT, deps.Sessions, deps.Logger))

		r.Route("/notification", func(r chi.Router) {
			r.Get("/org", controllers.OrgNotifications(deps.Notifications, deps.Logger))
			r.Get("/event", controllers.EventNotifications(deps.Notifications, deps.Logger))
			r.With(middleware.SendRateLimit(deps.Config.SendRateLimit, deps.Redis, deps.Logger)).
				Post("/", controllers.SendNotification(deps.Notifications, deps.Logger))
			r.Put("/lastseen", controllers.MarkNotificationsSeen(deps.Notifications, deps.Logger))
		})

		r.Route("/events", func(r chi.Router) {
			r.Get("/", controllers.ListEvents(deps.Events, deps.Logger))
			r.Post("/", controllers.CreateEvent(deps.Events, deps.Logger))
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", controllers.GetEvent(deps.Events, deps.Logger))
				r.Post("/checkin", controllers.CreateCheckin(deps.Events, deps.Checkins, deps.Logger))
				r.Get("/checkins", controllers.ListCheckins(deps.Events, deps.Checkins, deps.Logger))
				r.Get("/stats", controllers.EventStats(deps.Events, deps.Checkins, deps.Logger))
			})
		})
	})

	return r
}
