package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/angelmondragon/kiosk-backend/api/controllers"
	"github.com/angelmondragon/kiosk-backend/api/routes"
	"github.com/angelmondragon/kiosk-backend/internal/checkins"
	"github.com/angelmondragon/kiosk-backend/internal/events"
	"github.com/angelmondragon/kiosk-backend/internal/identity"
	"github.com/angelmondragon/kiosk-backend/internal/notifications"
	"github.com/angelmondragon/kiosk-backend/internal/socket"
	"github.com/angelmondragon/kiosk-backend/pkg/auth/session"
	"github.com/angelmondragon/kiosk-backend/pkg/channel"
	"github.com/angelmondragon/kiosk-backend/pkg/config"
	"github.com/angelmondragon/kiosk-backend/pkg/logger"
	"github.com/angelmondragon/kiosk-backend/pkg/metrics"
	"github.com/angelmondragon/kiosk-backend/pkg/mongodb"
	"github.com/angelmondragon/kiosk-backend/pkg/redis"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mongoClient, err := mongodb.New(context.Background(), cfg.Mongo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap mongodb", err)
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := mongoClient.Close(closeCtx); err != nil {
			logg.Error(closeCtx, "error closing mongodb", err)
		}
	}()

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	transport, err := channel.New(ctx, redisClient.Raw(), cfg.Channel, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap channel transport", err)
		os.Exit(1)
	}
	defer func() {
		if err := transport.Close(); err != nil {
			logg.Error(context.Background(), "error closing channel transport", err)
		}
	}()

	identityClient, err := identity.NewClient(cfg.Identity)
	if err != nil {
		logg.Error(context.Background(), "failed to create identity client", err)
		os.Exit(1)
	}

	sessionManager, err := session.NewManager(redisClient, identityClient, cfg.JWT, cfg.Identity, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	socketMetrics := metrics.NewSocketMetrics(prometheus.DefaultRegisterer)

	eventsService := events.NewService(events.NewRepository(mongoClient), logg)
	checkinsService := checkins.NewService(checkins.NewRepository(mongoClient), logg)
	notificationsService, err := notifications.NewService(notifications.NewRepository(mongoClient), transport, socketMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	hub := socket.NewHub(transport, sessionManager, eventsService, cfg.Socket, socketMetrics, logg)
	defer hub.Shutdown()

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	logCtx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config: cfg,
			Logger: logg,
			Redis:  redisClient,
			Pingers: map[string]controllers.Pinger{
				"mongo": mongoClient,
				"redis": redisClient,
			},
			Sessions:      sessionManager,
			Notifications: notificationsService,
			Events:        eventsService,
			Checkins:      checkinsService,
			Socket:        hub,
		}),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "error shutting down api server", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(logCtx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(logCtx, "api server stopped")
}
