package main

import (
	"log/slog"
	"net/http"

	"github.com/wilsonzlin/aero/proxy/debate-signaling/internal/api"
	"github.com/wilsonzlin/aero/proxy/debate-signaling/internal/config"
	"github.com/wilsonzlin/aero/proxy/debate-signaling/internal/debate"
	"github.com/wilsonzlin/aero/proxy/debate-signaling/internal/httpserver"
	"github.com/wilsonzlin/aero/proxy/debate-signaling/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/debate-signaling/internal/signaling"
)

type app struct {
	cfg      config.Config
	log      *slog.Logger
	metrics  *metrics.Metrics
	registry *debate.Registry
	hub      *signaling.Hub
	srv      *httpserver.Server
}

func newApp(cfg config.Config, logger *slog.Logger, build httpserver.BuildInfo) *app {
	m := metrics.New()

	registry := debate.NewRegistry(debate.RegistryConfig{
		MaxParticipants: cfg.MaxParticipants,
		MaxSessions:     cfg.MaxSessions,
		Metrics:         m,
		Logger:          logger,
	})
	hub := signaling.NewHub(signaling.HubConfig{
		Sessions:          registry,
		SendQueueMessages: cfg.RouteSendQueueMessages,
		Metrics:           m,
		Logger:            logger,
	})

	srv := httpserver.New(cfg, logger, build)
	mux := srv.Mux()

	api.NewHandler(registry, hub, logger).RegisterRoutes(mux)

	signaling.NewServer(signaling.Config{
		Hub:                  hub,
		Metrics:              m,
		Logger:               logger,
		AllowedOrigins:       cfg.AllowedOrigins,
		IdentifyTimeout:      cfg.SignalingIdentifyTimeout,
		IdleTimeout:          cfg.SignalingWSIdleTimeout,
		PingInterval:         cfg.SignalingWSPingInterval,
		MaxMessageBytes:      cfg.MaxSignalingMessageBytes,
		MaxMessagesPerSecond: cfg.MaxSignalingMessagesPerSecond,
		ValidatePayloads:     cfg.ValidateSignalingPayloads,
	}).RegisterRoutes(mux)

	mux.Handle("GET /metrics", metricsHandler(m, registry, hub))

	return &app{
		cfg:      cfg,
		log:      logger,
		metrics:  m,
		registry: registry,
		hub:      hub,
		srv:      srv,
	}
}

func metricsHandler(m *metrics.Metrics, registry *debate.Registry, hub *signaling.Hub) http.Handler {
	return metrics.PrometheusHandler(m,
		metrics.GaugeFunc("active_debates", "Debates currently held in the registry.", registry.ActiveSessions),
		metrics.GaugeFunc("active_routes", "Attached signaling routes.", hub.ActiveRoutes),
		metrics.GaugeFunc("known_users", "User profiles in the user store.", registry.Users().Len),
	)
}
