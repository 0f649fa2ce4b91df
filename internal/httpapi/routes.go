package httpapi

import (
	"net/http"

	"github.com/PixelOverkilll/last-man-standing-sub000/internal/config"
	"github.com/PixelOverkilll/last-man-standing-sub000/internal/hub"
	"github.com/PixelOverkilll/last-man-standing-sub000/internal/registry"
	"github.com/PixelOverkilll/last-man-standing-sub000/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func SetupRoutes(h *hub.Hub, reg *registry.Registry, cfg config.Config, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/lobbies/{code}", LobbyStatus(h))
	r.Get("/ws", ws.Handler(h, reg, cfg, log))
	r.Handle("/metrics", promhttp.Handler())
	return r
}
