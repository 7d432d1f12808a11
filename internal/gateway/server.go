package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler builds the route tree.
func (g *Gateway) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", g.handleHealth())
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{}))

	auth := g.config.Auth.IsConfigured()
	if !auth {
		g.logger.Warn("gateway: no authentication configured, /status is disabled")
	}

	r.Route("/v1", func(r chi.Router) {
		if auth {
			r.Use(authMiddleware(g.config.Auth, g.logger))
		}
		r.Post("/generate", g.handleGenerate())
		r.Get("/stream", g.handleStream())
	})

	if auth {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(g.config.Auth, g.logger))
			r.Get("/status", g.handleStatus())
		})
	}

	return r
}
