package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/lostfound-sync/internal/config"
	"github.com/lostfound-sync/internal/domain"
	"github.com/lostfound-sync/internal/transport/http/handler"
	appmiddleware "github.com/lostfound-sync/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router. ctx bounds background work such as the
// rate limiter's cleanup loop.
func NewRouter(ctx context.Context, cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	if cfg.TrustProxyHeaders {
		// Rewrites RemoteAddr, which the mount limiter keys on.
		r.Use(chimiddleware.RealIP)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authMw := appmiddleware.DenyAll
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
	}

	mountRL := appmiddleware.NewRateLimiter(ctx, rate.Limit(cfg.MountRate), cfg.MountBurst)

	healthH := handler.NewHealthHandler(cfg.Backend, deps.Health)
	screenH := handler.NewScreenHandler(handler.ScreenDeps{
		Notifications:  deps.Notifications,
		Items:          deps.Items,
		Feed:           deps.Feed,
		Images:         deps.Images,
		FetchLimit:     cfg.FetchLimit,
		SweepInterval:  cfg.SweepInterval,
		NearRadiusKm:   cfg.NearRadiusKm,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)

		r.Group(func(r chi.Router) {
			r.Use(mountRL.Limit)
			r.Use(authMw)
			r.Use(appmiddleware.RequireRole(domain.RoleAuthenticated, domain.RoleServiceRole))

			r.Get("/screens/notifications", screenH.Notifications)
			r.Get("/screens/items", screenH.Items)
		})
	})

	return r
}
