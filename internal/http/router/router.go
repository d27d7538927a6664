package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/shopcore/shopcore-backend/internal/config"
	"github.com/shopcore/shopcore-backend/internal/http/handler"
	"github.com/shopcore/shopcore-backend/internal/http/middleware"
	"github.com/shopcore/shopcore-backend/internal/http/response"
)

// ReadinessProbe reports whether a downstream dependency is reachable.
type ReadinessProbe func(ctx context.Context) error

type Dependencies struct {
	Auth     *handler.AuthHandler
	Verifier middleware.TokenVerifier
	Probes   map[string]ReadinessProbe
}

func New(cfg *config.Config, deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, req *http.Request) {
		response.JSON(w, req, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Get("/health/ready", readinessHandler(deps.Probes))

	apiLimiter := middleware.NewRateLimiter(cfg.APIRateLimitRPM, time.Minute)
	authLimiter := middleware.NewRateLimiter(cfg.AuthRateLimitRPM, time.Minute)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(apiLimiter.Middleware())

		api.Route("/auth", func(auth chi.Router) {
			auth.Group(func(pub chi.Router) {
				pub.Use(authLimiter.Middleware())
				pub.Post("/register", deps.Auth.Register)
				pub.Post("/verify/confirm", deps.Auth.VerifyConfirm)
				pub.Post("/login", deps.Auth.Login)
				pub.Post("/refresh", deps.Auth.Refresh)
			})

			auth.Group(func(priv chi.Router) {
				priv.Use(middleware.RequireAuth(deps.Verifier))
				priv.Post("/logout", deps.Auth.Logout)
				priv.Post("/logout-all", deps.Auth.LogoutAll)
				priv.Post("/logout-device", deps.Auth.LogoutDevice)
				priv.Get("/sessions/status", deps.Auth.SessionsStatus)
			})
		})
	})

	if cfg.OTELTracesEnabled {
		return otelhttp.NewHandler(r, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
				return req.Method + " " + req.URL.Path
			}))
	}
	return r
}

func readinessHandler(probes map[string]ReadinessProbe) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()

		checks := make(map[string]string, len(probes))
		healthy := true
		for name, probe := range probes {
			if err := probe(ctx); err != nil {
				checks[name] = "unreachable"
				healthy = false
				continue
			}
			checks[name] = "ok"
		}
		if !healthy {
			response.Error(w, req, http.StatusServiceUnavailable, "NOT_READY", "a dependency is unreachable", map[string]any{"checks": checks})
			return
		}
		response.JSON(w, req, http.StatusOK, map[string]any{"status": "ready", "checks": checks})
	}
}
