package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"storefront-auth/internal/config"
	"storefront-auth/internal/handler"
	"storefront-auth/internal/middleware"
)

func New(cfg *config.Config, authMiddleware *middleware.AuthMiddleware, authHandler *handler.AuthHandler) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/login", authHandler.Login)
			auth.Post("/signup", authHandler.Signup)
			auth.Post("/logout", authHandler.Logout)
			auth.Post("/refresh-token", authHandler.RefreshToken)
			auth.With(authMiddleware.RequireAuth).Get("/profile", authHandler.Profile)
		})

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(authMiddleware.RequireAuth, authMiddleware.RequireAdmin)
			admin.Get("/sessions", authHandler.Sessions)
		})
	})

	return r
}
