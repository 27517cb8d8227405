package app

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/exmoboty/starter/internal/handler"
	"github.com/exmoboty/starter/internal/middleware"
)

func (a *App) routes(ctx context.Context) http.Handler {
	authHandler := handler.NewAuthHandler(a.web, a.auth)
	resetHandler := handler.NewResetHandler(a.web, a.reset, a.sessions)
	accountHandler := handler.NewAccountHandler(a.web, a.account)
	pageHandler := handler.NewPageHandler(a.web, a.contact)
	healthHandler := handler.NewHealthHandler(a.pinger)

	limit := middleware.RateLimit(ctx, a.cfg.RateLimitRPS, a.cfg.RateLimitBurst)

	r := chi.NewRouter()
	r.Use(middleware.Logger(a.logger))
	r.Use(middleware.Metrics(a.metrics))

	r.Get("/health", healthHandler.HandleHealth)
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(http.NewCrossOriginProtection().Handler)
		r.Use(middleware.LoadSession(a.cookie, a.signer, a.sessions, a.logger))
		r.NotFound(pageHandler.HandleNotFound)

		r.Get("/", pageHandler.HandleHome)
		r.Get("/contact", pageHandler.HandleContactPage)
		r.With(limit).Post("/contact", pageHandler.HandleContact)
		r.Get("/logout", authHandler.HandleLogout)
		r.Post("/logout", authHandler.HandleLogout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RedirectIfAuthenticated("/"))
			r.Get("/signup", authHandler.HandleSignupPage)
			r.Get("/login", authHandler.HandleLoginPage)
			r.Get("/forgot", resetHandler.HandleForgotPage)
			r.Get("/reset/{token}", resetHandler.HandleResetPage)

			r.Group(func(r chi.Router) {
				r.Use(limit)
				r.Post("/signup", authHandler.HandleSignup)
				r.Post("/login", authHandler.HandleLogin)
				r.Post("/forgot", resetHandler.HandleForgot)
				r.Post("/reset/{token}", resetHandler.HandleReset)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth("/login"))
			r.Get("/account", accountHandler.HandleAccountPage)
			r.Post("/account/profile", accountHandler.HandleUpdateProfile)
			r.Post("/account/password", accountHandler.HandleUpdatePassword)
			r.Post("/account/delete", accountHandler.HandleDeleteAccount)
		})
	})

	return r
}
