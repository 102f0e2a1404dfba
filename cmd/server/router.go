package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/funnelkit/provision-api/internal/api"
	apimiddleware "github.com/funnelkit/provision-api/internal/api/middleware"
)

// setupRouter wires the middleware chain and routes.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(apimiddleware.TraceMiddleware)

	studentHandler := api.NewStudentHandler(app.submitter, app.validator, app.logger)
	systemHandler := api.NewSystemHandler(app.mode, app.queue, app.logStore, app.monitor, app.validator, app.logger)
	authMiddleware := apimiddleware.NewAuthMiddleware(app.config.Auth.JWTSecret)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Post("/students", studentHandler.CreateStudent)

			r.Get("/system/mode", systemHandler.GetMode)
			r.Get("/system/metrics", systemHandler.GetMetrics)
			r.Get("/system/logs", systemHandler.GetLogs)
			r.Get("/system/health", systemHandler.GetHealth)

			// Mode switching is the kill switch; admins only.
			r.Group(func(r chi.Router) {
				r.Use(authMiddleware.RequireRole("admin"))
				r.Post("/system/mode", systemHandler.UpdateMode)
			})
		})
	})

	// Liveness probe for load balancers; no auth, no database.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
