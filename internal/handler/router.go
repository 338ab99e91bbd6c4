package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the standard middleware, the health check and the task API.
// Extra middlewares run after RequestID and RealIP.
func NewRouter(h *TaskHandler, extra ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(extra...)
	r.Use(middleware.Recoverer)
	r.Use(middleware.CleanPath)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/tasks", h.Routes())
	})

	return r
}
