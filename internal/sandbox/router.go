package sandbox

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/bc2as/internal/recordstore"
)

// NewRouter creates a chi router serving the backend API subset. Every route
// except login requires a session.
func NewRouter(svc *Service) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody("Sinatra::NotFound"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
	})

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/users/{username}/login", h.Login)

	r.Group(func(r chi.Router) {
		r.Use(SessionMiddleware(svc))

		r.Get("/repositories", h.ListRepositories)
		r.Post("/repositories", h.CreateRepository)

		r.Route("/repositories/{repoID}", func(r chi.Router) {
			r.Get("/", h.GetRepository)
			r.Get("/find_by_id/archival_objects", h.FindByID)

			r.Post("/resources", h.CreateRecord(recordstore.KindResource))
			r.Get("/resources/{id}", h.GetRecord(recordstore.KindResource))
			r.Post("/resources/{id}", h.UpdateRecord(recordstore.KindResource))

			r.Post("/archival_objects", h.CreateRecord(recordstore.KindArchivalObject))
			r.Get("/archival_objects/{id}", h.GetRecord(recordstore.KindArchivalObject))
			r.Post("/archival_objects/{id}", h.UpdateRecord(recordstore.KindArchivalObject))
			r.Post("/archival_objects/{id}/children", h.AddChildren)
		})
	})

	return r
}
