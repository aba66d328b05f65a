package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/photo-moments/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	momentsHandler := handlers.NewMomentsHandler(s.organizer, s.retry)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Prompt interpretation
		r.Get("/prompt", handlers.Interpret)

		// Background clustering job
		r.Post("/moments/job", momentsHandler.StartJob)
		r.Delete("/moments/job", momentsHandler.CancelJob)
		r.Get("/moments/job", momentsHandler.JobStatus)
		r.Get("/moments/job/events", momentsHandler.JobEvents)

		// Clusters
		r.Get("/moments", momentsHandler.Snapshot)
		r.Get("/moments/stream", momentsHandler.Stream)
		r.Post("/moments/{key}/save", momentsHandler.Save)
	})
}
