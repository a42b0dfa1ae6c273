package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"interview-turn-service/internal/app"
)

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) http.Handler {
	h := newHandler(application)
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", h.readiness)

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Get("/speech", h.speechInfo)

		r.Route("/recordings", func(r chi.Router) {
			r.Post("/", h.startRecording)
			r.Get("/current", h.currentRecording)
			r.Delete("/current", h.stopRecording)
			r.Post("/current/fragments", h.pushFragments)
			r.Post("/current/errors", h.reportError)
			r.Get("/current/stream", h.stream)
		})

		r.Route("/diagram", func(r chi.Router) {
			r.Put("/manual", h.setManualImage)
			r.Delete("/manual", h.clearManualImage)
			r.Put("/surface", h.updateSurface)
			r.Delete("/surface", h.clearSurface)
		})

		r.Route("/queue", func(r chi.Router) {
			r.Get("/head", h.queueHead)
			r.Post("/ack", h.queueAck)
		})

		r.Route("/turns", func(r chi.Router) {
			r.Get("/", h.listTurns)
			r.Post("/", h.runTurn)
		})
	})

	return r
}
