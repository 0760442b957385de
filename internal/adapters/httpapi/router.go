// Package httpapi is the HTTP adapter: it maps the REST surface onto the
// event and RSVP use cases and translates domain errors to status codes.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires all routes. The live handler serves websocket capacity
// subscriptions and may be nil when the live feed is disabled.
func NewRouter(h *Handler, live http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health)

	r.Route("/events", func(r chi.Router) {
		r.Post("/", h.CreateEvent)
		r.Get("/", h.ListEvents)

		r.Route("/{eventID}", func(r chi.Router) {
			r.Get("/", h.GetEvent)
			r.Delete("/", h.DeleteEvent)
			r.Put("/policy", h.UpdatePolicy)
			r.Get("/capacity", h.GetCapacity)
			r.Post("/rsvp", h.SetRSVP)
			r.Post("/attendees/bulk", h.BulkAdd)
			r.Get("/attendees", h.ListAttendees)
			r.Delete("/attendees/{attendeeID}", h.RemoveAttendee)
			r.Get("/waitlist", h.GetWaitlist)
			r.Get("/waitlist/position", h.GetWaitlistPosition)
			r.Post("/promote", h.PromoteNext)
		})
	})

	if live != nil {
		r.Get("/ws/events/{eventID}", live.ServeHTTP)
	}

	return r
}
