package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func RegisterNotificationRoutes(r chi.Router, h *NotifyHandler, auth func(http.Handler) http.Handler) {
	r.Route("/api/notifications", func(r chi.Router) {
		r.Use(auth)
		r.Get("/rent-due", h.RentDue)
		r.Get("/contracts-expiring", h.ContractsExpiring)
		r.Get("/reminders", h.Reminders)
	})
}
