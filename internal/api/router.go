package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Router(h *Handler, apiKey string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)
	r.Use(LoggingMiddleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("delivery-confirmation"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/twilio/incoming", h.TwilioIncoming)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			r.Use(apiKeyAuth(apiKey))

			r.Route("/customers", func(r chi.Router) {
				r.Post("/", h.CreateCustomer)
				r.Get("/", h.ListCustomers)
				r.Get("/{id}", h.GetCustomer)
				r.Put("/{id}", h.UpdateCustomer)
				r.Delete("/{id}", h.DeleteCustomer)
			})

			r.Route("/shipments", func(r chi.Router) {
				r.Post("/", h.CreateShipment)
				r.Get("/", h.ListShipments)
				r.Get("/{id}", h.GetShipment)
				r.Patch("/{id}/status", h.ChangeShipmentStatus)
				r.Get("/{id}/interactions", h.ListInteractions)
			})

			r.Route("/import", func(r chi.Router) {
				r.Post("/", h.Import)
				r.Post("/preview", h.ImportPreview)
				r.Get("/scheduler/status", h.SchedulerStatus)
				r.Post("/scheduler/start", h.SchedulerStart)
				r.Post("/scheduler/stop", h.SchedulerStop)
			})

			r.Post("/test/whatsapp", h.TestWhatsApp)
		})
	})

	return r
}
