package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter собирает chi-router с базовыми middleware и маршрутами API.
func NewRouter(orders *OrdersHandler, webhook *WebhookHandler, health http.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))

	if health != nil {
		r.Method(http.MethodGet, "/healthz", health)
	}
	r.Get("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if orders != nil {
		orders.Register(r)
	}
	if webhook != nil {
		webhook.Register(r)
	}
	return r
}
