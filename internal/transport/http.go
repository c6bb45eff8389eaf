package transport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/vasiliy-maslov/ecommerce-microservices/admin-service/internal/config"
)

// RouteRegistrar is implemented by every HTTP handler of the service.
type RouteRegistrar interface {
	RegisterRoutes(router chi.Router)
}

func NewRouter(cfg config.Config, handlers ...RouteRegistrar) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Group(func(api chi.Router) {
		if cfg.App.RequestTimeout > 0 {
			api.Use(middleware.Timeout(cfg.App.RequestTimeout))
		}
		if cfg.Auth.Enabled() {
			api.Use(BasicAuth("admin", cfg.Auth))
		}
		api.Use(middleware.AllowContentType("application/json"))

		for _, h := range handlers {
			h.RegisterRoutes(api)
		}
	})

	return r
}

// NewServer wraps the router with the timeouts used by every service binary.
func NewServer(cfg config.AppConfig, handler http.Handler) *http.Server {
	writeTimeout := 10 * time.Second
	if cfg.RequestTimeout+5*time.Second > writeTimeout {
		writeTimeout = cfg.RequestTimeout + 5*time.Second
	}

	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
	}
}
