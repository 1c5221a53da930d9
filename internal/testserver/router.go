package testserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterConfig holds router configuration
type RouterConfig struct {
	// Dir is served as static files
	Dir    string
	State  State
	Logger *zap.SugaredLogger
}

// NewRouter creates the test server router: a few utility endpoints and the
// index directory as static files.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	handlers := NewHandlers(cfg.State, cfg.Logger)

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/healthz", handlers.Health)
	r.Get("/version", handlers.Version)

	files := http.FileServer(http.Dir(cfg.Dir))
	r.Get("/*", files.ServeHTTP)
	r.Head("/*", files.ServeHTTP)
	r.MethodNotAllowed(handlers.MethodNotAllowed)

	return r
}
