package handlers

import (
	"net/http"
	"time"

	"pricecomparator/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter mounts the widget page, the JSON API, the live streams and the
// metrics endpoint.
func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", h.PageHandler)
	r.Get("/healthz", h.HealthHandler)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", h.GetStateHandler)
		r.Put("/target", h.SetTargetHandler)
		r.Post("/target", h.SetTargetHandler)
	})

	r.Get("/stream", h.StreamHandler)
	r.Get("/ws", h.WebSocketHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Log.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("remote", r.RemoteAddr),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
