package http

import (
	"net/http"
	"time"

	"github.com/Abdurahmanit/GroupProject/saved-service/internal/platform/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RequestObserver records per-route request metrics.
type RequestObserver interface {
	ObserveHTTP(route, method string, code int, d time.Duration)
}

func NewRouter(h *Handler, stream *StreamHandler, log logger.Logger, observer RequestObserver) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(log, observer))

	r.Get("/healthz", h.Healthz)

	r.Route("/api", func(r chi.Router) {
		r.Get("/session", h.GetSession)
		r.Post("/session", h.SignIn)
		r.Delete("/session", h.SignOut)

		r.Get("/properties/featured", h.Featured)
		r.Get("/properties/search", h.Search)
		r.Post("/assistant", h.Assist)

		r.Route("/saved", func(r chi.Router) {
			r.Get("/", h.GetSaved)
			r.Delete("/", h.Clear)
			r.Post("/toggle", h.Toggle)
			r.Get("/stream", stream.ServeHTTP)
			r.Get("/{id}", h.GetSavedStatus)
		})
	})
	return r
}

// RequestLogger logs every request with its status and latency.
func RequestLogger(log logger.Logger, observer RequestObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			log.Infow("http request",
				"method", r.Method,
				"route", route,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", elapsed,
				"request_id", middleware.GetReqID(r.Context()),
			)
			if observer != nil {
				observer.ObserveHTTP(route, r.Method, status, elapsed)
			}
		})
	}
}
