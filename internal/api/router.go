package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/yegors/tracon-sim/pkg/logger"
)

// Router wires the handlers, the WebSocket endpoint and the static UI
type Router struct {
	handler   *Handler
	websocket http.HandlerFunc
	static    http.Handler
	logger    *logger.Logger
}

// NewRouter creates a router. ws and static may be nil.
func NewRouter(h *Handler, ws http.HandlerFunc, static http.Handler, log *logger.Logger) *Router {
	return &Router{handler: h, websocket: ws, static: static, logger: log.Named("api")}
}

// Routes returns the HTTP handler
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(rt.requestLogger)
	r.Use(corsMiddleware)

	h := rt.handler
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.GetHealth)
		r.Get("/snapshot", h.GetSnapshot)
		r.Get("/score", h.GetScore)

		r.Route("/aircraft", func(r chi.Router) {
			r.Get("/", h.GetAllAircraft)
			r.Post("/", h.CreateAircraft)
			r.Get("/{id}", h.GetAircraft)
			r.Delete("/{id}", h.RemoveAircraft)
			r.Post("/{id}/commands", h.IssueCommand)
		})

		r.Route("/session", func(r chi.Router) {
			r.Post("/pause", h.PauseSession)
			r.Post("/resume", h.ResumeSession)
			r.Post("/end", h.EndSession)
			r.Put("/time-scale", h.SetTimeScale)
		})

		r.Get("/sessions", h.GetSessions)
		r.Get("/sessions/{id}/alerts", h.GetSessionAlerts)
	})

	if rt.websocket != nil {
		r.Get("/ws", rt.websocket)
	}
	if rt.static != nil {
		r.Handle("/*", rt.static)
	}
	return r
}

func (rt *Router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		rt.logger.Debug("HTTP request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", ww.Status()),
			logger.Duration("duration", time.Since(start)),
			logger.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
