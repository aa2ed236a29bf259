package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/smartclips-editor/internal/media"
	"github.com/smartclips-editor/internal/service/editor"
	"github.com/smartclips-editor/internal/service/upload"
	"github.com/smartclips-editor/pkg/logger"
)

// RouterConfig contains router dependencies
type RouterConfig struct {
	Editor    *editor.Service
	Publisher *upload.Service
	Previews  *media.PreviewServer
	Logger    *logger.Logger

	// MaxUploadBytes caps multipart media uploads
	MaxUploadBytes int64
	// RequestTimeout must exceed the processing timeout so a commit can
	// finish degrading before the request is cut.
	RequestTimeout time.Duration
}

// NewRouter creates a new HTTP router
func NewRouter(cfg RouterConfig) *chi.Mux {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 90 * time.Second
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 500 << 20
	}
	h := &handlers{
		editor:    cfg.Editor,
		publisher: cfg.Publisher,
		maxUpload: cfg.MaxUploadBytes,
		log:       cfg.Logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(cfg.Logger))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(cfg.Editor))

	// Previews are streamed with range requests; no request timeout
	r.Mount("/preview", cfg.Previews.Routes())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.createSession)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", h.getSession)
				r.Delete("/", h.closeSession)
				r.Put("/mode", h.selectMode)

				r.Route("/recipe", func(r chi.Router) {
					r.Put("/trim", h.setTrim)
					r.Put("/speed", h.setSpeed)
					r.Put("/effect", h.setEffect)
					r.Put("/split-screen", h.setSplitScreen)
				})

				r.Post("/commit", h.commit)

				r.Route("/playback", func(r chi.Router) {
					r.Post("/events", h.deliverEvent)
					r.Post("/toggle", h.togglePlayback)
					r.Post("/seek", h.seek)
					r.Post("/mute", h.toggleMute)
				})

				r.Post("/publish", h.publish)
				r.Get("/history", h.history)
			})
		})
	})

	return r
}

// JSON response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health check handlers
func healthHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func readyHandler(svc *editor.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"status":   "ready",
			"sessions": svc.Len(),
		})
	}
}

// CORS middleware
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range, X-User-ID")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Range, Accept-Ranges, Content-Length")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Request logger middleware
func requestLogger(log *logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			log.Infow("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start).String(),
				"bytes", ww.BytesWritten(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
