package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"

	"alertd/internal/config"
	"alertd/internal/control"
	"alertd/internal/metrics"
	"alertd/internal/notifier"
	logx "alertd/pkg/logx"
)

// Deps are the handlers' collaborators.
type Deps struct {
	Ctl     *control.Controller
	Metrics *metrics.Metrics
}

const maxBody = 1 << 20

// Router builds the local API.
func Router(cfg Config, d Deps, log logx.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(log))
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := corslib.New(corslib.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	})
	r.Use(c.Handler)

	if cfg.RatePerSec > 0 {
		r.Use(rateLimit(cfg.RatePerSec))
	}

	h := handlers{ctl: d.Ctl}
	r.Route("/api", func(r chi.Router) {
		r.Post("/notification", h.notify)
		r.Get("/status", h.status)
		r.Get("/config", h.getConfig)
		r.Put("/config", h.updateConfig)
		r.Post("/test-notification", h.testNotification)
		r.Post("/test-connection", h.testConnection)
		r.Post("/clear-processed", h.clearProcessed)
		r.Get("/history", h.history)
	})

	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}
	if cfg.Debug {
		r.Mount("/debug", middleware.Profiler())
	}
	return r
}

type handlers struct {
	ctl *control.Controller
}

func (h handlers) notify(w http.ResponseWriter, r *http.Request) {
	var req control.NotifyRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}
	id, err := h.ctl.Notify(r.Context(), req)
	switch {
	case errors.Is(err, control.ErrBadRequest):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "title is required"})
		return
	case err != nil:
		writeJSON(w, statusFor(err), map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Notification sent", "id": id})
}

func (h handlers) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ctl.Status())
}

func (h handlers) getConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ctl.GetConfig())
}

func (h handlers) updateConfig(w http.ResponseWriter, r *http.Request) {
	var patch config.PollPatch
	if err := decodeStrict(r, &patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		return
	}
	pc, err := h.ctl.UpdateConfig(r.Context(), patch)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "config": pc})
}

func (h handlers) testNotification(w http.ResponseWriter, r *http.Request) {
	id, err := h.ctl.TestNotification(r.Context())
	if err != nil {
		writeJSON(w, statusFor(err), map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
}

func (h handlers) testConnection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctl.TestAPIConnection(r.Context()))
}

func (h handlers) clearProcessed(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ctl.ClearProcessed())
}

func (h handlers) history(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, 1000)
	}
	items := h.ctl.History(r.Context(), limit)
	if items == nil {
		items = []notifier.HistoryItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func decode(r *http.Request, v any) error {
	return decodeBody(r, v, false)
}

// decodeStrict rejects unknown fields.
func decodeStrict(r *http.Request, v any) error {
	return decodeBody(r, v, true)
}

func decodeBody(r *http.Request, v any, strict bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, control.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, notifier.ErrQueueFull), errors.Is(err, notifier.ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func accessLog(log logx.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				logx.String("method", r.Method),
				logx.String("path", r.URL.Path),
				logx.Int("status", ww.Status()),
				logx.Duration("took", time.Since(start)),
				logx.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
