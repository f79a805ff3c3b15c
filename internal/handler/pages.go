package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is satisfied by anything that can report storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PageHandler serves the pages that need no service: the home page and the
// health check.
type PageHandler struct {
	render *Renderer
	db     Pinger
	logger *slog.Logger
}

func NewPageHandler(render *Renderer, db Pinger, logger *slog.Logger) *PageHandler {
	return &PageHandler{render: render, db: db, logger: logger}
}

// HandleHome serves the landing page.
//
// HTTP: GET /
func (h *PageHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	h.render.Render(w, r, http.StatusOK, "home", PageData{Title: "Home"})
}

// HandleHealth reports whether the database answers.
//
// HTTP: GET /healthz
func (h *PageHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Error("health check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
