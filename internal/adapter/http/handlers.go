package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hooktrace/hooktrace/internal/adapter/ws"
	"github.com/hooktrace/hooktrace/internal/domain"
	"github.com/hooktrace/hooktrace/internal/domain/event"
	"github.com/hooktrace/hooktrace/internal/middleware"
	"github.com/hooktrace/hooktrace/internal/port/factstore"
	"github.com/hooktrace/hooktrace/internal/service"
)

const (
	defaultDays = 1

	defaultUserLimit    = 30
	defaultToolLimit    = 15
	defaultProjectLimit = 15

	// ingestBodyLimit bounds event payloads. Hook records are small;
	// a transcript never travels with them.
	ingestBodyLimit = 1 << 20
)

// Handlers bundles the HTTP handlers and their dependencies.
type Handlers struct {
	ingest      *service.IngestService
	analytics   *service.AnalyticsService
	store       factstore.Store
	hub         *ws.Hub
	defaultTeam string
}

// NewHandlers creates the handler set. hub may be nil when the live
// feed is disabled.
func NewHandlers(ingest *service.IngestService, analytics *service.AnalyticsService, store factstore.Store, hub *ws.Hub, defaultTeam string) *Handlers {
	return &Handlers{
		ingest:      ingest,
		analytics:   analytics,
		store:       store,
		hub:         hub,
		defaultTeam: defaultTeam,
	}
}

// team resolves the team for a request: X-Team-ID header, then the
// team_id query parameter, then the configured default.
func (h *Handlers) team(r *http.Request) string {
	if t := middleware.TeamFromContext(r.Context(), ""); t != "" {
		return t
	}
	if t := r.URL.Query().Get("team_id"); t != "" {
		return t
	}
	return h.defaultTeam
}

func (h *Handlers) days(r *http.Request) int {
	d := queryInt(r, "days", defaultDays)
	if d < 0 {
		d = defaultDays
	}
	return d
}

// HandleIngest receives one raw hook record, classifies it and appends
// it to the fact store. Accepted events answer 202 regardless of what
// happens downstream of the store.
func (h *Handlers) HandleIngest(w http.ResponseWriter, r *http.Request) {
	raw, ok := readJSON[event.RawRecord](w, r, ingestBodyLimit)
	if !ok {
		return
	}

	eventType, _ := raw["event_type"].(string)
	if eventType == "" {
		writeError(w, http.StatusBadRequest, "event_type is required")
		return
	}

	ev, err := h.ingest.Ingest(r.Context(), eventType, raw)
	if err != nil {
		if errors.Is(err, domain.ErrUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "event store unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, "could not record event")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":   "ok",
		"event_id": ev.ID,
	})
}

// HandleHealth reports liveness and the current fact count.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.Count(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"events": n,
	})
}

// HandleWS upgrades to the live event feed.
func (h *Handlers) HandleWS(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeError(w, http.StatusNotFound, "live feed disabled")
		return
	}
	h.hub.HandleWS(w, r)
}

func (h *Handlers) HandleOverview(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.analytics.Overview(r.Context(), h.team(r), h.days(r)))
}

func (h *Handlers) HandleUserStats(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultUserLimit)
	out := h.analytics.UserStats(r.Context(), h.team(r), h.days(r), limit)
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
}

func (h *Handlers) HandleToolStats(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultToolLimit)
	out := h.analytics.ToolStats(r.Context(), h.team(r), h.days(r), limit)
	writeJSON(w, http.StatusOK, map[string]any{"tools": out})
}

func (h *Handlers) HandleToolTrend(w http.ResponseWriter, r *http.Request) {
	out := h.analytics.ToolTrend(r.Context(), h.team(r), h.days(r))
	writeJSON(w, http.StatusOK, map[string]any{"trend": out})
}

func (h *Handlers) HandleTimeline(w http.ResponseWriter, r *http.Request) {
	out := h.analytics.Timeline(r.Context(), h.team(r), queryInt(r, "days", 7))
	writeJSON(w, http.StatusOK, map[string]any{"timeline": out})
}

func (h *Handlers) HandleHeatmap(w http.ResponseWriter, r *http.Request) {
	out := h.analytics.Heatmap(r.Context(), h.team(r), h.days(r))
	writeJSON(w, http.StatusOK, map[string]any{"heatmap": out})
}

func (h *Handlers) HandleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.analytics.Sessions(r.Context(), h.team(r), h.days(r)))
}

func (h *Handlers) HandleStopReasons(w http.ResponseWriter, r *http.Request) {
	out := h.analytics.StopReasons(r.Context(), h.team(r), h.days(r))
	writeJSON(w, http.StatusOK, map[string]any{"stop_reasons": out})
}

func (h *Handlers) HandleLimitsByHour(w http.ResponseWriter, r *http.Request) {
	out := h.analytics.LimitsByHour(r.Context(), h.team(r), h.days(r))
	writeJSON(w, http.StatusOK, map[string]any{"hours": out})
}

func (h *Handlers) HandleProjects(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultProjectLimit)
	out := h.analytics.Projects(r.Context(), h.team(r), h.days(r), limit)
	writeJSON(w, http.StatusOK, map[string]any{"projects": out})
}

func (h *Handlers) HandleMonthlyActive(w http.ResponseWriter, r *http.Request) {
	out := h.analytics.MonthlyActive(r.Context(), h.team(r))
	writeJSON(w, http.StatusOK, map[string]any{"months": out})
}

func (h *Handlers) HandleAdoption(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.analytics.Adoption(r.Context(), h.team(r), h.days(r)))
}

func (h *Handlers) HandleUserTopTools(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	out := h.analytics.UserTopTools(r.Context(), h.team(r), userID, h.days(r))
	writeJSON(w, http.StatusOK, map[string]any{"tools": out})
}

func (h *Handlers) HandleUserTimeline(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	out := h.analytics.UserTimeline(r.Context(), h.team(r), userID, h.days(r))
	writeJSON(w, http.StatusOK, map[string]any{"timeline": out})
}
