package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/Scotty108/cascadian/stores"
	"github.com/Scotty108/cascadian/types"
)

// Handlers holds the request handlers over the shared stores.
type Handlers struct {
	deps Deps
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

// HandleHealth reports liveness.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": "ok"})
}

// HandleLeaderboardRefresh runs one refresh. When CRON_SECRET is configured
// the caller must present it as a bearer token.
func (h *Handlers) HandleLeaderboardRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if h.deps.CronSecret != "" {
		auth := r.Header.Get("Authorization")
		if auth != "Bearer "+h.deps.CronSecret {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
	}
	if h.deps.Refresher == nil {
		writeError(w, http.StatusServiceUnavailable, "leaderboard refresh not configured")
		return
	}

	result := h.deps.Refresher.Refresh(r.Context())
	status := http.StatusOK
	if !result.Success {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, result)
}

// HandleDecisions lists logged decisions, filterable by status, source
// wallet, and condition id.
func (h *Handlers) HandleDecisions(w http.ResponseWriter, r *http.Request) {
	if h.deps.LogStore == nil {
		writeError(w, http.StatusServiceUnavailable, "log store not configured")
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	decisions := h.deps.LogStore.Query(stores.LogFilter{
		Status:       types.DecisionStatus(strings.ToLower(q.Get("status"))),
		SourceWallet: q.Get("wallet"),
		ConditionID:  q.Get("condition"),
		Limit:        limit,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "decisions": decisions})
}

// HandleAlerts lists alerts with priority counts.
func (h *Handlers) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	if h.deps.Alerts == nil {
		writeError(w, http.StatusServiceUnavailable, "alert store not configured")
		return
	}
	payload := map[string]any{
		"success": true,
		"counts":  h.deps.Alerts.CountByPriority(),
	}
	if r.URL.Query().Get("unread") == "true" {
		payload["alerts"] = h.deps.Alerts.Unread()
	} else {
		payload["alerts"] = h.deps.Alerts.All()
	}
	writeJSON(w, http.StatusOK, payload)
}

type alertActionRequest struct {
	ID  string `json:"id"`
	All bool   `json:"all"`
}

// HandleAlertsRead marks one alert (or all) as read.
func (h *Handlers) HandleAlertsRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if h.deps.Alerts == nil {
		writeError(w, http.StatusServiceUnavailable, "alert store not configured")
		return
	}
	var req alertActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.All {
		n := h.deps.Alerts.MarkAllRead()
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "marked": n})
		return
	}
	if !h.deps.Alerts.MarkRead(req.ID) {
		writeError(w, http.StatusNotFound, "unknown alert id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// HandleAlertsDismiss dismisses one alert.
func (h *Handlers) HandleAlertsDismiss(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if h.deps.Alerts == nil {
		writeError(w, http.StatusServiceUnavailable, "alert store not configured")
		return
	}
	var req alertActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if !h.deps.Alerts.Dismiss(req.ID) {
		writeError(w, http.StatusNotFound, "unknown alert id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// HandlePositions lists paper positions.
func (h *Handlers) HandlePositions(w http.ResponseWriter, r *http.Request) {
	if h.deps.Positions == nil {
		writeError(w, http.StatusServiceUnavailable, "position store not configured")
		return
	}
	var positions []types.PaperPosition
	if r.URL.Query().Get("open") == "true" {
		positions = h.deps.Positions.Open()
	} else {
		positions = h.deps.Positions.All()
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "positions": positions})
}

// HandleConsensus lists the engine's market trackers.
func (h *Handlers) HandleConsensus(w http.ResponseWriter, r *http.Request) {
	if h.deps.Engine == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "trackers": h.deps.Engine.Snapshot()})
}

// HandleMonitorStatus reports the price monitor counters.
func (h *Handlers) HandleMonitorStatus(w http.ResponseWriter, r *http.Request) {
	if h.deps.Monitor == nil {
		writeError(w, http.StatusServiceUnavailable, "monitor not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "monitor": h.deps.Monitor.Status()})
}
