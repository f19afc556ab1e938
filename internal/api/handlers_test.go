package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Scotty108/cascadian/leaderboard"
	"github.com/Scotty108/cascadian/stores"
	"github.com/Scotty108/cascadian/types"
)

type stubRefresher struct{ calls int }

func (s *stubRefresher) Refresh(context.Context) *leaderboard.Result {
	s.calls++
	return &leaderboard.Result{Success: true, Wallets: 3, RefreshedAt: time.Now().UTC()}
}

func testDeps() (Deps, *stubRefresher) {
	logStore := stores.NewLogStore(0)
	logStore.Append(types.Decision{ID: "d1", Status: types.StatusSimulated, SourceWallet: "0xabc", ConditionID: "c1"})
	logStore.Append(types.Decision{ID: "d2", Status: types.StatusSkipped, SourceWallet: "0xdef", ConditionID: "c2"})

	alerts := stores.NewAlertStore(0)
	alerts.Push(types.Alert{ID: "a1", Priority: types.PriorityHigh})

	ref := &stubRefresher{}
	return Deps{
		LogStore:   logStore,
		Alerts:     alerts,
		Positions:  stores.NewPositionStore(),
		Refresher:  ref,
		CronSecret: "s3cret",
	}, ref
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	deps, _ := testDeps()
	h := &Handlers{deps: deps}
	rec := httptest.NewRecorder()
	h.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["success"])
}

func TestRefreshRequiresBearer(t *testing.T) {
	deps, ref := testDeps()
	h := &Handlers{deps: deps}

	rec := httptest.NewRecorder()
	h.HandleLeaderboardRefresh(rec, httptest.NewRequest(http.MethodPost, "/api/leaderboard/refresh", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, ref.calls)

	req := httptest.NewRequest(http.MethodPost, "/api/leaderboard/refresh", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	h.HandleLeaderboardRefresh(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ref.calls)
}

func TestRefreshOpenWithoutSecret(t *testing.T) {
	deps, ref := testDeps()
	deps.CronSecret = ""
	h := &Handlers{deps: deps}
	rec := httptest.NewRecorder()
	h.HandleLeaderboardRefresh(rec, httptest.NewRequest(http.MethodPost, "/api/leaderboard/refresh", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ref.calls)
}

func TestRefreshRejectsGet(t *testing.T) {
	deps, _ := testDeps()
	h := &Handlers{deps: deps}
	rec := httptest.NewRecorder()
	h.HandleLeaderboardRefresh(rec, httptest.NewRequest(http.MethodGet, "/api/leaderboard/refresh", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDecisionsFilter(t *testing.T) {
	deps, _ := testDeps()
	h := &Handlers{deps: deps}
	rec := httptest.NewRecorder()
	h.HandleDecisions(rec, httptest.NewRequest(http.MethodGet, "/api/decisions?status=skipped", nil))
	body := decode(t, rec)
	decisions := body["decisions"].([]any)
	require.Len(t, decisions, 1)
	assert.Equal(t, "d2", decisions[0].(map[string]any)["ID"])
}

func TestAlertsReadAndDismiss(t *testing.T) {
	deps, _ := testDeps()
	h := &Handlers{deps: deps}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/alerts/read", strings.NewReader(`{"id":"a1"}`))
	h.HandleAlertsRead(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/alerts/dismiss", strings.NewReader(`{"id":"missing"}`))
	h.HandleAlertsDismiss(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, decode(t, rec)["success"])
}

func TestMonitorStatusUnconfigured(t *testing.T) {
	deps, _ := testDeps()
	h := &Handlers{deps: deps}
	rec := httptest.NewRecorder()
	h.HandleMonitorStatus(rec, httptest.NewRequest(http.MethodGet, "/api/monitor/status", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
