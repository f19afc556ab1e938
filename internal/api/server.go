// Package api exposes the core's HTTP surface: health, the leaderboard
// refresh entry point, and read-only views over the in-memory stores.
// Every response is {success: true, ...} or {success: false, error}.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/Scotty108/cascadian/copytrade"
	"github.com/Scotty108/cascadian/leaderboard"
	"github.com/Scotty108/cascadian/monitor"
	"github.com/Scotty108/cascadian/stores"
)

// Refresher runs one leaderboard refresh.
type Refresher interface {
	Refresh(ctx context.Context) *leaderboard.Result
}

// Deps are the server's collaborators. Nil fields disable their endpoints.
type Deps struct {
	LogStore  *stores.LogStore
	Alerts    *stores.AlertStore
	Positions *stores.PositionStore
	Monitor   *monitor.Monitor
	Engine    *copytrade.Engine
	Refresher Refresher

	// CronSecret guards the refresh endpoint when non-empty (bearer token).
	CronSecret string
}

// Server runs the HTTP API.
type Server struct {
	deps     Deps
	handlers *Handlers
	server   *http.Server
}

// NewServer builds the server on the given port.
func NewServer(port int, deps Deps) *Server {
	handlers := &Handlers{deps: deps}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.HandleHealth)
	mux.HandleFunc("/metrics", promhttp.Handler().ServeHTTP)
	mux.HandleFunc("/api/leaderboard/refresh", handlers.HandleLeaderboardRefresh)
	mux.HandleFunc("/api/decisions", handlers.HandleDecisions)
	mux.HandleFunc("/api/alerts", handlers.HandleAlerts)
	mux.HandleFunc("/api/alerts/read", handlers.HandleAlertsRead)
	mux.HandleFunc("/api/alerts/dismiss", handlers.HandleAlertsDismiss)
	mux.HandleFunc("/api/positions", handlers.HandlePositions)
	mux.HandleFunc("/api/consensus", handlers.HandleConsensus)
	mux.HandleFunc("/api/monitor/status", handlers.HandleMonitorStatus)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: leaderboard.RefreshTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{deps: deps, handlers: handlers, server: server}
}

// Start serves until Stop. Blocks.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("🌐 API server starting")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
