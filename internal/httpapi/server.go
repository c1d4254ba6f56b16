// Package httpapi exposes the observation and manual-call surface the spec
// places outside the core: status/health for dashboards, Prometheus metrics,
// and POST endpoints standing in for the hall/cab button poller (spec §1
// treats the poller itself as an external collaborator; these routes are
// where a real poller, or a human operator, injects button_pressed events).
// Grounded on the teacher's internal/http/server.go (http.Server with
// graceful Shutdown, a JSON response helper, promhttp.Handler mounted
// alongside the API) trimmed to this system's smaller surface.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/slavakukuyev/elevator-fleet/internal/backup"
	"github.com/slavakukuyev/elevator-fleet/internal/constants"
	"github.com/slavakukuyev/elevator-fleet/internal/domain"
)

// Node is the subset of *cluster.Node the HTTP surface drives.
type Node interface {
	Status() domain.LiftStatus
	QueueDepth() int
	Backup() backup.Snapshot
	Peers() map[string]string
	NewButtonOrder(floor domain.Floor, buttonType domain.ButtonType)
	NewCabOrder(floor domain.Floor)
}

// Server is the node's HTTP observation and manual-call surface.
type Server struct {
	node       Node
	floorCount int
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds a Server bound to addr, driving node.
func NewServer(addr string, floorCount int, node Node, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", constants.ComponentHTTPServer))

	s := &Server{node: node, floorCount: floorCount, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/hall-calls", s.handleHallCall)
	mux.HandleFunc("/cab-calls", s.handleCabCall)
	mux.HandleFunc("/ws/status", s.handleWatchStatus)
	mux.Handle("/metrics", promhttp.Handler())

	handler := Chain(
		RecoveryMiddleware(logger),
		CorrelationIDMiddleware(),
		LoggingMiddleware(logger),
	)(mux)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
	return s
}

// Start begins serving; it blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("http observation surface listening", slog.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", constants.ContentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusResponse is the dashboard-facing snapshot of one node.
type statusResponse struct {
	Lift          domain.LiftStatus `json:"lift"`
	Queue         int               `json:"queue_depth"`
	Peers         map[string]string `json:"peers"`
	Backup        backup.Snapshot   `json:"watchdog_backup"`
	Ready         bool              `json:"ready"`
	AtTopFloor    bool              `json:"at_top_floor"`
	AtBottomFloor bool              `json:"at_bottom_floor"`
}

// buildStatus snapshots the node for both the polling /status handler and
// the /ws/status push loop, deriving the dashboard's ready/at-limit
// indicators from the lift's own status.
func (s *Server) buildStatus() statusResponse {
	lift := s.node.Status()
	return statusResponse{
		Lift:          lift,
		Queue:         s.node.QueueDepth(),
		Peers:         s.node.Peers(),
		Backup:        s.node.Backup(),
		Ready:         lift.IsReady(),
		AtTopFloor:    lift.IsAtTopFloor(),
		AtBottomFloor: lift.IsAtBottomFloor(),
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.buildStatus())
}

type hallCallRequest struct {
	Floor     int    `json:"floor"`
	Direction string `json:"direction"` // "up" or "down"
}

// handleHallCall stands in for a hall button poller's button_pressed(hall_up|hall_down, floor).
func (s *Server) handleHallCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req hallCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var buttonType domain.ButtonType
	switch req.Direction {
	case "up":
		buttonType = domain.ButtonHallUp
	case "down":
		buttonType = domain.ButtonHallDown
	default:
		http.Error(w, "direction must be \"up\" or \"down\"", http.StatusBadRequest)
		return
	}

	floor, ferr := domain.NewFloorWithValidation(req.Floor)
	if ferr != nil {
		http.Error(w, ferr.Error(), http.StatusBadRequest)
		return
	}
	if err := domain.IsLegalButton(buttonType, floor, s.floorCount); err != nil {
		http.Error(w, fmt.Sprintf("%s is illegal at floor %d: %s", buttonType, req.Floor, err), http.StatusUnprocessableEntity)
		return
	}

	s.node.NewButtonOrder(floor, buttonType)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "auction started"})
}

type cabCallRequest struct {
	Floor int `json:"floor"`
}

// handleCabCall stands in for this node's cab button poller's button_pressed(cab, floor).
func (s *Server) handleCabCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req cabCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	floor, ferr := domain.NewFloorWithValidation(req.Floor)
	if ferr != nil {
		http.Error(w, ferr.Error(), http.StatusBadRequest)
		return
	}
	if err := domain.IsLegalButton(domain.ButtonCab, floor, s.floorCount); err != nil {
		http.Error(w, fmt.Sprintf("floor %d is out of range: %s", req.Floor, err), http.StatusUnprocessableEntity)
		return
	}

	s.node.NewCabOrder(floor)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cab order accepted"})
}
