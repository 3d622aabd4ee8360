package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"tunesync/internal/config"
	"tunesync/internal/logging"
	"tunesync/internal/runstate"
	"tunesync/internal/services"
	"tunesync/internal/supervisor"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	cfg    *config.Config

	listener net.Listener
	server   *http.Server
}

// SyncAccepted is the 202 response to a sync submission.
type SyncAccepted struct {
	RunID     string `json:"run_id"`
	StatusURL string `json:"status_url"`
}

// SyncStatus combines the run state with its derived progress.
type SyncStatus struct {
	State    runstate.RunState `json:"state"`
	Progress runstate.Progress `json:"progress"`
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
		cfg:    cfg,
	}
	token := strings.TrimSpace(cfg.Paths.APIToken)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.HandleFunc("/api/status", authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("/api/v1/sync", authMiddleware(token, srv.handleSync))
	mux.HandleFunc("/api/v1/sync/", authMiddleware(token, srv.handleSyncRun))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	runReq, err := buildRunRequest(req, s.cfg)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := services.WithRequestID(r.Context(), uuid.NewString())
	runID, err := s.daemon.sup.StartRun(runReq)
	if err != nil {
		if errors.Is(err, supervisor.ErrClosed) {
			s.writeError(w, http.StatusServiceUnavailable, "daemon shutting down")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logging.WithContext(ctx, s.log()).Info("sync accepted",
		logging.String(logging.FieldRunID, runID))

	s.writeJSON(w, http.StatusAccepted, SyncAccepted{
		RunID:     runID,
		StatusURL: "/api/v1/sync/" + runID,
	})
}

func (s *apiServer) handleSyncRun(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/sync/")
	if rest == "" {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}

	if runID, ok := strings.CutSuffix(rest, "/cancel"); ok {
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if strings.Contains(runID, "/") {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		if !s.daemon.sup.Cancel(runID) {
			s.writeError(w, http.StatusConflict, "run not found or already finished")
			return
		}
		s.writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID, "status": "cancelling"})
		return
	}

	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if strings.Contains(rest, "/") {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	state, ok := s.daemon.sup.GetStatus(rest)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	progress, _ := s.daemon.sup.GetProgress(rest)
	s.writeJSON(w, http.StatusOK, SyncStatus{State: state, Progress: progress})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return logging.NewComponentLogger(s.logger, "api-server")
	}
	return logging.NewNop()
}
