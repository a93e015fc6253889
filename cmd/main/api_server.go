package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"
)

const (
	actionShutdown = "shutdown"
	actionRestart  = "restart"
)

// ServerAPI serves configuration, build information and process control.
type ServerAPI struct {
	cm         *ConfigManager
	actionChan chan string
	logger     *slog.Logger
	started    time.Time
}

// VersionInfo is the body of GET /api/server/version.
type VersionInfo struct {
	Version       string    `json:"version"`
	Commit        string    `json:"commit"`
	BuildDate     string    `json:"build_date"`
	GoVersion     string    `json:"go_version"`
	StartedAt     time.Time `json:"started_at"`
	UptimeSeconds int64     `json:"uptime_seconds"`
}

// ConfigUpdateResponse is the body of PUT /api/server/config.
type ConfigUpdateResponse struct {
	Config          Config `json:"config"`
	RestartRequired bool   `json:"restart_required"`
}

func NewServerAPI(cm *ConfigManager, actionChan chan string, logger *slog.Logger) *ServerAPI {
	return &ServerAPI{
		cm:         cm,
		actionChan: actionChan,
		logger:     logger,
		started:    time.Now(),
	}
}

func (a *ServerAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/server/config", a.handleConfig)
	mux.HandleFunc("/api/server/version", a.handleVersion)
	mux.HandleFunc("/api/server/shutdown", a.handleShutdown)
	mux.HandleFunc("/api/server/restart", a.handleRestart)
}

// handleConfig returns the configuration, or merges a partial JSON document
// into it. Engine settings apply to the next render; listener and storage
// settings are reported as needing a restart.
func (a *ServerAPI) handleConfig(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPut) || !requireScope(w, r, "server:config") {
		return
	}
	if r.Method == http.MethodGet {
		respondWithJSON(w, http.StatusOK, a.cm.Get())
		return
	}

	body := http.MaxBytesReader(w, r.Body, a.cm.Get().Server.MaxBodyBytes)
	cfg, restart, err := a.cm.Patch(body)
	if err != nil {
		if errors.Is(err, errInvalidPatch) {
			respondDecodeError(w, err)
			return
		}
		a.logger.Warn("Rejected configuration update", "error", err)
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Failed to update configuration: %v", err))
		return
	}

	a.logger.Info("Configuration updated via API", "restart_required", restart)
	respondWithJSON(w, http.StatusOK, ConfigUpdateResponse{Config: cfg, RestartRequired: restart})
}

func (a *ServerAPI) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) || !requireScope(w, r, "stats:read") {
		return
	}
	respondWithJSON(w, http.StatusOK, VersionInfo{
		Version:       Version,
		Commit:        Commit,
		BuildDate:     BuildDate,
		GoVersion:     runtime.Version(),
		StartedAt:     a.started.UTC(),
		UptimeSeconds: int64(time.Since(a.started).Seconds()),
	})
}

// handleHealthCheck is unauthenticated and reports only liveness.
func (a *ServerAPI) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *ServerAPI) handleShutdown(w http.ResponseWriter, r *http.Request) {
	a.sendAction(w, r, actionShutdown, "Server is shutting down...")
}

func (a *ServerAPI) handleRestart(w http.ResponseWriter, r *http.Request) {
	a.sendAction(w, r, actionRestart, "Server is restarting...")
}

// sendAction answers before queueing the action, since the action closes the
// listener serving this request.
func (a *ServerAPI) sendAction(w http.ResponseWriter, r *http.Request, action, message string) {
	if !allowMethods(w, r, http.MethodPost) || !requireScope(w, r, "server:control") {
		return
	}

	a.logger.Warn("Server action requested", "action", action, "remote_addr", getClientIP(r))
	respondWithJSON(w, http.StatusAccepted, map[string]string{"message": message})

	go func() {
		a.actionChan <- action
	}()
}
