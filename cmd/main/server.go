package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/CTAG07/Sundew/pkg/contexts"
	"github.com/CTAG07/Sundew/pkg/engine"
)

type Server struct {
	cm          *ConfigManager
	db          *sql.DB
	logger      *slog.Logger
	proc        *engine.Processor
	store       *contexts.Store
	authAPI     *AuthAPI
	renderAPI   *RenderAPI
	contextsAPI *ContextsAPI
	statsAPI    *StatsAPI
	serverAPI   *ServerAPI
	renderMux   *http.ServeMux
	apiMux      *http.ServeMux
}

func NewServer(cm *ConfigManager, logger *slog.Logger, db *sql.DB, actionChan chan string) (*Server, error) {
	cfg := cm.Get()

	proc := engine.NewProcessor(logger, cfg.Engine)
	cm.SetProcessor(proc)

	store, err := contexts.NewStore(db, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create context store: %w", err)
	}

	server := &Server{
		cm:        cm,
		db:        db,
		logger:    logger,
		proc:      proc,
		store:     store,
		authAPI:   NewAuthAPI(db, logger),
		statsAPI:  NewStatsAPI(db, logger),
		serverAPI: NewServerAPI(cm, actionChan, logger),
		renderMux: http.NewServeMux(),
		apiMux:    http.NewServeMux(),
	}
	server.renderAPI = NewRenderAPI(server, logger)
	server.contextsAPI = NewContextsAPI(store, cm, logger)

	apiMux := http.NewServeMux()
	server.authAPI.RegisterRoutes(apiMux)
	server.renderAPI.RegisterRoutes(apiMux)
	server.contextsAPI.RegisterRoutes(apiMux)
	server.statsAPI.RegisterRoutes(apiMux)
	server.serverAPI.RegisterRoutes(apiMux)

	// Everything under /api/ passes through authentication, except the health
	// check so that container runtimes can probe it.
	server.apiMux.HandleFunc("/api/health", server.serverAPI.handleHealthCheck)
	server.apiMux.Handle("/api/", server.authAPI.Authenticate(apiMux))

	server.renderMux.HandleFunc("/render", server.handleRender)
	server.renderMux.HandleFunc("/favicon.ico", handleFavicon)

	return server, nil
}

// Close releases the resources held by the server. The database is owned by
// the caller.
func (s *Server) Close() {
	s.store.Close()
}

// resolveContext loads the named context, or the configured default when name
// is empty. A missing default context resolves to an empty context; a missing
// named context is an error wrapping sql.ErrNoRows.
func (s *Server) resolveContext(ctx context.Context, name string) (engine.Context, string, error) {
	explicit := name != ""
	if !explicit {
		name = s.cm.Get().Server.DefaultContext
	}
	if name == "" {
		return engine.Context{}, "", nil
	}

	vars, err := s.store.Get(ctx, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) && !explicit {
			return engine.Context{}, name, nil
		}
		return nil, name, err
	}
	return vars, name, nil
}

// renderBody runs the processor over body and records the render in history.
func (s *Server) renderBody(r *http.Request, body []byte, vars engine.Context, contextName string) ([]byte, engine.Report, error) {
	var out bytes.Buffer
	report, err := s.proc.Process(r.Context(), bytes.NewReader(body), &out, vars)

	if s.cm.Get().Server.HistoryConfig.Enabled {
		rec := RenderRecord{
			Digest:      templateDigest(body),
			ContextName: contextName,
			RemoteAddr:  getClientIP(r),
			Lines:       report.Lines,
			Rendered:    report.Rendered,
			Failed:      report.Failed,
		}
		if recErr := s.statsAPI.Record(r.Context(), rec); recErr != nil {
			s.logger.Warn("Failed to record render history", "error", recErr)
		}
	}
	return out.Bytes(), report, err
}

// handleRender renders the request body as a template against a stored context.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	cfg := s.cm.Get()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, cfg.Server.MaxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	vars, contextName, err := s.resolveContext(r.Context(), r.URL.Query().Get("context"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, fmt.Sprintf("context %q not found", contextName), http.StatusNotFound)
			return
		}
		s.logger.Error("Failed to load context", "context", contextName, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	out, report, err := s.renderBody(r, body, vars, contextName)
	if err != nil {
		s.logger.Warn("Render halted", "context", contextName, "remote_addr", getClientIP(r), "error", err)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	s.logger.Info("Served render",
		"context", contextName,
		"remote_addr", getClientIP(r),
		"lines", report.Lines,
		"failed", report.Failed)

	for k, v := range cfg.Server.Headers {
		w.Header().Set(k, v)
	}
	_, _ = w.Write(out)
}

func getClientIP(r *http.Request) string {
	// The X-Real-Ip header contains the forwarded IP in some cases (like from nginx)
	if realIP := r.Header.Get("X-Real-Ip"); realIP != "" {
		return realIP
	}

	// The first entry of X-Forwarded-For is the original client.
	if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		return strings.TrimSpace(first)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// handleFavicon answers favicon requests with no content so they are not
// rendered or recorded.
func handleFavicon(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
