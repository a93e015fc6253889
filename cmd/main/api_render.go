package main

import (
	"bufio"
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/CTAG07/Sundew/pkg/contexts"
	"github.com/CTAG07/Sundew/pkg/engine"
)

// RenderAPI holds the dependencies for the render API handlers.
type RenderAPI struct {
	srv    *Server
	logger *slog.Logger
}

// RenderRequest is the JSON body accepted by the test and batch endpoints.
// Vars are layered over the named context when both are given.
type RenderRequest struct {
	Template string         `json:"template"`
	Lines    []string       `json:"lines"`
	Context  string         `json:"context"`
	Vars     engine.Context `json:"vars"`
}

// ClassifiedLine describes how a single template line was classified.
type ClassifiedLine struct {
	Line      int    `json:"line"`
	Kind      string `json:"kind,omitempty"`
	Structure string `json:"structure,omitempty"`
	Error     string `json:"error,omitempty"`
}

// BatchLine is the outcome for one line of a batch render.
type BatchLine struct {
	Index  int    `json:"index"`
	Output string `json:"output"`
	Error  string `json:"error,omitempty"`
}

// NewRenderAPI creates a new instance of the RenderAPI.
func NewRenderAPI(srv *Server, logger *slog.Logger) *RenderAPI {
	return &RenderAPI{
		srv:    srv,
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for all /api/render endpoints.
func (a *RenderAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/render/test", a.handleTest)
	mux.HandleFunc("/api/render/batch", a.handleBatch)
	mux.HandleFunc("/api/render/classify", a.handleClassify)
}

// decodeRenderRequest reads a RenderRequest and resolves its variables.
func (a *RenderAPI) decodeRenderRequest(w http.ResponseWriter, r *http.Request) (*RenderRequest, engine.Context, bool) {
	var req RenderRequest
	body := http.MaxBytesReader(w, r.Body, a.srv.cm.Get().Server.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return nil, nil, false
	}

	var base engine.Context
	if req.Context != "" || req.Vars == nil {
		var (
			name string
			err  error
		)
		base, name, err = a.srv.resolveContext(r.Context(), req.Context)
		if name != "" && !requireContext(w, r, name) {
			return nil, nil, false
		}
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				respondWithError(w, http.StatusNotFound, fmt.Sprintf("Context '%s' not found", req.Context))
				return nil, nil, false
			}
			a.logger.Error("Failed to load context", "context", req.Context, "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to load context")
			return nil, nil, false
		}
	}
	return &req, contexts.Merge(base, req.Vars), true
}

// handleTest renders a template string without recording it in history.
func (a *RenderAPI) handleTest(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) || !requireScope(w, r, "render:exec") {
		return
	}

	req, vars, ok := a.decodeRenderRequest(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	report, err := a.srv.proc.Process(r.Context(), bytes.NewReader([]byte(req.Template)), &buf, vars)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Template rendering failed: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Render-Lines", strconv.Itoa(report.Lines))
	w.Header().Set("X-Render-Failed", strconv.Itoa(report.Failed))
	_, _ = w.Write(buf.Bytes())
}

// handleBatch renders a list of independent lines concurrently.
func (a *RenderAPI) handleBatch(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) || !requireScope(w, r, "render:exec") {
		return
	}

	req, vars, ok := a.decodeRenderRequest(w, r)
	if !ok {
		return
	}

	results := a.srv.proc.RenderLines(req.Lines, vars)
	out := make([]BatchLine, len(results))
	for i, res := range results {
		out[i] = BatchLine{Index: res.Index, Output: res.Output}
		if res.Err != nil {
			out[i].Error = res.Err.Error()
		}
	}
	respondWithJSON(w, http.StatusOK, out)
}

// handleClassify reports the classification of each line of the request body.
func (a *RenderAPI) handleClassify(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) || !requireScope(w, r, "render:exec") {
		return
	}

	cfg := a.srv.cm.Get()
	maxLine := cfg.Engine.MaxLineBytes
	if maxLine <= 0 {
		maxLine = bufio.MaxScanTokenSize
	}

	scanner := bufio.NewScanner(io.LimitReader(r.Body, cfg.Server.MaxBodyBytes))
	scanner.Buffer(make([]byte, 0, min(4096, maxLine)), maxLine)

	lines := make([]ClassifiedLine, 0)
	for n := 1; scanner.Scan(); n++ {
		entry := ClassifiedLine{Line: n}
		content, err := engine.Classify(scanner.Text())
		if err != nil {
			entry.Error = err.Error()
		} else {
			entry.Kind = engine.Kind(content)
			entry.Structure = engine.Describe(content)
		}
		lines = append(lines, entry)
	}
	if err := scanner.Err(); err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read template: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, lines)
}
