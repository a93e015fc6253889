package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/CTAG07/Sundew/pkg/contexts"
	"github.com/CTAG07/Sundew/pkg/engine"
)

// ContextsAPI holds the dependencies for the context store API handlers.
type ContextsAPI struct {
	store  *contexts.Store
	cm     *ConfigManager
	logger *slog.Logger
}

// NewContextsAPI creates a new instance of the ContextsAPI.
func NewContextsAPI(store *contexts.Store, cm *ConfigManager, logger *slog.Logger) *ContextsAPI {
	return &ContextsAPI{
		store:  store,
		cm:     cm,
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for all /api/contexts endpoints.
func (c *ContextsAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/contexts", c.handleListAndCreate)
	mux.HandleFunc("/api/contexts/import", c.handleImport)
	mux.HandleFunc("/api/contexts/", c.handleContextByName)
}

// limitBody caps a request body at the configured MaxBodyBytes.
func (c *ContextsAPI) limitBody(w http.ResponseWriter, r *http.Request) io.Reader {
	return http.MaxBytesReader(w, r.Body, c.cm.Get().Server.MaxBodyBytes)
}

// respondDecodeError answers 413 for an oversized body and 400 otherwise.
func respondDecodeError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		respondWithError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Request body exceeds %d bytes", maxErr.Limit))
		return
	}
	respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
}

const invalidNameMessage = "Context name must be non-empty, untrimmed and contain no '/', '?' or '#'"

// handleListAndCreate lists the contexts visible to the key, or creates one.
func (c *ContextsAPI) handleListAndCreate(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}

	if r.Method == http.MethodGet {
		if !requireScope(w, r, "contexts:read") {
			return
		}
		names, err := c.store.Names(r.Context())
		if err != nil {
			c.logger.Error("Failed to list contexts", "error", err)
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve contexts: %v", err))
			return
		}
		perms := permissionsFrom(r)
		visible := make([]string, 0, len(names))
		for _, name := range names {
			if perms.CanUseContext(name) {
				visible = append(visible, name)
			}
		}
		respondWithJSON(w, http.StatusOK, visible)
		return
	}

	if !requireScope(w, r, "contexts:write") {
		return
	}
	var req contexts.ExportedContext
	if err := json.NewDecoder(c.limitBody(w, r)).Decode(&req); err != nil {
		respondDecodeError(w, err)
		return
	}
	if !validContextName(req.Name) {
		respondWithError(w, http.StatusBadRequest, invalidNameMessage)
		return
	}
	if !requireContext(w, r, req.Name) {
		return
	}
	if _, err := c.store.Get(r.Context(), req.Name); err == nil {
		respondWithError(w, http.StatusConflict, fmt.Sprintf("Context '%s' already exists", req.Name))
		return
	}
	c.save(w, r, req.Name, req.Vars, http.StatusCreated)
}

// save stores vars under name and answers with the stored context.
func (c *ContextsAPI) save(w http.ResponseWriter, r *http.Request, name string, vars engine.Context, code int) {
	if err := c.store.Put(r.Context(), name, vars); err != nil {
		c.logger.Error("Failed to save context", "name", name, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to save context: %v", err))
		return
	}
	respondWithJSON(w, code, contexts.ExportedContext{Name: name, Vars: vars})
}

// handleContextByName routes actions for a single context: read, replace,
// delete and export.
func (c *ContextsAPI) handleContextByName(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/contexts/"), "/")
	name, action, _ := strings.Cut(path, "/")
	if name == "" {
		respondWithError(w, http.StatusBadRequest, "Context name not specified")
		return
	}

	switch action {
	case "":
		c.handleContext(w, r, name)
	case "export":
		if !allowMethods(w, r, http.MethodGet) || !requireScope(w, r, "contexts:read") || !requireContext(w, r, name) {
			return
		}
		if _, err := c.store.Get(r.Context(), name); err != nil {
			c.respondStoreError(w, name, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.json\"", name))
		if err := c.store.Export(r.Context(), name, w); err != nil {
			c.logger.Error("Failed to export context", "name", name, "error", err)
		}
	default:
		respondWithError(w, http.StatusNotFound, "Action not found")
	}
}

func (c *ContextsAPI) handleContext(w http.ResponseWriter, r *http.Request, name string) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPut, http.MethodDelete) {
		return
	}
	scope := "contexts:write"
	if r.Method == http.MethodGet {
		scope = "contexts:read"
	}
	if !requireScope(w, r, scope) || !requireContext(w, r, name) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		vars, err := c.store.Get(r.Context(), name)
		if err != nil {
			c.respondStoreError(w, name, err)
			return
		}
		respondWithJSON(w, http.StatusOK, contexts.ExportedContext{Name: name, Vars: vars})

	case http.MethodPut:
		if !validContextName(name) {
			respondWithError(w, http.StatusBadRequest, invalidNameMessage)
			return
		}
		var vars engine.Context
		if err := json.NewDecoder(c.limitBody(w, r)).Decode(&vars); err != nil {
			respondDecodeError(w, err)
			return
		}
		c.save(w, r, name, vars, http.StatusOK)

	case http.MethodDelete:
		if err := c.store.Remove(r.Context(), name); err != nil {
			c.respondStoreError(w, name, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleImport stores an uploaded context. The body is an exported JSON
// context by default; with ?format=yaml|toml|json&name=NAME it is a plain
// variable file in that format.
func (c *ContextsAPI) handleImport(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) || !requireScope(w, r, "contexts:write") {
		return
	}

	var (
		name string
		vars engine.Context
		err  error
	)
	query := r.URL.Query()
	if format := query.Get("format"); format != "" {
		name = query.Get("name")
		if name == "" {
			respondWithError(w, http.StatusBadRequest, "Query parameter 'name' is required with 'format'")
			return
		}
		vars, err = contexts.Decode(c.limitBody(w, r), contexts.Format(format))
	} else {
		var exported contexts.ExportedContext
		err = json.NewDecoder(c.limitBody(w, r)).Decode(&exported)
		name, vars = exported.Name, exported.Vars
	}
	if err != nil {
		respondDecodeError(w, err)
		return
	}
	if !validContextName(name) {
		respondWithError(w, http.StatusBadRequest, invalidNameMessage)
		return
	}
	if !requireContext(w, r, name) {
		return
	}
	c.save(w, r, name, vars, http.StatusCreated)
}

func (c *ContextsAPI) respondStoreError(w http.ResponseWriter, name string, err error) {
	if errors.Is(err, sql.ErrNoRows) {
		respondWithError(w, http.StatusNotFound, fmt.Sprintf("Context '%s' not found", name))
		return
	}
	c.logger.Error("Context store operation failed", "name", name, "error", err)
	respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
}
