package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"
)

// An empty contexts column means the key may use every context.
const authSchema = `
CREATE TABLE IF NOT EXISTS api_keys (
    id            INTEGER   PRIMARY KEY,
    key_hash      TEXT      NOT NULL UNIQUE,
    scopes        TEXT      NOT NULL,
    contexts      TEXT      NOT NULL DEFAULT '',
    description   TEXT      NOT NULL
);
`

const (
	authHeader   = "sundew-auth"
	apiKeyPrefix = "sndw_"
	masterScope  = "*"
)

// knownScopes lists every scope a key may be granted.
var knownScopes = []string{
	masterScope,
	"auth:manage",
	"render:exec",
	"contexts:read",
	"contexts:write",
	"stats:read",
	"server:config",
	"server:control",
}

type contextKey string

const contextKeyPermissions = contextKey("permissions")

// Permissions is what the presented key allows. A nil Contexts set allows
// every context.
type Permissions struct {
	KeyID    int
	Scopes   map[string]struct{}
	Contexts map[string]struct{}
}

// openPermissions is used while no key exists.
func openPermissions() *Permissions {
	return &Permissions{Scopes: map[string]struct{}{masterScope: {}}}
}

// Has reports whether the permissions include scope, directly or through
// the master scope.
func (p *Permissions) Has(scope string) bool {
	if _, ok := p.Scopes[masterScope]; ok {
		return true
	}
	_, ok := p.Scopes[scope]
	return ok
}

// CanUseContext reports whether the key may read, write or render with the
// named context.
func (p *Permissions) CanUseContext(name string) bool {
	if p.Contexts == nil {
		return true
	}
	_, ok := p.Contexts[name]
	return ok
}

func setOf(fields string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, f := range strings.Fields(fields) {
		set[f] = struct{}{}
	}
	return set
}

func permissionsFrom(r *http.Request) *Permissions {
	perms, _ := r.Context().Value(contextKeyPermissions).(*Permissions)
	return perms
}

// AuthAPI stores API keys and guards the API mux with them.
type AuthAPI struct {
	db     *sql.DB
	logger *slog.Logger
}

func setupAuthSchema(db *sql.DB) error {
	_, err := db.Exec(authSchema)
	return err
}

func NewAuthAPI(db *sql.DB, logger *slog.Logger) *AuthAPI {
	return &AuthAPI{db: db, logger: logger}
}

// RegisterRoutes sets up the routing for all /api/auth endpoints.
func (a *AuthAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/me", a.handleCheckMe)
	mux.HandleFunc("/api/auth/keys", a.handleKeys)
	mux.HandleFunc("/api/auth/keys/", a.handleKeyByID)
}

// APIKeyInfo describes a stored key. The raw key is never stored.
type APIKeyInfo struct {
	ID          int      `json:"id"`
	Scopes      []string `json:"scopes"`
	Contexts    []string `json:"contexts,omitempty"`
	Description string   `json:"description"`
}

// CreateKeyRequest is the body of POST /api/auth/keys. An empty Contexts
// list grants access to every context.
type CreateKeyRequest struct {
	Scopes      []string `json:"scopes"`
	Contexts    []string `json:"contexts"`
	Description string   `json:"description"`
}

// CreateKeyResponse carries the only copy of the raw key.
type CreateKeyResponse struct {
	APIKeyInfo
	RawKey string `json:"raw_key"`
}

func (a *AuthAPI) countKeys(ctx context.Context) (int, error) {
	var n int
	err := a.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM api_keys").Scan(&n)
	return n, err
}

// lookup resolves a raw key to its permissions. It returns sql.ErrNoRows for
// unknown keys.
func (a *AuthAPI) lookup(ctx context.Context, rawKey string) (*Permissions, error) {
	perms := &Permissions{}
	var scopes, ctxNames string
	err := a.db.QueryRowContext(ctx,
		"SELECT id, scopes, contexts FROM api_keys WHERE key_hash = ?", hashAPIKey(rawKey),
	).Scan(&perms.KeyID, &scopes, &ctxNames)
	if err != nil {
		return nil, err
	}
	perms.Scopes = setOf(scopes)
	if ctxNames != "" {
		perms.Contexts = setOf(ctxNames)
	}
	return perms, nil
}

// Authenticate attaches the Permissions of the key in the sundew-auth header
// to the request. While no key exists every request gets the master scope.
func (a *AuthAPI) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, err := a.countKeys(r.Context())
		if err != nil {
			a.logger.Error("Failed to count API keys", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		perms := openPermissions()
		if n > 0 {
			rawKey := r.Header.Get(authHeader)
			if rawKey == "" {
				respondWithError(w, http.StatusUnauthorized, "Missing "+authHeader+" header")
				return
			}
			perms, err = a.lookup(r.Context(), rawKey)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				a.logger.Warn("Rejected unknown API key", "remote_addr", getClientIP(r), "path", r.URL.Path)
				respondWithError(w, http.StatusUnauthorized, "Unknown API key")
				return
			case err != nil:
				a.logger.Error("Failed to look up API key", "error", err)
				respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKeyPermissions, perms)))
	})
}

func (a *AuthAPI) handleCheckMe(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	perms := permissionsFrom(r)
	if perms == nil {
		respondWithError(w, http.StatusUnauthorized, "No credentials on request")
		return
	}
	info := APIKeyInfo{ID: perms.KeyID, Scopes: sortedKeys(perms.Scopes)}
	if perms.Contexts != nil {
		info.Contexts = sortedKeys(perms.Contexts)
	}
	respondWithJSON(w, http.StatusOK, info)
}

func (a *AuthAPI) handleKeys(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	if r.Method == http.MethodPost {
		a.createKey(w, r)
		return
	}
	if !requireScope(w, r, "auth:manage") {
		return
	}

	rows, err := a.db.QueryContext(r.Context(), "SELECT id, scopes, contexts, description FROM api_keys ORDER BY id")
	if err != nil {
		a.logger.Error("Failed to list API keys", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Database query failed")
		return
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	keys := make([]APIKeyInfo, 0)
	for rows.Next() {
		var info APIKeyInfo
		var scopes, ctxNames string
		if err = rows.Scan(&info.ID, &scopes, &ctxNames, &info.Description); err != nil {
			a.logger.Error("Failed to scan API key", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Database query failed")
			return
		}
		info.Scopes = strings.Fields(scopes)
		info.Contexts = strings.Fields(ctxNames)
		keys = append(keys, info)
	}
	respondWithJSON(w, http.StatusOK, keys)
}

// createKey mints a key. The very first key is always a master key for
// every context, so the API cannot lock itself out; later keys need
// auth:manage.
func (a *AuthAPI) createKey(w http.ResponseWriter, r *http.Request) {
	n, err := a.countKeys(r.Context())
	if err != nil {
		a.logger.Error("Failed to count API keys", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Database query failed")
		return
	}
	if n > 0 && !requireScope(w, r, "auth:manage") {
		return
	}

	var req CreateKeyRequest
	if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	if i := slices.IndexFunc(req.Scopes, func(s string) bool { return !slices.Contains(knownScopes, s) }); i >= 0 {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Unknown scope %q", req.Scopes[i]))
		return
	}
	if i := slices.IndexFunc(req.Contexts, func(s string) bool { return !validContextName(s) }); i >= 0 {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid context name %q", req.Contexts[i]))
		return
	}

	info := APIKeyInfo{Scopes: req.Scopes, Contexts: req.Contexts, Description: req.Description}
	if n == 0 {
		info.Scopes, info.Contexts = []string{masterScope}, nil
	}
	// A key cannot be granted contexts its creator is barred from.
	if creator := permissionsFrom(r); creator != nil && creator.Contexts != nil {
		if len(info.Contexts) == 0 {
			info.Contexts = sortedKeys(creator.Contexts)
		}
		for _, name := range info.Contexts {
			if !creator.CanUseContext(name) {
				respondWithError(w, http.StatusForbidden, fmt.Sprintf("Forbidden: no access to context '%s'", name))
				return
			}
		}
	}

	rawKey := apiKeyPrefix + rand.Text()
	err = a.db.QueryRowContext(r.Context(),
		`INSERT INTO api_keys (key_hash, scopes, contexts, description) VALUES (?, ?, ?, ?) RETURNING id`,
		hashAPIKey(rawKey), strings.Join(info.Scopes, " "), strings.Join(info.Contexts, " "), info.Description,
	).Scan(&info.ID)
	if err != nil {
		a.logger.Error("Failed to store API key", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to save new key")
		return
	}

	a.logger.Info("API key created", "id", info.ID, "scopes", info.Scopes, "contexts", info.Contexts)
	respondWithJSON(w, http.StatusCreated, CreateKeyResponse{APIKeyInfo: info, RawKey: rawKey})
}

func (a *AuthAPI) handleKeyByID(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodDelete) || !requireScope(w, r, "auth:manage") {
		return
	}
	id, err := strconv.Atoi(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/auth/keys/"), "/"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Key ID must be an integer")
		return
	}
	if id == 1 {
		respondWithError(w, http.StatusBadRequest, "The first master key cannot be deleted")
		return
	}

	res, err := a.db.ExecContext(r.Context(), "DELETE FROM api_keys WHERE id = ?", id)
	if err != nil {
		a.logger.Error("Failed to delete API key", "id", id, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to delete key")
		return
	}
	if removed, _ := res.RowsAffected(); removed == 0 {
		respondWithError(w, http.StatusNotFound, "Key not found")
		return
	}
	a.logger.Info("API key deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// hasScope reports whether the request's key grants scope.
func hasScope(r *http.Request, scope string) bool {
	perms := permissionsFrom(r)
	return perms != nil && perms.Has(scope)
}

// requireScope writes a 403 and returns false when the request lacks scope.
func requireScope(w http.ResponseWriter, r *http.Request, scope string) bool {
	if hasScope(r, scope) {
		return true
	}
	respondWithError(w, http.StatusForbidden, fmt.Sprintf("Forbidden: requires '%s' scope", scope))
	return false
}

// requireContext writes a 403 and returns false when the request's key is
// limited to other contexts.
func requireContext(w http.ResponseWriter, r *http.Request, name string) bool {
	if perms := permissionsFrom(r); perms != nil && perms.CanUseContext(name) {
		return true
	}
	respondWithError(w, http.StatusForbidden, fmt.Sprintf("Forbidden: no access to context '%s'", name))
	return false
}

// hashAPIKey is the stored form of a key; keys are random, so an unsalted
// digest is enough.
func hashAPIKey(key string) string {
	sum := blake3.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
