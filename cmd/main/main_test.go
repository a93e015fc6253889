package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
)

// setupTestServer creates a Server backed by a fresh database and config
// file in a temporary directory.
func setupTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	cm, err := NewConfigManager(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("NewConfigManager() failed: %v", err)
	}
	cfg := cm.Get()
	cfg.Server.DataDir = dir
	cfg.Server.DatabasePath = filepath.Join(dir, "test.db")
	if err = cm.Update(cfg); err != nil {
		t.Fatalf("cm.Update() failed: %v", err)
	}

	db, err := openDatabase(cfg.Server)
	if err != nil {
		t.Fatalf("openDatabase() failed: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := NewServer(cm, logger, db, make(chan string, 1))
	if err != nil {
		_ = db.Close()
		t.Fatalf("NewServer() failed: %v", err)
	}

	t.Cleanup(func() {
		srv.Close()
		_ = db.Close()
	})
	return srv
}

// doRequest sends a request through h and returns the recorded response.
func doRequest(t *testing.T, h http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
