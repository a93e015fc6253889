package main

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/zeebo/blake3"
)

const statsSchema = `
CREATE TABLE IF NOT EXISTS render_history (
    id            INTEGER PRIMARY KEY,
    digest        TEXT    NOT NULL,
    context_name  TEXT    NOT NULL,
    remote_addr   TEXT    NOT NULL,
    lines         INTEGER NOT NULL,
    rendered      INTEGER NOT NULL,
    failed        INTEGER NOT NULL,
    rendered_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_render_history_rendered_at ON render_history (rendered_at);
`

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

// RenderRecord is one row of render history.
type RenderRecord struct {
	ID          int64     `json:"id"`
	Digest      string    `json:"digest"`
	ContextName string    `json:"context_name"`
	RemoteAddr  string    `json:"remote_addr"`
	Lines       int       `json:"lines"`
	Rendered    int       `json:"rendered"`
	Failed      int       `json:"failed"`
	RenderedAt  time.Time `json:"rendered_at"`
}

// GlobalStatsSummary provides a high-level overview of the render history.
type GlobalStatsSummary struct {
	TotalRenders    int64 `json:"total_renders"`
	TotalLines      int64 `json:"total_lines"`
	TotalFailed     int64 `json:"total_failed"`
	UniqueTemplates int64 `json:"unique_templates"`
	UniqueClients   int64 `json:"unique_clients"`
}

// StatsAPI holds the dependencies for the statistics handlers.
type StatsAPI struct {
	db     *sql.DB
	logger *slog.Logger
}

func setupStatsSchema(db *sql.DB) error {
	_, err := db.Exec(statsSchema)
	return err
}

func NewStatsAPI(db *sql.DB, logger *slog.Logger) *StatsAPI {
	return &StatsAPI{
		db:     db,
		logger: logger,
	}
}

func (s *StatsAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/stats/summary", s.handleSummary)
	mux.HandleFunc("/api/stats/recent", s.handleRecent)
}

// templateDigest identifies a template body in the history without storing it.
func templateDigest(body []byte) string {
	sum := blake3.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Record appends one render to the history.
func (s *StatsAPI) Record(ctx context.Context, rec RenderRecord) error {
	if rec.RenderedAt.IsZero() {
		rec.RenderedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO render_history (digest, context_name, remote_addr, lines, rendered, failed, rendered_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
    `, rec.Digest, rec.ContextName, rec.RemoteAddr, rec.Lines, rec.Rendered, rec.Failed, rec.RenderedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert render history: %w", err)
	}
	return nil
}

// Prune removes history rows rendered before cutoff and returns how many
// were removed.
func (s *StatsAPI) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM render_history WHERE rendered_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune render history: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Summary aggregates the whole history.
func (s *StatsAPI) Summary(ctx context.Context) (GlobalStatsSummary, error) {
	var summary GlobalStatsSummary
	err := s.db.QueryRowContext(ctx, `
        SELECT COUNT(*), COALESCE(SUM(lines), 0), COALESCE(SUM(failed), 0),
               COUNT(DISTINCT digest), COUNT(DISTINCT remote_addr)
        FROM render_history
    `).Scan(&summary.TotalRenders, &summary.TotalLines, &summary.TotalFailed, &summary.UniqueTemplates, &summary.UniqueClients)
	if err != nil {
		return summary, fmt.Errorf("failed to summarise render history: %w", err)
	}
	return summary, nil
}

// Recent returns up to limit history rows, newest first.
func (s *StatsAPI) Recent(ctx context.Context, limit int) ([]RenderRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, digest, context_name, remote_addr, lines, rendered, failed, rendered_at
        FROM render_history ORDER BY rendered_at DESC, id DESC LIMIT ?
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query render history: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	records := make([]RenderRecord, 0)
	for rows.Next() {
		var rec RenderRecord
		var renderedAt int64
		if err = rows.Scan(&rec.ID, &rec.Digest, &rec.ContextName, &rec.RemoteAddr, &rec.Lines, &rec.Rendered, &rec.Failed, &renderedAt); err != nil {
			return nil, fmt.Errorf("failed to scan render history: %w", err)
		}
		rec.RenderedAt = time.UnixMilli(renderedAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *StatsAPI) handleSummary(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) || !requireScope(w, r, "stats:read") {
		return
	}
	summary, err := s.Summary(r.Context())
	if err != nil {
		s.logger.Error("Failed to get stats summary", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

func (s *StatsAPI) handleRecent(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) || !requireScope(w, r, "stats:read") {
		return
	}

	limit := defaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondWithError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = min(n, maxRecentLimit)
	}

	records, err := s.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to query recent renders", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, records)
}
