package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/CTAG07/Sundew/pkg/contexts"
)

// openDatabase opens the configured database and ensures every schema the
// application uses exists.
func openDatabase(cfg *ServerConfig) (*sql.DB, error) {
	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := initDB(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	setups := []struct {
		name  string
		setup func(*sql.DB) error
	}{
		{"contexts", contexts.SetupSchema},
		{"auth", setupAuthSchema},
		{"stats", setupStatsSchema},
	}
	for _, s := range setups {
		if err = s.setup(db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to setup %s schema: %w", s.name, err)
		}
	}
	return db, nil
}
