package database

import (
	"fmt"
	"os"
	"path/filepath"

	"compsynth/internal/config"
	"compsynth/internal/synth"
)

// NewDatabaseFromConfig creates the run ledger based on the database config type.
// The sqlite ledger lives at <data_dir>/<projectID>.db.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, projectID string, clock synth.Clock) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data_dir: %w", err)
		}
		dbPath := filepath.Join(cfg.DataDir, projectID+".db")
		return NewSQLiteDatabase(dbPath, clock)
	case "memory":
		return NewSQLiteDatabase(":memory:", clock)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
