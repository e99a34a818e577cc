package storage

import (
	"fmt"
	"log/slog"

	"github.com/rs/zerolog"

	"github.com/OCAP2/replicator/internal/config"
	"github.com/OCAP2/replicator/internal/database"
	gormstorage "github.com/OCAP2/replicator/internal/storage/gorm"
	"github.com/OCAP2/replicator/internal/storage/memory"
)

// NewBackend creates a storage backend based on configuration. The
// returned closer releases the database connection, if any, and must be
// called after the backend is closed.
func NewBackend(cfg config.StorageConfig, logger *slog.Logger, dbLog zerolog.Logger) (Backend, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Type {
	case "memory":
		return memory.New(cfg.Memory), noop, nil
	case "sqlite", "postgres":
		m := database.NewManager(dbLog)
		m.SqliteFilePath = cfg.SQLite.Path
		if err := m.Connect(cfg.Type); err != nil {
			return nil, noop, fmt.Errorf("failed to open %s storage: %w", cfg.Type, err)
		}
		b := gormstorage.New(gormstorage.Dependencies{
			DB:     m.DB,
			Logger: logger,
		})
		return b, m.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
