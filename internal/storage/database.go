// Package storage persists bulk redeploy run history with GORM.
package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kuhlman-labs/jamf-redeploy/internal/config"
	"github.com/kuhlman-labs/jamf-redeploy/internal/models"
)

type Database struct {
	db     *gorm.DB
	cfg    config.DatabaseConfig
	logger *slog.Logger
}

// NewDatabase opens the configured database and applies connection settings
func NewDatabase(cfg config.DatabaseConfig, logger *slog.Logger) (*Database, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Ensure data directory exists for SQLite
	if cfg.Type == DBTypeSQLite && !isInMemorySQLite(cfg.DSN) {
		path := strings.TrimPrefix(cfg.DSN, "file:")
		if i := strings.Index(path, "?"); i >= 0 {
			path = path[:i]
		}
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	dialer, err := NewDialectDialer(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialer.Dialect(), &gorm.Config{
		Logger:  gormlogger.Discard,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := dialer.ConfigureConnection(db); err != nil {
		return nil, fmt.Errorf("failed to configure database connection: %w", err)
	}

	logger.Debug("Database opened", "type", cfg.Type)

	return &Database{
		db:     db,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Migrate creates or updates the history tables
func (d *Database) Migrate() error {
	d.logger.Debug("Running database migrations")
	if err := d.db.AutoMigrate(&models.Run{}, &models.RunResult{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DB returns the underlying GORM handle
func (d *Database) DB() *gorm.DB {
	return d.db
}
