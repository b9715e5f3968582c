// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver) and schema migrations for both processes: the
// center's audit log and the edge's outbox.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/rfid-gate/internal/domain"
)

// Options tunes OpenSQLite.
type Options struct {
	// Tracing installs the OpenTelemetry GORM plugin (spans per statement).
	Tracing bool
	// LogLevel of the GORM logger; zero means silent.
	LogLevel logger.LogLevel
}

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
// Missing parent directories are created.
func OpenSQLite(path string, opts ...Options) (*gorm.DB, error) {
	var opt Options
	if len(opts) > 0 {
		opt = opts[0]
	}
	if opt.LogLevel == 0 {
		opt.LogLevel = logger.Silent
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(opt.LogLevel),
	})
	if err != nil {
		return nil, err
	}

	// PRAGMAs. synchronous=FULL: an appended row must survive power loss.
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=FULL;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(4)
		sqlDB.SetMaxIdleConns(4)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	if opt.Tracing {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			return nil, fmt.Errorf("install tracing plugin: %w", err)
		}
	}

	return db, nil
}

// MigrateCenter creates the audit log schema.
func MigrateCenter(db *gorm.DB) error {
	return db.AutoMigrate(&domain.AuditEvent{})
}

// MigrateEdge creates the outbox schema.
func MigrateEdge(db *gorm.DB) error {
	return db.AutoMigrate(&domain.OutboxRecord{})
}

// Close releases the pooled connections behind db.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
