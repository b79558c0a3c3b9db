// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver) and schema migrations.
package repo

import (
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/minivault/inventory-backend/internal/domain"
)

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
//
// The optional lg parameter installs a query logger at construction time
// (see instrument.go); pass nil to keep GORM's default. Wrapping the handle
// here — rather than reassigning anything on a shared client later — keeps
// instrumentation an explicit construction-time concern.
func OpenSQLite(path string, lg gormlogger.Interface) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	cfg := &gorm.Config{}
	if lg != nil {
		cfg.Logger = lg
	}
	db, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

// SeedDefaults makes sure the fallback painter and base size rows exist so
// new miniatures can always reference them. Existing rows are left untouched.
func SeedDefaults(db *gorm.DB, paintedByID, baseSizeID int64) error {
	painter := domain.PaintedBy{ID: paintedByID, Name: "Unpainted"}
	if err := db.Where(domain.PaintedBy{ID: paintedByID}).FirstOrCreate(&painter).Error; err != nil {
		return err
	}
	base := domain.BaseSize{ID: baseSizeID, Name: "25mm round"}
	return db.Where(domain.BaseSize{ID: baseSizeID}).FirstOrCreate(&base).Error
}

// AutoMigrate creates or updates the full inventory schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.PaintedBy{},
		&domain.BaseSize{},
		&domain.Company{},
		&domain.ProductLine{},
		&domain.ProductSet{},
		&domain.Category{},
		&domain.MiniatureType{},
		&domain.TypeCategory{},
		&domain.Miniature{},
		&domain.MiniatureTypeLink{},
		&domain.Tag{},
		&domain.MiniatureTag{},
		&domain.AuditLog{},
	)
}
