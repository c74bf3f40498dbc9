// Package postgres implements the domain repositories on gorm. Despite the
// package name the connection also supports the sqlite driver for single-node
// deployments and tests; the repository code is identical for both.
package postgres

import (
	"context"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/presentio/presentio/internal/config"
	"github.com/presentio/presentio/internal/domain/models"
	"github.com/presentio/presentio/pkg/constants"
	"github.com/presentio/presentio/pkg/errors"
	"github.com/presentio/presentio/pkg/logger"
)

// Connect opens the database, applies pool settings, and migrates the schema.
func Connect(cfg *config.DatabaseConfig, log logger.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN())
	default:
		dialector = postgres.Open(cfg.DSN())
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to open database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to access database pool")
	}
	if cfg.MaxConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxConnLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxConnLifetime) * time.Minute)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Info(context.Background(), "database connected",
		logger.String("driver", cfg.Driver),
	)
	return db, nil
}

// Migrate applies the schema for all persisted models.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Tenant{},
		&models.Student{},
		&models.Device{},
		&models.DeviceUser{},
		&models.EnrollmentSession{},
		&models.FingerprintTemplate{},
	)
	if err != nil {
		return errors.Wrap(err, constants.ErrCodeInternal, "failed to migrate schema")
	}
	return nil
}
