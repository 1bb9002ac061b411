// Package database opens the single GORM connection pool shared by
// every Content Store repository, the way the teacher's own
// database.NewPostgresConnection does for its auth/email models.
package database

import (
	"github.com/syncorch/syncd/pkg/config"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewPostgresConnection opens the database pool described by
// cfg.DatabaseDSN.
func NewPostgresConnection(cfg *config.Config) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
}
