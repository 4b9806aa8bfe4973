// Package db initializes the gorm database connection.
package db

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"settlement-backend/internal/models"
)

var DB *gorm.DB

// Init opens the postgres connection and migrates the schema.
func Init(dsn string) error {
	database, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.AutoMigrate(
		&models.Request{},
		&models.Asset{},
		&models.Participant{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	DB = database
	logrus.Info("database initialized")
	return nil
}
