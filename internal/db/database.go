package db

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/devnolife/sakti-dashboard-sub017/internal/config"
	"github.com/devnolife/sakti-dashboard-sub017/internal/db/models"
)

// Initialize opens the PostgreSQL connection, tunes the pool from config,
// and migrates the schema.
func Initialize(cfg *config.Configuration) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		cfg.Database.Host,
		cfg.Database.Username,
		cfg.Database.Password,
		cfg.Database.Name,
		cfg.Database.Port,
		cfg.Database.SSLMode,
	)

	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		// The store layer matches on gorm.ErrDuplicatedKey for uniqueness
		// violations; without translation the driver surfaces raw pq errors.
		TranslateError: true,
	}

	database, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)

	if err := Migrate(database); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return database, nil
}

// Migrate creates or updates the schema for every model this service owns.
func Migrate(database *gorm.DB) error {
	return database.AutoMigrate(
		&models.LetterRequest{},
		&models.Attachment{},
		&models.Signature{},
		&models.LetterSequence{},
		&models.VerificationRecord{},
		&models.AuditLogEntry{},
	)
}
