package database

import (
	"os"
	"path/filepath"

	"reelforge/app/config"
	"reelforge/app/logger"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// DB is the global database instance.
var DB *gorm.DB

// Init opens the database connection.
func Init(cfg *config.Config, log *logger.Logger) error {
	// Make sure the database directory exists
	dbPath := "data/reelforge.db"
	if err := ensureDir(filepath.Dir(dbPath)); err != nil {
		log.Errorf("failed to create database directory: %v", err)
		return err
	}

	// Open the database connection
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		log.Errorf("failed to connect to database: %v", err)
		return err
	}

	DB = db
	log.Infof("database connected: %s", dbPath)

	// Migrate the schema
	if err := AutoMigrate(); err != nil {
		log.Errorf("database migration failed: %v", err)
		return err
	}

	// Seed the admin account
	if err := InitAdminUser(cfg, log); err != nil {
		log.Errorf("failed to initialize admin account: %v", err)
		return err
	}

	return nil
}

// Close closes the database connection.
func Close() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

// GetDB returns the database instance.
func GetDB() *gorm.DB {
	return DB
}

// ensureDir makes sure a directory exists.
func ensureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}
