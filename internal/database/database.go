package database

import (
	"fmt"
	"os"
	"time"

	"qrscan/internal/models"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// New opens the database selected by DB_TYPE (sqlite by default),
// migrates the scan tables and returns the handle. Callers own the
// handle; there is no package-level instance.
func New() (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)

	dbType := getEnv("DB_TYPE", "sqlite")
	switch dbType {
	case "mysql":
		db, err = connectMySQL()
	case "postgres", "postgresql":
		db, err = connectPostgreSQL()
	case "sqlite":
		db, err = connectSQLite()
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %v", dbType, err)
	}

	if err := db.AutoMigrate(&models.ScanRecord{}, &models.DailyStat{}); err != nil {
		return nil, fmt.Errorf("failed to migrate tables: %v", err)
	}

	return db, nil
}

// connectMySQL connects to MySQL database
func connectMySQL() (*gorm.DB, error) {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "3306")
	user := getEnv("DB_USER", "root")
	password := getEnv("DB_PASSWORD", "")
	dbName := getEnv("DB_NAME", "qr_scans")

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=10s&readTimeout=30s&writeTimeout=30s",
		user, password, host, port, dbName)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	return db, configurePool(db)
}

// connectPostgreSQL connects to PostgreSQL database
func connectPostgreSQL() (*gorm.DB, error) {
	host := getEnv("DB_HOST", "localhost")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "postgres")
	password := getEnv("DB_PASSWORD", "")
	dbName := getEnv("DB_NAME", "qr_scans")

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbName)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	return db, configurePool(db)
}

// connectSQLite connects to the SQLite database file (default backend)
func connectSQLite() (*gorm.DB, error) {
	path := getEnv("DB_PATH", "qr_scans.db")
	return gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
}

// configurePool sets connection pool limits for the server backends.
func configurePool(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return nil
}

// getEnv gets environment variable with fallback
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
