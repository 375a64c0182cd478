package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connection pool limits for the content database.
const (
	dbMaxOpen     = 20
	dbMaxIdle     = 5
	dbMaxLifetime = 30 * time.Minute
	dbMaxIdleTime = 10 * time.Minute
)

var db *gorm.DB

// InitDatabase opens the configured MySQL database, migrates models and keeps
// the handle for DB. Startup cannot continue without it, so failures are fatal.
func InitDatabase(models ...interface{}) *gorm.DB {
	if db != nil {
		return db
	}
	conn, err := OpenDatabase(Get())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	if err := Migrate(conn, models...); err != nil {
		log.Fatalf("database: %v", err)
	}
	db = conn
	return db
}

// OpenDatabase connects, tunes the pool and pings.
func OpenDatabase(cfg AppConfig) (*gorm.DB, error) {
	conn, err := gorm.Open(mysql.Open(DSN(cfg)), GormConfig(cfg.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(dbMaxOpen)
	sqlDB.SetMaxIdleConns(dbMaxIdle)
	sqlDB.SetConnMaxLifetime(dbMaxLifetime)
	// MySQL drops idle connections at wait_timeout.
	sqlDB.SetConnMaxIdleTime(dbMaxIdleTime)
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping %s:%s: %w", cfg.DBHost, cfg.DBPort, err)
	}
	return conn, nil
}

// DSN returns DatabaseURI when set, otherwise a utf8mb4 DSN built from the parts.
func DSN(cfg AppConfig) string {
	if cfg.DatabaseURI != "" {
		return cfg.DatabaseURI
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
}

// GormConfig is shared by the server and tests.
func GormConfig(level string) *gorm.Config {
	return &gorm.Config{
		Logger: logger.New(log.New(os.Stdout, "gorm ", log.LstdFlags), logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLevel(level),
			IgnoreRecordNotFoundError: true,
		}),
		DisableForeignKeyConstraintWhenMigrating: true,
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
	}
}

// Migrate is additive: it creates tables, columns and indexes but drops nothing.
func Migrate(conn *gorm.DB, models ...interface{}) error {
	for _, m := range models {
		if err := conn.AutoMigrate(m); err != nil {
			return fmt.Errorf("migrate %T: %w", m, err)
		}
	}
	return nil
}

func gormLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		return logger.Info
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Warn
	}
}

// DB returns the handle opened by InitDatabase.
func DB() *gorm.DB {
	if db == nil {
		log.Fatal("database not initialized, call InitDatabase first")
	}
	return db
}
