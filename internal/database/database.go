package database

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/xelth-com/eckrentgo/internal/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB wraps gorm.DB and keeps the embedded postgres process, if one was started
type DB struct {
	*gorm.DB
	embedded *embeddedpostgres.EmbeddedPostgres
}

// Open connects to the backend selected by the storage driver. The memory
// driver still gets a private in-memory SQLite database for the collaborator
// tables (invoices, tasks, notifications).
func Open(cfg *config.Config) (*DB, error) {
	switch cfg.Storage.Driver {
	case config.StorageSQLite:
		log.Printf("📦 Mode: [SQLite] - %s", cfg.Storage.SQLitePath)
		return OpenSQLite(cfg.Storage.SQLitePath)
	case config.StorageMemory:
		log.Println("📦 Mode: [Memory] - collaborator tables in private SQLite")
		return OpenSQLite(":memory:")
	default:
		return Connect(cfg.Database)
	}
}

func gormConfig(level logger.LogLevel) *gorm.Config {
	return &gorm.Config{
		Logger:  logger.Default.LogMode(level),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// OpenSQLite opens a SQLite database. SQLite allows a single writer, so the
// pool is pinned to one connection; this also keeps ":memory:" databases
// shared across every query.
func OpenSQLite(path string) (*DB, error) {
	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		dsn = path + "?_busy_timeout=5000&_journal_mode=WAL"
	}

	gdb, err := gorm.Open(sqlite.Open(dsn), gormConfig(logger.Silent))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return &DB{DB: gdb}, nil
}

// Connect opens PostgreSQL. localhost without a password means zero-config
// mode: an embedded server is started first and owned by the returned DB.
func Connect(cfg config.DatabaseConfig) (*DB, error) {
	var embedded *embeddedpostgres.EmbeddedPostgres
	if cfg.Host == "localhost" && cfg.Password == "" {
		var err error
		if embedded, cfg, err = startEmbedded(cfg); err != nil {
			return nil, err
		}
	} else {
		log.Printf("🌐 Mode: [External PostgreSQL] - Connecting to %s:%s\n", cfg.Host, cfg.Port)
	}

	level := logger.Warn
	if cfg.Alter {
		level = logger.Silent
	}
	gdb, err := gorm.Open(postgres.Open(postgresDSN(cfg)), gormConfig(level))
	if err != nil {
		if embedded != nil {
			_ = embedded.Stop()
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if sqlDB, err := gdb.DB(); err == nil {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	log.Println("✅ Database connection established")
	return &DB{DB: gdb, embedded: embedded}, nil
}

func postgresDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database)
}

// Close shuts the pool down, then the embedded server if this DB owns one
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err == nil {
		err = sqlDB.Close()
	}
	if db.embedded != nil {
		log.Println("🛑 Stopping Embedded PostgreSQL process...")
		if stopErr := db.embedded.Stop(); stopErr != nil && err == nil {
			err = stopErr
		}
	}
	return err
}

// AutoMigrate triggers GORM schema synchronization
func (db *DB) AutoMigrate(models ...interface{}) error {
	return db.DB.AutoMigrate(models...)
}

