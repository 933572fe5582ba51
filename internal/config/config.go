package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// StorageDriver selects the persistence backend
type StorageDriver string

const (
	StoragePostgres StorageDriver = "postgres" // external or embedded PostgreSQL
	StorageSQLite   StorageDriver = "sqlite"   // single-file SQLite
	StorageMemory   StorageDriver = "memory"   // in-process, optional JSON snapshot file
)

// Config holds all application configuration
type Config struct {
	NodeEnv   string
	Port      string
	JWTSecret string
	Storage   StorageConfig
	Database  DatabaseConfig
	Serial    SerialConfig
	Intake    IntakeConfig
	Invoice   InvoiceConfig
}

// StorageConfig selects the backend and its local paths
type StorageConfig struct {
	Driver     StorageDriver
	SQLitePath string
	DataFile   string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	Alter    bool

	// embedded postgres, used when Host is localhost and no password is set
	EmbeddedDir  string
	EmbeddedPort int
}

// SerialConfig holds defaults for the serial issuer
type SerialConfig struct {
	Width       int
	ResetPolicy string
}

// IntakeConfig controls the reservation intake flow
type IntakeConfig struct {
	Async        bool
	TaskDueAfter time.Duration
}

// InvoiceConfig holds invoice collaborator settings
type InvoiceConfig struct {
	PDFDir          string
	DueDays         int
	DefaultCurrency string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		NodeEnv:   getEnv("NODE_ENV", "development"),
		Port:      getEnv("PORT", "3210"),
		JWTSecret: os.Getenv("JWT_SECRET"),
		Storage: StorageConfig{
			Driver:     StorageDriver(getEnv("STORAGE_DRIVER", string(StoragePostgres))),
			SQLitePath: getEnv("SQLITE_PATH", "eckrent.db"),
			DataFile:   os.Getenv("DATA_FILE"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "eckrent"),
			Alter:    getEnv("DB_ALTER", "false") == "true",

			EmbeddedDir:  getEnv("EMBEDDED_PG_DIR", "./db_data"),
			EmbeddedPort: getEnvInt("EMBEDDED_PG_PORT", 5433),
		},
		Serial: SerialConfig{
			Width:       getEnvInt("SERIAL_WIDTH", 6),
			ResetPolicy: getEnv("SERIAL_RESET_POLICY", "yearly"),
		},
		Intake: IntakeConfig{
			Async:        getEnv("INTAKE_ASYNC", "true") == "true",
			TaskDueAfter: time.Duration(getEnvInt("TASK_DUE_HOURS", 24)) * time.Hour,
		},
		Invoice: InvoiceConfig{
			PDFDir:          os.Getenv("INVOICE_PDF_DIR"),
			DueDays:         getEnvInt("INVOICE_DUE_DAYS", 7),
			DefaultCurrency: getEnv("DEFAULT_CURRENCY", "EUR"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StoragePostgres, StorageSQLite, StorageMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}
	switch c.Serial.ResetPolicy {
	case "yearly", "never":
	default:
		return fmt.Errorf("unknown SERIAL_RESET_POLICY %q", c.Serial.ResetPolicy)
	}
	if c.Serial.Width <= 0 {
		return fmt.Errorf("SERIAL_WIDTH must be positive, got %d", c.Serial.Width)
	}
	return nil
}

// RequireJWT fails when the API server would run without a signing secret
func (c *Config) RequireJWT() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
