package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Config carries process configuration resolved from the environment.
type Config struct {
	// DBType is "sqlite" (default) or "postgres".
	DBType string
	// DBPath is the sqlite database file path.
	DBPath string
	// DBDSN is the postgres connection string.
	DBDSN string
	// RedisAddr enables the redis stats cache when non-empty.
	RedisAddr string
	// HTTPAddr is the REST listen address.
	HTTPAddr string
}

// LoadConfig reads .env (when present) and the process environment.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Debugf("no .env file loaded: %v", err)
	}

	return &Config{
		DBType:    envOr("VAULT_DB", "sqlite"),
		DBPath:    envOr("VAULT_DB_PATH", "vault.db"),
		DBDSN:     os.Getenv("VAULT_DB_DSN"),
		RedisAddr: os.Getenv("VAULT_REDIS_ADDR"),
		HTTPAddr:  envOr("VAULT_HTTP_ADDR", ":4021"),
	}
}

// GetDb opens the configured database.
func GetDb(cfg *Config) *gorm.DB {
	var db *gorm.DB
	var err error

	switch cfg.DBType {
	case "postgres":
		db, err = gorm.Open(postgres.Open(cfg.DBDSN), &gorm.Config{})
	default:
		db, err = gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{})
	}
	if err != nil {
		logrus.Fatalf("failed to open database: %v", err)
	}

	return db
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
