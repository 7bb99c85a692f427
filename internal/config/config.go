// Package config centralizes the environment-variable surface every
// component reads from (spec.md §6.4), replacing one-off os.Getenv calls
// scattered through the daemon with a single typed struct assembled once
// at startup.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading it, using system environment variables")
	}
}

// RETS carries the feed credentials and session parameters (spec.md §6.4).
type RETS struct {
	LoginURL  string
	Version   string
	Vendor    string
	Username  string
	Password  string
	UserAgent string
}

// MySQL carries the shared database connection parameters.
type MySQL struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	MaxOpenConns int
}

// ObjectStorage carries the S3-compatible bucket credentials Object Store
// Sync (C9) uploads photo variants to.
type ObjectStorage struct {
	AccessKey string
	SecretKey string
	Endpoint  string
	Bucket    string
}

// Config is the fully-resolved runtime configuration for the daemon.
type Config struct {
	AppEnv   string
	LogLevel string

	RETS          RETS
	MySQL         MySQL
	ObjectStorage ObjectStorage

	SyncIntervalSeconds int
	FullSyncMinInterval time.Duration
	PhotoCacheDir       string
	CacheDir            string
	PhotoPort           string

	AllowedOrigins []string
}

// LoadMySQL reads only the MySQL connection parameters, for tools like
// cmd/migrate that touch the database without needing RETS credentials.
func LoadMySQL() MySQL {
	return MySQL{
		Host:         getEnv("MYSQL_HOST", "localhost"),
		Port:         getEnv("MYSQL_PORT", "3306"),
		User:         getEnv("MYSQL_USER", "rets_user"),
		Password:     getEnv("MYSQL_PASSWORD", "rets_password"),
		Database:     getEnv("MYSQL_DATABASE", "rets_data"),
		MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 10),
	}
}

// Load assembles Config from the process environment, applying the
// defaults spec.md and SPEC_FULL.md §A.2 name for each key.
func Load() (Config, error) {
	cfg := Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "INFO"),
		RETS: RETS{
			LoginURL:  getEnv("RETS_LOGIN_URL", ""),
			Version:   getEnv("RETS_VERSION", "1.7.2"),
			Vendor:    getEnv("RETS_VENDOR", ""),
			Username:  getEnv("RETS_USERNAME", ""),
			Password:  getEnv("RETS_PASSWORD", ""),
			UserAgent: getEnv("RETS_USER_AGENT", "retsd/1.0"),
		},
		MySQL: MySQL{
			Host:         getEnv("MYSQL_HOST", "localhost"),
			Port:         getEnv("MYSQL_PORT", "3306"),
			User:         getEnv("MYSQL_USER", "rets_user"),
			Password:     getEnv("MYSQL_PASSWORD", "rets_password"),
			Database:     getEnv("MYSQL_DATABASE", "rets_data"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 10),
		},
		ObjectStorage: ObjectStorage{
			AccessKey: getEnv("OBJECT_STORAGE_ACCESS_KEY", ""),
			SecretKey: getEnv("OBJECT_STORAGE_SECRET_KEY", ""),
			Endpoint:  getEnv("OBJECT_STORAGE_ENDPOINT", ""),
			Bucket:    getEnv("OBJECT_STORAGE_BUCKET", ""),
		},
		SyncIntervalSeconds: getEnvInt("SYNC_INTERVAL_SECONDS", 60),
		FullSyncMinInterval: getEnvDuration("FULL_SYNC_MIN_INTERVAL", 3*time.Hour),
		PhotoCacheDir:       getEnv("PHOTO_CACHE_DIR", "cache/Photos"),
		CacheDir:            getEnv("CACHE_DIR", "cache"),
		PhotoPort:           getEnv("PHOTO_PORT", "3000"),
		AllowedOrigins:      getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}

	if cfg.RETS.LoginURL == "" {
		return Config{}, fmt.Errorf("RETS_LOGIN_URL is required")
	}
	if cfg.RETS.Username == "" {
		return Config{}, fmt.Errorf("RETS_USERNAME is required")
	}

	return cfg, nil
}

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
		log.Printf("invalid int for %s=%q, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("invalid duration for %s=%q, using default %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
