package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort       string
	Env           string
	LogLevel      string
	JWTSecret     string
	MetricsPrefix string
	DB            DBConfig
}

// DBConfig selects the gorm dialector and pool settings.
type DBConfig struct {
	Driver          string // mysql | postgres | sqlite
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        string // silent | error | warn | info
}

// Load reads .env (when present) and then the process environment.
// The second return value reports whether a .env file was found.
func Load() (Config, bool, error) {
	envLoaded := godotenv.Load() == nil

	cfg := Config{
		AppPort:       getEnv("APP_PORT", "8080"),
		Env:           getEnv("APP_ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		JWTSecret:     getEnv("JWT_SECRET", ""),
		MetricsPrefix: getEnv("METRICS_PREFIX", "lpar_inventory"),
		DB: DBConfig{
			Driver:          strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
			DSN:             getEnv("DB_DSN", os.Getenv("MYSQL_DSN")),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 50),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", time.Hour),
			LogLevel:        getEnv("DB_LOG_LEVEL", "warn"),
		},
	}

	switch cfg.DB.Driver {
	case "sqlite":
		if cfg.DB.DSN == "" {
			cfg.DB.DSN = "lpar_inventory.db"
		}
	case "mysql", "postgres":
		if cfg.DB.DSN == "" {
			return cfg, envLoaded, fmt.Errorf("DB_DSN not set for driver %q", cfg.DB.Driver)
		}
	default:
		return cfg, envLoaded, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DB.Driver)
	}

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret-only"
	}

	return cfg, envLoaded, nil
}

func (c Config) IsProduction() bool { return c.Env == "production" }

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}
