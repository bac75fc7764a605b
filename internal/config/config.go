package config

import (
	"os"
	"strconv"
	"time"
	_ "time/tzdata"
)

// DatabaseConfig holds metadata store connection settings.
type DatabaseConfig struct {
	// Driver selects the metadata store: "postgres" or "memory".
	Driver string
	// URL is a full connection string. When set it takes precedence over the component fields.
	URL                string
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// StorageConfig selects and configures the content store.
type StorageConfig struct {
	// Backend is "fs" (flat directory of blobs) or "minio".
	Backend string
	Dir     string
	MinIO   MinIOConfig
}

// AuthConfig holds token and registration policy settings.
type AuthConfig struct {
	SecretKey          string
	TokenExpireMinutes int
	AllowUserSignup    bool
	BootstrapUsername  string
	BootstrapPassword  string
	LoginRatePerMin    int
	LoginRateBurst     int
}

// TokenTTL returns the configured token lifetime.
func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenExpireMinutes) * time.Minute
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level    string
	Format   string
	Location *time.Location
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost     string
	Port        string
	Env         string
	MaxUploadMB int
	Database    DatabaseConfig
	Storage     StorageConfig
	Auth        AuthConfig
	Log         LogConfig
}

// DefaultSecretKey is used when SECRET_KEY is unset. It must be replaced outside development.
const DefaultSecretKey = "change-me"

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost:     getEnv("APP_HOST", "localhost:8080"),
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("APP_ENV", "development"),
		MaxUploadMB: getEnvInt("MAX_UPLOAD_MB", 100),
		Database: DatabaseConfig{
			Driver:             getEnv("DATABASE_DRIVER", "postgres"),
			URL:                getEnv("DATABASE_URL", ""),
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		Storage: StorageConfig{
			Backend: getEnv("STORAGE_BACKEND", "fs"),
			Dir:     getEnv("STORAGE_DIR", "storage"),
			MinIO: MinIOConfig{
				Endpoint:  getEnv("MINIO_ENDPOINT", ""),
				AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
				SecretKey: getEnv("MINIO_SECRET_KEY", ""),
				Bucket:    getEnv("MINIO_BUCKET", ""),
				UseSSL:    getEnvBool("MINIO_USE_SSL", false),
			},
		},
		Auth: AuthConfig{
			SecretKey:          getEnv("SECRET_KEY", DefaultSecretKey),
			TokenExpireMinutes: getEnvInt("TOKEN_EXPIRE_MINUTES", 60*12),
			AllowUserSignup:    getEnvBool("ALLOW_USER_SIGNUP", false),
			BootstrapUsername:  getEnv("BOOTSTRAP_ADMIN_USERNAME", ""),
			BootstrapPassword:  getEnv("BOOTSTRAP_ADMIN_PASSWORD", ""),
			LoginRatePerMin:    getEnvInt("LOGIN_RATE_PER_MIN", 10),
			LoginRateBurst:     getEnvInt("LOGIN_RATE_BURST", 5),
		},
		Log: LogConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Format:   getEnv("LOG_FORMAT", ""),
			Location: getEnvLocation("TZ", time.UTC),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvLocation(key string, def *time.Location) *time.Location {
	if v := os.Getenv(key); v != "" {
		loc, err := time.LoadLocation(v)
		if err == nil {
			return loc
		}
	}
	return def
}
