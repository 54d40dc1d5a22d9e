package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	App        AppConfig
	DB         DBConfig
	Redis      RedisConfig
	JWT        JWTConfig
	MinIO      MinIOConfig
	CORS       CORSConfig
	Encryption EncryptionConfig
	Firebase   FirebaseConfig
	Chat       ChatConfig
}

type AppConfig struct {
	Env  string
	Port string
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN returns the PostgreSQL connection string
func (d DBConfig) DSN() string {
	return "host=" + d.Host +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.Name +
		" port=" + d.Port +
		" sslmode=" + d.SSLMode
}

// URL returns the PostgreSQL connection URL (for golang-migrate)
func (d DBConfig) URL() string {
	return "postgres://" + d.User + ":" + d.Password +
		"@" + d.Host + ":" + d.Port +
		"/" + d.Name + "?sslmode=" + d.SSLMode
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

// Addr returns the Redis address
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type JWTConfig struct {
	Secret string
	Expiry time.Duration
}

type MinIOConfig struct {
	Endpoint  string
	PublicURL string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type CORSConfig struct {
	Origins          []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// EncryptionConfig controls at-rest message encryption. The mode is decided
// once at startup: when Enabled is false messages are stored in plaintext,
// an explicit operational choice rather than a silent fallback.
type EncryptionConfig struct {
	Enabled bool
	Key     string // 64-char hex, or any string >= 32 chars (HKDF-derived)
}

type FirebaseConfig struct {
	CredentialsFile string
}

// ChatConfig bundles the tunables of the messaging core.
type ChatConfig struct {
	EditWindow      time.Duration // how long a text message stays editable
	RateLimitCount  int           // max sends per window, per sender
	RateLimitWindow time.Duration
	AttachmentTTL   time.Duration // pending attachment expiry
	PreviewMaxLen   int           // plaintext preview truncation
}

// Load reads configuration from .env file and environment variables
func Load() *Config {
	// Load .env file (ignore error if not exists - e.g. in Docker)
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, reading from environment variables")
	}

	jwtExpiry, err := time.ParseDuration(getEnv("JWT_EXPIRY", "24h"))
	if err != nil {
		jwtExpiry = 24 * time.Hour
	}

	encKey := getEnv("CHAT_ENCRYPTION_KEY", "")
	encEnabled := encKey != ""
	if v, ok := os.LookupEnv("CHAT_ENCRYPTION_ENABLED"); ok {
		encEnabled, _ = strconv.ParseBool(v)
	}

	return &Config{
		App: AppConfig{
			Env:  getEnv("APP_ENV", "development"),
			Port: getEnv("APP_PORT", "8080"),
		},
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "agrilink"),
			Password: getEnv("DB_PASSWORD", "agrilink"),
			Name:     getEnv("DB_NAME", "agrilink_chat"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "default-secret"),
			Expiry: jwtExpiry,
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			PublicURL: getEnv("MINIO_PUBLIC_URL", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:    getEnv("MINIO_BUCKET", "agrilink-chat-media"),
			UseSSL:    getEnv("MINIO_USE_SSL", "false") == "true",
		},
		CORS: CORSConfig{
			Origins:          strings.Split(getEnv("CORS_ORIGINS", "http://localhost:5173"), ","),
			AllowCredentials: getEnv("CORS_ALLOW_CREDENTIALS", "true") == "true",
			MaxAge:           getDuration("CORS_MAX_AGE", 12*time.Hour),
		},
		Encryption: EncryptionConfig{
			Enabled: encEnabled,
			Key:     encKey,
		},
		Firebase: FirebaseConfig{
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
		},
		Chat: ChatConfig{
			EditWindow:      getDuration("CHAT_EDIT_WINDOW", 15*time.Minute),
			RateLimitCount:  getInt("CHAT_RATE_LIMIT_COUNT", 60),
			RateLimitWindow: getDuration("CHAT_RATE_LIMIT_WINDOW", 60*time.Second),
			AttachmentTTL:   getDuration("CHAT_ATTACHMENT_TTL", time.Hour),
			PreviewMaxLen:   getInt("CHAT_PREVIEW_MAX_LEN", 80),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
