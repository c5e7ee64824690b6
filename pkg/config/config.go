package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Verification  VerificationConfig
	MFA           MFAConfig
	Search        SearchConfig
	Compare       CompareConfig
	Presentations PresentationsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
	Issuer            string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// VerificationConfig governs email verification token issuance.
type VerificationConfig struct {
	TokenTTL time.Duration
}

// MFAConfig governs phone second-factor challenges.
type MFAConfig struct {
	CodeTTL        time.Duration
	MaxAttempts    int
	CaptchaTTL     time.Duration
	RequireCaptcha bool
}

// SearchConfig tunes institution search caching.
type SearchConfig struct {
	CacheTTL   time.Duration
	MaxResults int
}

// CompareConfig bounds the streaming comparison endpoint.
type CompareConfig struct {
	MinSchools int
	MaxSchools int
	ChunkSize  int
}

// PresentationsConfig controls generation workers and export storage.
type PresentationsConfig struct {
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	WorkerConcurrency int
	WorkerRetries     int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
		Issuer:            v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Verification = VerificationConfig{
		TokenTTL: parseDuration(v.GetString("VERIFICATION_TOKEN_TTL"), 24*time.Hour),
	}

	cfg.MFA = MFAConfig{
		CodeTTL:        parseDuration(v.GetString("MFA_CODE_TTL"), 5*time.Minute),
		MaxAttempts:    v.GetInt("MFA_MAX_ATTEMPTS"),
		CaptchaTTL:     parseDuration(v.GetString("MFA_CAPTCHA_TTL"), 2*time.Minute),
		RequireCaptcha: v.GetBool("MFA_REQUIRE_CAPTCHA"),
	}

	cfg.Search = SearchConfig{
		CacheTTL:   parseDuration(v.GetString("SEARCH_CACHE_TTL"), 10*time.Minute),
		MaxResults: v.GetInt("SEARCH_MAX_RESULTS"),
	}

	cfg.Compare = CompareConfig{
		MinSchools: v.GetInt("COMPARE_MIN_SCHOOLS"),
		MaxSchools: v.GetInt("COMPARE_MAX_SCHOOLS"),
		ChunkSize:  v.GetInt("COMPARE_CHUNK_SIZE"),
	}

	cfg.Presentations = PresentationsConfig{
		StorageDir:        v.GetString("PRESENTATIONS_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("PRESENTATIONS_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("PRESENTATIONS_SIGNED_URL_TTL"), 24*time.Hour),
		WorkerConcurrency: v.GetInt("PRESENTATIONS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("PRESENTATIONS_WORKER_RETRIES"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "transferscope")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "1h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")
	v.SetDefault("JWT_ISSUER", "transferscope-portal")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("VERIFICATION_TOKEN_TTL", "24h")

	v.SetDefault("MFA_CODE_TTL", "5m")
	v.SetDefault("MFA_MAX_ATTEMPTS", 5)
	v.SetDefault("MFA_CAPTCHA_TTL", "2m")
	v.SetDefault("MFA_REQUIRE_CAPTCHA", true)

	v.SetDefault("SEARCH_CACHE_TTL", "10m")
	v.SetDefault("SEARCH_MAX_RESULTS", 20)

	v.SetDefault("COMPARE_MIN_SCHOOLS", 2)
	v.SetDefault("COMPARE_MAX_SCHOOLS", 5)
	v.SetDefault("COMPARE_CHUNK_SIZE", 160)

	v.SetDefault("PRESENTATIONS_STORAGE_DIR", "./presentations")
	v.SetDefault("PRESENTATIONS_SIGNED_URL_SECRET", "dev_presentations_secret")
	v.SetDefault("PRESENTATIONS_SIGNED_URL_TTL", "24h")
	v.SetDefault("PRESENTATIONS_WORKER_CONCURRENCY", 1)
	v.SetDefault("PRESENTATIONS_WORKER_RETRIES", 3)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
