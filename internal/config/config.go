package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	CredentialStoreKratos = "kratos"
	CredentialStoreLocal  = "local"
)

var ErrMissingConfig = errors.New("missing required configuration")

type Config struct {
	Env   string
	Port  int
	DBURL string

	DBAutoMigrate bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CredentialStore           string
	CredentialStorePublicURL  string
	CredentialStorePublicKey  string
	CredentialStoreAdminURL   string
	CredentialStoreServiceKey string
	CredentialStoreSchemaID   string

	JWTSecret           string
	JWTAccessTTLMinutes int

	UserCacheTTL time.Duration
	ListCacheTTL time.Duration

	AdminEmail    string
	AdminPassword string
	AdminName     string

	DiscloseApprovalStatus bool

	OTelEnabled  bool
	OTelEndpoint string

	CORSAllowedOrigins []string
}

// Load reads the process environment and fails fast on anything required.
func Load() (Config, error) {
	cfg := Config{
		Env:           getEnv("APP_ENV", "dev"),
		Port:          getEnvInt("PORT", 8080),
		DBURL:         getEnv("DATABASE_URL", ""),
		DBAutoMigrate: getEnvBool("DB_AUTO_MIGRATE", false),

		RedisAddr:     buildRedisAddr(),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		CredentialStore:           strings.ToLower(getEnv("CREDENTIAL_STORE", CredentialStoreKratos)),
		CredentialStorePublicURL:  getEnv("CREDENTIAL_STORE_PUBLIC_URL", ""),
		CredentialStorePublicKey:  getEnv("CREDENTIAL_STORE_PUBLIC_KEY", ""),
		CredentialStoreAdminURL:   getEnv("CREDENTIAL_STORE_ADMIN_URL", ""),
		CredentialStoreServiceKey: getEnv("CREDENTIAL_STORE_SERVICE_KEY", ""),
		CredentialStoreSchemaID:   getEnv("CREDENTIAL_STORE_SCHEMA_ID", "default"),

		JWTSecret:           getEnv("JWT_SECRET", ""),
		JWTAccessTTLMinutes: getEnvInt("JWT_ACCESS_TTL_MINUTES", 60),

		UserCacheTTL: time.Duration(getEnvInt("USER_CACHE_TTL_SECONDS", 300)) * time.Second,
		ListCacheTTL: time.Duration(getEnvInt("LIST_CACHE_TTL_SECONDS", 60)) * time.Second,

		AdminEmail:    getEnv("ADMIN_EMAIL", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		AdminName:     getEnv("ADMIN_NAME", "Administrator"),

		DiscloseApprovalStatus: getEnvBool("DISCLOSE_APPROVAL_STATUS", true),

		OTelEnabled:  getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "")),
	}

	if cfg.DBURL == "" && os.Getenv("DB_PASSWORD") != "" {
		cfg.DBURL = buildDBURL()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// WorkerConfig is the subset the maintenance worker needs. It never touches
// the cache or the credential store APIs, only the database.
type WorkerConfig struct {
	Env             string
	DBURL           string
	CredentialStore string
	HealthPort      int
	PruneGrace      time.Duration
	PruneEvery      time.Duration
}

// LoadWorker reads the worker's environment. Only the database is required.
func LoadWorker() (WorkerConfig, error) {
	cfg := WorkerConfig{
		Env:             getEnv("APP_ENV", "dev"),
		DBURL:           getEnv("DATABASE_URL", ""),
		CredentialStore: strings.ToLower(getEnv("CREDENTIAL_STORE", CredentialStoreKratos)),
		HealthPort:      getEnvInt("WORKER_HEALTH_PORT", 8081),
		PruneGrace:      time.Duration(getEnvInt("SESSION_PRUNE_GRACE_HOURS", 24)) * time.Hour,
		PruneEvery:      time.Duration(getEnvInt("SESSION_PRUNE_INTERVAL_MINUTES", 30)) * time.Minute,
	}

	if cfg.DBURL == "" && os.Getenv("DB_PASSWORD") != "" {
		cfg.DBURL = buildDBURL()
	}

	if cfg.DBURL == "" {
		return WorkerConfig{}, fmt.Errorf("%w: DATABASE_URL (or DB_PASSWORD)", ErrMissingConfig)
	}
	if cfg.PruneEvery <= 0 {
		return WorkerConfig{}, fmt.Errorf("%w: positive SESSION_PRUNE_INTERVAL_MINUTES", ErrMissingConfig)
	}
	return cfg, nil
}

// PrunesSessions reports whether credential sessions live in our database.
func (c WorkerConfig) PrunesSessions() bool {
	return c.CredentialStore == CredentialStoreLocal
}

// Validate reports every missing required value at once.
func (c Config) Validate() error {
	var missing []string

	if c.DBURL == "" {
		missing = append(missing, "DATABASE_URL (or DB_PASSWORD)")
	}
	if c.RedisAddr == "" {
		missing = append(missing, "REDIS_HOST")
	}

	switch c.CredentialStore {
	case CredentialStoreKratos:
		if c.CredentialStorePublicURL == "" {
			missing = append(missing, "CREDENTIAL_STORE_PUBLIC_URL")
		}
		if c.CredentialStorePublicKey == "" {
			missing = append(missing, "CREDENTIAL_STORE_PUBLIC_KEY")
		}
		if c.CredentialStoreAdminURL == "" {
			missing = append(missing, "CREDENTIAL_STORE_ADMIN_URL")
		}
		if c.CredentialStoreServiceKey == "" {
			missing = append(missing, "CREDENTIAL_STORE_SERVICE_KEY")
		}
	case CredentialStoreLocal:
		if len(c.JWTSecret) < 32 {
			missing = append(missing, "JWT_SECRET (at least 32 bytes)")
		}
	default:
		return fmt.Errorf("%w: CREDENTIAL_STORE must be %q or %q, got %q",
			ErrMissingConfig, CredentialStoreKratos, CredentialStoreLocal, c.CredentialStore)
	}

	if c.UserCacheTTL <= 0 || c.ListCacheTTL <= 0 {
		missing = append(missing, "positive cache TTLs")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}
	return nil
}

func (c Config) JWTAccessTTL() time.Duration {
	return time.Duration(c.JWTAccessTTLMinutes) * time.Minute
}

func (c Config) IsProd() bool {
	return c.Env == "prod"
}

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "bizhub")
	pass := getEnv("DB_PASSWORD", "")
	name := getEnv("DB_NAME", "bizhub")
	ssl := getEnv("DB_SSLMODE", "disable")

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, pass),
		Host:     net.JoinHostPort(host, port),
		Path:     "/" + name,
		RawQuery: url.Values{"sslmode": {ssl}}.Encode(),
	}
	return u.String()
}

func buildRedisAddr() string {
	host := getEnv("REDIS_HOST", "")
	if host == "" {
		return ""
	}
	return net.JoinHostPort(host, getEnv("REDIS_PORT", "6379"))
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)
		if err != nil {
			return fallback
		}
		return num
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return b
	}
	return fallback
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
