package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	LLM      LLMConfig
	Storage  StorageConfig
	Quota    QuotaConfig
	Enrich   EnrichConfig
	Billing  BillingConfig
	Notify   NotifyConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	SupabaseURL string
	SupabaseKey string
	JWTSecret   string
}

type LLMConfig struct {
	OpenAIKey        string
	AnthropicKey     string
	OllamaURL        string
	DefaultProvider  string
	DefaultModel     string
	FallbackProvider string
	RequestTimeout   time.Duration
}

type StorageConfig struct {
	SupabaseURL string
	SupabaseKey string
	Bucket      string
}

// QuotaConfig holds per-tier limits for metered operations.
type QuotaConfig struct {
	FreeDocuments      int
	FreeMessages       int
	PremiumDocuments   int
	PremiumMessages    int
	ProDocuments       int
	ProMessages        int
	MaxUploadSizeBytes int64
}

// EnrichConfig bounds the chat-mode context assembly.
type EnrichConfig struct {
	ExcerptBudget int
	HistoryWindow int
	DocCacheTTL   time.Duration
}

type BillingConfig struct {
	WebhookSecret string
}

// NotifyConfig configures outbound document.completed notifications.
// An empty URL disables dispatch.
type NotifyConfig struct {
	WebhookURL    string
	WebhookSecret string
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	llmTimeout, err := getEnvDuration("LLM_REQUEST_TIMEOUT", 90*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_REQUEST_TIMEOUT: %w", err)
	}

	quota, err := loadQuota()
	if err != nil {
		return nil, err
	}

	excerptBudget, err := getEnvInt("ENRICH_EXCERPT_BUDGET", 4000)
	if err != nil {
		return nil, fmt.Errorf("invalid ENRICH_EXCERPT_BUDGET: %w", err)
	}

	historyWindow, err := getEnvInt("ENRICH_HISTORY_WINDOW", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid ENRICH_HISTORY_WINDOW: %w", err)
	}

	docCacheTTL, err := getEnvDuration("ENRICH_DOC_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid ENRICH_DOC_CACHE_TTL: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: port,
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       maxConns,
			MinConns:       minConns,
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			SupabaseURL: getEnv("SUPABASE_URL", ""),
			SupabaseKey: getEnv("SUPABASE_ANON_KEY", ""),
			JWTSecret:   getEnv("SUPABASE_JWT_SECRET", ""),
		},
		LLM: LLMConfig{
			OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
			AnthropicKey:     getEnv("ANTHROPIC_API_KEY", ""),
			OllamaURL:        getEnv("OLLAMA_URL", ""),
			DefaultProvider:  getEnv("LLM_DEFAULT_PROVIDER", "openai"),
			DefaultModel:     getEnv("LLM_DEFAULT_MODEL", "gpt-4o-mini"),
			FallbackProvider: getEnv("LLM_FALLBACK_PROVIDER", ""),
			RequestTimeout:   llmTimeout,
		},
		Storage: StorageConfig{
			SupabaseURL: getEnv("SUPABASE_URL", ""),
			SupabaseKey: getEnv("SUPABASE_SERVICE_KEY", ""),
			Bucket:      getEnv("STORAGE_BUCKET", "documents"),
		},
		Quota: quota,
		Enrich: EnrichConfig{
			ExcerptBudget: excerptBudget,
			HistoryWindow: historyWindow,
			DocCacheTTL:   docCacheTTL,
		},
		Billing: BillingConfig{
			WebhookSecret: getEnv("BILLING_WEBHOOK_SECRET", ""),
		},
		Notify: NotifyConfig{
			WebhookURL:    getEnv("NOTIFY_WEBHOOK_URL", ""),
			WebhookSecret: getEnv("NOTIFY_WEBHOOK_SECRET", ""),
		},
	}

	return cfg, nil
}

func loadQuota() (QuotaConfig, error) {
	var q QuotaConfig
	var err error

	if q.FreeDocuments, err = getEnvInt("QUOTA_FREE_DOCUMENTS", 3); err != nil {
		return q, fmt.Errorf("invalid QUOTA_FREE_DOCUMENTS: %w", err)
	}
	if q.FreeMessages, err = getEnvInt("QUOTA_FREE_MESSAGES", 50); err != nil {
		return q, fmt.Errorf("invalid QUOTA_FREE_MESSAGES: %w", err)
	}
	if q.PremiumDocuments, err = getEnvInt("QUOTA_PREMIUM_DOCUMENTS", 50); err != nil {
		return q, fmt.Errorf("invalid QUOTA_PREMIUM_DOCUMENTS: %w", err)
	}
	if q.PremiumMessages, err = getEnvInt("QUOTA_PREMIUM_MESSAGES", 1000); err != nil {
		return q, fmt.Errorf("invalid QUOTA_PREMIUM_MESSAGES: %w", err)
	}
	if q.ProDocuments, err = getEnvInt("QUOTA_PRO_DOCUMENTS", 500); err != nil {
		return q, fmt.Errorf("invalid QUOTA_PRO_DOCUMENTS: %w", err)
	}
	if q.ProMessages, err = getEnvInt("QUOTA_PRO_MESSAGES", 10000); err != nil {
		return q, fmt.Errorf("invalid QUOTA_PRO_MESSAGES: %w", err)
	}

	maxUpload, err := getEnvInt("MAX_UPLOAD_SIZE_BYTES", 10*1024*1024)
	if err != nil {
		return q, fmt.Errorf("invalid MAX_UPLOAD_SIZE_BYTES: %w", err)
	}
	q.MaxUploadSizeBytes = int64(maxUpload)

	return q, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "SUPABASE_JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}
