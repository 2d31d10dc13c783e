package services

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration. It is loaded once at startup and
// passed to constructors; nothing reads viper after LoadConfig returns.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	AI        AIConfig
	LinkedIn  LinkedInConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	LogLevel  string
}

type ServerConfig struct {
	Port              string
	AllowedOrigins    []string
	HTTPClientTimeout time.Duration
}

type DatabaseConfig struct {
	URL          string
	LogLevel     string
	MaxIdleConns int
	MaxOpenConns int
	AutoMigrate  bool
}

type AIConfig struct {
	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string
	GeminiTimeout time.Duration
}

type LinkedInConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	AuthURL      string
	TokenURL     string
	ProfileURL   string
	PublishURL   string
}

type SessionConfig struct {
	Secret       string
	StateTTL     time.Duration
	CookieSecure bool
}

type RateLimitConfig struct {
	GeneratePerMinute int
}

// required maps config keys to the environment variable that must provide them
var required = []struct {
	key string
	env string
}{
	{"gemini.api_key", "GEMINI_API_KEY"},
	{"linkedin.client_id", "LINKEDIN_CLIENT_ID"},
	{"linkedin.client_secret", "LINKEDIN_CLIENT_SECRET"},
	{"linkedin.redirect_url", "LINKEDIN_REDIRECT_URL"},
	{"session.secret", "SESSION_SECRET"},
	{"database.url", "DATABASE_URL"},
}

var envBindings = []struct {
	key string
	env string
}{
	{"server.port", "SERVER_PORT"},
	{"server.allowed_origins", "CORS_ALLOWED_ORIGINS"},
	{"server.http_client_timeout", "HTTP_CLIENT_TIMEOUT"},
	{"database.url", "DATABASE_URL"},
	{"database.log_level", "DATABASE_LOG_LEVEL"},
	{"database.max_idle_conns", "DATABASE_MAX_IDLE_CONNS"},
	{"database.max_open_conns", "DATABASE_MAX_OPEN_CONNS"},
	{"database.auto_migrate", "DATABASE_AUTO_MIGRATE"},
	{"gemini.api_key", "GEMINI_API_KEY"},
	{"gemini.model", "GEMINI_MODEL"},
	{"gemini.timeout", "GEMINI_TIMEOUT"},
	{"gemini.base_url", "GEMINI_BASE_URL"},
	{"linkedin.client_id", "LINKEDIN_CLIENT_ID"},
	{"linkedin.client_secret", "LINKEDIN_CLIENT_SECRET"},
	{"linkedin.redirect_url", "LINKEDIN_REDIRECT_URL"},
	{"linkedin.scopes", "LINKEDIN_SCOPES"},
	{"linkedin.auth_url", "LINKEDIN_AUTH_URL"},
	{"linkedin.token_url", "LINKEDIN_TOKEN_URL"},
	{"linkedin.profile_url", "LINKEDIN_PROFILE_URL"},
	{"linkedin.publish_url", "LINKEDIN_PUBLISH_URL"},
	{"session.secret", "SESSION_SECRET"},
	{"session.state_ttl", "STATE_TTL"},
	{"session.cookie_secure", "COOKIE_SECURE"},
	{"rate_limit.generate_per_minute", "RATE_LIMIT_GENERATE_PER_MINUTE"},
	{"log.level", "LOG_LEVEL"},
}

// bindEnv maps key to an environment variable. Entries of the .env file are
// stored under the lower-cased variable name and become the key's default.
func bindEnv(v *viper.Viper, key, env string) {
	v.BindEnv(key, env)
	if fileKey := strings.ToLower(env); v.InConfig(fileKey) {
		v.SetDefault(key, v.Get(fileKey))
	}
}

func newViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Warn("Config file not found, using defaults and environment variables")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return v, nil
}

// LoadDatabaseURL reads only DATABASE_URL, for commands that need nothing else
func LoadDatabaseURL() (string, error) {
	v, err := newViper()
	if err != nil {
		return "", err
	}
	bindEnv(v, "database.url", "DATABASE_URL")
	url := strings.TrimSpace(v.GetString("database.url"))
	if url == "" {
		return "", fmt.Errorf("required environment variables are not set: [DATABASE_URL]")
	}
	return url, nil
}

// LoadConfig loads configuration from environment variables and an optional .env file
func LoadConfig() (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowed_origins", "http://localhost:3000")
	v.SetDefault("server.http_client_timeout", "15s")
	v.SetDefault("database.log_level", "silent")
	v.SetDefault("database.max_idle_conns", "10")
	v.SetDefault("database.max_open_conns", "100")
	v.SetDefault("database.auto_migrate", "false")
	v.SetDefault("gemini.model", DefaultModelName)
	v.SetDefault("gemini.timeout", "30s")
	v.SetDefault("linkedin.scopes", "openid,profile,email,w_member_social")
	v.SetDefault("linkedin.auth_url", defaultLinkedInAuthURL)
	v.SetDefault("linkedin.token_url", defaultLinkedInTokenURL)
	v.SetDefault("linkedin.profile_url", defaultLinkedInProfileURL)
	v.SetDefault("linkedin.publish_url", defaultLinkedInPublishURL)
	v.SetDefault("session.state_ttl", "10m")
	v.SetDefault("session.cookie_secure", "false")
	v.SetDefault("rate_limit.generate_per_minute", "10")
	v.SetDefault("log.level", "info")

	// Map environment variables to config keys
	for _, b := range envBindings {
		bindEnv(v, b.key, b.env)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:              v.GetString("server.port"),
			AllowedOrigins:    splitList(v.GetString("server.allowed_origins")),
			HTTPClientTimeout: v.GetDuration("server.http_client_timeout"),
		},
		Database: DatabaseConfig{
			URL:          v.GetString("database.url"),
			LogLevel:     v.GetString("database.log_level"),
			MaxIdleConns: v.GetInt("database.max_idle_conns"),
			MaxOpenConns: v.GetInt("database.max_open_conns"),
			AutoMigrate:  v.GetBool("database.auto_migrate"),
		},
		AI: AIConfig{
			GeminiAPIKey:  v.GetString("gemini.api_key"),
			GeminiModel:   v.GetString("gemini.model"),
			GeminiBaseURL: v.GetString("gemini.base_url"),
			GeminiTimeout: v.GetDuration("gemini.timeout"),
		},
		LinkedIn: LinkedInConfig{
			ClientID:     v.GetString("linkedin.client_id"),
			ClientSecret: v.GetString("linkedin.client_secret"),
			RedirectURL:  v.GetString("linkedin.redirect_url"),
			Scopes:       splitList(v.GetString("linkedin.scopes")),
			AuthURL:      v.GetString("linkedin.auth_url"),
			TokenURL:     v.GetString("linkedin.token_url"),
			ProfileURL:   v.GetString("linkedin.profile_url"),
			PublishURL:   v.GetString("linkedin.publish_url"),
		},
		Session: SessionConfig{
			Secret:       v.GetString("session.secret"),
			StateTTL:     v.GetDuration("session.state_ttl"),
			CookieSecure: v.GetBool("session.cookie_secure"),
		},
		RateLimit: RateLimitConfig{
			GeneratePerMinute: v.GetInt("rate_limit.generate_per_minute"),
		},
		LogLevel: v.GetString("log.level"),
	}

	var missing []string
	for _, r := range required {
		if strings.TrimSpace(v.GetString(r.key)) == "" {
			missing = append(missing, r.env)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that have a valid shape only in certain ranges
func (c *Config) Validate() error {
	if len(c.Session.Secret) < MinSessionSecretLength {
		return fmt.Errorf("SESSION_SECRET must be at least %d bytes", MinSessionSecretLength)
	}
	if c.Session.StateTTL <= 0 {
		return fmt.Errorf("STATE_TTL must be positive")
	}
	if c.Server.HTTPClientTimeout <= 0 {
		return fmt.Errorf("HTTP_CLIENT_TIMEOUT must be positive")
	}
	if c.AI.GeminiTimeout <= 0 {
		return fmt.Errorf("GEMINI_TIMEOUT must be positive")
	}
	if c.RateLimit.GeneratePerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_GENERATE_PER_MINUTE must not be negative")
	}
	return nil
}

// SlogLevel converts the configured log level into an slog.Level
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
