package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	Env      string
	HTTPAddr string
	BaseURL  string

	DBDSN     string
	JWTSecret string

	LogLevel string

	SessionDays    int
	InviteTTLDays  int
	LoginRateRPM   int
	AcceptRateRPM  int
	RetentionDays  int
	MailWebhookURL string
	MailTimeoutMS  int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Env = strings.TrimSpace(os.Getenv("PORTAL_ENV"))
	if cfg.Env == "" {
		return nil, fmt.Errorf("PORTAL_ENV is required")
	}
	if cfg.Env != "dev" && cfg.Env != "prod" {
		return nil, fmt.Errorf("PORTAL_ENV must be one of: dev, prod (got: %s)", cfg.Env)
	}

	cfg.HTTPAddr = getEnvOrDefault("PORTAL_HTTP_ADDR", ":8080")

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("PORTAL_BASE_URL")), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("PORTAL_BASE_URL is required")
	}

	cfg.DBDSN = strings.TrimSpace(os.Getenv("PORTAL_DB_DSN"))
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("PORTAL_DB_DSN is required")
	}

	cfg.JWTSecret = os.Getenv("PORTAL_JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("PORTAL_JWT_SECRET is required")
	}
	if cfg.Env == "prod" && len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("PORTAL_JWT_SECRET must be at least 32 characters (currently %d)", len(cfg.JWTSecret))
	}

	cfg.LogLevel = getEnvOrDefault("PORTAL_LOG_LEVEL", "info")
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("PORTAL_LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", cfg.LogLevel)
	}

	var err error
	cfg.SessionDays, err = getEnvIntOrDefault("PORTAL_SESSION_DAYS", 7)
	if err != nil {
		return nil, err
	}
	if cfg.SessionDays <= 0 {
		return nil, fmt.Errorf("PORTAL_SESSION_DAYS must be positive (got: %d)", cfg.SessionDays)
	}

	cfg.InviteTTLDays, err = getEnvIntOrDefault("PORTAL_INVITE_TTL_DAYS", 7)
	if err != nil {
		return nil, err
	}
	if cfg.InviteTTLDays <= 0 {
		return nil, fmt.Errorf("PORTAL_INVITE_TTL_DAYS must be positive (got: %d)", cfg.InviteTTLDays)
	}

	cfg.LoginRateRPM, err = getEnvIntOrDefault("PORTAL_LOGIN_RATE_RPM", 10)
	if err != nil {
		return nil, err
	}

	cfg.AcceptRateRPM, err = getEnvIntOrDefault("PORTAL_ACCEPT_RATE_RPM", 10)
	if err != nil {
		return nil, err
	}

	cfg.RetentionDays, err = getEnvIntOrDefault("PORTAL_AUDIT_RETENTION_DAYS", 365)
	if err != nil {
		return nil, err
	}
	if cfg.RetentionDays <= 0 {
		return nil, fmt.Errorf("PORTAL_AUDIT_RETENTION_DAYS must be positive (got: %d)", cfg.RetentionDays)
	}

	// Optional; when empty, invitation emails are logged instead of sent.
	cfg.MailWebhookURL = strings.TrimSpace(os.Getenv("PORTAL_MAIL_WEBHOOK_URL"))

	cfg.MailTimeoutMS, err = getEnvIntOrDefault("PORTAL_MAIL_TIMEOUT_MS", 2000)
	if err != nil {
		return nil, err
	}
	if cfg.MailTimeoutMS <= 0 || cfg.MailTimeoutMS > 30000 {
		return nil, fmt.Errorf("PORTAL_MAIL_TIMEOUT_MS must be between 1 and 30000 (got: %d)", cfg.MailTimeoutMS)
	}

	return cfg, nil
}

// IsDev returns true if running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

// RedactedValues returns a map of config values with secrets redacted.
func (c *Config) RedactedValues() map[string]string {
	return map[string]string{
		"PORTAL_ENV":                  c.Env,
		"PORTAL_HTTP_ADDR":            c.HTTPAddr,
		"PORTAL_BASE_URL":             c.BaseURL,
		"PORTAL_DB_DSN":               redactDSN(c.DBDSN),
		"PORTAL_JWT_SECRET":           "[REDACTED]",
		"PORTAL_LOG_LEVEL":            c.LogLevel,
		"PORTAL_SESSION_DAYS":         fmt.Sprintf("%d", c.SessionDays),
		"PORTAL_INVITE_TTL_DAYS":      fmt.Sprintf("%d", c.InviteTTLDays),
		"PORTAL_LOGIN_RATE_RPM":       fmt.Sprintf("%d", c.LoginRateRPM),
		"PORTAL_ACCEPT_RATE_RPM":      fmt.Sprintf("%d", c.AcceptRateRPM),
		"PORTAL_AUDIT_RETENTION_DAYS": fmt.Sprintf("%d", c.RetentionDays),
		"PORTAL_MAIL_WEBHOOK_URL":     redactDSN(c.MailWebhookURL),
		"PORTAL_MAIL_TIMEOUT_MS":      fmt.Sprintf("%d", c.MailTimeoutMS),
	}
}

func redactDSN(dsn string) string {
	if start := strings.Index(dsn, "://"); start != -1 {
		if end := strings.Index(dsn[start+3:], "@"); end != -1 {
			return dsn[:start+3] + "[REDACTED]" + dsn[start+3+end:]
		}
	}
	return dsn
}

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got: %q)", key, value)
	}
	return parsed, nil
}
