package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	StorageJSON   = "json"
	StorageSQLite = "sqlite"
)

// Mail providers.
const (
	MailLog   = "log"
	MailSMTP  = "smtp"
	MailBrevo = "brevo"
)

// Config holds the application configuration.
type Config struct {
	ServerPort int
	AppEnv     string
	LogLevel   string
	LogFormat  string

	StorageDriver string
	DataDir       string // Directory holding the JSON collections
	DatabasePath  string

	CORSOrigins    []string
	PasswordHasher string

	Mail   MailConfig
	Notify NotifyConfig
}

// MailConfig selects and configures the outbound email transport.
type MailConfig struct {
	Provider      string
	SMTPServer    string
	SMTPPort      int
	SMTPUser      string
	SMTPPass      string
	FromAddress   string
	FromName      string
	BrevoAPIKey   string
	BrevoEndpoint string
}

// NotifyConfig tunes notification delivery.
type NotifyConfig struct {
	Mode      string // "sync" or "async"
	Timeout   time.Duration
	Retries   uint64
	QueueSize int
}

// IsProduction reports whether APP_ENV is "production".
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Load reads an optional .env file, then loads configuration from
// environment variables or sets defaults. Variables already present in the
// environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	port, err := getEnvInt("PORT", 10000)
	if err != nil {
		return nil, err
	}
	smtpPort, err := getEnvInt("SMTP_PORT", 587)
	if err != nil {
		return nil, err
	}
	timeout, err := getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	retries, err := getEnvInt("NOTIFY_RETRIES", 2)
	if err != nil {
		return nil, err
	}
	queueSize, err := getEnvInt("NOTIFY_QUEUE_SIZE", 100)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerPort:     port,
		AppEnv:         getEnv("APP_ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "console"),
		StorageDriver:  strings.ToLower(getEnv("STORAGE_DRIVER", StorageJSON)),
		DataDir:        getEnv("DATA_DIR", "."),
		DatabasePath:   getEnv("DATABASE_PATH", "./turbinix.db"),
		CORSOrigins:    splitList(getEnv("CORS_ORIGINS", "*")),
		PasswordHasher: strings.ToLower(getEnv("PASSWORD_HASHER", "sha256")),
		Mail: MailConfig{
			Provider:      strings.ToLower(getEnv("MAIL_PROVIDER", MailLog)),
			SMTPServer:    getEnv("SMTP_SERVER", ""),
			SMTPPort:      smtpPort,
			SMTPUser:      getEnv("SMTP_USER", ""),
			SMTPPass:      getEnv("SMTP_PASS", ""),
			FromAddress:   getEnv("MAIL_FROM_ADDRESS", "no-reply@turbinix.one"),
			FromName:      getEnv("MAIL_FROM_NAME", "Turbinix Verification"),
			BrevoAPIKey:   getEnv("BREVO_API_KEY", ""),
			BrevoEndpoint: getEnv("BREVO_ENDPOINT", ""),
		},
		Notify: NotifyConfig{
			Mode:      strings.ToLower(getEnv("NOTIFY_MODE", "sync")),
			Timeout:   timeout,
			QueueSize: queueSize,
		},
	}
	if retries < 0 {
		return nil, fmt.Errorf("NOTIFY_RETRIES must not be negative")
	}
	cfg.Notify.Retries = uint64(retries)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated settings and the fields each choice requires.
func (c *Config) Validate() error {
	var errs []error
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.ServerPort))
	}
	switch c.StorageDriver {
	case StorageJSON, StorageSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver))
	}
	switch c.PasswordHasher {
	case "sha256", "bcrypt":
	default:
		errs = append(errs, fmt.Errorf("unknown PASSWORD_HASHER %q", c.PasswordHasher))
	}
	switch c.Mail.Provider {
	case MailLog:
	case MailSMTP:
		if c.Mail.SMTPServer == "" {
			errs = append(errs, errors.New("SMTP_SERVER is required when MAIL_PROVIDER=smtp"))
		}
	case MailBrevo:
		if c.Mail.BrevoAPIKey == "" {
			errs = append(errs, errors.New("BREVO_API_KEY is required when MAIL_PROVIDER=brevo"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown MAIL_PROVIDER %q", c.Mail.Provider))
	}
	switch c.Notify.Mode {
	case "sync", "async":
	default:
		errs = append(errs, fmt.Errorf("unknown NOTIFY_MODE %q", c.Notify.Mode))
	}
	if c.Notify.Timeout <= 0 {
		errs = append(errs, errors.New("NOTIFY_TIMEOUT must be positive"))
	}
	if c.Notify.QueueSize <= 0 {
		errs = append(errs, errors.New("NOTIFY_QUEUE_SIZE must be positive"))
	}
	return errors.Join(errs...)
}

// Helper to get an environment variable with a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
