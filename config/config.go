package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// DefaultSiteKey is the public reCAPTCHA key embedded in the frontend.
	DefaultSiteKey  = "6Le1vgMsAAAAAIAtnT0vy4hsKUZc8CTox966bdPL"
	DefaultEndpoint = "https://recaptchaenterprise.googleapis.com/v1/projects/%s/assessments"
)

type Config struct {
	Env      string `validate:"oneof=development production"`
	Port     string `validate:"required,numeric"`
	LogLevel slog.Level

	Static      StaticConfig
	Recaptcha   RecaptchaConfig
	Credentials CredentialConfig
	Audit       AuditConfig
}

type StaticConfig struct {
	Dir       string `validate:"required"`
	IndexFile string `validate:"required"`
}

// RecaptchaConfig configures the assessment client and the decision policy.
//
// AllowWhenUnconfigured is a fail-open switch: when ProjectID or APIKey is
// empty and the switch is on, every login passes the risk gate without an
// assessment. It is rejected by Validate in production.
type RecaptchaConfig struct {
	ProjectID             string
	APIKey                string
	SiteKey               string        `validate:"required"`
	Endpoint              string        `validate:"required,contains=%s"`
	Transport             string        `validate:"oneof=rest grpc"`
	Timeout               time.Duration `validate:"gt=0"`
	MinScore              float64       `validate:"gte=0,lte=1"`
	LoginAction           string        `validate:"required"`
	AllowWhenUnconfigured bool
}

// Configured reports whether the assessment service can be called at all.
func (r RecaptchaConfig) Configured() bool {
	return r.ProjectID != "" && r.APIKey != ""
}

type CredentialConfig struct {
	Driver string `validate:"oneof=memory mysql"`
	// Users maps username to bcrypt hash for the memory driver.
	Users map[string]string
	// DevSeed is set when no users were configured and the demo pair is used.
	DevSeed bool
	DSN     string `validate:"required_if=Driver mysql"`
}

type AuditConfig struct {
	Enabled         bool
	ProjectID       string
	CredentialsFile string
	Collection      string `validate:"required"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("loading .env: %w", err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a validated Config from the given lookup function.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, fallback string) string {
		if v, ok := lookup(key); ok && v != "" {
			return v
		}
		return fallback
	}

	cfg := &Config{
		Env:      strings.ToLower(get("APP_ENV", EnvDevelopment)),
		Port:     get("PORT", "8080"),
		LogLevel: parseLogLevel(get("LOG_LEVEL", ""), slog.LevelInfo),
		Static: StaticConfig{
			Dir:       get("STATIC_DIR", "./static"),
			IndexFile: get("INDEX_FILE", "reCaptcha.html"),
		},
		Recaptcha: RecaptchaConfig{
			ProjectID:   get("GOOGLE_CLOUD_PROJECT_ID", ""),
			APIKey:      get("GOOGLE_API_KEY", ""),
			SiteKey:     get("RECAPTCHA_SITE_KEY", DefaultSiteKey),
			Endpoint:    get("RECAPTCHA_ENDPOINT", DefaultEndpoint),
			Transport:   strings.ToLower(get("RECAPTCHA_TRANSPORT", "rest")),
			LoginAction: get("RECAPTCHA_LOGIN_ACTION", "LOGIN"),
		},
		Credentials: CredentialConfig{
			Driver: strings.ToLower(get("CREDENTIAL_STORE", "memory")),
			DSN:    get("DB_DSN", ""),
		},
		Audit: AuditConfig{
			ProjectID:       get("GOOGLE_CLOUD_PROJECT_ID", ""),
			CredentialsFile: get("FIREBASE_CREDENTIALS_FILE", ""),
			Collection:      get("AUDIT_COLLECTION", "loginAttempts"),
		},
	}

	var err error
	if cfg.Recaptcha.Timeout, err = time.ParseDuration(get("RECAPTCHA_TIMEOUT", "5s")); err != nil {
		return nil, fmt.Errorf("RECAPTCHA_TIMEOUT: %w", err)
	}
	if cfg.Recaptcha.MinScore, err = strconv.ParseFloat(get("RECAPTCHA_MIN_SCORE", "0.5"), 64); err != nil {
		return nil, fmt.Errorf("RECAPTCHA_MIN_SCORE: %w", err)
	}
	if cfg.Recaptcha.AllowWhenUnconfigured, err = strconv.ParseBool(get("RECAPTCHA_ALLOW_UNCONFIGURED", "false")); err != nil {
		return nil, fmt.Errorf("RECAPTCHA_ALLOW_UNCONFIGURED: %w", err)
	}
	if cfg.Audit.Enabled, err = strconv.ParseBool(get("AUDIT_ENABLED", "false")); err != nil {
		return nil, fmt.Errorf("AUDIT_ENABLED: %w", err)
	}
	if cfg.Credentials.Users, err = parseUsers(get("LOGIN_USERS", "")); err != nil {
		return nil, fmt.Errorf("LOGIN_USERS: %w", err)
	}
	if cfg.Credentials.Driver == "memory" && len(cfg.Credentials.Users) == 0 {
		cfg.Credentials.DevSeed = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and the production-only rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Env != EnvProduction {
		return nil
	}

	var errs []error
	if !c.Recaptcha.Configured() {
		errs = append(errs, errors.New("GOOGLE_CLOUD_PROJECT_ID and GOOGLE_API_KEY are required in production"))
	}
	if c.Recaptcha.AllowWhenUnconfigured {
		errs = append(errs, errors.New("RECAPTCHA_ALLOW_UNCONFIGURED must be false in production"))
	}
	if c.Credentials.DevSeed {
		errs = append(errs, errors.New("LOGIN_USERS or CREDENTIAL_STORE=mysql is required in production"))
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// parseUsers reads "user:hash,user2:hash2". Hashes are bcrypt and contain
// '$' but never ':' or ','. In a .env file the value must be single-quoted
// (LOGIN_USERS='test:$2a$10$...'), otherwise godotenv expands the '$' parts.
func parseUsers(raw string) (map[string]string, error) {
	users := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return users, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		name, hash, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || name == "" || hash == "" {
			return nil, fmt.Errorf("malformed entry %q", pair)
		}
		if !strings.HasPrefix(hash, "$2") {
			return nil, fmt.Errorf("entry for %q is not a bcrypt hash (single-quote the value in .env so '$' is not expanded)", name)
		}
		users[name] = hash
	}
	return users, nil
}

func parseLogLevel(raw string, fallback slog.Level) slog.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}

// NewLogger returns the process logger.
func (c *Config) NewLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: c.LogLevel})).
		With("service", "logingate", "env", c.Env)
}
