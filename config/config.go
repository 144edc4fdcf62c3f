// Package config loads process configuration from INTAKE_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage backends.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
)

// Model providers for classification and the chat assistant.
const (
	ProviderNone      = "none"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config is the complete server configuration.
type Config struct {
	Addr      string `env:"ADDR" envDefault:":8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// FlowFile overrides the embedded step graph.
	FlowFile string `env:"FLOW_FILE"`

	Storage    string        `env:"STORAGE" envDefault:"memory"`
	SQLitePath string        `env:"SQLITE_PATH" envDefault:"intakemesh.db"`
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"30m"`
	SweepEvery time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`

	// PushReplies sends replies through the notifier instead of TwiML.
	PushReplies   bool   `env:"PUSH_REPLIES"`
	AdminIdentity string `env:"ADMIN_IDENTITY"`
	// AdminToken protects the /api admin routes with a bearer token when set.
	AdminToken string `env:"ADMIN_TOKEN"`

	Twilio Twilio `envPrefix:"TWILIO_"`
	S3     S3     `envPrefix:"S3_"`
	Model  Model  `envPrefix:"MODEL_"`

	Timeouts Timeouts `envPrefix:"TIMEOUT_"`
}

// Twilio configures the messaging transport.
type Twilio struct {
	AccountSID string `env:"ACCOUNT_SID"`
	AuthToken  string `env:"AUTH_TOKEN"`
	From       string `env:"FROM"`
	// WebhookURL is the public URL Twilio signs. Signatures are verified
	// whenever AuthToken is set; without it the URL is rebuilt per request.
	WebhookURL string `env:"WEBHOOK_URL"`
	BaseURL    string `env:"BASE_URL"`
}

// Enabled reports whether outbound messaging is configured.
func (t Twilio) Enabled() bool {
	return t.AccountSID != "" && t.AuthToken != "" && t.From != ""
}

// S3 configures durable media re-hosting.
type S3 struct {
	Bucket        string `env:"BUCKET"`
	Prefix        string `env:"PREFIX" envDefault:"intake"`
	Region        string `env:"REGION"`
	Endpoint      string `env:"ENDPOINT"`
	UsePathStyle  bool   `env:"USE_PATH_STYLE"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`
	MaxBytes      int64  `env:"MAX_BYTES" envDefault:"16777216"`
}

// Enabled reports whether media re-hosting is configured.
func (s S3) Enabled() bool { return s.Bucket != "" }

// Model configures the classifier and chat assistant backend.
type Model struct {
	Provider string  `env:"PROVIDER" envDefault:"none"`
	Name     string  `env:"NAME"`
	APIKey   string  `env:"API_KEY"`
	BaseURL  string  `env:"BASE_URL"`
	Temp     float64 `env:"TEMPERATURE" envDefault:"0"`
}

// Timeouts bound collaborator calls.
type Timeouts struct {
	Classify time.Duration `env:"CLASSIFY" envDefault:"8s"`
	Assist   time.Duration `env:"ASSIST" envDefault:"15s"`
	Media    time.Duration `env:"MEDIA" envDefault:"10s"`
	Notify   time.Duration `env:"NOTIFY" envDefault:"10s"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	return LoadEnvironment(nil)
}

// LoadEnvironment parses environ (nil means the process environment).
func LoadEnvironment(environ map[string]string) (Config, error) {
	var cfg Config
	opts := env.Options{Prefix: "INTAKE_"}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enumerations and dependent settings.
func (c *Config) Validate() error {
	var errs []error

	c.Storage = strings.ToLower(c.Storage)
	switch c.Storage {
	case StorageMemory, StorageSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown storage %q", c.Storage))
	}
	if c.Storage == StorageSQLite && c.SQLitePath == "" {
		errs = append(errs, errors.New("sqlite storage requires INTAKE_SQLITE_PATH"))
	}

	c.Model.Provider = strings.ToLower(c.Model.Provider)
	switch c.Model.Provider {
	case ProviderNone:
	case ProviderOpenAI, ProviderAnthropic:
		if c.Model.APIKey == "" {
			errs = append(errs, fmt.Errorf("model provider %s requires INTAKE_MODEL_API_KEY", c.Model.Provider))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown model provider %q", c.Model.Provider))
	}

	if c.PushReplies && !c.Twilio.Enabled() {
		errs = append(errs, errors.New("push replies require Twilio credentials"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("session ttl must be positive"))
	}

	return errors.Join(errs...)
}
