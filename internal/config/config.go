// Package config loads ~/.chatsync/config.toml, overlays CHATSYNC_*
// environment variables and validates the result.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/BurntSushi/toml"
	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
)

var (
	sessionName = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)
	validate    = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("session_name", func(fl validator.FieldLevel) bool {
		return sessionName.MatchString(fl.Field().String())
	})
	return v
}

// ValidateSessionName checks name against the rule default_session follows.
func ValidateSessionName(name string) error {
	return validate.Var(name, "session_name")
}

// Config represents the global ~/.chatsync/config.toml.
type Config struct {
	DefaultSession string        `toml:"default_session" validate:"omitempty,session_name"`
	Server         ServerConfig  `toml:"server"`
	Auth           AuthConfig    `toml:"auth"`
	Chat           ChatConfig    `toml:"chat"`
	Log            LogConfig     `toml:"log"`
	Metrics        MetricsConfig `toml:"metrics"`
}

// ServerConfig locates the chat backend.
type ServerConfig struct {
	// Transport selects the push channel: "ws" or "nats".
	Transport      string        `toml:"transport" validate:"oneof=ws nats"`
	PushURL        string        `toml:"push_url" validate:"required,url"`
	PullURL        string        `toml:"pull_url" validate:"required,url"`
	NATSPrefix     string        `toml:"nats_prefix" validate:"required_if=Transport nats"`
	DialTimeout    time.Duration `toml:"dial_timeout" validate:"gt=0"`
	RequestTimeout time.Duration `toml:"request_timeout" validate:"gt=0"`
	BackoffInitial time.Duration `toml:"backoff_initial" validate:"gt=0"`
	BackoffMax     time.Duration `toml:"backoff_max" validate:"gtefield=BackoffInitial"`
}

// AuthConfig says where the credential comes from. The token file is read
// on every dial so an external refresher can rotate it.
type AuthConfig struct {
	TokenFile string `toml:"token_file" validate:"required_without=TokenEnv"`
	TokenEnv  string `toml:"token_env"`
}

type ChatConfig struct {
	WindowCapacity int           `toml:"window_capacity" validate:"gte=1,lte=16"`
	PendingTimeout time.Duration `toml:"pending_timeout" validate:"gt=0"`
	TypingTimeout  time.Duration `toml:"typing_timeout" validate:"gt=0"`
}

type LogConfig struct {
	Level   string `toml:"level" validate:"oneof=debug info warn error"`
	// Console mirrors the log file to stderr.
	Console bool   `toml:"console"`
}

type MetricsConfig struct {
	// Addr is the listen address of /metrics; empty disables it.
	Addr string `toml:"addr" validate:"omitempty,hostname_port"`
}

// Default returns a configuration with every value set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Transport:      "ws",
			PushURL:        "ws://localhost:8080/ws",
			PullURL:        "http://localhost:8080/api",
			NATSPrefix:     "chat",
			DialTimeout:    10 * time.Second,
			RequestTimeout: 15 * time.Second,
			BackoffInitial: 500 * time.Millisecond,
			BackoffMax:     30 * time.Second,
		},
		Auth: AuthConfig{TokenEnv: "CHATSYNC_TOKEN"},
		Chat: ChatConfig{
			WindowCapacity: 3,
			PendingTimeout: 10 * time.Second,
			TypingTimeout:  1500 * time.Millisecond,
		},
		Log: LogConfig{Level: "info", Console: true},
	}
}

// Load reads config from the given path. Keys missing from the file keep
// their default. Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Effective loads the file if it exists, applies the environment overlay
// and validates the result.
func Effective(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field constraint.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// overlay lists the environment variables that override the file. Unset
// variables leave their pointer nil.
type overlay struct {
	DefaultSession *string        `env:"CHATSYNC_SESSION"`
	Transport      *string        `env:"CHATSYNC_TRANSPORT"`
	PushURL        *string        `env:"CHATSYNC_PUSH_URL"`
	PullURL        *string        `env:"CHATSYNC_PULL_URL"`
	NATSPrefix     *string        `env:"CHATSYNC_NATS_PREFIX"`
	TokenFile      *string        `env:"CHATSYNC_TOKEN_FILE"`
	TokenEnv       *string        `env:"CHATSYNC_TOKEN_ENV"`
	WindowCapacity *int           `env:"CHATSYNC_WINDOW_CAPACITY"`
	PendingTimeout *time.Duration `env:"CHATSYNC_PENDING_TIMEOUT"`
	TypingTimeout  *time.Duration `env:"CHATSYNC_TYPING_TIMEOUT"`
	BackoffInitial *time.Duration `env:"CHATSYNC_BACKOFF_INITIAL"`
	BackoffMax     *time.Duration `env:"CHATSYNC_BACKOFF_MAX"`
	LogLevel       *string        `env:"CHATSYNC_LOG_LEVEL"`
	LogConsole     *bool          `env:"CHATSYNC_LOG_CONSOLE"`
	MetricsAddr    *string        `env:"CHATSYNC_METRICS_ADDR"`
}

// ApplyEnv overrides cfg with the CHATSYNC_* variables of the process.
func ApplyEnv(cfg *Config) error {
	var o overlay
	if _, err := env.UnmarshalFromEnviron(&o); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	set(&cfg.DefaultSession, o.DefaultSession)
	set(&cfg.Server.Transport, o.Transport)
	set(&cfg.Server.PushURL, o.PushURL)
	set(&cfg.Server.PullURL, o.PullURL)
	set(&cfg.Server.NATSPrefix, o.NATSPrefix)
	set(&cfg.Auth.TokenFile, o.TokenFile)
	set(&cfg.Auth.TokenEnv, o.TokenEnv)
	set(&cfg.Chat.WindowCapacity, o.WindowCapacity)
	set(&cfg.Chat.PendingTimeout, o.PendingTimeout)
	set(&cfg.Chat.TypingTimeout, o.TypingTimeout)
	set(&cfg.Server.BackoffInitial, o.BackoffInitial)
	set(&cfg.Server.BackoffMax, o.BackoffMax)
	set(&cfg.Log.Level, o.LogLevel)
	set(&cfg.Log.Console, o.LogConsole)
	set(&cfg.Metrics.Addr, o.MetricsAddr)
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
