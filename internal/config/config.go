// Package config resolves spice settings from flags, SPICE_ environment
// variables and ~/.config/spice/config.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/the-spice-must-ingest/internal/common"
	"github.com/Veraticus/the-spice-must-ingest/internal/ingest"
	"github.com/Veraticus/the-spice-must-ingest/internal/llm"
	"github.com/Veraticus/the-spice-must-ingest/internal/mailbox"
)

// Storage backends.
const (
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
)

// Config is the resolved application configuration.
type Config struct {
	Database  DatabaseConfig
	Gmail     GmailConfig
	PubSub    PubSubConfig
	LLM       llm.Config
	Ingest    IngestConfig
	Server    ServerConfig
	RulesFile string
}

// DatabaseConfig selects and locates the storage backend.
type DatabaseConfig struct {
	Backend          string
	Path             string
	ProjectID        string
	CollectionPrefix string
}

// GmailConfig locates mailbox credentials and scopes the search.
type GmailConfig struct {
	CredentialsFile string
	TokenFile       string
	CallbackAddr    string
	User            string
	Topic           string
	Label           string
	EMLDir          string
}

// PubSubConfig names the pull subscription carrying mailbox notifications.
type PubSubConfig struct {
	ProjectID    string
	Subscription string
}

// IngestConfig tunes batch pacing and lookback windows.
type IngestConfig struct {
	Delay               time.Duration
	FallbackDays        int
	DefaultLookbackDays int
	MaxLookbackDays     int
}

// ServerConfig configures the HTTP push endpoint.
type ServerConfig struct {
	Addr      string
	PushToken string
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	defaults := ingest.DefaultConfig()

	v.SetDefault("database.backend", BackendSQLite)
	v.SetDefault("database.path", "~/.local/share/spice/spice.db")
	v.SetDefault("gmail.credentials_file", "~/.config/spice/gmail_credentials.json")
	v.SetDefault("gmail.token_file", "~/.config/spice/gmail_token.json")
	v.SetDefault("gmail.user", "me")
	v.SetDefault("gmail.callback_addr", "localhost:8085")
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.model", "claude-3-haiku-20240307")
	v.SetDefault("llm.max_tokens", 500)
	v.SetDefault("llm.rate_limit", 30)
	v.SetDefault("llm.cache_ttl", "24h")
	v.SetDefault("llm.timeout", "30s")
	v.SetDefault("ingest.delay", defaults.Delay.String())
	v.SetDefault("ingest.fallback_days", defaults.FallbackDays)
	v.SetDefault("ingest.default_lookback_days", defaults.DefaultLookbackDays)
	v.SetDefault("ingest.max_lookback_days", defaults.MaxLookbackDays)
	v.SetDefault("server.addr", ":8080")
}

// Load resolves configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom resolves configuration from v. Precedence is flags, SPICE_
// environment variables, the config file, then well-known provider
// variables such as ANTHROPIC_API_KEY, then defaults.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	cfg := &Config{
		Database: DatabaseConfig{
			Backend:          strings.ToLower(v.GetString("database.backend")),
			Path:             ExpandPath(v.GetString("database.path")),
			ProjectID:        v.GetString("database.project_id"),
			CollectionPrefix: v.GetString("database.collection_prefix"),
		},
		Gmail: GmailConfig{
			CredentialsFile: ExpandPath(v.GetString("gmail.credentials_file")),
			TokenFile:       ExpandPath(v.GetString("gmail.token_file")),
			CallbackAddr:    v.GetString("gmail.callback_addr"),
			User:            v.GetString("gmail.user"),
			Topic:           v.GetString("gmail.topic"),
			Label:           v.GetString("gmail.label"),
			EMLDir:          ExpandPath(v.GetString("gmail.eml_dir")),
		},
		PubSub: PubSubConfig{
			ProjectID:    v.GetString("pubsub.project_id"),
			Subscription: v.GetString("pubsub.subscription"),
		},
		LLM: llm.Config{
			Provider:  strings.ToLower(v.GetString("llm.provider")),
			APIKey:    v.GetString("llm.api_key"),
			Model:     v.GetString("llm.model"),
			BaseURL:   v.GetString("llm.base_url"),
			MaxTokens: v.GetInt("llm.max_tokens"),
			RateLimit: v.GetInt("llm.rate_limit"),
			CacheTTL:  v.GetDuration("llm.cache_ttl"),
			Timeout:   v.GetDuration("llm.timeout"),
		},
		Ingest: IngestConfig{
			Delay:               v.GetDuration("ingest.delay"),
			FallbackDays:        v.GetInt("ingest.fallback_days"),
			DefaultLookbackDays: v.GetInt("ingest.default_lookback_days"),
			MaxLookbackDays:     v.GetInt("ingest.max_lookback_days"),
		},
		Server: ServerConfig{
			Addr:      v.GetString("server.addr"),
			PushToken: v.GetString("server.push_token"),
		},
		RulesFile: ExpandPath(v.GetString("categorize.rules_file")),
	}

	// Fall back to the variables the provider SDKs read.
	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case "openai":
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		default:
			cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if cfg.Database.ProjectID == "" {
		cfg.Database.ProjectID = os.Getenv("GOOGLE_CLOUD_PROJECT")
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Database.ProjectID
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	switch c.Database.Backend {
	case BackendSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("%w: database.path", common.ErrMissingConfig)
		}
	case BackendFirestore:
		if c.Database.ProjectID == "" {
			return fmt.Errorf("%w: database.project_id is required for the firestore backend", common.ErrMissingConfig)
		}
	default:
		return fmt.Errorf("%w: unknown database backend %q", common.ErrInvalidConfig, c.Database.Backend)
	}

	if c.Ingest.Delay < 0 {
		return fmt.Errorf("%w: ingest.delay must not be negative", common.ErrInvalidConfig)
	}
	if c.Ingest.FallbackDays <= 0 || c.Ingest.DefaultLookbackDays <= 0 {
		return fmt.Errorf("%w: ingest lookback windows must be positive", common.ErrInvalidConfig)
	}
	if c.Ingest.MaxLookbackDays < c.Ingest.DefaultLookbackDays {
		return fmt.Errorf("%w: ingest.max_lookback_days is below ingest.default_lookback_days", common.ErrInvalidConfig)
	}
	return nil
}

// OAuth returns the Gmail OAuth settings.
func (c *Config) OAuth(modify bool) mailbox.OAuthConfig {
	return mailbox.OAuthConfig{
		CredentialsFile: c.Gmail.CredentialsFile,
		TokenFile:       c.Gmail.TokenFile,
		CallbackAddr:    c.Gmail.CallbackAddr,
		Modify:          modify,
	}
}

// Orchestrator returns ingest settings with the configured pacing applied.
func (c *Config) Orchestrator() ingest.Config {
	cfg := ingest.DefaultConfig()
	cfg.Delay = c.Ingest.Delay
	cfg.FallbackDays = c.Ingest.FallbackDays
	cfg.DefaultLookbackDays = c.Ingest.DefaultLookbackDays
	cfg.MaxLookbackDays = c.Ingest.MaxLookbackDays
	return cfg
}

// ExpandPath expands a leading ~ and $VAR references.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return os.ExpandEnv(path)
}
