package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/the-spice-must-ingest/internal/common"
)

func TestLoadFromDefaults(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "")

	cfg, err := LoadFrom(viper.New())
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.Database.Backend != BackendSQLite {
		t.Errorf("backend = %q, want sqlite", cfg.Database.Backend)
	}
	if strings.HasPrefix(cfg.Database.Path, "~") {
		t.Errorf("database path not expanded: %q", cfg.Database.Path)
	}
	if cfg.Ingest.Delay != 50*time.Millisecond || cfg.Ingest.FallbackDays != 7 || cfg.Ingest.MaxLookbackDays != 30 {
		t.Errorf("ingest defaults = %+v", cfg.Ingest)
	}
	if cfg.LLM.Enabled() {
		t.Error("llm enabled without an api key")
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("server addr = %q", cfg.Server.Addr)
	}
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
database:
  backend: firestore
  project_id: my-project
gmail:
  label: Finanzas
  topic: projects/my-project/topics/gmail
ingest:
  delay: 250ms
  max_lookback_days: 60
llm:
  provider: openai
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("SPICE_PUBSUB_SUBSCRIPTION", "gmail-sub")

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("SPICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig() error = %v", err)
	}

	cfg, err := LoadFrom(v)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.Database.Backend != BackendFirestore || cfg.Database.ProjectID != "my-project" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.PubSub.ProjectID != "my-project" || cfg.PubSub.Subscription != "gmail-sub" {
		t.Errorf("pubsub = %+v", cfg.PubSub)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("llm api key = %q, want value from OPENAI_API_KEY", cfg.LLM.APIKey)
	}
	if cfg.Gmail.Label != "Finanzas" {
		t.Errorf("gmail label = %q", cfg.Gmail.Label)
	}

	orch := cfg.Orchestrator()
	if orch.Delay != 250*time.Millisecond || orch.MaxLookbackDays != 60 || orch.Retry.MaxAttempts == 0 {
		t.Errorf("orchestrator config = %+v", orch)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		set     map[string]any
		wantErr error
	}{
		{"unknown backend", map[string]any{"database.backend": "postgres"}, common.ErrInvalidConfig},
		{"firestore without project", map[string]any{"database.backend": "firestore"}, common.ErrMissingConfig},
		{"negative delay", map[string]any{"ingest.delay": "-1s"}, common.ErrInvalidConfig},
		{"max below default", map[string]any{"ingest.max_lookback_days": 3}, common.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GOOGLE_CLOUD_PROJECT", "")
			v := viper.New()
			for k, val := range tt.set {
				v.Set(k, val)
			}
			if _, err := LoadFrom(v); !errors.Is(err, tt.wantErr) {
				t.Errorf("LoadFrom() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	t.Setenv("SPICE_TEST_DIR", "/tmp/spice")

	tests := map[string]string{
		"":                      "",
		"~":                     home,
		"~/data/spice.db":       filepath.Join(home, "data/spice.db"),
		"$SPICE_TEST_DIR/x.eml": "/tmp/spice/x.eml",
		"/abs/path":             "/abs/path",
	}
	for in, want := range tests {
		if got := ExpandPath(in); got != want {
			t.Errorf("ExpandPath(%q) = %q, want %q", in, got, want)
		}
	}
}
