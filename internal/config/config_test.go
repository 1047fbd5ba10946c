package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if cfg.Model.Name != DefaultModel {
		t.Errorf("model = %q, want %q", cfg.Model.Name, DefaultModel)
	}
	if cfg.Model.MaxTokens != DefaultMaxTokens {
		t.Errorf("maxTokens = %d, want %d", cfg.Model.MaxTokens, DefaultMaxTokens)
	}
	if cfg.Show.DirectorCadence != DefaultDirectorCadence {
		t.Errorf("directorCadence = %d, want %d", cfg.Show.DirectorCadence, DefaultDirectorCadence)
	}
	if cfg.Show.GravityMode != "steer" {
		t.Errorf("gravityMode = %q, want steer", cfg.Show.GravityMode)
	}
	if cfg.Pipeline.BufferCapacity != DefaultBufferCapacity {
		t.Errorf("bufferCapacity = %d, want %d", cfg.Pipeline.BufferCapacity, DefaultBufferCapacity)
	}
	if !cfg.Channels.Console.Enabled {
		t.Error("console channel should be enabled by default")
	}
	if cfg.Channels.Telegram.Enabled {
		t.Error("telegram channel should be disabled by default")
	}
	if cfg.Workspace == "" {
		t.Error("workspace should not be empty")
	}
	if cfg.Archive.RetentionDays != DefaultRetentionDays {
		t.Errorf("retentionDays = %d, want %d", cfg.Archive.RetentionDays, DefaultRetentionDays)
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	tmpDir := t.TempDir()
	origHome := os.Getenv("HOME")
	t.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)

	t.Setenv("CROSSTALK_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("ANTHROPIC_AUTH_TOKEN", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Model.Name != DefaultModel {
		t.Errorf("expected default model %q, got %q", DefaultModel, cfg.Model.Name)
	}
	if cfg.Archive.DBPath != filepath.Join(tmpDir, ".crosstalk", "archive.db") {
		t.Errorf("dbPath = %q, want under %s", cfg.Archive.DBPath, tmpDir)
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	origHome := os.Getenv("HOME")
	t.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)

	t.Setenv("CROSSTALK_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("ANTHROPIC_AUTH_TOKEN", "")

	cfgDir := filepath.Join(tmpDir, ".crosstalk")
	os.MkdirAll(cfgDir, 0755)

	testCfg := map[string]any{
		"show": map[string]any{
			"maxExchanges":    12,
			"directorCadence": 4,
		},
		"provider": map[string]any{
			"apiKey": "sk-test-key",
		},
	}
	data, _ := json.MarshalIndent(testCfg, "", "  ")
	os.WriteFile(filepath.Join(cfgDir, "config.json"), data, 0644)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Show.MaxExchanges != 12 {
		t.Errorf("maxExchanges = %d, want 12", cfg.Show.MaxExchanges)
	}
	if cfg.Show.DirectorCadence != 4 {
		t.Errorf("directorCadence = %d, want 4", cfg.Show.DirectorCadence)
	}
	if cfg.Provider.APIKey != "sk-test-key" {
		t.Errorf("apiKey = %q, want sk-test-key", cfg.Provider.APIKey)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	origHome := os.Getenv("HOME")
	t.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)

	tests := []struct {
		name    string
		envKey  string
		envVal  string
		wantKey string
	}{
		{"CROSSTALK_API_KEY", "CROSSTALK_API_KEY", "crosstalk-key", "crosstalk-key"},
		{"ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY", "anthropic-key", "anthropic-key"},
		{"ANTHROPIC_AUTH_TOKEN", "ANTHROPIC_AUTH_TOKEN", "auth-token", "auth-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CROSSTALK_API_KEY", "")
			t.Setenv("ANTHROPIC_API_KEY", "")
			t.Setenv("ANTHROPIC_AUTH_TOKEN", "")
			t.Setenv(tt.envKey, tt.envVal)

			cfg, err := LoadConfig()
			if err != nil {
				t.Fatalf("LoadConfig error: %v", err)
			}
			if cfg.Provider.APIKey != tt.wantKey {
				t.Errorf("apiKey = %q, want %q", cfg.Provider.APIKey, tt.wantKey)
			}
		})
	}
}

func TestLoadConfig_OpenAIKeySetsProviderType(t *testing.T) {
	tmpDir := t.TempDir()
	origHome := os.Getenv("HOME")
	t.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)

	t.Setenv("CROSSTALK_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("ANTHROPIC_AUTH_TOKEN", "")
	t.Setenv("OPENAI_API_KEY", "sk-openai")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Provider.APIKey != "sk-openai" {
		t.Errorf("apiKey = %q, want sk-openai", cfg.Provider.APIKey)
	}
	if cfg.Provider.Type != "openai" {
		t.Errorf("provider type = %q, want openai", cfg.Provider.Type)
	}
}

func TestLoadConfig_TelegramEnv(t *testing.T) {
	tmpDir := t.TempDir()
	origHome := os.Getenv("HOME")
	t.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)

	t.Setenv("CROSSTALK_TELEGRAM_TOKEN", "test-telegram-token")
	t.Setenv("CROSSTALK_TELEGRAM_CHAT", "-1009876")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Channels.Telegram.Token != "test-telegram-token" {
		t.Errorf("telegram token = %q, want test-telegram-token", cfg.Channels.Telegram.Token)
	}
	if cfg.Channels.Telegram.ChatID != -1009876 {
		t.Errorf("telegram chatId = %d, want -1009876", cfg.Channels.Telegram.ChatID)
	}
}

func TestLoadConfig_GravityModeNormalized(t *testing.T) {
	tmpDir := t.TempDir()
	origHome := os.Getenv("HOME")
	t.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)

	cfgDir := filepath.Join(tmpDir, ".crosstalk")
	os.MkdirAll(cfgDir, 0755)

	testCfg := map[string]any{
		"show": map[string]any{
			"gravityMode": "bogus",
		},
	}
	data, _ := json.MarshalIndent(testCfg, "", "  ")
	os.WriteFile(filepath.Join(cfgDir, "config.json"), data, 0644)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Show.GravityMode != "steer" {
		t.Errorf("gravityMode = %q, want steer", cfg.Show.GravityMode)
	}
}

func TestLoadConfig_MonitorModeKept(t *testing.T) {
	tmpDir := t.TempDir()
	origHome := os.Getenv("HOME")
	t.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)

	cfgDir := filepath.Join(tmpDir, ".crosstalk")
	os.MkdirAll(cfgDir, 0755)

	testCfg := map[string]any{
		"show": map[string]any{
			"gravityMode": "monitor",
		},
	}
	data, _ := json.MarshalIndent(testCfg, "", "  ")
	os.WriteFile(filepath.Join(cfgDir, "config.json"), data, 0644)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Show.GravityMode != "monitor" {
		t.Errorf("gravityMode = %q, want monitor", cfg.Show.GravityMode)
	}
}

func TestSaveConfig(t *testing.T) {
	tmpDir := t.TempDir()
	origHome := os.Getenv("HOME")
	t.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)

	cfg := DefaultConfig()
	cfg.Provider.APIKey = "test-key"

	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, ".crosstalk", "config.json"))
	if err != nil {
		t.Fatalf("read saved config: %v", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("unmarshal saved config: %v", err)
	}
	if loaded.Provider.APIKey != "test-key" {
		t.Errorf("saved apiKey = %q, want test-key", loaded.Provider.APIKey)
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	origHome := os.Getenv("HOME")
	t.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)

	cfgDir := filepath.Join(tmpDir, ".crosstalk")
	os.MkdirAll(cfgDir, 0755)
	os.WriteFile(filepath.Join(cfgDir, "config.json"), []byte("invalid json"), 0644)

	_, err := LoadConfig()
	if err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestLoadConfig_ZeroValuesBackfilled(t *testing.T) {
	tmpDir := t.TempDir()
	origHome := os.Getenv("HOME")
	t.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)

	cfgDir := filepath.Join(tmpDir, ".crosstalk")
	os.MkdirAll(cfgDir, 0755)

	testCfg := map[string]any{
		"pipeline": map[string]any{
			"bufferCapacity": 0,
			"takeTimeoutMs":  0,
		},
		"research": map[string]any{
			"maxResults": 0,
		},
	}
	data, _ := json.MarshalIndent(testCfg, "", "  ")
	os.WriteFile(filepath.Join(cfgDir, "config.json"), data, 0644)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Pipeline.BufferCapacity != DefaultBufferCapacity {
		t.Errorf("bufferCapacity = %d, want %d", cfg.Pipeline.BufferCapacity, DefaultBufferCapacity)
	}
	if cfg.Pipeline.TakeTimeoutMs != DefaultTakeTimeoutMs {
		t.Errorf("takeTimeoutMs = %d, want %d", cfg.Pipeline.TakeTimeoutMs, DefaultTakeTimeoutMs)
	}
	if cfg.Research.MaxResults != DefaultMaxResults {
		t.Errorf("maxResults = %d, want %d", cfg.Research.MaxResults, DefaultMaxResults)
	}
}
