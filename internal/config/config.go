package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultModel           = "claude-sonnet-4-5-20250929"
	DefaultMaxTokens       = 1024
	DefaultTemperature     = 0.9
	DefaultExchangeDelay   = 2
	DefaultDirectorCadence = 3
	DefaultGravityMode     = "steer"
	DefaultAnalyzerWindow  = 5
	DefaultBufferCapacity  = 2
	DefaultTakeTimeoutMs   = 100
	DefaultSpeakerWaitMs   = 500
	DefaultMaxResults      = 5
	DefaultSearchTimeoutMs = 8000
	DefaultSearchEndpoint  = "https://api.duckduckgo.com/"
	DefaultRetentionDays   = 30
	DefaultPruneSpec       = "0 0 4 * * *"
	DefaultVacuumSpec      = "0 0 5 * * 1"
)

type Config struct {
	Show      ShowConfig     `json:"show"`
	Pipeline  PipelineConfig `json:"pipeline"`
	Provider  ProviderConfig `json:"provider"`
	Model     ModelConfig    `json:"model"`
	Research  ResearchConfig `json:"research"`
	Channels  ChannelsConfig `json:"channels"`
	Archive   ArchiveConfig  `json:"archive"`
	Workspace string         `json:"workspace"`
}

type ShowConfig struct {
	ExchangeDelaySec int    `json:"exchangeDelaySec"`
	MaxExchanges     int    `json:"maxExchanges"` // 0 = run until interrupted
	DirectorCadence  int    `json:"directorCadence"`
	GravityMode      string `json:"gravityMode"` // "steer" or "monitor"
	AnalyzerWindow   int    `json:"analyzerWindow"`
	CastPath         string `json:"castPath,omitempty"`
}

type PipelineConfig struct {
	BufferCapacity int `json:"bufferCapacity"`
	TakeTimeoutMs  int `json:"takeTimeoutMs"`
	SpeakerWaitMs  int `json:"speakerWaitMs"`
}

type ProviderConfig struct {
	Type    string `json:"type,omitempty"` // "anthropic" (default) or "openai"
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty"`
}

type ModelConfig struct {
	Name        string  `json:"name"`
	MaxTokens   int     `json:"maxTokens"`
	Temperature float64 `json:"temperature"`
}

type ResearchConfig struct {
	MaxResults int    `json:"maxResults"`
	TimeoutMs  int    `json:"timeoutMs"`
	Endpoint   string `json:"endpoint,omitempty"`
}

type ChannelsConfig struct {
	Console  ConsoleConfig  `json:"console"`
	Telegram TelegramConfig `json:"telegram"`
}

type ConsoleConfig struct {
	Enabled bool `json:"enabled"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChatID  int64  `json:"chatId"`
}

type ArchiveConfig struct {
	Enabled       bool   `json:"enabled"`
	DBPath        string `json:"dbPath,omitempty"`
	RetentionDays int    `json:"retentionDays"`
	PruneSpec     string `json:"pruneSpec,omitempty"`
	VacuumSpec    string `json:"vacuumSpec,omitempty"`
}

func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Show: ShowConfig{
			ExchangeDelaySec: DefaultExchangeDelay,
			MaxExchanges:     0,
			DirectorCadence:  DefaultDirectorCadence,
			GravityMode:      DefaultGravityMode,
			AnalyzerWindow:   DefaultAnalyzerWindow,
		},
		Pipeline: PipelineConfig{
			BufferCapacity: DefaultBufferCapacity,
			TakeTimeoutMs:  DefaultTakeTimeoutMs,
			SpeakerWaitMs:  DefaultSpeakerWaitMs,
		},
		Provider: ProviderConfig{},
		Model: ModelConfig{
			Name:        DefaultModel,
			MaxTokens:   DefaultMaxTokens,
			Temperature: DefaultTemperature,
		},
		Research: ResearchConfig{
			MaxResults: DefaultMaxResults,
			TimeoutMs:  DefaultSearchTimeoutMs,
			Endpoint:   DefaultSearchEndpoint,
		},
		Channels: ChannelsConfig{
			Console: ConsoleConfig{Enabled: true},
		},
		Archive: ArchiveConfig{
			Enabled:       true,
			RetentionDays: DefaultRetentionDays,
			PruneSpec:     DefaultPruneSpec,
			VacuumSpec:    DefaultVacuumSpec,
		},
		Workspace: filepath.Join(home, ".crosstalk", "workspace"),
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".crosstalk")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if key := os.Getenv("CROSSTALK_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_AUTH_TOKEN"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
		if cfg.Provider.Type == "" {
			cfg.Provider.Type = "openai"
		}
	}
	if url := os.Getenv("CROSSTALK_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if url := os.Getenv("ANTHROPIC_BASE_URL"); url != "" && cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = url
	}
	if token := os.Getenv("CROSSTALK_TELEGRAM_TOKEN"); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if chat := os.Getenv("CROSSTALK_TELEGRAM_CHAT"); chat != "" {
		if parsed, err := strconv.ParseInt(chat, 10, 64); err == nil {
			cfg.Channels.Telegram.ChatID = parsed
		}
	}
	if dbPath := os.Getenv("CROSSTALK_ARCHIVE_DB"); dbPath != "" {
		cfg.Archive.DBPath = dbPath
	}
	if endpoint := os.Getenv("CROSSTALK_SEARCH_ENDPOINT"); endpoint != "" {
		cfg.Research.Endpoint = endpoint
	}
	if workspace := os.Getenv("CROSSTALK_WORKSPACE"); workspace != "" {
		cfg.Workspace = workspace
	}

	if cfg.Workspace == "" {
		cfg.Workspace = DefaultConfig().Workspace
	}
	// The cast sheet lives in the workspace; a missing file still means
	// the built-in default cast.
	if cfg.Show.CastPath == "" {
		cfg.Show.CastPath = filepath.Join(cfg.Workspace, "cast.yaml")
	}
	if cfg.Show.ExchangeDelaySec < 0 {
		cfg.Show.ExchangeDelaySec = DefaultExchangeDelay
	}
	if cfg.Show.DirectorCadence <= 0 {
		cfg.Show.DirectorCadence = DefaultDirectorCadence
	}
	if cfg.Show.GravityMode != "steer" && cfg.Show.GravityMode != "monitor" {
		cfg.Show.GravityMode = DefaultGravityMode
	}
	if cfg.Show.AnalyzerWindow <= 0 {
		cfg.Show.AnalyzerWindow = DefaultAnalyzerWindow
	}
	if cfg.Pipeline.BufferCapacity <= 0 {
		cfg.Pipeline.BufferCapacity = DefaultBufferCapacity
	}
	if cfg.Pipeline.TakeTimeoutMs <= 0 {
		cfg.Pipeline.TakeTimeoutMs = DefaultTakeTimeoutMs
	}
	if cfg.Pipeline.SpeakerWaitMs <= 0 {
		cfg.Pipeline.SpeakerWaitMs = DefaultSpeakerWaitMs
	}
	if cfg.Model.Name == "" {
		cfg.Model.Name = DefaultModel
	}
	if cfg.Model.MaxTokens <= 0 {
		cfg.Model.MaxTokens = DefaultMaxTokens
	}
	if cfg.Research.MaxResults <= 0 {
		cfg.Research.MaxResults = DefaultMaxResults
	}
	if cfg.Research.TimeoutMs <= 0 {
		cfg.Research.TimeoutMs = DefaultSearchTimeoutMs
	}
	if cfg.Research.Endpoint == "" {
		cfg.Research.Endpoint = DefaultSearchEndpoint
	}
	if cfg.Archive.DBPath == "" {
		cfg.Archive.DBPath = filepath.Join(ConfigDir(), "archive.db")
	}
	if cfg.Archive.RetentionDays <= 0 {
		cfg.Archive.RetentionDays = DefaultRetentionDays
	}
	if cfg.Archive.PruneSpec == "" {
		cfg.Archive.PruneSpec = DefaultPruneSpec
	}
	if cfg.Archive.VacuumSpec == "" {
		cfg.Archive.VacuumSpec = DefaultVacuumSpec
	}

	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
