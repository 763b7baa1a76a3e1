package labelmatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	defaultConfigFile = "config.json"
	envPrefix         = "LABELMATCH"
)

// Backend names accepted by EmbedderConfig.Backend.
const (
	BackendONNX    = "onnx"
	BackendGemini  = "gemini"
	BackendProcess = "process"
)

// GeminiConfig configures the Gemini embedding backend.
type GeminiConfig struct {
	APIKey     string `json:"apiKey" mapstructure:"apiKey"`
	Model      string `json:"model" mapstructure:"model"`
	Dimensions int    `json:"dimensions" mapstructure:"dimensions"`
}

// EmbedderConfig selects and configures the embedding backend and its cache.
type EmbedderConfig struct {
	Backend       string       `json:"backend" mapstructure:"backend"`
	OrtDLL        string       `json:"ortDll" mapstructure:"ortDll"`
	ModelPath     string       `json:"modelPath" mapstructure:"modelPath"`
	TokenizerPath string       `json:"tokenizerPath" mapstructure:"tokenizerPath"`
	MaxSeqLen     int          `json:"maxSeqLen" mapstructure:"maxSeqLen"`
	CacheDir      string       `json:"cacheDir" mapstructure:"cacheDir"`
	ModelID       string       `json:"modelId" mapstructure:"modelId"`
	BatchSize     int          `json:"batchSize" mapstructure:"batchSize"`
	Gemini        GeminiConfig `json:"gemini" mapstructure:"gemini"`
	Command       []string     `json:"command" mapstructure:"command"`
}

// CalibrationConfig tunes the offline calibration job.
type CalibrationConfig struct {
	Workers int `json:"workers" mapstructure:"workers"`
}

// ServerConfig tunes the embedding protocol server.
type ServerConfig struct {
	Workers int `json:"workers" mapstructure:"workers"`
}

// Config aggregates runtime settings persisted to config.json.
type Config struct {
	CatalogPath     string            `json:"catalogPath" mapstructure:"catalogPath"`
	DefinitionsPath string            `json:"definitionsPath" mapstructure:"definitionsPath"`
	LogLevel        string            `json:"logLevel" mapstructure:"logLevel"`
	Embedder        EmbedderConfig    `json:"embedder" mapstructure:"embedder"`
	Match           MatchOptions      `json:"match" mapstructure:"match"`
	Calibration     CalibrationConfig `json:"calibration" mapstructure:"calibration"`
	Server          ServerConfig      `json:"server" mapstructure:"server"`
	Columns         ColumnCandidates  `json:"columns" mapstructure:"columns"`
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() Config {
	var cfg Config
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults populates zero values with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.CatalogPath == "" {
		c.CatalogPath = filepath.Join("data", "labelEmbeddings.json")
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Embedder.Backend == "" {
		c.Embedder.Backend = BackendONNX
	}
	if c.Embedder.MaxSeqLen <= 0 {
		c.Embedder.MaxSeqLen = 512
	}
	if c.Embedder.ModelID == "" {
		c.Embedder.ModelID = "bge-base-en-v1.5"
	}
	if c.Embedder.BatchSize <= 0 {
		c.Embedder.BatchSize = 32
	}
	if c.Embedder.Gemini.Model == "" {
		c.Embedder.Gemini.Model = "gemini-embedding-001"
	}
	if c.Embedder.Gemini.Dimensions <= 0 {
		c.Embedder.Gemini.Dimensions = 768
	}
	if c.Calibration.Workers <= 0 {
		c.Calibration.Workers = 4
	}
	if c.Server.Workers <= 0 {
		c.Server.Workers = 4
	}
	c.Columns = c.Columns.withDefaults()
}

// Debug reports whether debug logging is enabled.
func (c Config) Debug() bool {
	return c.Match.Debug || strings.EqualFold(c.LogLevel, "debug")
}

// Clone creates a deep copy of the configuration so callers can mutate safely.
func (c Config) Clone() Config {
	out := c
	out.Embedder.Command = cloneStrings(c.Embedder.Command)
	out.Columns = c.Columns.clone()
	return out
}

// NewViper returns a viper instance preloaded with defaults and LABELMATCH_ environment overrides.
func NewViper() *viper.Viper {
	v := viper.New()
	d := DefaultConfig()
	v.SetDefault("catalogPath", d.CatalogPath)
	v.SetDefault("definitionsPath", d.DefinitionsPath)
	v.SetDefault("logLevel", d.LogLevel)
	v.SetDefault("embedder.backend", d.Embedder.Backend)
	v.SetDefault("embedder.ortDll", d.Embedder.OrtDLL)
	v.SetDefault("embedder.modelPath", d.Embedder.ModelPath)
	v.SetDefault("embedder.tokenizerPath", d.Embedder.TokenizerPath)
	v.SetDefault("embedder.maxSeqLen", d.Embedder.MaxSeqLen)
	v.SetDefault("embedder.cacheDir", d.Embedder.CacheDir)
	v.SetDefault("embedder.modelId", d.Embedder.ModelID)
	v.SetDefault("embedder.batchSize", d.Embedder.BatchSize)
	v.SetDefault("embedder.gemini.apiKey", d.Embedder.Gemini.APIKey)
	v.SetDefault("embedder.gemini.model", d.Embedder.Gemini.Model)
	v.SetDefault("embedder.gemini.dimensions", d.Embedder.Gemini.Dimensions)
	v.SetDefault("match.earlyExit", d.Match.EarlyExit)
	v.SetDefault("match.debug", d.Match.Debug)
	v.SetDefault("calibration.workers", d.Calibration.Workers)
	v.SetDefault("server.workers", d.Server.Workers)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig loads configuration from the given path or the default config.json.
// A missing file yields the defaults, still subject to environment overrides.
func LoadConfig(path string) (Config, error) {
	return LoadConfigWith(NewViper(), path)
}

// LoadConfigWith reads path into v and decodes the result. Flags bound to v take precedence.
func LoadConfigWith(v *viper.Viper, path string) (Config, error) {
	if path == "" {
		path = defaultConfigFile
	}
	var cfg Config
	v.SetConfigFile(path)
	if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext == "" {
		v.SetConfigType("json")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	cfg.ApplyDefaults()
	if cfg.Embedder.CacheDir != "" {
		if err := os.MkdirAll(cfg.Embedder.CacheDir, 0o755); err != nil {
			return cfg, fmt.Errorf("create cache dir: %w", err)
		}
	}
	return cfg, nil
}

// SaveConfig persists configuration to disk.
func SaveConfig(path string, cfg Config) error {
	if path == "" {
		path = defaultConfigFile
	}
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	cfg.ApplyDefaults()
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
