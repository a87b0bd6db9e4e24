package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProjectConfigFile is the per-directory configuration file name.
const ProjectConfigFile = ".chatlens.yaml"

// Config represents the complete chatlens configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// PathsConfig locates the conversation archive and the data directory
// holding the embedding cache.
type PathsConfig struct {
	// ConversationsFile is the exported conversations.json.
	ConversationsFile string `yaml:"conversations_file" json:"conversations_file"`
	// DataDir holds embeddings.db and the build lock.
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// EmbeddingsConfig configures the embedding provider and how the index
// builder talks to it.
type EmbeddingsConfig struct {
	Provider   string `yaml:"provider" json:"provider"` // "ollama" or "static"
	Model      string `yaml:"model" json:"model"`
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"` // 0 = detect from provider

	// BatchSize bounds the number of texts per provider call.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// Concurrency bounds the number of batches in flight.
	Concurrency int `yaml:"concurrency" json:"concurrency"`
	// MaxRetries is the number of retries per failed batch.
	MaxRetries int    `yaml:"max_retries" json:"max_retries"`
	Timeout    string `yaml:"timeout" json:"timeout"`

	// QueryCacheSize is the number of query embeddings kept in memory.
	QueryCacheSize int `yaml:"query_cache_size" json:"query_cache_size"`
}

// IndexConfig selects the similarity index implementation.
type IndexConfig struct {
	// Type is "flat" (exact linear scan) or "hnsw" (approximate candidates, exact rescoring).
	Type string `yaml:"type" json:"type"`

	HNSWM        int `yaml:"hnsw_m" json:"hnsw_m"`
	HNSWEfSearch int `yaml:"hnsw_ef_search" json:"hnsw_ef_search"`
	// RescoreFactor is how many candidates per requested result the HNSW
	// graph returns before exact rescoring.
	RescoreFactor int `yaml:"rescore_factor" json:"rescore_factor"`
}

// SearchConfig configures query handling.
type SearchConfig struct {
	DefaultLimit   int `yaml:"default_limit" json:"default_limit"`
	MaxLimit       int `yaml:"max_limit" json:"max_limit"`
	MinQueryLength int `yaml:"min_query_length" json:"min_query_length"`
	MaxQueryLength int `yaml:"max_query_length" json:"max_query_length"`
	// ExactMaxResults caps the quoted-query substring fallback.
	ExactMaxResults int `yaml:"exact_max_results" json:"exact_max_results"`
}

// ServerConfig configures the HTTP API and archive watching.
type ServerConfig struct {
	Addr          string `yaml:"addr" json:"addr"`
	MaxUploadMB   int    `yaml:"max_upload_mb" json:"max_upload_mb"`
	Watch         bool   `yaml:"watch" json:"watch"`
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
	LogLevel      string `yaml:"log_level" json:"log_level"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			ConversationsFile: filepath.Join("data", "conversations.json"),
			DataDir:           "data",
		},
		Embeddings: EmbeddingsConfig{
			Provider:       "ollama",
			Model:          "nomic-embed-text",
			OllamaHost:     "", // Empty uses default http://localhost:11434
			Dimensions:     0,
			BatchSize:      64,
			Concurrency:    4,
			MaxRetries:     3,
			Timeout:        "60s",
			QueryCacheSize: 256,
		},
		Index: IndexConfig{
			Type:          "flat",
			HNSWM:         16,
			HNSWEfSearch:  100,
			RescoreFactor: 4,
		},
		Search: SearchConfig{
			DefaultLimit:    10,
			MaxLimit:        100,
			MinQueryLength:  3,
			MaxQueryLength:  2000,
			ExactMaxResults: 10,
		},
		Server: ServerConfig{
			Addr:          "127.0.0.1:8000",
			MaxUploadMB:   512,
			Watch:         false,
			WatchDebounce: "1s",
			LogLevel:      "info",
		},
	}
}

// GetUserConfigPath returns the path to the user-level configuration file.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/chatlens/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "chatlens", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "chatlens", "config.yaml")
	}
	return filepath.Join(home, ".config", "chatlens", "config.yaml")
}

// UserConfigExists reports whether the user-level config file is present.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()

	if !fileExists(configPath) {
		return nil, nil // No user config is fine
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}

	return cfg, nil
}

// Load builds the effective configuration for dir.
//
// Precedence, lowest first: defaults, user config, dir/.chatlens.yaml,
// CHATLENS_* environment variables. Relative paths are resolved against dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()
	cfg.resolvePaths(dir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ProjectConfigFile)
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".chatlens.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays the non-zero fields of other onto c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Paths.ConversationsFile != "" {
		c.Paths.ConversationsFile = other.Paths.ConversationsFile
	}
	if other.Paths.DataDir != "" {
		c.Paths.DataDir = other.Paths.DataDir
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.Concurrency != 0 {
		c.Embeddings.Concurrency = other.Embeddings.Concurrency
	}
	if other.Embeddings.MaxRetries != 0 {
		c.Embeddings.MaxRetries = other.Embeddings.MaxRetries
	}
	if other.Embeddings.Timeout != "" {
		c.Embeddings.Timeout = other.Embeddings.Timeout
	}
	if other.Embeddings.QueryCacheSize != 0 {
		c.Embeddings.QueryCacheSize = other.Embeddings.QueryCacheSize
	}

	if other.Index.Type != "" {
		c.Index.Type = other.Index.Type
	}
	if other.Index.HNSWM != 0 {
		c.Index.HNSWM = other.Index.HNSWM
	}
	if other.Index.HNSWEfSearch != 0 {
		c.Index.HNSWEfSearch = other.Index.HNSWEfSearch
	}
	if other.Index.RescoreFactor != 0 {
		c.Index.RescoreFactor = other.Index.RescoreFactor
	}

	if other.Search.DefaultLimit != 0 {
		c.Search.DefaultLimit = other.Search.DefaultLimit
	}
	if other.Search.MaxLimit != 0 {
		c.Search.MaxLimit = other.Search.MaxLimit
	}
	if other.Search.MinQueryLength != 0 {
		c.Search.MinQueryLength = other.Search.MinQueryLength
	}
	if other.Search.MaxQueryLength != 0 {
		c.Search.MaxQueryLength = other.Search.MaxQueryLength
	}
	if other.Search.ExactMaxResults != 0 {
		c.Search.ExactMaxResults = other.Search.ExactMaxResults
	}

	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if other.Server.MaxUploadMB != 0 {
		c.Server.MaxUploadMB = other.Server.MaxUploadMB
	}
	if other.Server.Watch {
		c.Server.Watch = true
	}
	if other.Server.WatchDebounce != "" {
		c.Server.WatchDebounce = other.Server.WatchDebounce
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies CHATLENS_* environment variables.
// Invalid numeric values are ignored.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CHATLENS_CONVERSATIONS"); v != "" {
		c.Paths.ConversationsFile = v
	}
	if v := os.Getenv("CHATLENS_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}

	if v := os.Getenv("CHATLENS_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("CHATLENS_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("CHATLENS_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("CHATLENS_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embeddings.BatchSize = n
		}
	}
	if v := os.Getenv("CHATLENS_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embeddings.Concurrency = n
		}
	}

	if v := os.Getenv("CHATLENS_INDEX_TYPE"); v != "" {
		c.Index.Type = v
	}

	if v := os.Getenv("CHATLENS_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("CHATLENS_WATCH"); v != "" {
		c.Server.Watch = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("CHATLENS_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

func (c *Config) resolvePaths(dir string) {
	if dir == "" {
		return
	}
	if c.Paths.ConversationsFile != "" && !filepath.IsAbs(c.Paths.ConversationsFile) {
		c.Paths.ConversationsFile = filepath.Join(dir, c.Paths.ConversationsFile)
	}
	if c.Paths.DataDir != "" && !filepath.IsAbs(c.Paths.DataDir) {
		c.Paths.DataDir = filepath.Join(dir, c.Paths.DataDir)
	}
}

// CachePath returns the embedding cache database path.
func (c *Config) CachePath() string {
	return filepath.Join(c.Paths.DataDir, "embeddings.db")
}

// LockPath returns the path of the cross-process build lock.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, ".build.lock")
}

// EmbeddingTimeout parses Embeddings.Timeout, falling back to 60s.
func (c *Config) EmbeddingTimeout() time.Duration {
	d, err := time.ParseDuration(c.Embeddings.Timeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// WatchDebounceDuration parses Server.WatchDebounce, falling back to 1s.
func (c *Config) WatchDebounceDuration() time.Duration {
	d, err := time.ParseDuration(c.Server.WatchDebounce)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	validProviders := map[string]bool{"ollama": true, "static": true}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'ollama' or 'static', got %s", c.Embeddings.Provider)
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}
	if c.Embeddings.Concurrency <= 0 {
		return fmt.Errorf("embeddings.concurrency must be positive, got %d", c.Embeddings.Concurrency)
	}
	if c.Embeddings.MaxRetries < 0 {
		return fmt.Errorf("embeddings.max_retries must be non-negative, got %d", c.Embeddings.MaxRetries)
	}
	if c.Embeddings.Dimensions < 0 {
		return fmt.Errorf("embeddings.dimensions must be non-negative, got %d", c.Embeddings.Dimensions)
	}

	validIndexTypes := map[string]bool{"flat": true, "hnsw": true}
	if !validIndexTypes[strings.ToLower(c.Index.Type)] {
		return fmt.Errorf("index.type must be 'flat' or 'hnsw', got %s", c.Index.Type)
	}
	if c.Index.RescoreFactor < 1 {
		return fmt.Errorf("index.rescore_factor must be at least 1, got %d", c.Index.RescoreFactor)
	}

	if c.Search.DefaultLimit <= 0 || c.Search.MaxLimit <= 0 {
		return fmt.Errorf("search limits must be positive, got default=%d max=%d", c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.default_limit (%d) exceeds search.max_limit (%d)", c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	if c.Search.MinQueryLength < 0 {
		return fmt.Errorf("search.min_query_length must be non-negative, got %d", c.Search.MinQueryLength)
	}

	if c.Paths.ConversationsFile == "" {
		return fmt.Errorf("paths.conversations_file must be set")
	}
	if c.Paths.DataDir == "" {
		return fmt.Errorf("paths.data_dir must be set")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
