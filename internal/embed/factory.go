package embed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Aman-CERP/chatlens/internal/config"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderOllama uses the Ollama API for embeddings (default)
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses hash-based embeddings (offline, deterministic)
	ProviderStatic ProviderType = "static"
)

// Options selects and configures an embedding provider.
type Options struct {
	Provider   ProviderType
	Model      string
	Host       string
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
	MaxRetries int
}

// OptionsFromConfig maps the embeddings section of cfg onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Provider:   ParseProvider(cfg.Embeddings.Provider),
		Model:      cfg.Embeddings.Model,
		Host:       cfg.Embeddings.OllamaHost,
		Dimensions: cfg.Embeddings.Dimensions,
		BatchSize:  cfg.Embeddings.BatchSize,
		Timeout:    cfg.EmbeddingTimeout(),
		MaxRetries: cfg.Embeddings.MaxRetries,
	}
}

// NewEmbedder creates the embedder named by opts.Provider.
//
// There is no silent fallback between providers: vectors from different
// providers are not comparable, so an unavailable Ollama is an error rather
// than a quiet switch to static embeddings.
func NewEmbedder(ctx context.Context, opts Options) (Embedder, error) {
	switch opts.Provider {
	case ProviderStatic:
		return NewStaticEmbedder(opts.Dimensions), nil
	case ProviderOllama, "":
		return newOllama(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q (valid: %s)",
			opts.Provider, strings.Join(ValidProviders(), ", "))
	}
}

func newOllama(ctx context.Context, opts Options) (Embedder, error) {
	cfg := DefaultOllamaConfig()
	if opts.Host != "" {
		cfg.Host = opts.Host
	}
	if opts.Model != "" {
		cfg.Model = opts.Model
	}
	if opts.Dimensions > 0 {
		cfg.Dimensions = opts.Dimensions
	}
	if opts.BatchSize > 0 {
		cfg.BatchSize = opts.BatchSize
	}
	if opts.Timeout > 0 {
		cfg.Timeout = opts.Timeout
	}
	if opts.MaxRetries >= 0 {
		cfg.MaxRetries = opts.MaxRetries
	}

	embedder, err := NewOllamaEmbedder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ollama unavailable: %w\n\nTo fix:\n  1. Start Ollama: ollama serve\n  2. Pull the model: ollama pull %s\n  3. Or run offline: chatlens index --provider=static", err, cfg.Model)
	}
	return embedder, nil
}

// NewQueryEmbedder wraps an embedder with the in-memory query cache.
func NewQueryEmbedder(inner Embedder, cacheSize int) Embedder {
	if cacheSize < 0 {
		return inner
	}
	return NewQueryCache(inner, cacheSize)
}

// ParseProvider converts a string to ProviderType
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "static":
		return ProviderStatic
	case "ollama", "":
		return ProviderOllama
	default:
		return ProviderType(strings.ToLower(s))
	}
}

// String returns the string representation of ProviderType
func (p ProviderType) String() string {
	return string(p)
}

// ValidProviders returns all valid provider names
func ValidProviders() []string {
	return []string{
		string(ProviderOllama),
		string(ProviderStatic),
	}
}

// IsValidProvider checks if a provider name is valid
func IsValidProvider(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range ValidProviders() {
		if lower == p {
			return true
		}
	}
	return false
}

// EmbedderInfo contains information about an embedder
type EmbedderInfo struct {
	Provider   ProviderType `json:"provider"`
	Model      string       `json:"model"`
	Dimensions int          `json:"dimensions"`
	Available  bool         `json:"available"`
}

// GetInfo returns information about an embedder
func GetInfo(ctx context.Context, embedder Embedder) EmbedderInfo {
	info := EmbedderInfo{
		Model:      embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
		Available:  embedder.Available(ctx),
	}

	inner := embedder
	if cached, ok := embedder.(*QueryCache); ok {
		inner = cached.Inner()
	}

	switch inner.(type) {
	case *OllamaEmbedder:
		info.Provider = ProviderOllama
	case *StaticEmbedder:
		info.Provider = ProviderStatic
	}

	return info
}
