package preflight

import (
	"context"
	"fmt"
	"time"

	"github.com/Aman-CERP/chatlens/internal/embed"
	"github.com/Aman-CERP/chatlens/internal/store"
)

// providerTimeout bounds the availability check.
const providerTimeout = 5 * time.Second

// CheckProvider checks that the embedding provider answers. Quoted
// queries still work without it, so the check is not required.
func (c *Checker) CheckProvider(ctx context.Context) CheckResult {
	result := CheckResult{Name: "embedding_provider", Required: false}

	info := embed.GetInfo(ctx, c.embedder)
	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	if !c.embedder.Available(ctx) {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s (%s) is not reachable", info.Model, info.Provider)
		result.Details = "Start Ollama and pull the model, or set embeddings.provider: static"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%s, %d dims)", info.Model, info.Provider, info.Dimensions)
	return result
}

// CheckCache checks that the embedding cache was filled by the configured
// model with matching dimensions. A mismatch makes every rebuild fail.
func (c *Checker) CheckCache(ctx context.Context) CheckResult {
	result := CheckResult{Name: "embedding_cache", Required: true}

	count, err := c.cache.Count(ctx)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot be read: %v", err)
		return result
	}
	if count == 0 {
		result.Status = StatusPass
		result.Message = "empty (run 'chatlens index')"
		return result
	}

	model, found, err := c.cache.Meta(ctx, store.MetaKeyModel)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot be read: %v", err)
		return result
	}

	want := c.embedder.ModelName()
	if found && model != want {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("filled by %s, configured model is %s", model, want)
		result.Details = "Run 'chatlens index --reset' to re-embed with the configured model"
		return result
	}
	if dims := c.cache.Dimensions(); dims != c.embedder.Dimensions() {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%d dims cached, provider returns %d", dims, c.embedder.Dimensions())
		result.Details = "Run 'chatlens index --reset' to re-embed with the configured model"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d embeddings from %s", count, want)
	return result
}
