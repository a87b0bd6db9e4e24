package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lenserrors "github.com/Aman-CERP/chatlens/internal/errors"
	"github.com/Aman-CERP/chatlens/pkg/version"
)

// fakeOllama serves /api/tags and /api/embed. embedFn, when set, replaces
// the default embed handler.
type fakeOllama struct {
	models     []string
	dims       int
	embedCalls atomic.Int64
	userAgent  atomic.Pointer[string]
	embedFn    func(w http.ResponseWriter, req OllamaEmbedRequest)
}

func (f *fakeOllama) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		var resp OllamaModelListResponse
		for _, m := range f.models {
			resp.Models = append(resp.Models, OllamaModelInfo{Name: m})
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		f.embedCalls.Add(1)
		ua := r.UserAgent()
		f.userAgent.Store(&ua)
		var req OllamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if f.embedFn != nil {
			f.embedFn(w, req)
			return
		}
		n := 1
		if inputs, ok := req.Input.([]any); ok {
			n = len(inputs)
		}
		resp := OllamaEmbedResponse{Model: req.Model}
		for i := 0; i < n; i++ {
			vec := make([]float64, f.dims)
			vec[i%f.dims] = 1
			resp.Embeddings = append(resp.Embeddings, vec)
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	return mux
}

func newFakeOllama(t *testing.T, f *fakeOllama) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return srv
}

func testOllamaConfig(host string) OllamaConfig {
	cfg := DefaultOllamaConfig()
	cfg.Host = host
	cfg.Timeout = 5 * time.Second
	cfg.MaxRetries = 0
	return cfg
}

func TestNewOllamaEmbedder_DetectsDimensionsAndTaggedModel(t *testing.T) {
	fake := &fakeOllama{models: []string{"nomic-embed-text:latest"}, dims: 8}
	srv := newFakeOllama(t, fake)

	e, err := NewOllamaEmbedder(context.Background(), testOllamaConfig(srv.URL))
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Equal(t, "nomic-embed-text:latest", e.ModelName())
	assert.Equal(t, 8, e.Dimensions())
	assert.True(t, e.Available(context.Background()))
}

func TestNewOllamaEmbedder_FallsBackToInstalledModel(t *testing.T) {
	fake := &fakeOllama{models: []string{"all-minilm:latest"}, dims: 4}
	srv := newFakeOllama(t, fake)

	e, err := NewOllamaEmbedder(context.Background(), testOllamaConfig(srv.URL))
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Equal(t, "all-minilm:latest", e.ModelName())
}

func TestNewOllamaEmbedder_NoModelInstalled_ReturnsProviderError(t *testing.T) {
	fake := &fakeOllama{models: []string{"llama3:8b"}, dims: 4}
	srv := newFakeOllama(t, fake)

	_, err := NewOllamaEmbedder(context.Background(), testOllamaConfig(srv.URL))
	require.Error(t, err)
	assert.Equal(t, lenserrors.ErrCodeProviderUnavailable, lenserrors.GetCode(err))
}

func TestOllamaEmbedder_EmbedBatch_SplitsByBatchSize(t *testing.T) {
	fake := &fakeOllama{dims: 4}
	srv := newFakeOllama(t, fake)

	cfg := testOllamaConfig(srv.URL)
	cfg.SkipHealthCheck = true
	cfg.BatchSize = 2
	e, err := NewOllamaEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)

	assert.Len(t, vecs, 5)
	assert.Equal(t, int64(3), fake.embedCalls.Load())
}

func TestOllamaEmbedder_ReturnsRawVectors(t *testing.T) {
	fake := &fakeOllama{dims: 2}
	fake.embedFn = func(w http.ResponseWriter, req OllamaEmbedRequest) {
		_ = json.NewEncoder(w).Encode(OllamaEmbedResponse{Embeddings: [][]float64{{3, 4}}})
	}
	srv := newFakeOllama(t, fake)

	cfg := testOllamaConfig(srv.URL)
	cfg.SkipHealthCheck = true
	e, err := NewOllamaEmbedder(context.Background(), cfg)
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 4}, vec)
	assert.Equal(t, version.UserAgent(), *fake.userAgent.Load())
}

func TestOllamaEmbedder_StatusClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCode  string
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, lenserrors.ErrCodeProviderRateLimited, true},
		{"unavailable", http.StatusServiceUnavailable, lenserrors.ErrCodeProviderUnavailable, true},
		{"unauthorized", http.StatusUnauthorized, lenserrors.ErrCodeProviderAuth, false},
		{"bad request", http.StatusBadRequest, lenserrors.ErrCodeProviderBadResponse, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeOllama{dims: 4}
			fake.embedFn = func(w http.ResponseWriter, _ OllamaEmbedRequest) {
				http.Error(w, "nope", tt.status)
			}
			srv := newFakeOllama(t, fake)

			cfg := testOllamaConfig(srv.URL)
			cfg.SkipHealthCheck = true
			e, err := NewOllamaEmbedder(context.Background(), cfg)
			require.NoError(t, err)

			_, err = e.EmbedBatch(context.Background(), []string{"a", "b"})
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, lenserrors.GetCode(err))
			assert.Equal(t, tt.retryable, lenserrors.IsRetryable(err))
		})
	}
}

func TestOllamaEmbedder_MisalignedResponse_IsBadResponse(t *testing.T) {
	fake := &fakeOllama{dims: 4}
	fake.embedFn = func(w http.ResponseWriter, _ OllamaEmbedRequest) {
		_ = json.NewEncoder(w).Encode(OllamaEmbedResponse{Embeddings: [][]float64{{1, 0, 0, 0}}})
	}
	srv := newFakeOllama(t, fake)

	cfg := testOllamaConfig(srv.URL)
	cfg.SkipHealthCheck = true
	e, err := NewOllamaEmbedder(context.Background(), cfg)
	require.NoError(t, err)

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.Error(t, err)
	assert.Nil(t, vecs)
	assert.Equal(t, lenserrors.ErrCodeProviderBadResponse, lenserrors.GetCode(err))
}

func TestOllamaEmbedder_Embed_RetriesTransientFailure(t *testing.T) {
	var calls atomic.Int64
	fake := &fakeOllama{dims: 4}
	fake.embedFn = func(w http.ResponseWriter, _ OllamaEmbedRequest) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(OllamaEmbedResponse{Embeddings: [][]float64{{1, 0, 0, 0}}})
	}
	srv := newFakeOllama(t, fake)

	cfg := testOllamaConfig(srv.URL)
	cfg.SkipHealthCheck = true
	cfg.MaxRetries = 2
	e, err := NewOllamaEmbedder(context.Background(), cfg)
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "query")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
	assert.Equal(t, int64(2), calls.Load())
}

func TestOllamaEmbedder_Unreachable_IsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	host := srv.URL
	srv.Close()

	cfg := testOllamaConfig(host)
	cfg.SkipHealthCheck = true
	e, err := NewOllamaEmbedder(context.Background(), cfg)
	require.NoError(t, err)

	_, err = e.EmbedBatch(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.True(t, lenserrors.IsProviderError(err))
	assert.False(t, e.Available(context.Background()))
}

func TestOllamaEmbedder_Closed_RejectsCalls(t *testing.T) {
	cfg := testOllamaConfig("http://127.0.0.1:1")
	cfg.SkipHealthCheck = true
	e, err := NewOllamaEmbedder(context.Background(), cfg)
	require.NoError(t, err)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err = e.Embed(context.Background(), "x")
	assert.Error(t, err)
}

func TestOllamaEmbedder_RepeatedOutages_StopReachingServer(t *testing.T) {
	// Given: an Ollama that answers every embed with 503
	fake := &fakeOllama{dims: 4}
	fake.embedFn = func(w http.ResponseWriter, _ OllamaEmbedRequest) {
		http.Error(w, "model loading failed", http.StatusServiceUnavailable)
	}
	srv := newFakeOllama(t, fake)

	cfg := testOllamaConfig(srv.URL)
	cfg.SkipHealthCheck = true
	e, err := NewOllamaEmbedder(context.Background(), cfg)
	require.NoError(t, err)

	// When: batches keep failing past the outage threshold
	for range lenserrors.DefaultOutageThreshold {
		_, err = e.EmbedBatch(context.Background(), []string{"a"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, lenserrors.ErrCircuitOpen)
	}
	_, err = e.EmbedBatch(context.Background(), []string{"b"})

	// Then: the next batch fails fast without a request
	require.Error(t, err)
	assert.ErrorIs(t, err, lenserrors.ErrCircuitOpen)
	assert.False(t, lenserrors.IsRetryable(err))
	assert.Equal(t, int64(lenserrors.DefaultOutageThreshold), fake.embedCalls.Load())
	assert.Equal(t, lenserrors.BreakerOpen, e.breaker.State())
}
