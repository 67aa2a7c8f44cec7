package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/poiesic/succession/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider_RejectsUnknownModel(t *testing.T) {
	cfg := ai.NewConfig(ai.WithEmbeddingModel("not-a-model"))
	p, err := NewProvider(cfg)
	assert.ErrorIs(t, err, ai.ErrUnknownModel)
	assert.Nil(t, p)
}

func TestNewProvider_KeepsConfig(t *testing.T) {
	cfg := ai.NewConfig(ai.WithEmbeddingHost("http://localhost:11434"))
	p, err := NewProvider(cfg)
	require.NoError(t, err)
	defer p.Close()

	assert.NotNil(t, p.Embedder())
	assert.Same(t, cfg, p.Config())
	assert.Equal(t, "http://localhost:11434/v1", p.Config().EmbeddingHost)
}

func TestEmbedder_EmbedTexts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		resp := struct {
			Object string `json:"object"`
			Data   []item `json:"data"`
			Model  string `json:"model"`
		}{Object: "list", Model: "bge-m3"}
		for i, text := range req.Input {
			resp.Data = append(resp.Data, item{Object: "embedding", Embedding: []float32{float32(len(text)), 1}, Index: i})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	emb, err := NewEmbedder(ai.NewConfig(
		ai.WithEmbeddingHost(srv.URL),
		ai.WithEmbeddingModel("bge-m3"),
		ai.WithBatchSize(2),
	))
	require.NoError(t, err)

	vectors, err := emb.EmbedTexts(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float32{1, 1}, vectors[0])
	assert.Equal(t, []float32{3, 1}, vectors[2])

	single, err := emb.EmbedText(context.Background(), "dddd")
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 1}, single)
}
