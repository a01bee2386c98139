package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/poiesic/lexsearch/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// embeddingServer answers /v1/embeddings with reply applied to the request inputs.
func embeddingServer(t *testing.T, reply func(inputs []string) [][]float32) *ai.Config {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		type datum struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		resp := struct {
			Object string  `json:"object"`
			Data   []datum `json:"data"`
			Model  string  `json:"model"`
		}{Object: "list", Model: req.Model}
		for i, v := range reply(req.Input) {
			resp.Data = append(resp.Data, datum{Object: "embedding", Embedding: v, Index: i})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)

	return ai.NewConfig(
		ai.WithEmbeddingHost(server.URL),
		ai.WithEmbeddingModel("statute-embed"),
		ai.WithBatchSize(2),
	)
}

func lengths(inputs []string) [][]float32 {
	out := make([][]float32, len(inputs))
	for i, text := range inputs {
		out[i] = []float32{float32(len(text)), 1}
	}
	return out
}

func TestEmbedder_EmbedTexts(t *testing.T) {
	embedder, err := NewEmbedder(embeddingServer(t, lengths))
	require.NoError(t, err)

	texts := []string{"a", "line one\nline two", "abc"}
	vectors, err := embedder.EmbedTexts(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float32{1, 1}, vectors[0])
	assert.Equal(t, []float32{17, 1}, vectors[1])
	assert.Equal(t, []float32{3, 1}, vectors[2])
	assert.Equal(t, "line one\nline two", texts[1], "input is not modified")

	vector, err := embedder.EmbedText(context.Background(), "abcd")
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 1}, vector)

	none, err := embedder.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestEmbedder_EmptyVector(t *testing.T) {
	embedder, err := NewEmbedder(embeddingServer(t, func(inputs []string) [][]float32 {
		return make([][]float32, len(inputs))
	}))
	require.NoError(t, err)

	_, err = embedder.EmbedText(context.Background(), "theft")
	assert.ErrorIs(t, err, ErrEmptyEmbedding)
	assert.Contains(t, err.Error(), "statute-embed")
}

func TestEmbedder_ShortAnswer(t *testing.T) {
	embedder, err := NewEmbedder(embeddingServer(t, func(inputs []string) [][]float32 {
		return lengths(inputs)[:1]
	}))
	require.NoError(t, err)

	_, err = embedder.EmbedTexts(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestEmbedder_ServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":{"message":"overloaded"}}`)
	}))
	defer server.Close()

	embedder, err := NewEmbedder(ai.NewConfig(
		ai.WithEmbeddingHost(server.URL),
		ai.WithEmbeddingModel("statute-embed"),
	))
	require.NoError(t, err)

	_, err = embedder.EmbedText(context.Background(), "theft")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statute-embed")
}
