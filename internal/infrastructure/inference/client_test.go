package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_LoadEmbedUnload(t *testing.T) {
	var loaded, unloaded bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case "POST /v1/models/clip-vit-b16/load":
			loaded = true
			w.WriteHeader(http.StatusOK)
		case "POST /v1/embeddings/image":
			var req embedImageRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "clip-vit-b16", req.Model)
			assert.Equal(t, "a product photo", req.Prompt)
			json.NewEncoder(w).Encode(embedResponse{Embedding: []float32{0.1, 0.2}})
		case "POST /v1/embeddings/text":
			json.NewEncoder(w).Encode(embedResponse{Embedding: []float32{0.3}})
		case "DELETE /v1/models/clip-vit-b16":
			unloaded = true
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, MaxConcurrent: 2})
	ctx := context.Background()

	session, err := client.LoadModel(ctx, "clip-vit-b16")
	require.NoError(t, err)
	assert.True(t, loaded)

	vec, err := session.EmbedImage(ctx, []byte{0xff, 0xd8}, "a product photo")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vec)

	vec, err = session.EmbedText(ctx, "vestido rojo")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.3}, vec)

	require.NoError(t, session.Close(ctx))
	assert.True(t, unloaded)
}

func TestClient_ErrorStatusSurfacesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})

	_, err := client.LoadModel(context.Background(), "unknown")
	require.Error(t, err)
	assert.ErrorContains(t, err, "status 404")
	assert.ErrorContains(t, err, "model not found")
}

func TestClient_NormalizeColor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req normalizeColorRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "coral vibrante", req.Color)
		json.NewEncoder(w).Encode(normalizeColorResponse{Canonical: "CORAL"})
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})

	got, err := client.NormalizeColor(context.Background(), "coral vibrante")
	require.NoError(t, err)
	assert.Equal(t, "CORAL", got)
}
