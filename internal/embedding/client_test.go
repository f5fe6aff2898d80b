package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEmbedReturnsVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{Data: []struct {
			Embedding []float32 `json:"embedding"`
		}{{Embedding: []float32{0.1, 0.2, 0.3}}}})
	}))
	defer srv.Close()

	c := New(srv.URL, "key", "model")
	vec, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("len(vec) = %d, want 3", len(vec))
	}
}

func TestTryEmbedNilClientDegrades(t *testing.T) {
	var c *Client
	if got := c.TryEmbed(context.Background(), "x"); got != nil {
		t.Errorf("TryEmbed on nil client = %v, want nil", got)
	}
}

func TestTryEmbedSwallowsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "key", "model")
	if got := c.TryEmbed(context.Background(), "x"); got != nil {
		t.Errorf("TryEmbed on error = %v, want nil", got)
	}
}
