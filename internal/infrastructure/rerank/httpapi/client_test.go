package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vmaslov/retrieval-engine/internal/core/domain"
	"github.com/vmaslov/retrieval-engine/internal/infrastructure/resilience"
)

func TestScorePairsSendsQueryAndTexts(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rerank" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"scores":[0.9,0.1]}`))
	}))
	defer server.Close()

	client := New(server.URL)
	scores, err := client.ScorePairs(context.Background(), "surface roughness", []string{"relevant", "noise"})
	if err != nil {
		t.Fatalf("ScorePairs() error = %v", err)
	}
	if len(scores) != 2 || scores[0] != 0.9 || scores[1] != 0.1 {
		t.Fatalf("unexpected scores: %v", scores)
	}
	if captured["query"] != "surface roughness" {
		t.Fatalf("expected query in request, got %v", captured["query"])
	}
	texts, _ := captured["texts"].([]any)
	if len(texts) != 2 {
		t.Fatalf("expected 2 texts, got %v", captured["texts"])
	}
}

func TestScorePairsRejectsCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"scores":[0.9]}`))
	}))
	defer server.Close()

	client := New(server.URL)
	_, err := client.ScorePairs(context.Background(), "q", []string{"a", "b"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "got 1 scores for 2 texts") {
		t.Fatalf("expected count mismatch error, got %v", err)
	}
}

func TestScorePairsMarksServerErrorsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(server.URL)
	_, err := client.ScorePairs(context.Background(), "q", []string{"a"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary kind, got %v", err)
	}
	if !strings.Contains(err.Error(), "model loading") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestScorePairsRetriesThroughExecutor(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts < 2 {
			http.Error(w, "busy", http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"scores":[0.7]}`))
	}))
	defer server.Close()

	executor := resilience.NewExecutor(resilience.Policy{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})
	client := New(server.URL, WithExecutor(executor))

	score, err := client.ScorePair(context.Background(), "q", "a")
	if err != nil {
		t.Fatalf("ScorePair() error = %v", err)
	}
	if score != 0.7 {
		t.Fatalf("unexpected score: %v", score)
	}
	if attempts != 2 {
		t.Fatalf("expected retry after 429, got %d attempts", attempts)
	}
}

func TestScorePairsEmptyInput(t *testing.T) {
	client := New("http://unused")
	scores, err := client.ScorePairs(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("ScorePairs() error = %v", err)
	}
	if scores != nil {
		t.Fatalf("expected nil scores for empty input, got %v", scores)
	}
}
