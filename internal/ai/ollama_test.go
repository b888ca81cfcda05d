package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"document-intelligence-platform/internal/config"
	"document-intelligence-platform/internal/telemetry"
	"document-intelligence-platform/models"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		OllamaBaseURL:       baseURL,
		OllamaModel:         "test-model",
		OllamaGenerateSecs:  2,
		OllamaHealthSecs:    1,
		EngineRatePerSecond: 100,
		EngineConcurrency:   10,
		MaxContextChars:     24000,
	}
}

func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model  string `json:"model"`
			Format string `json:"format"`
			Stream bool   `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Format != "json" || req.Stream {
			t.Errorf("unexpected request shape: format=%q stream=%v", req.Format, req.Stream)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"content": content},
		})
	}))
}

func TestSummarize(t *testing.T) {
	srv := chatServer(t, `{"level":"brief","content":"Two parties signed an agreement.","bullets":[]}`)
	defer srv.Close()

	client := NewOllamaClient(testConfig(srv.URL), nil)
	payload, err := client.Summarize(context.Background(), "document text", models.SummaryBrief)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if payload.Content != "Two parties signed an agreement." {
		t.Errorf("content = %q", payload.Content)
	}
	if payload.Level != "brief" {
		t.Errorf("level = %q", payload.Level)
	}
}

func TestSummarizeFencedJSON(t *testing.T) {
	srv := chatServer(t, "```json\n{\"level\":\"brief\",\"content\":\"Fenced but valid.\"}\n```")
	defer srv.Close()

	client := NewOllamaClient(testConfig(srv.URL), nil)
	payload, err := client.Summarize(context.Background(), "text", models.SummaryBrief)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if payload.Content != "Fenced but valid." {
		t.Errorf("content = %q", payload.Content)
	}
}

func TestSummarizeMalformedOutput(t *testing.T) {
	srv := chatServer(t, "I am sorry, I cannot produce JSON today.")
	defer srv.Close()

	client := NewOllamaClient(testConfig(srv.URL), nil)
	if _, err := client.Summarize(context.Background(), "text", models.SummaryBrief); !errors.Is(err, models.ErrInferenceMalformedOutput) {
		t.Fatalf("got %v, want malformed output", err)
	}
}

func TestSummarizeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewOllamaClient(testConfig(srv.URL), nil)
	if _, err := client.Summarize(context.Background(), "text", models.SummaryBrief); !errors.Is(err, models.ErrInferenceUnavailable) {
		t.Fatalf("got %v, want unavailable", err)
	}
}

func TestSummarizeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(3 * time.Second)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.OllamaGenerateSecs = 1
	client := NewOllamaClient(cfg, nil)

	if _, err := client.Summarize(context.Background(), "text", models.SummaryBrief); !errors.Is(err, models.ErrInferenceTimeout) {
		t.Fatalf("got %v, want timeout", err)
	}
}

func TestCircuitBreakerStopsHammering(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewOllamaClient(testConfig(srv.URL), nil)
	for i := 0; i < 5; i++ {
		if _, err := client.Summarize(context.Background(), "text", models.SummaryBrief); !errors.Is(err, models.ErrInferenceUnavailable) {
			t.Fatalf("call %d: got %v, want unavailable", i, err)
		}
	}

	if got := hits.Load(); got != 3 {
		t.Fatalf("server hits = %d, want 3 before the breaker opens", got)
	}
}

func TestCircuitBreakerRecordsStateChanges(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		t.Fatalf("InitMetrics: %v", err)
	}

	client := NewOllamaClient(testConfig(srv.URL), metrics)
	for i := 0; i < 5; i++ {
		if _, err := client.Summarize(context.Background(), "text", models.SummaryBrief); !errors.Is(err, models.ErrInferenceUnavailable) {
			t.Fatalf("call %d: got %v, want unavailable", i, err)
		}
	}
}

func TestExtractEntitiesFiltersInvalid(t *testing.T) {
	srv := chatServer(t, `{"entities":[
		{"type":"person","value":"Alice Johnson","confidence":0.9},
		{"type":"PERSON","value":"Bob Smith","confidence":0.8},
		{"type":"spaceship","value":"Enterprise","confidence":0.99},
		{"type":"date","value":"","confidence":0.7},
		{"type":"amount","value":"$5,000","confidence":7.5}
	]}`)
	defer srv.Close()

	client := NewOllamaClient(testConfig(srv.URL), nil)
	entities, err := client.ExtractEntities(context.Background(), "text")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	if len(entities) != 3 {
		t.Fatalf("entities = %d, want 3: %+v", len(entities), entities)
	}
	if entities[1].Type != models.EntityPerson {
		t.Errorf("type not normalized: %q", entities[1].Type)
	}
	if entities[2].Confidence != 0.5 {
		t.Errorf("out-of-range confidence not reset: %v", entities[2].Confidence)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]string{{"name": "llama3.1:8b"}},
		})
	}))
	defer srv.Close()

	client := NewOllamaClient(testConfig(srv.URL), nil)
	health := client.Health(context.Background())
	if !health.Available {
		t.Fatalf("engine reported unavailable: %s", health.Error)
	}
	if len(health.Models) != 1 || health.Models[0] != "llama3.1:8b" {
		t.Errorf("models = %v", health.Models)
	}
}

func TestHealthUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewOllamaClient(testConfig(srv.URL), nil)
	if health := client.Health(context.Background()); health.Available {
		t.Fatalf("unreachable engine reported available")
	}
}

func TestStripFences(t *testing.T) {
	cases := map[string]string{
		`{"a":1}`:                       `{"a":1}`,
		"```json\n{\"a\":1}\n```":       `{"a":1}`,
		"```\n{\"a\":1}\n```":           `{"a":1}`,
		"  \n```json\n{\"a\":1}\n```  ": `{"a":1}`,
	}
	for in, want := range cases {
		if got := stripFences(in); got != want {
			t.Errorf("stripFences(%q) = %q, want %q", in, got, want)
		}
	}
}
