package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"document-intelligence-platform/internal/config"
	"document-intelligence-platform/internal/logger"
	"document-intelligence-platform/internal/telemetry"
	"document-intelligence-platform/models"
)

// OllamaClient talks to a locally hosted Ollama instance. All failures
// are classified into the three domain error classes before they leave
// this package: timeout, unavailable, malformed output.
type OllamaClient struct {
	baseURL         string
	model           string
	httpClient      *http.Client
	breaker         *gobreaker.CircuitBreaker
	rateLimiter     *rate.Limiter
	generateTimeout time.Duration
	healthTimeout   time.Duration
	maxContextChars int
}

// EngineHealth reports reachability of the inference engine and the
// models it has installed.
type EngineHealth struct {
	Available bool     `json:"available"`
	Models    []string `json:"models,omitempty"`
	Error     string   `json:"error,omitempty"`
}

func NewOllamaClient(cfg *config.Config, metrics *telemetry.Metrics) *OllamaClient {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "OllamaEngine",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			if metrics != nil {
				metrics.RecordCircuitBreakerState(name, to.String())
			}
		},
	})

	rateLimiter := rate.NewLimiter(rate.Limit(cfg.EngineRatePerSecond), cfg.EngineConcurrency)

	return &OllamaClient{
		baseURL: strings.TrimRight(cfg.OllamaBaseURL, "/"),
		model:   cfg.OllamaModel,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.OllamaGenerateSecs) * time.Second,
		},
		breaker:         breaker,
		rateLimiter:     rateLimiter,
		generateTimeout: time.Duration(cfg.OllamaGenerateSecs) * time.Second,
		healthTimeout:   time.Duration(cfg.OllamaHealthSecs) * time.Second,
		maxContextChars: cfg.MaxContextChars,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Format   string         `json:"format,omitempty"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Error string `json:"error,omitempty"`
}

// Health checks engine reachability via the tags endpoint. It uses a
// short timeout so health probes stay fast even when generation is slow.
func (oc *OllamaClient) Health(ctx context.Context) EngineHealth {
	ctx, cancel := context.WithTimeout(ctx, oc.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, oc.baseURL+"/api/tags", nil)
	if err != nil {
		return EngineHealth{Available: false, Error: err.Error()}
	}

	resp, err := oc.httpClient.Do(req)
	if err != nil {
		return EngineHealth{Available: false, Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return EngineHealth{Available: false, Error: fmt.Sprintf("engine returned status %d", resp.StatusCode)}
	}

	var payload struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return EngineHealth{Available: false, Error: err.Error()}
	}

	names := make([]string, 0, len(payload.Models))
	for _, m := range payload.Models {
		names = append(names, m.Name)
	}
	return EngineHealth{Available: true, Models: names}
}

// Summarize produces a summary of text at the requested level. The
// returned payload may have empty content when the engine answered with
// valid but vacuous JSON; callers decide whether to fall back.
func (oc *OllamaClient) Summarize(ctx context.Context, text string, level models.SummaryLevel) (*models.SummaryPayload, error) {
	tracer := otel.Tracer("ollama-client")
	ctx, span := tracer.Start(ctx, "ollama.summarize")
	defer span.End()

	span.SetAttributes(
		attribute.String("ollama.model", oc.model),
		attribute.String("summary.level", string(level)),
		attribute.Int("input.chars", len(text)),
	)

	instructions := map[models.SummaryLevel]string{
		models.SummaryBrief:    "Write a brief summary in 2-3 sentences.",
		models.SummaryDetailed: "Write a detailed summary covering the key points, figures and conclusions.",
		models.SummaryBullets:  "Summarize the document as 5-8 concise bullet points.",
	}

	system := `You are a document analysis engine. Respond with strict JSON only, no prose.
Schema: {"level": string, "content": string, "bullets": [string]}.
For bullet summaries put each point in "bullets" and leave "content" as a one-line overview.`

	user := fmt.Sprintf("%s\n\nDocument:\n%s", instructions[level], oc.clampContext(text))

	raw, err := oc.chatJSON(ctx, system, user)
	if err != nil {
		span.SetAttributes(attribute.Bool("ollama.error", true))
		return nil, err
	}

	var payload models.SummaryPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		span.SetAttributes(attribute.Bool("ollama.malformed", true))
		return nil, fmt.Errorf("%w: %v", models.ErrInferenceMalformedOutput, err)
	}
	payload.Level = string(level)

	span.SetAttributes(attribute.Int("summary.chars", len(payload.Content)))
	return &payload, nil
}

// ExtractEntities asks the engine for typed entities. Offsets are not
// resolved here, callers locate values in the normalized text themselves.
func (oc *OllamaClient) ExtractEntities(ctx context.Context, text string) ([]models.Entity, error) {
	tracer := otel.Tracer("ollama-client")
	ctx, span := tracer.Start(ctx, "ollama.extract_entities")
	defer span.End()

	span.SetAttributes(
		attribute.String("ollama.model", oc.model),
		attribute.Int("input.chars", len(text)),
	)

	system := `You are a document analysis engine. Respond with strict JSON only, no prose.
Schema: {"entities": [{"type": string, "value": string, "confidence": number}]}.
Allowed types: person, date, amount, address, organization, email, phone.
Confidence is between 0 and 1. Omit entities you are not reasonably sure about.`

	user := fmt.Sprintf("Extract all typed entities from this document:\n%s", oc.clampContext(text))

	raw, err := oc.chatJSON(ctx, system, user)
	if err != nil {
		span.SetAttributes(attribute.Bool("ollama.error", true))
		return nil, err
	}

	var payload struct {
		Entities []models.Entity `json:"entities"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		span.SetAttributes(attribute.Bool("ollama.malformed", true))
		return nil, fmt.Errorf("%w: %v", models.ErrInferenceMalformedOutput, err)
	}

	entities := make([]models.Entity, 0, len(payload.Entities))
	for _, e := range payload.Entities {
		e.Type = strings.ToLower(strings.TrimSpace(e.Type))
		e.Value = strings.TrimSpace(e.Value)
		if e.Value == "" || !models.ValidEntityType(e.Type) {
			continue
		}
		if e.Confidence <= 0 || e.Confidence > 1 {
			e.Confidence = 0.5
		}
		entities = append(entities, e)
	}

	span.SetAttributes(attribute.Int("entities.count", len(entities)))
	return entities, nil
}

// chatJSON sends one chat completion in JSON mode through the rate
// limiter and circuit breaker, returning the raw JSON document the model
// produced.
func (oc *OllamaClient) chatJSON(ctx context.Context, system, user string) (json.RawMessage, error) {
	if err := oc.rateLimiter.Wait(ctx); err != nil {
		return nil, oc.classify(err)
	}

	result, err := oc.breaker.Execute(func() (interface{}, error) {
		return oc.doChat(ctx, system, user)
	})
	if err != nil {
		return nil, oc.classify(err)
	}

	content := result.(string)
	raw := stripFences(content)
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("%w: response is not valid JSON", models.ErrInferenceMalformedOutput)
	}
	return json.RawMessage(raw), nil
}

func (oc *OllamaClient) doChat(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, oc.generateTimeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model: oc.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Format: "json",
		Stream: false,
		Options: map[string]any{
			"temperature": 0.1,
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, oc.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := oc.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("engine returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrInferenceMalformedOutput, err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("engine error: %s", parsed.Error)
	}
	return parsed.Message.Content, nil
}

// classify maps transport and breaker errors onto the domain taxonomy.
func (oc *OllamaClient) classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrInferenceMalformedOutput),
		errors.Is(err, models.ErrInferenceTimeout),
		errors.Is(err, models.ErrInferenceUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", models.ErrInferenceTimeout, err)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%w: circuit breaker open", models.ErrInferenceUnavailable)
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", models.ErrInferenceTimeout, err)
	}

	return fmt.Errorf("%w: %v", models.ErrInferenceUnavailable, err)
}

func (oc *OllamaClient) clampContext(text string) string {
	if oc.maxContextChars <= 0 || len(text) <= oc.maxContextChars {
		return text
	}
	cut := oc.maxContextChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// stripFences removes markdown code fences that some models wrap around
// JSON output despite the format hint.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}
