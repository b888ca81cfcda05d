package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"document-intelligence-platform/internal/logger"
	"document-intelligence-platform/internal/telemetry"
	"document-intelligence-platform/models"
)

// DocumentStore is the persistence surface the orchestrator needs. The
// Mongo store implements it; tests use an in-memory fake.
type DocumentStore interface {
	GetDocument(ctx context.Context, id string) (*models.Document, error)

	// CompareAndSwapStatus moves a document from one status to another
	// only if it is still in the expected status, returning
	// models.ErrInvalidTransition otherwise. This is the only way status
	// changes, so concurrent runs cannot both claim a document.
	CompareAndSwapStatus(ctx context.Context, id, from, to, reason string) error

	// SetParsed stores extraction output for a document and replaces its
	// chunks in one transaction.
	SetParsed(ctx context.Context, id string, res *ExtractionResult, chunks []models.Chunk) error

	// ReplaceEntities swaps the document's entity set atomically.
	ReplaceEntities(ctx context.Context, id string, entities []models.Entity) error

	ListChunks(ctx context.Context, documentID string) ([]models.Chunk, error)
}

// InferenceEngine is the handle to the local model the orchestrator
// analyzes documents with.
type InferenceEngine interface {
	Summarize(ctx context.Context, text string, level models.SummaryLevel) (*models.SummaryPayload, error)
	ExtractEntities(ctx context.Context, text string) ([]models.Entity, error)
}

// Orchestrator drives documents through the processing lifecycle:
// parse, analyze, complete. It owns every status transition, retries
// transient engine failures with exponential backoff, and joins
// concurrent runs for the same document into one.
type Orchestrator struct {
	store     DocumentStore
	blobs     BlobStore
	cache     AnalysisCache
	engine    InferenceEngine
	extractor *Extractor
	chunker   *ChunkingService
	metrics   *telemetry.Metrics

	modelName    string
	maxAttempts  int
	retryBackoff time.Duration

	// engineSlots bounds concurrent engine calls across all documents.
	engineSlots chan struct{}

	mu       sync.Mutex
	inflight map[string]*inflightRun
}

type inflightRun struct {
	done   chan struct{}
	status string
	err    error
}

type OrchestratorOptions struct {
	ModelName         string
	MaxAttempts       int
	RetryBackoff      time.Duration
	EngineConcurrency int
	Metrics           *telemetry.Metrics
}

func NewOrchestrator(store DocumentStore, blobs BlobStore, cache AnalysisCache, engine InferenceEngine, extractor *Extractor, chunker *ChunkingService, opts OrchestratorOptions) *Orchestrator {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.EngineConcurrency < 1 {
		opts.EngineConcurrency = 2
	}

	return &Orchestrator{
		store:        store,
		blobs:        blobs,
		cache:        cache,
		engine:       engine,
		extractor:    extractor,
		chunker:      chunker,
		metrics:      opts.Metrics,
		modelName:    opts.ModelName,
		maxAttempts:  opts.MaxAttempts,
		retryBackoff: opts.RetryBackoff,
		engineSlots:  make(chan struct{}, opts.EngineConcurrency),
		inflight:     make(map[string]*inflightRun),
	}
}

// Run processes one document to a terminal status and returns it.
// Domain failures are persisted on the document and reported as a
// "failed" status with a nil error; a non-nil error means infrastructure
// trouble and the outcome is unknown.
//
// Concurrent calls for the same document share a single run: later
// callers block until the first finishes and observe its outcome.
func (o *Orchestrator) Run(ctx context.Context, documentID string) (string, error) {
	o.mu.Lock()
	if r, ok := o.inflight[documentID]; ok {
		o.mu.Unlock()
		select {
		case <-r.done:
			return r.status, r.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	r := &inflightRun{done: make(chan struct{})}
	o.inflight[documentID] = r
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.inflight, documentID)
		o.mu.Unlock()
		close(r.done)
	}()

	start := time.Now()
	r.status, r.err = o.process(ctx, documentID)
	if o.metrics != nil && r.err == nil {
		o.metrics.RecordProcessing(time.Since(start).Seconds(), r.status)
	}
	return r.status, r.err
}

func (o *Orchestrator) process(ctx context.Context, documentID string) (string, error) {
	doc, err := o.store.GetDocument(ctx, documentID)
	if err != nil {
		return "", err
	}

	switch doc.Status {
	case models.StatusParsing, models.StatusAnalyzing:
		// Another process owns this document; observe, don't duplicate.
		return doc.Status, nil
	case models.StatusComplete, models.StatusFailed:
		if doc.FullText != "" {
			return o.analyze(ctx, doc)
		}
		return o.fullPipeline(ctx, doc)
	default:
		return o.fullPipeline(ctx, doc)
	}
}

func (o *Orchestrator) fullPipeline(ctx context.Context, doc *models.Document) (string, error) {
	if err := o.store.CompareAndSwapStatus(ctx, doc.ID, doc.Status, models.StatusParsing, ""); err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			return doc.Status, nil
		}
		return "", err
	}
	doc.Status = models.StatusParsing

	raw, err := o.blobs.Load(ctx, doc.FilePath)
	if err != nil {
		return o.fail(ctx, doc, fmt.Errorf("stored file unreadable: %v", err))
	}

	res, err := o.extractor.Extract(ctx, raw, doc.FileType)
	if err != nil {
		// Corrupt or unsupported input is a per-document outcome, never
		// a worker crash. Nothing is persisted for the failed phase.
		return o.fail(ctx, doc, err)
	}

	chunks := o.chunker.ChunkText(res.Text)
	if err := o.store.SetParsed(ctx, doc.ID, res, chunks); err != nil {
		return "", err
	}
	doc.FullText = res.Text
	doc.Checksum = res.Checksum

	return o.analyze(ctx, doc)
}

func (o *Orchestrator) analyze(ctx context.Context, doc *models.Document) (string, error) {
	if err := o.store.CompareAndSwapStatus(ctx, doc.ID, doc.Status, models.StatusAnalyzing, ""); err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			return doc.Status, nil
		}
		return "", err
	}
	doc.Status = models.StatusAnalyzing

	if _, err := o.summarize(ctx, doc, models.SummaryBrief); err != nil {
		return o.fail(ctx, doc, err)
	}

	if err := o.extractEntities(ctx, doc); err != nil {
		return o.fail(ctx, doc, err)
	}

	if err := o.store.CompareAndSwapStatus(ctx, doc.ID, models.StatusAnalyzing, models.StatusComplete, ""); err != nil {
		return "", err
	}
	logger.Info("document analysis complete", "document_id", doc.ID, "checksum", doc.Checksum)
	return models.StatusComplete, nil
}

// summarize returns the summary for doc at the given level, consulting
// the cache first and persisting fresh results.
func (o *Orchestrator) summarize(ctx context.Context, doc *models.Document, level models.SummaryLevel) (*models.AnalysisResult, error) {
	params := string(level)

	if cached, ok, err := o.cache.Lookup(ctx, doc.Checksum, models.AnalysisSummary, params); err == nil && ok {
		if cached.DocumentID != doc.ID {
			// Same content under a different document id: adopt the row.
			adopted := *cached
			adopted.ID = ""
			adopted.DocumentID = doc.ID
			if err := o.cache.Store(ctx, &adopted); err != nil {
				return nil, err
			}
		}
		return cached, nil
	} else if err != nil {
		logger.Warn("analysis cache lookup failed", "document_id", doc.ID, "error", err)
	}

	var payload *models.SummaryPayload
	err := o.callEngine(ctx, "summarize", func(ctx context.Context) error {
		var callErr error
		payload, callErr = o.engine.Summarize(ctx, doc.FullText, level)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	if payload == nil || (strings.TrimSpace(payload.Content) == "" && len(payload.Bullets) == 0) {
		payload = FallbackSummary(doc.FullText, level)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	result := &models.AnalysisResult{
		DocumentID: doc.ID,
		Checksum:   doc.Checksum,
		Kind:       models.AnalysisSummary,
		Params:     params,
		Model:      o.modelName,
		ResultJSON: string(raw),
	}
	if err := o.cache.Store(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (o *Orchestrator) extractEntities(ctx context.Context, doc *models.Document) error {
	var entities []models.Entity

	if cached, ok, err := o.cache.Lookup(ctx, doc.Checksum, models.AnalysisEntities, ""); err == nil && ok {
		var payload models.EntitiesPayload
		if err := json.Unmarshal([]byte(cached.ResultJSON), &payload); err == nil {
			entities = payload.Entities
		}
		if cached.DocumentID != doc.ID {
			adopted := *cached
			adopted.ID = ""
			adopted.DocumentID = doc.ID
			if err := o.cache.Store(ctx, &adopted); err != nil {
				return err
			}
		}
	}

	source := models.EntitySourceEngine
	if entities == nil {
		raw, err := o.engineEntities(ctx, doc)
		if err != nil {
			return err
		}
		if len(raw) == 0 {
			raw = FallbackEntities(doc.FullText)
			source = models.EntitySourceFallback
		}
		entities = resolveEntitySpans(doc.FullText, raw)

		payload, err := json.Marshal(models.EntitiesPayload{Entities: entities, Source: source})
		if err != nil {
			return err
		}
		result := &models.AnalysisResult{
			DocumentID: doc.ID,
			Checksum:   doc.Checksum,
			Kind:       models.AnalysisEntities,
			Model:      o.modelName,
			ResultJSON: string(payload),
		}
		if err := o.cache.Store(ctx, result); err != nil {
			return err
		}
	}

	for i := range entities {
		entities[i].DocumentID = doc.ID
	}
	return o.store.ReplaceEntities(ctx, doc.ID, entities)
}

func (o *Orchestrator) engineEntities(ctx context.Context, doc *models.Document) ([]models.Entity, error) {
	var entities []models.Entity
	err := o.callEngine(ctx, "extract_entities", func(ctx context.Context) error {
		var callErr error
		entities, callErr = o.engine.ExtractEntities(ctx, doc.FullText)
		return callErr
	})
	return entities, err
}

// callEngine runs one engine operation under the concurrency bound,
// retrying timeouts and unavailability with exponential backoff.
// Malformed output is never retried, repeating the call cannot fix it.
func (o *Orchestrator) callEngine(ctx context.Context, operation string, fn func(context.Context) error) error {
	select {
	case o.engineSlots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-o.engineSlots }()

	backoff := o.retryBackoff
	var err error
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			o.recordInference(operation, "success")
			return nil
		}

		retryable := errors.Is(err, models.ErrInferenceTimeout) || errors.Is(err, models.ErrInferenceUnavailable)
		if !retryable {
			o.recordInference(operation, "malformed")
			return err
		}
		o.recordInference(operation, "retryable_error")

		if attempt == o.maxAttempts {
			break
		}
		logger.Warn("inference call failed, retrying",
			"operation", operation, "attempt", attempt, "backoff", backoff.String(), "error", err)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}

	o.recordInference(operation, "exhausted")
	return err
}

func (o *Orchestrator) recordInference(operation, outcome string) {
	if o.metrics != nil {
		o.metrics.RecordInferenceRequest(operation, outcome)
	}
}

// fail moves the document to failed with the cause. The failure itself
// is an expected outcome, so fail returns a nil error unless persisting
// the status change breaks.
func (o *Orchestrator) fail(ctx context.Context, doc *models.Document, cause error) (string, error) {
	reason := cause.Error()
	logger.Warn("document processing failed", "document_id", doc.ID, "reason", reason)

	if err := o.store.CompareAndSwapStatus(ctx, doc.ID, doc.Status, models.StatusFailed, reason); err != nil {
		return "", err
	}
	return models.StatusFailed, nil
}

// GetSummary serves the read path for summaries: cached when available,
// computed and cached on demand otherwise. The document must have
// extracted text.
func (o *Orchestrator) GetSummary(ctx context.Context, documentID string, level models.SummaryLevel) (*models.AnalysisResult, error) {
	doc, err := o.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.FullText == "" {
		return nil, fmt.Errorf("%w: no extracted text", models.ErrDocumentNotAnalyzed)
	}
	return o.summarize(ctx, doc, level)
}

// resolveEntitySpans locates entity values in the normalized text,
// attaching byte offsets and a context snippet. Values that cannot be
// found keep nil offsets. Matching is case-insensitive but offsets are
// always byte positions into the original text, never into a folded
// copy, so they stay valid for texts where folding changes byte length.
func resolveEntitySpans(text string, entities []models.Entity) []models.Entity {
	resolved := make([]models.Entity, 0, len(entities))

	for _, e := range entities {
		if e.Value != "" {
			if start, end, ok := foldIndex(text, e.Value); ok {
				e.StartIndex = &start
				e.EndIndex = &end
				e.Snippet = snippetAround(text, start, end, 80)
			}
		}
		if e.Snippet == "" {
			e.Snippet = capString(e.Value, 160)
		}
		resolved = append(resolved, e)
	}
	return resolved
}

// foldIndex finds the first case-insensitive occurrence of needle in
// text, returning byte offsets into text itself.
func foldIndex(text, needle string) (int, int, bool) {
	if needle == "" {
		return 0, 0, false
	}
	for i := 0; i < len(text); {
		if end, ok := foldMatchAt(text, i, needle); ok {
			return i, end, true
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
	}
	return 0, 0, false
}

func foldMatchAt(text string, start int, needle string) (int, bool) {
	i := start
	for j := 0; j < len(needle); {
		if i >= len(text) {
			return 0, false
		}
		tr, tn := utf8.DecodeRuneInString(text[i:])
		nr, nn := utf8.DecodeRuneInString(needle[j:])
		if tr != nr && unicode.ToLower(tr) != unicode.ToLower(nr) {
			return 0, false
		}
		i += tn
		j += nn
	}
	return i, true
}

func snippetAround(text string, start, end, radius int) string {
	from := start - radius
	if from < 0 {
		from = 0
	}
	to := end + radius
	if to > len(text) {
		to = len(text)
	}
	for from > 0 && !isRuneStart(text[from]) {
		from--
	}
	for to < len(text) && !isRuneStart(text[to]) {
		to++
	}
	return strings.TrimSpace(text[from:to])
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
