package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"document-intelligence-platform/internal/logger"
	"document-intelligence-platform/internal/telemetry"
	"document-intelligence-platform/models"
)

// AnalysisCache stores analysis results keyed two ways: by
// (document_id, kind, params) for retrieval and by
// (checksum, kind, params) for reuse across byte-identical documents.
type AnalysisCache interface {
	// Lookup finds a result for any document with the same content
	// checksum, kind and params.
	Lookup(ctx context.Context, checksum, kind, params string) (*models.AnalysisResult, bool, error)

	// Get finds the stored result for a specific document.
	Get(ctx context.Context, documentID, kind, params string) (*models.AnalysisResult, bool, error)

	// Store upserts a result row for the result's document.
	Store(ctx context.Context, result *models.AnalysisResult) error

	// Invalidate drops all rows for a document.
	Invalidate(ctx context.Context, documentID string) error
}

// MongoAnalysisCache is the durable cache over the document_analyses
// collection, with an optional Redis hot layer in front. Redis failures
// are logged and ignored; the cache fails open to Mongo.
type MongoAnalysisCache struct {
	collection *mongo.Collection
	redis      *redis.Client
	ttl        time.Duration
	metrics    *telemetry.Metrics
}

func NewMongoAnalysisCache(collection *mongo.Collection, rdb *redis.Client, ttl time.Duration, metrics *telemetry.Metrics) *MongoAnalysisCache {
	return &MongoAnalysisCache{
		collection: collection,
		redis:      rdb,
		ttl:        ttl,
		metrics:    metrics,
	}
}

func redisKey(checksum, kind, params string) string {
	return fmt.Sprintf("analysis:%s:%s:%s", checksum, kind, params)
}

func (c *MongoAnalysisCache) Lookup(ctx context.Context, checksum, kind, params string) (*models.AnalysisResult, bool, error) {
	if c.redis != nil {
		if raw, err := c.redis.Get(ctx, redisKey(checksum, kind, params)).Bytes(); err == nil {
			var result models.AnalysisResult
			if err := json.Unmarshal(raw, &result); err == nil {
				c.recordLookup(kind, true)
				result.FromCache = true
				return &result, true, nil
			}
		}
	}

	var result models.AnalysisResult
	err := c.collection.FindOne(ctx, bson.M{
		"checksum": checksum,
		"kind":     kind,
		"params":   params,
	}).Decode(&result)
	if errors.Is(err, mongo.ErrNoDocuments) {
		c.recordLookup(kind, false)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	c.recordLookup(kind, true)
	c.warmRedis(ctx, &result)
	result.FromCache = true
	return &result, true, nil
}

func (c *MongoAnalysisCache) Get(ctx context.Context, documentID, kind, params string) (*models.AnalysisResult, bool, error) {
	var result models.AnalysisResult
	err := c.collection.FindOne(ctx, bson.M{
		"document_id": documentID,
		"kind":        kind,
		"params":      params,
	}).Decode(&result)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &result, true, nil
}

func (c *MongoAnalysisCache) Store(ctx context.Context, result *models.AnalysisResult) error {
	if result.ID == "" {
		result.ID = uuid.New().String()
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now()
	}

	filter := bson.M{
		"document_id": result.DocumentID,
		"kind":        result.Kind,
		"params":      result.Params,
	}
	update := bson.M{"$set": bson.M{
		"checksum":    result.Checksum,
		"model":       result.Model,
		"result_json": result.ResultJSON,
		"created_at":  result.CreatedAt,
	}, "$setOnInsert": bson.M{"_id": result.ID}}

	_, err := c.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to store analysis result: %w", err)
	}

	c.warmRedis(ctx, result)
	return nil
}

func (c *MongoAnalysisCache) Invalidate(ctx context.Context, documentID string) error {
	_, err := c.collection.DeleteMany(ctx, bson.M{"document_id": documentID})
	return err
}

func (c *MongoAnalysisCache) warmRedis(ctx context.Context, result *models.AnalysisResult) {
	if c.redis == nil || result.Checksum == "" {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, redisKey(result.Checksum, result.Kind, result.Params), raw, c.ttl).Err(); err != nil {
		logger.Debug("redis cache write failed", "error", err)
	}
}

func (c *MongoAnalysisCache) recordLookup(kind string, hit bool) {
	if c.metrics != nil {
		c.metrics.RecordCacheLookup(kind, hit)
	}
}

// MemoryAnalysisCache is a process-local cache used in tests and when
// running without Mongo.
type MemoryAnalysisCache struct {
	mu         sync.RWMutex
	byDocument map[string]*models.AnalysisResult
	byChecksum map[string]*models.AnalysisResult
}

func NewMemoryAnalysisCache() *MemoryAnalysisCache {
	return &MemoryAnalysisCache{
		byDocument: make(map[string]*models.AnalysisResult),
		byChecksum: make(map[string]*models.AnalysisResult),
	}
}

func memDocKey(documentID, kind, params string) string {
	return documentID + "|" + kind + "|" + params
}

func (c *MemoryAnalysisCache) Lookup(_ context.Context, checksum, kind, params string) (*models.AnalysisResult, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if r, ok := c.byChecksum[memDocKey(checksum, kind, params)]; ok {
		copied := *r
		copied.FromCache = true
		return &copied, true, nil
	}
	return nil, false, nil
}

func (c *MemoryAnalysisCache) Get(_ context.Context, documentID, kind, params string) (*models.AnalysisResult, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if r, ok := c.byDocument[memDocKey(documentID, kind, params)]; ok {
		copied := *r
		return &copied, true, nil
	}
	return nil, false, nil
}

func (c *MemoryAnalysisCache) Store(_ context.Context, result *models.AnalysisResult) error {
	if result.ID == "" {
		result.ID = uuid.New().String()
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	copied := *result
	c.byDocument[memDocKey(result.DocumentID, result.Kind, result.Params)] = &copied
	if result.Checksum != "" {
		c.byChecksum[memDocKey(result.Checksum, result.Kind, result.Params)] = &copied
	}
	return nil
}

func (c *MemoryAnalysisCache) Invalidate(_ context.Context, documentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, r := range c.byDocument {
		if r.DocumentID == documentID {
			delete(c.byDocument, key)
		}
	}
	return nil
}
