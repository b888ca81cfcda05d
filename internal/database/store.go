package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"document-intelligence-platform/models"
	"document-intelligence-platform/services"
	"document-intelligence-platform/utils"
)

// storedDocument is the persisted shape of a document. Full text is kept
// compressed; the store transparently hydrates models.Document.FullText.
type storedDocument struct {
	models.Document `bson:",inline"`
	CompressedText  []byte `bson:"compressed_text,omitempty"`
	Compression     string `bson:"compression,omitempty"`
}

// Store is the MongoDB persistence layer for documents, chunks, entities
// and analyses.
type Store struct {
	client    *mongo.Client
	documents *mongo.Collection
	chunks    *mongo.Collection
	entities  *mongo.Collection
	analyses  *mongo.Collection
}

func NewStore(client *mongo.Client, dbName string) *Store {
	db := client.Database(dbName)
	return &Store{
		client:    client,
		documents: db.Collection("documents"),
		chunks:    db.Collection("document_chunks"),
		entities:  db.Collection("document_entities"),
		analyses:  db.Collection("document_analyses"),
	}
}

// AnalysesCollection exposes the analyses collection for the cache layer.
func (s *Store) AnalysesCollection() *mongo.Collection {
	return s.analyses
}

func (s *Store) InsertDocument(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	now := time.Now()
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = now
	}
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = models.StatusUploaded
	}

	_, err := s.documents.InsertOne(ctx, storedDocument{Document: *doc})
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var stored storedDocument
	err := s.documents.FindOne(ctx, bson.M{"_id": id}).Decode(&stored)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return s.hydrate(&stored)
}

func (s *Store) hydrate(stored *storedDocument) (*models.Document, error) {
	doc := stored.Document
	if len(stored.CompressedText) > 0 {
		text, err := utils.DecompressText(stored.CompressedText, utils.CompressionAlgorithm(stored.Compression))
		if err != nil {
			return nil, fmt.Errorf("failed to decompress document text: %w", err)
		}
		doc.FullText = text
	}
	return &doc, nil
}

// ListDocuments returns documents newest first, without full text.
func (s *Store) ListDocuments(ctx context.Context, limit int64) ([]models.Document, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "uploaded_at", Value: -1}}).
		SetProjection(bson.M{"compressed_text": 0})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := s.documents.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *Store) CountDocuments(ctx context.Context) (int64, error) {
	return s.documents.CountDocuments(ctx, bson.M{})
}

// CountByStatus groups document counts by status for the dashboard.
func (s *Store) CountByStatus(ctx context.Context) (map[string]int64, error) {
	cursor, err := s.documents.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	counts := make(map[string]int64)
	for cursor.Next(ctx) {
		var row struct {
			Status string `bson:"_id"`
			Count  int64  `bson:"count"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		counts[row.Status] = row.Count
	}
	return counts, cursor.Err()
}

// NextVersionNumber returns the version the next upload in a group gets.
func (s *Store) NextVersionNumber(ctx context.Context, versionGroup string) (int, error) {
	opts := options.FindOne().
		SetSort(bson.D{{Key: "version_number", Value: -1}}).
		SetProjection(bson.M{"version_number": 1})

	var row struct {
		VersionNumber int `bson:"version_number"`
	}
	err := s.documents.FindOne(ctx, bson.M{"version_group": versionGroup}, opts).Decode(&row)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return row.VersionNumber + 1, nil
}

// LatestInGroup returns the newest version in a group, or nil.
func (s *Store) LatestInGroup(ctx context.Context, versionGroup string) (*models.Document, error) {
	opts := options.FindOne().
		SetSort(bson.D{{Key: "version_number", Value: -1}}).
		SetProjection(bson.M{"compressed_text": 0})

	var doc models.Document
	err := s.documents.FindOne(ctx, bson.M{"version_group": versionGroup}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindDuplicate looks for an existing document in the same version
// group with the same raw content. Identical bytes uploaded under a
// different group are a new document, not a duplicate.
func (s *Store) FindDuplicate(ctx context.Context, checksum, versionGroup string) (*models.Document, error) {
	opts := options.FindOne().SetProjection(bson.M{"compressed_text": 0})

	var doc models.Document
	err := s.documents.FindOne(ctx, bson.M{"checksum": checksum, "version_group": versionGroup}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListVersions returns all versions in a group, oldest first.
func (s *Store) ListVersions(ctx context.Context, versionGroup string) ([]models.Document, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "version_number", Value: 1}}).
		SetProjection(bson.M{"compressed_text": 0})

	cursor, err := s.documents.Find(ctx, bson.M{"version_group": versionGroup}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// CompareAndSwapStatus moves a document between statuses only when the
// transition is legal and the document is still in the expected status.
func (s *Store) CompareAndSwapStatus(ctx context.Context, id, from, to, reason string) error {
	if !models.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, from, to)
	}

	set := bson.M{
		"status":     to,
		"updated_at": time.Now(),
	}
	unset := bson.M{}
	if reason != "" {
		set["failure_reason"] = reason
	} else {
		unset["failure_reason"] = ""
	}
	if to == models.StatusComplete {
		set["processed_at"] = time.Now()
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	res, err := s.documents.UpdateOne(ctx, bson.M{"_id": id, "status": from}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		// Either the document is gone or someone else moved it first.
		if _, err := s.GetDocument(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: document %s no longer in %s", models.ErrInvalidTransition, id, from)
	}
	return nil
}

// SetParsed stores extraction output and replaces the document's chunks.
// Both writes happen in one transaction when the topology supports it.
func (s *Store) SetParsed(ctx context.Context, id string, res *services.ExtractionResult, chunks []models.Chunk) error {
	compressed, algorithm, err := utils.CompressText(res.Text)
	if err != nil {
		return fmt.Errorf("failed to compress document text: %w", err)
	}

	chunkDocs := make([]interface{}, 0, len(chunks))
	for _, ch := range chunks {
		ch.DocumentID = id
		if ch.ID == "" {
			ch.ID = uuid.New().String()
		}
		chunkDocs = append(chunkDocs, ch)
	}

	apply := func(ctx context.Context) error {
		update := bson.M{"$set": bson.M{
			"compressed_text": compressed,
			"compression":     string(algorithm),
			"checksum":        res.Checksum,
			"preview_text":    res.Preview,
			"char_count":      res.CharCount,
			"word_count":      res.WordCount,
			"chunk_count":     len(chunks),
			"updated_at":      time.Now(),
		}}
		if _, err := s.documents.UpdateOne(ctx, bson.M{"_id": id}, update); err != nil {
			return err
		}

		if _, err := s.chunks.DeleteMany(ctx, bson.M{"document_id": id}); err != nil {
			return err
		}
		if len(chunkDocs) > 0 {
			if _, err := s.chunks.InsertMany(ctx, chunkDocs); err != nil {
				return err
			}
		}
		return nil
	}

	return s.withTransaction(ctx, apply)
}

func (s *Store) ReplaceEntities(ctx context.Context, id string, entities []models.Entity) error {
	now := time.Now()
	entityDocs := make([]interface{}, 0, len(entities))
	for _, e := range entities {
		e.DocumentID = id
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		entityDocs = append(entityDocs, e)
	}

	apply := func(ctx context.Context) error {
		if _, err := s.entities.DeleteMany(ctx, bson.M{"document_id": id}); err != nil {
			return err
		}
		if len(entityDocs) > 0 {
			if _, err := s.entities.InsertMany(ctx, entityDocs); err != nil {
				return err
			}
		}
		return nil
	}

	return s.withTransaction(ctx, apply)
}

func (s *Store) ListChunks(ctx context.Context, documentID string) ([]models.Chunk, error) {
	opts := options.Find().SetSort(bson.D{{Key: "chunk_index", Value: 1}})
	cursor, err := s.chunks.Find(ctx, bson.M{"document_id": documentID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var chunks []models.Chunk
	if err := cursor.All(ctx, &chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

func (s *Store) ListEntities(ctx context.Context, documentID string) ([]models.Entity, error) {
	opts := options.Find().SetSort(bson.D{{Key: "entity_type", Value: 1}, {Key: "value", Value: 1}})
	cursor, err := s.entities.Find(ctx, bson.M{"document_id": documentID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entities []models.Entity
	if err := cursor.All(ctx, &entities); err != nil {
		return nil, err
	}
	return entities, nil
}

// GetDocuments fetches the subset of ids that exist, without full text.
func (s *Store) GetDocuments(ctx context.Context, ids []string) ([]models.Document, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "uploaded_at", Value: 1}}).
		SetProjection(bson.M{"compressed_text": 0})

	cursor, err := s.documents.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// LatestSummary returns the brief summary payload for a document.
func (s *Store) LatestSummary(ctx context.Context, documentID string) (*models.SummaryPayload, bool, error) {
	var result models.AnalysisResult
	err := s.analyses.FindOne(ctx, bson.M{
		"document_id": documentID,
		"kind":        models.AnalysisSummary,
		"params":      string(models.SummaryBrief),
	}).Decode(&result)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var payload models.SummaryPayload
	if err := json.Unmarshal([]byte(result.ResultJSON), &payload); err != nil {
		return nil, false, nil
	}
	return &payload, true, nil
}

// DeleteDocumentCascade removes a document and everything derived from
// it: chunks, entities and analyses.
func (s *Store) DeleteDocumentCascade(ctx context.Context, id string) error {
	apply := func(ctx context.Context) error {
		res, err := s.documents.DeleteOne(ctx, bson.M{"_id": id})
		if err != nil {
			return err
		}
		if res.DeletedCount == 0 {
			return fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
		}

		if _, err := s.chunks.DeleteMany(ctx, bson.M{"document_id": id}); err != nil {
			return err
		}
		if _, err := s.entities.DeleteMany(ctx, bson.M{"document_id": id}); err != nil {
			return err
		}
		if _, err := s.analyses.DeleteMany(ctx, bson.M{"document_id": id}); err != nil {
			return err
		}
		return nil
	}

	return s.withTransaction(ctx, apply)
}

func (s *Store) FindStuck(ctx context.Context, cutoff time.Time) ([]models.Document, error) {
	opts := options.Find().SetProjection(bson.M{"compressed_text": 0})
	filter := bson.M{
		"status":     bson.M{"$in": []string{models.StatusParsing, models.StatusAnalyzing}},
		"updated_at": bson.M{"$lt": cutoff},
	}

	cursor, err := s.documents.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *Store) ListFilePaths(ctx context.Context) (map[string]bool, error) {
	cursor, err := s.documents.Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"file_path": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	paths := make(map[string]bool)
	for cursor.Next(ctx) {
		var row struct {
			FilePath string `bson:"file_path"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		if row.FilePath != "" {
			paths[row.FilePath] = true
		}
	}
	return paths, cursor.Err()
}

// withTransaction runs apply inside a session transaction. Standalone
// Mongo deployments reject transactions; in that case the writes run
// sequentially, which is the best we can do there.
func (s *Store) withTransaction(ctx context.Context, apply func(context.Context) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return apply(ctx)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, apply(sc)
	})
	if err != nil && isTransactionUnsupported(err) {
		return apply(ctx)
	}
	return err
}

func isTransactionUnsupported(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code == 20 || cmdErr.HasErrorLabel("TransientTransactionError") && cmdErr.Code == 263
	}
	return false
}
