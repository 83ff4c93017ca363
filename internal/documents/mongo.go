package documents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/grimoire-app/app-library/internal/logging"
	"github.com/grimoire-app/app-library/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoStore implements Store and AnnotationStore over MongoDB collections.
type MongoStore struct {
	documents   *mongo.Collection
	annotations *mongo.Collection
	entities    *mongo.Collection
	logger      *logging.SafeLogger
}

// NewMongoStore creates a document store over the given database and ensures
// the indexes the core relies on.
func NewMongoStore(db *mongo.Database, documentCol, annotationCol, entityCol string, logger *logging.SafeLogger) (*MongoStore, error) {
	s := &MongoStore{
		documents:   db.Collection(documentCol),
		annotations: db.Collection(annotationCol),
		entities:    db.Collection(entityCol),
		logger:      logger,
	}
	if err := s.ensureIndexes(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// ensureIndexes creates required indexes if they don't exist
func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	docIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "content_hash", Value: 1}, {Key: "uploaded_at", Value: 1}},
			Options: options.Index().SetName("content_hash_1_uploaded_at_1"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}},
			Options: options.Index().SetName("status_1"),
		},
	}
	if _, err := s.documents.Indexes().CreateMany(ctx, docIndexes); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			s.logger.Info("document indexes already exist (created by another instance)")
		} else {
			s.logger.Error("failed to create document indexes", zap.Error(err))
			return err
		}
	}

	entityIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "document_id", Value: 1}},
			Options: options.Index().SetName("document_id_1"),
		},
	}
	if _, err := s.entities.Indexes().CreateMany(ctx, entityIndexes); err != nil && !mongo.IsDuplicateKeyError(err) {
		s.logger.Error("failed to create entity indexes", zap.Error(err))
		return err
	}

	annotationIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "document_id", Value: 1}, {Key: "page", Value: 1}},
			Options: options.Index().SetName("document_id_1_page_1"),
		},
	}
	if _, err := s.annotations.Indexes().CreateMany(ctx, annotationIndexes); err != nil && !mongo.IsDuplicateKeyError(err) {
		s.logger.Error("failed to create annotation indexes", zap.Error(err))
		return err
	}

	return nil
}

// Get fetches a document record by id.
func (s *MongoStore) Get(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	err := s.documents.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to fetch document %s: %w", id, err)
	}
	return &doc, nil
}

// UpdateStatus sets the processing status of a document.
func (s *MongoStore) UpdateStatus(ctx context.Context, id string, status models.DocumentStatus) error {
	res, err := s.documents.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"status": status, "updated_at": time.Now()},
	})
	if err != nil {
		return fmt.Errorf("failed to update status of document %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return models.ErrDocumentNotFound
	}
	return nil
}

// SetProcessingResults writes back the final pipeline results.
func (s *MongoStore) SetProcessingResults(ctx context.Context, id string, r models.ProcessingResults) error {
	set := bson.M{
		"status":       r.Status,
		"content_hash": r.ContentHash,
		"updated_at":   time.Now(),
	}
	if r.PageCount > 0 {
		set["page_count"] = r.PageCount
	}
	if r.ThumbnailKey != "" {
		set["thumbnail_key"] = r.ThumbnailKey
	}
	if r.SearchRef != "" {
		set["search_ref"] = r.SearchRef
	}

	res, err := s.documents.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to write processing results for document %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return models.ErrDocumentNotFound
	}
	return nil
}

// FindByHash returns the earliest-uploaded document other than excludeID with
// the given content hash, or nil when there is no match.
func (s *MongoStore) FindByHash(ctx context.Context, hash, excludeID string) (*models.Document, error) {
	filter := bson.M{
		"content_hash": hash,
		"_id":          bson.M{"$ne": excludeID},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "uploaded_at", Value: 1}})

	var doc models.Document
	err := s.documents.FindOne(ctx, filter, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query documents by hash: %w", err)
	}
	return &doc, nil
}

// MergeMetadata replaces the set-valued metadata fields of a document with
// the given unions.
func (s *MongoStore) MergeMetadata(ctx context.Context, id string, tags, campaigns, collections []string) error {
	res, err := s.documents.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"tags":        tags,
			"campaigns":   campaigns,
			"collections": collections,
			"updated_at":  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to merge metadata into document %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return models.ErrDocumentNotFound
	}
	return nil
}

// MarkDuplicate flags a document as a duplicate of primaryID. The record is
// kept; only the back-reference and merge timestamp are written.
func (s *MongoStore) MarkDuplicate(ctx context.Context, id, primaryID string, mergedAt time.Time) error {
	res, err := s.documents.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"duplicate_of": primaryID,
			"merged_at":    mergedAt,
			"updated_at":   time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to flag document %s as duplicate: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return models.ErrDocumentNotFound
	}
	return nil
}

// SaveEntities replaces the structured entities extracted from a document.
// Re-processing the same document overwrites its previous entities rather
// than appending a second copy.
func (s *MongoStore) SaveEntities(ctx context.Context, documentID string, entities []models.ExtractedEntity) error {
	if _, err := s.entities.DeleteMany(ctx, bson.M{"document_id": documentID}); err != nil {
		return fmt.Errorf("failed to clear previous entities for document %s: %w", documentID, err)
	}
	if len(entities) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(entities))
	now := time.Now()
	for i := range entities {
		entities[i].DocumentID = documentID
		entities[i].CreatedAt = now
		docs = append(docs, entities[i])
	}
	if _, err := s.entities.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to persist entities for document %s: %w", documentID, err)
	}
	return nil
}

// CreateAnnotation inserts a new annotation record.
func (s *MongoStore) CreateAnnotation(ctx context.Context, a *models.Annotation) error {
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now
	if _, err := s.annotations.InsertOne(ctx, a); err != nil {
		return fmt.Errorf("failed to insert annotation: %w", err)
	}
	return nil
}

// UpdateAnnotation replaces the mutable fields of an annotation.
func (s *MongoStore) UpdateAnnotation(ctx context.Context, a *models.Annotation) error {
	a.UpdatedAt = time.Now()
	res, err := s.annotations.UpdateOne(ctx, bson.M{"_id": a.ID}, bson.M{
		"$set": bson.M{
			"page":       a.Page,
			"kind":       a.Kind,
			"content":    a.Content,
			"color":      a.Color,
			"updated_at": a.UpdatedAt,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to update annotation %s: %w", a.ID, err)
	}
	if res.MatchedCount == 0 {
		return models.ErrDocumentNotFound
	}
	return nil
}

// DeleteAnnotation removes an annotation record.
func (s *MongoStore) DeleteAnnotation(ctx context.Context, id string) error {
	if _, err := s.annotations.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete annotation %s: %w", id, err)
	}
	return nil
}
