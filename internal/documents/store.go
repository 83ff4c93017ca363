package documents

import (
	"context"
	"time"

	"github.com/grimoire-app/app-library/internal/models"
)

// Store is the document metadata store consumed by the processing pipeline
// and the duplicate resolver. The relational/route layer owns the full
// document schema; this interface covers only the fields the core mutates.
type Store interface {
	Get(ctx context.Context, id string) (*models.Document, error)
	UpdateStatus(ctx context.Context, id string, status models.DocumentStatus) error
	SetProcessingResults(ctx context.Context, id string, res models.ProcessingResults) error
	FindByHash(ctx context.Context, hash, excludeID string) (*models.Document, error)
	MergeMetadata(ctx context.Context, id string, tags, campaigns, collections []string) error
	MarkDuplicate(ctx context.Context, id, primaryID string, mergedAt time.Time) error
	SaveEntities(ctx context.Context, documentID string, entities []models.ExtractedEntity) error
}

// AnnotationStore persists viewer annotations. The gateway writes annotations
// here before broadcasting them to a session.
type AnnotationStore interface {
	CreateAnnotation(ctx context.Context, a *models.Annotation) error
	UpdateAnnotation(ctx context.Context, a *models.Annotation) error
	DeleteAnnotation(ctx context.Context, id string) error
}
