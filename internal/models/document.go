package models

import "time"

// DocumentStatus is the processing status of a library document.
type DocumentStatus string

const (
	DocumentStatusPending     DocumentStatus = "pending"
	DocumentStatusProcessing  DocumentStatus = "processing"
	DocumentStatusCompleted   DocumentStatus = "completed"
	DocumentStatusFailed      DocumentStatus = "failed"
	DocumentStatusNotRequired DocumentStatus = "not_required"
)

// DocumentFormat is the closed set of formats the pipeline understands.
type DocumentFormat string

const (
	FormatPDF      DocumentFormat = "pdf"
	FormatMarkdown DocumentFormat = "markdown"
)

// Document is the core's view of a library document record. The full schema
// is owned by the route/ORM layer; the pipeline reads and mutates only these
// fields.
type Document struct {
	ID           string         `json:"id" bson:"_id"`
	Title        string         `json:"title" bson:"title"`
	Description  string         `json:"description,omitempty" bson:"description,omitempty"`
	Format       DocumentFormat `json:"format" bson:"format"`
	BlobKey      string         `json:"blob_key" bson:"blob_key"`
	Status       DocumentStatus `json:"status" bson:"status"`
	ContentHash  string         `json:"content_hash,omitempty" bson:"content_hash,omitempty"`
	PageCount    int            `json:"page_count,omitempty" bson:"page_count,omitempty"`
	ThumbnailKey string         `json:"thumbnail_key,omitempty" bson:"thumbnail_key,omitempty"`
	SearchRef    string         `json:"search_ref,omitempty" bson:"search_ref,omitempty"`
	DuplicateOf  string         `json:"duplicate_of,omitempty" bson:"duplicate_of,omitempty"`
	MergedAt     *time.Time     `json:"merged_at,omitempty" bson:"merged_at,omitempty"`
	Tags         []string       `json:"tags,omitempty" bson:"tags,omitempty"`
	Campaigns    []string       `json:"campaigns,omitempty" bson:"campaigns,omitempty"`
	Collections  []string       `json:"collections,omitempty" bson:"collections,omitempty"`
	UploadedAt   time.Time      `json:"uploaded_at" bson:"uploaded_at"`
	UpdatedAt    time.Time      `json:"updated_at" bson:"updated_at"`
}

// ProcessingResults are the fields written back at the final pipeline stage.
type ProcessingResults struct {
	Status       DocumentStatus
	ContentHash  string
	PageCount    int
	ThumbnailKey string
	SearchRef    string
}

// Annotation is a viewer-created note anchored to a document position.
// Annotations are persisted before they are broadcast to a session.
type Annotation struct {
	ID         string    `json:"id" bson:"_id"`
	DocumentID string    `json:"document_id" bson:"document_id"`
	SessionID  string    `json:"session_id,omitempty" bson:"session_id,omitempty"`
	AuthorID   string    `json:"author_id" bson:"author_id"`
	Page       int       `json:"page" bson:"page"`
	Kind       string    `json:"kind" bson:"kind"`
	Content    string    `json:"content" bson:"content"`
	Color      string    `json:"color,omitempty" bson:"color,omitempty"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" bson:"updated_at"`
}

// ExtractedEntity is a structured content block discovered in document text,
// e.g. a recurring named stat block grouped by proximity.
type ExtractedEntity struct {
	ID         string            `json:"id,omitempty" bson:"_id,omitempty"`
	DocumentID string            `json:"document_id" bson:"document_id"`
	Name       string            `json:"name" bson:"name"`
	Category   string            `json:"category" bson:"category"`
	Attributes map[string]string `json:"attributes,omitempty" bson:"attributes,omitempty"`
	Page       int               `json:"page,omitempty" bson:"page,omitempty"`
	CreatedAt  time.Time         `json:"created_at" bson:"created_at"`
}
