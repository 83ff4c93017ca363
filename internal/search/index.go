package search

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is the searchable projection of a document. Full content is indexed
// alongside metadata so results can match body text, not just titles.
type Entry struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Content     string    `json:"content"`
	Tags        []string  `json:"tags,omitempty"`
	Format      string    `json:"format"`
	Campaigns   []string  `json:"campaigns,omitempty"`
	Collections []string  `json:"collections,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// Index is the search backend. Indexing the same document id again replaces
// its previous entry.
type Index interface {
	// Index upserts the document's entry and returns the backend reference
	// stored on the document record.
	Index(ctx context.Context, documentID string, entry Entry) (string, error)

	// Delete removes an entry by its backend reference. Deleting an unknown
	// reference is a no-op.
	Delete(ctx context.Context, ref string) error
}

// MemoryIndex is an in-process Index for tests and local development.
type MemoryIndex struct {
	mu      sync.Mutex
	entries map[string]Entry  // ref -> entry
	byDoc   map[string]string // document id -> ref
}

// NewMemoryIndex creates an empty in-process index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		entries: make(map[string]Entry),
		byDoc:   make(map[string]string),
	}
}

// Index upserts the document's entry, reusing its existing reference.
func (i *MemoryIndex) Index(ctx context.Context, documentID string, entry Entry) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	ref, ok := i.byDoc[documentID]
	if !ok {
		ref = uuid.NewString()
		i.byDoc[documentID] = ref
	}
	i.entries[ref] = entry
	return ref, nil
}

// Delete removes an entry by reference.
func (i *MemoryIndex) Delete(ctx context.Context, ref string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	delete(i.entries, ref)
	for docID, r := range i.byDoc {
		if r == ref {
			delete(i.byDoc, docID)
			break
		}
	}
	return nil
}

// Get returns the entry stored under ref, used by tests to assert on what
// was indexed.
func (i *MemoryIndex) Get(ref string) (Entry, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	entry, ok := i.entries[ref]
	return entry, ok
}
