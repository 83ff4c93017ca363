package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grimoire-app/app-library/internal/blob"
	"github.com/grimoire-app/app-library/internal/models"
	"github.com/grimoire-app/app-library/internal/queue"
)

// flakyBlobStore fails the first n downloads with a transient error.
type flakyBlobStore struct {
	*blob.MemoryStore
	mu       sync.Mutex
	failures int
}

func (s *flakyBlobStore) Download(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return nil, errors.New("connection reset")
	}
	s.mu.Unlock()
	return s.MemoryStore.Download(ctx, key)
}

func waitForState(t *testing.T, q *queue.Queue, jobID string, state models.JobState) *models.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := q.Get(context.Background(), jobID)
		require.NoError(t, err)
		if job.State == state {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached state %s", jobID, state)
	return nil
}

// Two byte-identical uploads processed end to end: the first completes
// normally, the second short-circuits as a duplicate and is never indexed.
func TestPool_EndToEndDuplicateDetection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	content := []byte(sampleMarkdown)
	docA := &models.Document{
		ID: "doc-a", Format: models.FormatMarkdown, BlobKey: "uploads/a.md",
		Tags: []string{"lore"}, UploadedAt: time.Now().Add(-time.Minute),
	}
	docB := &models.Document{
		ID: "doc-b", Format: models.FormatMarkdown, BlobKey: "uploads/b.md",
		Tags: []string{"maps"}, UploadedAt: time.Now(),
	}

	f := newPipelineFixture(t, 5, docA, docB)
	require.NoError(t, f.blobs.Upload(ctx, docA.BlobKey, content, "text/markdown"))
	require.NoError(t, f.blobs.Upload(ctx, docB.BlobKey, content, "text/markdown"))

	q := queue.New(queue.NewMemoryStore(), 3, time.Millisecond, nil)
	pool := NewPool(q, f.pipe, 2, 5*time.Millisecond, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		pool.Run(ctx)
	}()

	jobA, err := q.Enqueue(ctx, models.JobTypeProcessDocument, "doc-a")
	require.NoError(t, err)
	waitForState(t, q, jobA.ID, models.JobStateCompleted)

	jobB, err := q.Enqueue(ctx, models.JobTypeProcessDocument, "doc-b")
	require.NoError(t, err)
	waitForState(t, q, jobB.ID, models.JobStateCompleted)

	cancel()
	<-done

	assert.Equal(t, models.DocumentStatusCompleted, f.docs.docs["doc-a"].Status)
	assert.Equal(t, models.DocumentStatusCompleted, f.docs.docs["doc-b"].Status)
	assert.Equal(t, "doc-a", f.docs.docs["doc-b"].DuplicateOf)
	assert.ElementsMatch(t, []string{"lore", "maps"}, f.docs.docs["doc-a"].Tags)
	assert.Equal(t, 1, f.index.indexCalls, "the duplicate must not be indexed again")
}

// A transient blob failure consumes attempts and succeeds once the backend
// recovers, going through the delayed-retry path.
func TestPool_TransientFailureRetriesToSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	doc := &models.Document{ID: "doc-1", Format: models.FormatMarkdown, BlobKey: "uploads/doc.md"}
	f := newPipelineFixture(t, 5, doc)
	require.NoError(t, f.blobs.Upload(ctx, doc.BlobKey, []byte(sampleMarkdown), "text/markdown"))

	flaky := &flakyBlobStore{MemoryStore: f.blobs, failures: 2}
	f.pipe.blobs = flaky

	q := queue.New(queue.NewMemoryStore(), 3, time.Millisecond, nil)
	pool := NewPool(q, f.pipe, 1, 5*time.Millisecond, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		pool.Run(ctx)
	}()
	// Promote delayed retries the way the maintenance loop would.
	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				q.PromoteDue(ctx)
			}
		}
	}()

	job, err := q.Enqueue(ctx, models.JobTypeProcessDocument, "doc-1")
	require.NoError(t, err)
	got := waitForState(t, q, job.ID, models.JobStateCompleted)

	cancel()
	<-done

	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, models.DocumentStatusCompleted, f.docs.docs["doc-1"].Status)
}

// Exhausting the attempt budget dead-letters the job.
func TestPool_ExhaustedAttemptsDeadLetter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	doc := &models.Document{ID: "doc-1", Format: models.FormatMarkdown, BlobKey: "uploads/missing.md"}
	f := newPipelineFixture(t, 5, doc)

	q := queue.New(queue.NewMemoryStore(), 3, time.Millisecond, nil)
	pool := NewPool(q, f.pipe, 1, 5*time.Millisecond, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		pool.Run(ctx)
	}()
	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				q.PromoteDue(ctx)
			}
		}
	}()

	job, err := q.Enqueue(ctx, models.JobTypeProcessDocument, "doc-1")
	require.NoError(t, err)
	got := waitForState(t, q, job.ID, models.JobStateFailed)

	cancel()
	<-done

	assert.True(t, got.Terminal)
	assert.Equal(t, 3, got.Attempts)
	assert.NotEmpty(t, got.LastError)

	// The per-attempt decisions are all in the processing log.
	entries, err := f.sink.Read(context.Background(), job.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}
