package joblog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grimoire-app/app-library/internal/models"
)

func TestMemorySink_AppendAndReadOldestFirst(t *testing.T) {
	ctx := context.Background()
	sink := NewMemorySink()

	steps := []string{"fetch", "fingerprint", "extract"}
	for _, step := range steps {
		err := sink.Append(ctx, "job-1", models.LogEntry{
			Timestamp: time.Now(),
			Level:     models.LogLevelInfo,
			Step:      step,
			Message:   step + " done",
		})
		require.NoError(t, err)
	}

	entries, err := sink.Read(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, step := range steps {
		assert.Equal(t, step, entries[i].Step)
	}
}

func TestMemorySink_StreamsAreIsolatedPerJob(t *testing.T) {
	ctx := context.Background()
	sink := NewMemorySink()

	require.NoError(t, sink.Append(ctx, "job-a", models.LogEntry{Message: "a"}))
	require.NoError(t, sink.Append(ctx, "job-b", models.LogEntry{Message: "b"}))

	entries, err := sink.Read(ctx, "job-a")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].Message)
}

func TestMemorySink_Clear(t *testing.T) {
	ctx := context.Background()
	sink := NewMemorySink()

	require.NoError(t, sink.Append(ctx, "job-1", models.LogEntry{Message: "x"}))
	require.NoError(t, sink.Clear(ctx, "job-1"))

	entries, err := sink.Read(ctx, "job-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
