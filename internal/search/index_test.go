package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIndex_UpsertReusesReference(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	ref, err := idx.Index(ctx, "doc-1", Entry{Title: "Bestiary", Content: "owlbear"})
	require.NoError(t, err)
	require.NotEmpty(t, ref)

	again, err := idx.Index(ctx, "doc-1", Entry{Title: "Bestiary v2", Content: "owlbear, revised"})
	require.NoError(t, err)
	assert.Equal(t, ref, again, "reindexing must not mint a new reference")

	entry, ok := idx.Get(ref)
	require.True(t, ok)
	assert.Equal(t, "Bestiary v2", entry.Title)
}

func TestMemoryIndex_Delete(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	ref, err := idx.Index(ctx, "doc-1", Entry{Title: "Bestiary"})
	require.NoError(t, err)
	require.NoError(t, idx.Delete(ctx, ref))

	_, ok := idx.Get(ref)
	assert.False(t, ok)

	// Unknown references are silent no-ops.
	assert.NoError(t, idx.Delete(ctx, "ghost"))

	// After deletion the document gets a fresh reference.
	fresh, err := idx.Index(ctx, "doc-1", Entry{Title: "Bestiary"})
	require.NoError(t, err)
	assert.NotEqual(t, ref, fresh)
}
