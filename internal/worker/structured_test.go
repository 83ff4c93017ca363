package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractEntities_GroupsByProximity(t *testing.T) {
	text := `Chapter 3: The Sunken Keep

Ancient Red Dragon (Creature)
Armor Class: 22
Hit Points: 546
Speed: 40 ft., fly 80 ft.

The dragon sleeps beneath the keep.

Blackstaff Tower (Location)
Region: Waterdeep
Inhabitants: wizards
`

	entities := ExtractEntities("doc-1", text)
	require.Len(t, entities, 2)

	dragon := entities[0]
	assert.Equal(t, "doc-1", dragon.DocumentID)
	assert.Equal(t, "Ancient Red Dragon", dragon.Name)
	assert.Equal(t, "creature", dragon.Category)
	assert.Equal(t, "22", dragon.Attributes["Armor Class"])
	assert.Equal(t, "546", dragon.Attributes["Hit Points"])
	assert.Equal(t, 1, dragon.Page)

	tower := entities[1]
	assert.Equal(t, "Blackstaff Tower", tower.Name)
	assert.Equal(t, "location", tower.Category)
	assert.Equal(t, "Waterdeep", tower.Attributes["Region"])
}

func TestExtractEntities_RequiresMinimumAttributes(t *testing.T) {
	text := `Gundren Rockseeker (Person)
Occupation: guide

Plain prose mentioning Something (Else) inline does not count.
`
	entities := ExtractEntities("doc-1", text)
	assert.Empty(t, entities, "a single attribute line is prose, not a stat block")
}

func TestExtractEntities_PageTracking(t *testing.T) {
	text := "filler page one\fsecond page\n\nOwlbear (Creature)\nArmor Class: 13\nHit Points: 59\n"

	entities := ExtractEntities("doc-1", text)
	require.Len(t, entities, 1)
	assert.Equal(t, 2, entities[0].Page)
}

func TestExtractEntities_BlockEndsOnProse(t *testing.T) {
	text := `Owlbear (Creature)
Armor Class: 13
Hit Points: 59
A monstrous cross between owl and bear.
Claws: sharp
`
	entities := ExtractEntities("doc-1", text)
	require.Len(t, entities, 1)
	// The prose line breaks the group; trailing attributes are not attached.
	assert.NotContains(t, entities[0].Attributes, "Claws")
}

func TestExtractEntities_EmptyText(t *testing.T) {
	assert.Empty(t, ExtractEntities("doc-1", ""))
}
