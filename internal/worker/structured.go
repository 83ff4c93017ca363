package worker

import (
	"regexp"
	"strings"
	"time"

	"github.com/grimoire-app/app-library/internal/models"
)

// Structured-data extraction recognizes recurring content blocks in extracted
// text: a header naming an entity and its category, followed by adjacent
// attribute lines. Blocks are grouped by proximity, so a blank line ends the
// current block.

var (
	// "Ancient Red Dragon (Creature)" or "Blackstaff Tower (Location)"
	entityHeaderRe = regexp.MustCompile(`^([A-Z][\w'’ .-]{1,79})\s+\(([A-Za-z][A-Za-z ]{1,39})\)\s*$`)

	// "Armor Class: 22" or "Hit Points: 546 (28d20 + 252)"
	entityAttrRe = regexp.MustCompile(`^([A-Za-z][A-Za-z /]{0,39}):\s+(.{1,200})$`)
)

// minEntityAttrs is how many attribute lines a candidate block needs before
// it is kept; a lone "Name (Category)" line is prose, not data.
const minEntityAttrs = 2

// ExtractEntities scans document text for structured content blocks. Pages
// are delimited by form feeds; every returned entity carries the 1-based page
// it was found on.
func ExtractEntities(documentID, text string) []models.ExtractedEntity {
	now := time.Now()
	var entities []models.ExtractedEntity

	for pageIdx, pageText := range strings.Split(text, "\f") {
		page := pageIdx + 1
		var current *models.ExtractedEntity

		flush := func() {
			if current != nil && len(current.Attributes) >= minEntityAttrs {
				entities = append(entities, *current)
			}
			current = nil
		}

		for _, line := range strings.Split(pageText, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				flush()
				continue
			}

			if m := entityHeaderRe.FindStringSubmatch(line); m != nil {
				flush()
				current = &models.ExtractedEntity{
					DocumentID: documentID,
					Name:       strings.TrimSpace(m[1]),
					Category:   strings.ToLower(strings.TrimSpace(m[2])),
					Attributes: make(map[string]string),
					Page:       page,
					CreatedAt:  now,
				}
				continue
			}

			if current == nil {
				continue
			}
			if m := entityAttrRe.FindStringSubmatch(line); m != nil {
				current.Attributes[strings.TrimSpace(m[1])] = strings.TrimSpace(m[2])
			} else {
				// A non-attribute line breaks the proximity group.
				flush()
			}
		}
		flush()
	}
	return entities
}
