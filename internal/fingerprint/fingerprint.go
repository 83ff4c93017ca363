package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/grimoire-app/app-library/internal/logging"
	"github.com/grimoire-app/app-library/internal/models"
	"go.uber.org/zap"
)

// Fingerprint computes the stable content hash of raw document bytes.
// Byte-identical uploads always produce the same hash.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DocumentStore is the slice of the document metadata store the resolver needs.
type DocumentStore interface {
	Get(ctx context.Context, id string) (*models.Document, error)
	FindByHash(ctx context.Context, hash, excludeID string) (*models.Document, error)
	MergeMetadata(ctx context.Context, id string, tags, campaigns, collections []string) error
	MarkDuplicate(ctx context.Context, id, primaryID string, mergedAt time.Time) error
}

// Resolver detects and merges byte-identical duplicate uploads.
type Resolver struct {
	docs   DocumentStore
	logger *logging.SafeLogger
}

// NewResolver creates a duplicate resolver over the given document store.
func NewResolver(docs DocumentStore, logger *logging.SafeLogger) *Resolver {
	return &Resolver{docs: docs, logger: logger}
}

// FindDuplicate returns the id of the earliest-uploaded document other than
// excludeID whose content hash matches, or "" when there is none.
func (r *Resolver) FindDuplicate(ctx context.Context, hash, excludeID string) (string, error) {
	doc, err := r.docs.FindByHash(ctx, hash, excludeID)
	if err != nil {
		return "", fmt.Errorf("failed to query stored hashes: %w", err)
	}
	if doc == nil {
		return "", nil
	}
	return doc.ID, nil
}

// MergeDuplicates unions the set-valued metadata of all named documents into
// the primary and flags each duplicate with a back-reference to the primary.
// Duplicate records are never deleted; their content and storage location are
// untouched.
func (r *Resolver) MergeDuplicates(ctx context.Context, primaryID string, duplicateIDs []string) error {
	primary, err := r.docs.Get(ctx, primaryID)
	if err != nil {
		return err
	}

	tags := append([]string(nil), primary.Tags...)
	campaigns := append([]string(nil), primary.Campaigns...)
	collections := append([]string(nil), primary.Collections...)

	mergedAt := time.Now()
	for _, dupID := range duplicateIDs {
		dup, err := r.docs.Get(ctx, dupID)
		if err != nil {
			// A missing duplicate is skipped, not fatal; only the primary
			// is required to resolve.
			r.logger.Warn("skipping unresolvable duplicate during merge",
				zap.String("primary_id", primaryID),
				zap.String("duplicate_id", dupID),
				zap.Error(err))
			continue
		}

		tags = unionInto(tags, dup.Tags)
		campaigns = unionInto(campaigns, dup.Campaigns)
		collections = unionInto(collections, dup.Collections)

		if err := r.docs.MarkDuplicate(ctx, dupID, primaryID, mergedAt); err != nil {
			return fmt.Errorf("failed to flag duplicate %s: %w", dupID, err)
		}
	}

	if err := r.docs.MergeMetadata(ctx, primaryID, tags, campaigns, collections); err != nil {
		return fmt.Errorf("failed to merge metadata into primary %s: %w", primaryID, err)
	}

	r.logger.Info("merged duplicate documents",
		zap.String("primary_id", primaryID),
		zap.Int("duplicate_count", len(duplicateIDs)))
	return nil
}

// unionInto appends members of add that are not already present in base,
// preserving order.
func unionInto(base, add []string) []string {
	seen := make(map[string]struct{}, len(base))
	for _, v := range base {
		seen[v] = struct{}{}
	}
	for _, v := range add {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			base = append(base, v)
		}
	}
	return base
}
