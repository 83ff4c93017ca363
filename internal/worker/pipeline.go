package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/grimoire-app/app-library/internal/blob"
	"github.com/grimoire-app/app-library/internal/documents"
	"github.com/grimoire-app/app-library/internal/fingerprint"
	"github.com/grimoire-app/app-library/internal/joblog"
	"github.com/grimoire-app/app-library/internal/logging"
	"github.com/grimoire-app/app-library/internal/models"
	"github.com/grimoire-app/app-library/internal/observability"
	"github.com/grimoire-app/app-library/internal/search"
)

// Pipeline stage names, in execution order.
const (
	stageFetch       = "fetch"
	stageFingerprint = "fingerprint"
	stageExtract     = "extract"
	stageThumbnail   = "thumbnail"
	stageIndex       = "index"
	stageEntities    = "entities"
	stageFinalize    = "finalize"
)

// Pipeline executes the ordered document-processing stages for one job.
// Stage failures abort the remaining stages; the returned error carries the
// retry classification for the queue's failure handler.
type Pipeline struct {
	docs       documents.Store
	blobs      blob.Store
	index      search.Index
	resolver   *fingerprint.Resolver
	logs       joblog.Sink
	extractors ExtractorSet
	thumbnail  Thumbnailer

	// Documents whose extracted text falls below this word count are treated
	// as image-based scans and parked as pending OCR instead of failing.
	textThreshold int

	logger *logging.SafeLogger
}

// NewPipeline assembles a pipeline over its collaborators.
func NewPipeline(
	docs documents.Store,
	blobs blob.Store,
	index search.Index,
	resolver *fingerprint.Resolver,
	logs joblog.Sink,
	extractors ExtractorSet,
	thumbnail Thumbnailer,
	textThreshold int,
	logger *logging.SafeLogger,
) *Pipeline {
	return &Pipeline{
		docs:          docs,
		blobs:         blobs,
		index:         index,
		resolver:      resolver,
		logs:          logs,
		extractors:    extractors,
		thumbnail:     thumbnail,
		textThreshold: textThreshold,
		logger:        logger,
	}
}

// Run processes one leased job end to end. A nil return means the job should
// be completed; duplicate detection is a success path, not an error.
func (p *Pipeline) Run(ctx context.Context, job *models.Job) error {
	// Stage 1: fetch metadata and raw bytes. Only a missing record is
	// permanent; a store outage must come back as transient so the job
	// rides the backoff schedule instead of dead-lettering.
	start := time.Now()
	doc, err := p.docs.Get(ctx, job.DocumentID)
	if err != nil {
		p.observe(stageFetch, start, err)
		if errors.Is(err, models.ErrDocumentNotFound) {
			p.appendLog(ctx, job.ID, models.LogLevelError, stageFetch, "document record not found", nil)
			return models.NewPermanentError(stageFetch, err)
		}
		p.appendLog(ctx, job.ID, models.LogLevelError, stageFetch, "failed to load document record",
			map[string]interface{}{"error": err.Error()})
		return models.NewTransientError(stageFetch, err)
	}
	if err := p.docs.UpdateStatus(ctx, doc.ID, models.DocumentStatusProcessing); err != nil {
		p.observe(stageFetch, start, err)
		return models.NewTransientError(stageFetch, err)
	}
	data, err := p.blobs.Download(ctx, doc.BlobKey)
	p.observe(stageFetch, start, err)
	if err != nil {
		p.appendLog(ctx, job.ID, models.LogLevelError, stageFetch, "failed to download document bytes",
			map[string]interface{}{"blob_key": doc.BlobKey, "error": err.Error()})
		return models.NewTransientError(stageFetch, err)
	}
	p.appendLog(ctx, job.ID, models.LogLevelInfo, stageFetch, "fetched document",
		map[string]interface{}{"blob_key": doc.BlobKey, "bytes": len(data), "format": string(doc.Format)})

	// Stage 2: fingerprint and duplicate check. A byte-identical earlier
	// upload short-circuits the rest of the pipeline as a completed duplicate,
	// which is also what makes re-processing idempotent.
	start = time.Now()
	hash := fingerprint.Fingerprint(data)
	primaryID, err := p.resolver.FindDuplicate(ctx, hash, doc.ID)
	if err != nil {
		p.observe(stageFingerprint, start, err)
		return models.NewTransientError(stageFingerprint, err)
	}
	if primaryID != "" {
		if err := p.resolver.MergeDuplicates(ctx, primaryID, []string{doc.ID}); err != nil {
			p.observe(stageFingerprint, start, err)
			return models.NewTransientError(stageFingerprint, err)
		}
		err = p.docs.SetProcessingResults(ctx, doc.ID, models.ProcessingResults{
			Status:      models.DocumentStatusCompleted,
			ContentHash: hash,
		})
		p.observe(stageFingerprint, start, err)
		if err != nil {
			return models.NewTransientError(stageFingerprint, err)
		}

		observability.DuplicatesDetected.Inc()
		p.appendLog(ctx, job.ID, models.LogLevelInfo, stageFingerprint, "duplicate content detected, merged into primary",
			map[string]interface{}{"primary_id": primaryID, "content_hash": hash})
		p.logger.Info("duplicate upload short-circuited",
			zap.String("document_id", doc.ID),
			zap.String("primary_id", primaryID))
		return nil
	}
	p.observe(stageFingerprint, start, nil)
	p.appendLog(ctx, job.ID, models.LogLevelInfo, stageFingerprint, "content fingerprinted",
		map[string]interface{}{"content_hash": hash})

	// Stage 3: text extraction per format.
	start = time.Now()
	extractor, ok := p.extractors[doc.Format]
	if !ok {
		err := fmt.Errorf("no extractor for format %q", doc.Format)
		p.observe(stageExtract, start, err)
		p.appendLog(ctx, job.ID, models.LogLevelError, stageExtract, "unsupported document format",
			map[string]interface{}{"format": string(doc.Format)})
		return models.NewPermanentError(stageExtract, err)
	}
	extracted, err := extractor(ctx, data)
	p.observe(stageExtract, start, err)
	if err != nil {
		p.appendLog(ctx, job.ID, models.LogLevelError, stageExtract, "text extraction failed",
			map[string]interface{}{"error": err.Error()})
		return err
	}

	finalStatus := models.DocumentStatusCompleted
	words := wordCount(extracted.Text)
	if words < p.textThreshold {
		// Image-based scan: partial success, parked for OCR.
		finalStatus = models.DocumentStatusPending
		p.appendLog(ctx, job.ID, models.LogLevelWarn, stageExtract, "low text yield, flagged image-based pending OCR",
			map[string]interface{}{"word_count": words, "threshold": p.textThreshold})
	} else {
		p.appendLog(ctx, job.ID, models.LogLevelInfo, stageExtract, "text extracted",
			map[string]interface{}{"word_count": words, "page_count": extracted.PageCount})
	}

	// Stage 4: thumbnail, PDF only.
	thumbnailKey := ""
	if doc.Format == models.FormatPDF && p.thumbnail != nil {
		start = time.Now()
		thumb, err := p.thumbnail(ctx, data)
		if err != nil {
			p.observe(stageThumbnail, start, err)
			p.appendLog(ctx, job.ID, models.LogLevelError, stageThumbnail, "thumbnail generation failed",
				map[string]interface{}{"error": err.Error()})
			return models.NewTransientError(stageThumbnail, err)
		}
		thumbnailKey = "thumbnails/" + doc.ID + ".pdf"
		err = p.blobs.Upload(ctx, thumbnailKey, thumb, "application/pdf")
		p.observe(stageThumbnail, start, err)
		if err != nil {
			return models.NewTransientError(stageThumbnail, err)
		}
		p.appendLog(ctx, job.ID, models.LogLevelInfo, stageThumbnail, "thumbnail uploaded",
			map[string]interface{}{"thumbnail_key": thumbnailKey})
	}

	// Stage 5: search index submission.
	start = time.Now()
	searchRef, err := p.index.Index(ctx, doc.ID, search.Entry{
		Title:       doc.Title,
		Description: doc.Description,
		Content:     extracted.Text,
		Tags:        doc.Tags,
		Format:      string(doc.Format),
		Campaigns:   doc.Campaigns,
		Collections: doc.Collections,
		UploadedAt:  doc.UploadedAt,
	})
	p.observe(stageIndex, start, err)
	if err != nil {
		p.appendLog(ctx, job.ID, models.LogLevelError, stageIndex, "search index submission failed",
			map[string]interface{}{"error": err.Error()})
		return models.NewTransientError(stageIndex, err)
	}
	p.appendLog(ctx, job.ID, models.LogLevelInfo, stageIndex, "submitted to search index",
		map[string]interface{}{"search_ref": searchRef})

	// Stage 6: structured-data extraction.
	start = time.Now()
	entities := ExtractEntities(doc.ID, extracted.Text)
	err = p.docs.SaveEntities(ctx, doc.ID, entities)
	p.observe(stageEntities, start, err)
	if err != nil {
		return models.NewTransientError(stageEntities, err)
	}
	p.appendLog(ctx, job.ID, models.LogLevelInfo, stageEntities, "structured entities persisted",
		map[string]interface{}{"entity_count": len(entities)})

	// Stage 7: final status write-back.
	start = time.Now()
	err = p.docs.SetProcessingResults(ctx, doc.ID, models.ProcessingResults{
		Status:       finalStatus,
		ContentHash:  hash,
		PageCount:    extracted.PageCount,
		ThumbnailKey: thumbnailKey,
		SearchRef:    searchRef,
	})
	p.observe(stageFinalize, start, err)
	if err != nil {
		return models.NewTransientError(stageFinalize, err)
	}
	p.appendLog(ctx, job.ID, models.LogLevelInfo, stageFinalize, "processing finished",
		map[string]interface{}{"status": string(finalStatus)})
	return nil
}

// appendLog writes a processing log entry. Log loss is non-fatal to job
// completion, so sink errors are only warned about.
func (p *Pipeline) appendLog(ctx context.Context, jobID string, level models.LogLevel, step, msg string, details map[string]interface{}) {
	entry := models.LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Step:      step,
		Message:   msg,
		Details:   details,
	}
	if err := p.logs.Append(ctx, jobID, entry); err != nil {
		p.logger.Warn("failed to append processing log entry",
			zap.String("job_id", jobID),
			zap.String("step", step),
			zap.Error(err))
	}
}

func (p *Pipeline) observe(stage string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.PipelineStageDuration.WithLabelValues(stage, status).Observe(time.Since(start).Seconds())
}
