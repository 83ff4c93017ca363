package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/grimoire-app/app-library/internal/joblog"
	"github.com/grimoire-app/app-library/internal/logging"
	"github.com/grimoire-app/app-library/internal/models"
	"github.com/grimoire-app/app-library/internal/queue"
)

// JobHandler exposes the queue's administrative operations to the route
// layer.
type JobHandler struct {
	queue  *queue.Queue
	logs   joblog.Sink
	logger *logging.SafeLogger
}

// NewJobHandler creates the job admin handler.
func NewJobHandler(q *queue.Queue, logs joblog.Sink, logger *logging.SafeLogger) *JobHandler {
	return &JobHandler{queue: q, logs: logs, logger: logger}
}

// Enqueue creates a processing job for a document.
func (h *JobHandler) Enqueue(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "EnqueueJob")
	defer span.End()

	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	span.SetAttributes(attribute.String("document.id", req.DocumentID))

	job, err := h.queue.Enqueue(ctx, models.JobTypeProcessDocument, req.DocumentID)
	if err != nil {
		h.logger.Error("failed to enqueue job", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to enqueue job"})
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// List returns jobs filtered by state with pagination.
func (h *JobHandler) List(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "ListJobs")
	defer span.End()

	state := models.JobState(c.Query("state"))
	switch state {
	case "", models.JobStateWaiting, models.JobStateActive, models.JobStateCompleted, models.JobStateFailed:
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown state: " + string(state)})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "50"))

	jobs, total, err := h.queue.List(ctx, state, page, perPage)
	if err != nil {
		h.logger.Error("failed to list jobs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to list jobs"})
		return
	}
	c.JSON(http.StatusOK, JobListResponse{Jobs: jobs, Total: total, Page: page, PerPage: perPage})
}

// Get returns a single job.
func (h *JobHandler) Get(c *gin.Context) {
	job, err := h.queue.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to fetch job"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// Retry resets a terminally failed job to waiting.
func (h *JobHandler) Retry(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "RetryJob")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", c.Param("id")))

	if err := h.queue.Retry(ctx, c.Param("id")); err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "job not found"})
			return
		}
		if errors.Is(err, models.ErrStoreUnavailable) {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "job store unavailable"})
			return
		}
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "requeued"})
}

// Remove deletes a job outright.
func (h *JobHandler) Remove(c *gin.Context) {
	if err := h.queue.Remove(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to remove job"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

// Clean bulk-removes completed or failed jobs older than the requested age.
func (h *JobHandler) Clean(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "CleanJobs")
	defer span.End()

	var req CleanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	olderThan, err := time.ParseDuration(req.OlderThan)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid older_than duration: " + err.Error()})
		return
	}

	removed, err := h.queue.Clean(ctx, req.State, olderThan)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, CleanResponse{Removed: removed})
}

// Stats returns job counts grouped by state.
func (h *JobHandler) Stats(c *gin.Context) {
	stats, err := h.queue.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to read queue stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to read queue stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Logs returns a job's processing log, oldest first.
func (h *JobHandler) Logs(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.queue.Get(c.Request.Context(), id); err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to fetch job"})
		return
	}

	entries, err := h.logs.Read(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "processing log unavailable"})
		return
	}
	c.JSON(http.StatusOK, JobLogsResponse{JobID: id, Entries: entries})
}
