package models

import (
	"errors"
	"fmt"
)

// Error constants shared across the processing and collaboration core
var (
	ErrJobNotFound      = errors.New("job not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrDocumentNotFound = errors.New("document not found")
	ErrStoreUnavailable = errors.New("backing store unavailable")
)

// ErrorKind classifies a pipeline failure for the retry policy. Transient
// failures consume one attempt and are re-enqueued with backoff; permanent
// failures go terminal immediately.
type ErrorKind string

const (
	ErrorKindTransient ErrorKind = "transient"
	ErrorKindPermanent ErrorKind = "permanent"
)

// PipelineError wraps a pipeline stage failure with its retry classification.
// Classification is assigned where the error is raised, never inferred from
// message text.
type PipelineError struct {
	Stage string
	Kind  ErrorKind
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as retryable.
func NewTransientError(stage string, err error) *PipelineError {
	return &PipelineError{Stage: stage, Kind: ErrorKindTransient, Err: err}
}

// NewPermanentError wraps err as non-retryable (malformed or unsupported content).
func NewPermanentError(stage string, err error) *PipelineError {
	return &PipelineError{Stage: stage, Kind: ErrorKindPermanent, Err: err}
}

// ClassifyError returns the retry classification of err. Unclassified errors
// default to transient so that infrastructure hiccups are retried.
func ClassifyError(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ErrorKindTransient
}
