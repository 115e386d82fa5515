package pipeline

import (
	"errors"
	"fmt"
)

// ErrInvalidModel marks a model reference a detection backend can never load.
// Initialization failing with it is not retried.
var ErrInvalidModel = errors.New("invalid model reference")

// ErrRecognizerUnavailable is returned while the text worker is not initialized.
var ErrRecognizerUnavailable = errors.New("text recognition unavailable")

// BackendInitError reports that a detection or recognition backend failed to start.
type BackendInitError struct {
	Backend string // "detection" or "recognition"
	Err     error
}

func (e *BackendInitError) Error() string {
	return fmt.Sprintf("%s backend initialization failed: %v", e.Backend, e.Err)
}

func (e *BackendInitError) Unwrap() error { return e.Err }

// InferenceError reports a failed detection call for one cycle.
type InferenceError struct {
	Seq uint64
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed (seq %d): %v", e.Seq, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// RecognitionError reports a failed recognition call for one detection.
type RecognitionError struct {
	Class string
	Err   error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("recognition failed for %q: %v", e.Class, e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }
