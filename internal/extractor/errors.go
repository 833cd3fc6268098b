package extractor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maltedev/product-info-extractor/internal/browser"
	"github.com/maltedev/product-info-extractor/internal/models"
)

var (
	// ErrBlocked is matched by every BlockedError.
	ErrBlocked = errors.New("blocked by anti-bot protection")
	// ErrEmptyExtraction marks an attempt that found no product name.
	ErrEmptyExtraction = errors.New("extraction returned no product name")
	// ErrHook wraps failures of profile hooks. They are logged, never returned.
	ErrHook = errors.New("profile hook failed")
	// ErrInvalidURL is returned for input that does not parse to a host.
	ErrInvalidURL = errors.New("invalid url")
)

// BlockedError describes a challenge or denial page.
type BlockedError struct {
	Status  int
	Title   string
	Snippet string
}

func (e *BlockedError) Error() string {
	status := "no response"
	if e.Status != 0 {
		status = fmt.Sprintf("status %d", e.Status)
	}
	return fmt.Sprintf("%s (%s, title %q)", ErrBlocked, status, e.Title)
}

func (e *BlockedError) Unwrap() error {
	return ErrBlocked
}

// AttemptError is the failure of one attempt of the retry loop.
type AttemptError struct {
	Attempt int
	Err     error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("attempt %d: %v", e.Attempt, e.Err)
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a fresh context could succeed where this
// attempt failed.
func (e *AttemptError) Retryable() bool {
	return !errors.Is(e.Err, context.Canceled) &&
		!errors.Is(e.Err, context.DeadlineExceeded) &&
		!errors.Is(e.Err, browser.ErrLaunch)
}

// ExtractionError is the terminal failure handed to callers.
type ExtractionError struct {
	URL  string
	Err  error
	Time time.Time
}

func (e *ExtractionError) Error() string {
	return e.Err.Error()
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Payload is the caller-visible error object.
func (e *ExtractionError) Payload() models.ErrorPayload {
	return models.ErrorPayload{
		Error:     e.Err.Error(),
		URL:       e.URL,
		Timestamp: e.Time,
	}
}
