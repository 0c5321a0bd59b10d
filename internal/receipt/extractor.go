package receipt

import (
	"context"
	"fmt"
)

// Extractor turns a stored payment screenshot into raw text.
type Extractor interface {
	Extract(ctx context.Context, imageRef string) (string, error)
	Close() error
}

// ExtractionFailure is returned for unreadable images and OCR engine errors.
type ExtractionFailure struct {
	ImageRef string
	Reason   string
	Err      error
}

func (e *ExtractionFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed for %s: %s: %v", e.ImageRef, e.Reason, e.Err)
	}
	return fmt.Sprintf("extraction failed for %s: %s", e.ImageRef, e.Reason)
}

func (e *ExtractionFailure) Unwrap() error {
	return e.Err
}
