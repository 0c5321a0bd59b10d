package verification

import (
	"context"
	"fmt"

	"ms-payment-verification/internal/logger"
	"ms-payment-verification/internal/receipt"
)

const extractionFailedIssue = "Automatic verification failed: receipt text could not be extracted"

// Verifier runs extract, parse and score for one screenshot.
type Verifier struct {
	extractor receipt.Extractor
	logger    *logger.Logger
}

func NewVerifier(extractor receipt.Extractor, log *logger.Logger) *Verifier {
	return &Verifier{extractor: extractor, logger: log}
}

// Verify never returns an error. Extraction errors and panics become a
// zero-confidence result with ExtractionFailed set.
func (v *Verifier) Verify(ctx context.Context, imageRef string, expected Expectation) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("VERIFY", fmt.Sprintf("Recovered from panic verifying %s: %v", imageRef, r))
			res = ExtractionFailedResult(extractionFailedIssue)
		}
	}()

	text, err := v.extractor.Extract(ctx, imageRef)
	if err != nil {
		v.logger.Warn("VERIFY", fmt.Sprintf("Extraction failed: %v", err))
		return ExtractionFailedResult(extractionFailedIssue)
	}

	return Score(receipt.Parse(text), expected)
}
