package receipt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync/atomic"

	"ms-payment-verification/internal/config"
	"ms-payment-verification/internal/logger"
)

// MaxImageBytes caps the size of a downloaded screenshot.
const MaxImageBytes = 10 << 20

type ocrResponse struct {
	Text string `json:"text"`
}

// HTTPExtractor downloads the screenshot and posts it to an OCR engine endpoint.
type HTTPExtractor struct {
	client   *http.Client
	endpoint string
	logger   *logger.Logger
	closed   atomic.Bool
}

func NewHTTPExtractor(cfg config.OCRConfig, client *http.Client, log *logger.Logger) *HTTPExtractor {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPExtractor{
		client:   client,
		endpoint: strings.TrimSuffix(cfg.URL, "/"),
		logger:   log,
	}
}

func (e *HTTPExtractor) Extract(ctx context.Context, imageRef string) (string, error) {
	if e.closed.Load() {
		return "", &ExtractionFailure{ImageRef: imageRef, Reason: "extractor closed"}
	}
	if imageRef == "" {
		return "", &ExtractionFailure{ImageRef: imageRef, Reason: "empty image reference"}
	}

	image, err := e.download(ctx, imageRef)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", "receipt")
	if err != nil {
		return "", &ExtractionFailure{ImageRef: imageRef, Reason: "build request", Err: err}
	}
	if _, err := part.Write(image); err != nil {
		return "", &ExtractionFailure{ImageRef: imageRef, Reason: "build request", Err: err}
	}
	if err := writer.Close(); err != nil {
		return "", &ExtractionFailure{ImageRef: imageRef, Reason: "build request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, &body)
	if err != nil {
		return "", &ExtractionFailure{ImageRef: imageRef, Reason: "build request", Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	e.logger.Debug("OCR", fmt.Sprintf("Submitting %d bytes from %s", len(image), imageRef))

	resp, err := e.client.Do(req)
	if err != nil {
		e.logger.Error("OCR", fmt.Sprintf("OCR engine error: %v", err))
		return "", &ExtractionFailure{ImageRef: imageRef, Reason: "ocr engine unreachable", Err: err}
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			e.logger.Error("OCR", fmt.Sprintf("Failed to close OCR response body: %v", err))
		}
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e.logger.Error("OCR", fmt.Sprintf("OCR engine returned status: %d", resp.StatusCode))
		return "", &ExtractionFailure{ImageRef: imageRef, Reason: fmt.Sprintf("ocr engine returned status %d", resp.StatusCode)}
	}

	var out ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &ExtractionFailure{ImageRef: imageRef, Reason: "decode ocr response", Err: err}
	}
	return out.Text, nil
}

func (e *HTTPExtractor) download(ctx context.Context, imageRef string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageRef, nil)
	if err != nil {
		return nil, &ExtractionFailure{ImageRef: imageRef, Reason: "invalid image reference", Err: err}
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &ExtractionFailure{ImageRef: imageRef, Reason: "image download failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ExtractionFailure{ImageRef: imageRef, Reason: fmt.Sprintf("image storage returned status %d", resp.StatusCode)}
	}

	image, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes+1))
	if err != nil {
		return nil, &ExtractionFailure{ImageRef: imageRef, Reason: "image download failed", Err: err}
	}
	switch {
	case len(image) == 0:
		return nil, &ExtractionFailure{ImageRef: imageRef, Reason: "empty image"}
	case len(image) > MaxImageBytes:
		return nil, &ExtractionFailure{ImageRef: imageRef, Reason: "image too large"}
	}
	return image, nil
}

// Close releases idle connections. Extract fails after Close.
func (e *HTTPExtractor) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.client.CloseIdleConnections()
	e.logger.Info("OCR", "Extractor closed")
	return nil
}
