package receipt

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-payment-verification/internal/config"
	"ms-payment-verification/internal/logger"
)

func newTestExtractor(t *testing.T, ocrURL string) *HTTPExtractor {
	t.Helper()
	cfg := config.OCRConfig{URL: ocrURL, Timeout: 5 * time.Second}
	return NewHTTPExtractor(cfg, nil, logger.NewConsoleLogger(os.Stderr))
}

func TestHTTPExtractor_Extract(t *testing.T) {
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fake-png-bytes"))
	}))
	defer storage.Close()

	ocr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, _, err := r.FormFile("image")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)
		assert.Equal(t, "fake-png-bytes", string(data))
		json.NewEncoder(w).Encode(map[string]string{"text": "Amount GHS 150.00"})
	}))
	defer ocr.Close()

	extractor := newTestExtractor(t, ocr.URL)
	defer extractor.Close()

	text, err := extractor.Extract(context.Background(), storage.URL+"/receipt.png")

	require.NoError(t, err)
	assert.Equal(t, "Amount GHS 150.00", text)
}

func TestHTTPExtractor_EngineError(t *testing.T) {
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("corrupted"))
	}))
	defer storage.Close()

	ocr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer ocr.Close()

	extractor := newTestExtractor(t, ocr.URL)

	_, err := extractor.Extract(context.Background(), storage.URL)

	var failure *ExtractionFailure
	require.ErrorAs(t, err, &failure)
	assert.Contains(t, failure.Reason, "422")
}

func TestHTTPExtractor_EmptyImage(t *testing.T) {
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer storage.Close()

	extractor := newTestExtractor(t, "http://127.0.0.1:0")

	_, err := extractor.Extract(context.Background(), storage.URL)

	var failure *ExtractionFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "empty image", failure.Reason)
}

func TestHTTPExtractor_ClosedRejectsCalls(t *testing.T) {
	extractor := newTestExtractor(t, "http://127.0.0.1:0")
	require.NoError(t, extractor.Close())
	require.NoError(t, extractor.Close())

	_, err := extractor.Extract(context.Background(), "http://example.invalid/x.png")

	var failure *ExtractionFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "extractor closed", failure.Reason)
}
