package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderNumbers_UniqueAndPrefixed(t *testing.T) {
	gen, err := NewOrderNumbers(1)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		n := gen.Next()
		assert.Regexp(t, `^ORD-\d+$`, n)
		assert.False(t, seen[n], "duplicate %s", n)
		seen[n] = true
	}
}

func TestNewOrderNumbers_RejectsBadNode(t *testing.T) {
	_, err := NewOrderNumbers(5000)
	assert.Error(t, err)
}

func TestGeneratePaymentReference_MatchesReceiptParser(t *testing.T) {
	shape := regexp.MustCompile(`^TCK\d{8}$`)
	for i := 0; i < 100; i++ {
		assert.Regexp(t, shape, GeneratePaymentReference())
	}
}

func TestGenerateTicketID(t *testing.T) {
	_, err := uuid.Parse(GenerateTicketID())
	assert.NoError(t, err)
	assert.NotEqual(t, GenerateTicketID(), GenerateTicketID())
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteJSON(rec, http.StatusAccepted, SuccessResponse("ok", map[string]int{"n": 1})))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "ok", body.Message)
}
