package qr

import (
	"bytes"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-payment-verification/internal/models"
)

func samplePayload() models.QRPayload {
	return models.QRPayload{
		TicketID:     "5f0c3c52-5b43-4a5e-9d38-3b4a2a0c1e11",
		OrderNumber:  "ORD-1",
		EventID:      "evt-1",
		TicketTypeID: "tt-vip",
		IssuedAt:     time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	q := NewQRGenerator("secret")

	token, err := q.Encrypt(samplePayload())
	require.NoError(t, err)

	got, err := q.Decrypt(token)
	require.NoError(t, err)
	assert.Equal(t, samplePayload(), *got)
}

func TestEncrypt_NonceMakesTokensDiffer(t *testing.T) {
	q := NewQRGenerator("secret")
	a, _ := q.Encrypt(samplePayload())
	b, _ := q.Encrypt(samplePayload())
	assert.NotEqual(t, a, b)
}

func TestDecrypt_RejectsForeignOrTamperedTokens(t *testing.T) {
	token, err := NewQRGenerator("secret").Encrypt(samplePayload())
	require.NoError(t, err)

	_, err = NewQRGenerator("other-secret").Decrypt(token)
	assert.ErrorIs(t, err, ErrInvalidQR)

	tampered := []byte(token)
	tampered[len(tampered)/2] ^= 'A' ^ 'B'
	_, err = NewQRGenerator("secret").Decrypt(string(tampered))
	assert.Error(t, err)

	_, err = NewQRGenerator("secret").Decrypt("not base64 !!")
	assert.ErrorIs(t, err, ErrInvalidQR)
}

func TestGenerateEncryptedQR_ReturnsPNG(t *testing.T) {
	img, token, err := NewQRGenerator("secret").GenerateEncryptedQR(samplePayload())
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	decoded, err := png.Decode(bytes.NewReader(img))
	require.NoError(t, err)
	assert.Equal(t, 256, decoded.Bounds().Dx())
}
