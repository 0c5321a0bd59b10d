package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/skip2/go-qrcode"

	"ms-payment-verification/internal/models"
)

const qrSize = 256

var ErrInvalidQR = errors.New("invalid ticket QR payload")

type QRGenerator struct {
	secret []byte
}

func NewQRGenerator(secret string) *QRGenerator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &QRGenerator{secret: hashed[:]}
}

// Encrypt seals the payload with AES-GCM and returns it URL-safe base64 encoded.
func (q *QRGenerator) Encrypt(payload models.QRPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	gcm, err := q.aead()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, data, nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

func (q *QRGenerator) Decrypt(token string) (*models.QRPayload, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQR, err)
	}

	gcm, err := q.aead()
	if err != nil {
		return nil, err
	}
	if len(raw) < gcm.NonceSize() {
		return nil, ErrInvalidQR
	}
	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]

	data, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQR, err)
	}

	var payload models.QRPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQR, err)
	}
	return &payload, nil
}

// GenerateEncryptedQR returns the PNG QR image and the encrypted text it carries.
func (q *QRGenerator) GenerateEncryptedQR(payload models.QRPayload) ([]byte, string, error) {
	token, err := q.Encrypt(payload)
	if err != nil {
		return nil, "", err
	}

	png, err := qrcode.Encode(token, qrcode.Medium, qrSize)
	if err != nil {
		return nil, "", err
	}
	return png, token, nil
}

func (q *QRGenerator) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(q.secret)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
