package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// sealedPrefix versions the sealed format so the scheme can change without
// breaking stored turns.
const sealedPrefix = "v1:"

var errNotSealed = errors.New("value is not sealed content")

// Encryptor seals chat content at rest with AES-256-GCM. The owning user ID
// is bound as additional data, so a ciphertext copied under another user's
// key fails to open.
type Encryptor struct {
	gcm cipher.AEAD
}

// NewEncryptor takes a 32-byte key as 64 hex characters.
func NewEncryptor(hexKey string) (*Encryptor, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decoding encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes (64 hex chars), got %d bytes", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return &Encryptor{gcm: gcm}, nil
}

// Seal encrypts plaintext for userID as "v1:" + base64(nonce || ciphertext).
func (e *Encryptor) Seal(userID, plaintext string) (string, error) {
	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := e.gcm.Seal(nonce, nonce, []byte(plaintext), []byte(userID))
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. It fails if the data was sealed for a different user
// or has been altered.
func (e *Encryptor) Open(userID, sealed string) (string, error) {
	encoded, ok := strings.CutPrefix(sealed, sealedPrefix)
	if !ok {
		return "", errNotSealed
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}

	n := e.gcm.NonceSize()
	if len(raw) < n+e.gcm.Overhead() {
		return "", errors.New("ciphertext too short")
	}
	plaintext, err := e.gcm.Open(nil, raw[:n], raw[n:], []byte(userID))
	if err != nil {
		return "", fmt.Errorf("decrypting: %w", err)
	}
	return string(plaintext), nil
}
