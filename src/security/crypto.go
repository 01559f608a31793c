package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

const (
	saltSize = 16
	keySize  = 32
	scryptN  = 32768
	scryptR  = 8
	scryptP  = 1
)

// ErrMissingKey is returned when MARKET_DATA_CREDENTIALS_KEY is not set.
var ErrMissingKey = errors.New("credentials key is not configured")

func deriveKey(passphrase string, salt []byte) ([]byte, error) {
	return scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, keySize)
}

// EncryptString encrypts plaintext with AES-GCM under a key derived from the
// configured passphrase. The result is base64(salt || nonce || ciphertext),
// so every call produces a different string for the same input.
func EncryptString(plaintext string) (string, error) {
	config := GetConfig()
	if config.CredentialsKey == "" {
		return "", ErrMissingKey
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key, err := deriveKey(config.CredentialsKey, salt)
	if err != nil {
		return "", fmt.Errorf("failed to derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	payload := make([]byte, 0, saltSize+len(nonce)+len(sealed))
	payload = append(payload, salt...)
	payload = append(payload, nonce...)
	payload = append(payload, sealed...)

	return base64.StdEncoding.EncodeToString(payload), nil
}

// DecryptString reverses EncryptString.
func DecryptString(encoded string) (string, error) {
	config := GetConfig()
	if config.CredentialsKey == "" {
		return "", ErrMissingKey
	}

	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode payload: %w", err)
	}
	if len(payload) < saltSize {
		return "", errors.New("payload is too short")
	}

	salt := payload[:saltSize]
	key, err := deriveKey(config.CredentialsKey, salt)
	if err != nil {
		return "", fmt.Errorf("failed to derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	rest := payload[saltSize:]
	if len(rest) < gcm.NonceSize() {
		return "", errors.New("payload is too short")
	}
	nonce, sealed := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt payload: %w", err)
	}

	return string(plaintext), nil
}
