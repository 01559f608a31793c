package security

import (
	"errors"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Setenv("MARKET_DATA_CREDENTIALS_KEY", "unit-test-passphrase")

	encrypted, err := EncryptString("sk-live-0042")
	if err != nil {
		t.Fatalf("failed to encrypt: %v", err)
	}
	if encrypted == "sk-live-0042" {
		t.Fatal("expected ciphertext to differ from plaintext")
	}

	decrypted, err := DecryptString(encrypted)
	if err != nil {
		t.Fatalf("failed to decrypt: %v", err)
	}
	if decrypted != "sk-live-0042" {
		t.Fatalf("expected round trip to return the plaintext, got %q", decrypted)
	}
}

func TestEncryptStringIsSalted(t *testing.T) {
	t.Setenv("MARKET_DATA_CREDENTIALS_KEY", "unit-test-passphrase")

	first, err := EncryptString("sk-live-0042")
	if err != nil {
		t.Fatalf("failed to encrypt: %v", err)
	}
	second, err := EncryptString("sk-live-0042")
	if err != nil {
		t.Fatalf("failed to encrypt: %v", err)
	}
	if first == second {
		t.Fatal("expected two encryptions of the same input to differ")
	}
}

func TestDecryptStringRejectsWrongKey(t *testing.T) {
	t.Setenv("MARKET_DATA_CREDENTIALS_KEY", "unit-test-passphrase")
	encrypted, err := EncryptString("sk-live-0042")
	if err != nil {
		t.Fatalf("failed to encrypt: %v", err)
	}

	t.Setenv("MARKET_DATA_CREDENTIALS_KEY", "another-passphrase")
	if _, err := DecryptString(encrypted); err == nil {
		t.Fatal("expected decryption with the wrong key to fail")
	}
}

func TestDecryptStringRejectsGarbage(t *testing.T) {
	t.Setenv("MARKET_DATA_CREDENTIALS_KEY", "unit-test-passphrase")

	if _, err := DecryptString("not base64!!"); err == nil {
		t.Fatal("expected invalid base64 to fail")
	}
	if _, err := DecryptString("c2hvcnQ="); err == nil {
		t.Fatal("expected a truncated payload to fail")
	}
}

func TestEncryptStringRequiresKey(t *testing.T) {
	t.Setenv("MARKET_DATA_CREDENTIALS_KEY", "")

	if _, err := EncryptString("sk-live-0042"); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("expected ErrMissingKey, got %v", err)
	}
	if _, err := DecryptString("c2hvcnQ="); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("expected ErrMissingKey, got %v", err)
	}
}
