package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func testKey() []byte {
	key := make([]byte, KeyLength)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestGenerateSalt(t *testing.T) {
	s1, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt failed: %v", err)
	}
	if len(s1) != SaltLength {
		t.Errorf("expected %d bytes, got %d", SaltLength, len(s1))
	}

	s2, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt failed: %v", err)
	}
	if bytes.Equal(s1, s2) {
		t.Error("two salts should not be equal")
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	password := []byte("correct horse battery staple")
	salt := []byte("0123456789abcdef")

	k1 := DeriveKey(password, salt)
	k2 := DeriveKey(password, salt)

	if len(k1) != KeyLength {
		t.Fatalf("expected %d-byte key, got %d", KeyLength, len(k1))
	}
	if !bytes.Equal(k1, k2) {
		t.Error("same password and salt must derive identical keys")
	}
}

func TestDeriveKeyDifferentSalts(t *testing.T) {
	password := []byte("correct horse battery staple")
	k1 := DeriveKey(password, []byte("0123456789abcdef"))
	k2 := DeriveKey(password, []byte("fedcba9876543210"))
	if bytes.Equal(k1, k2) {
		t.Error("different salts must derive different keys")
	}
}

func TestVerifyPassword(t *testing.T) {
	password := []byte("hunter2hunter2")
	salt := []byte("0123456789abcdef")
	expected := DeriveKey(password, salt)

	if !VerifyPassword(password, salt, expected) {
		t.Error("expected matching password to verify")
	}
	if VerifyPassword([]byte("wrong"), salt, expected) {
		t.Error("expected wrong password to fail verification")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := testKey()
	plaintext := []byte("sk_live_abc")

	blob, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if len(blob) != NonceLength+len(plaintext)+TagLength {
		t.Errorf("unexpected blob length %d", len(blob))
	}

	decrypted, err := Decrypt(blob, key)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("round trip mismatch: got %q, want %q", decrypted, plaintext)
	}
}

func TestEncryptFreshNonce(t *testing.T) {
	key := testKey()
	plaintext := []byte("same plaintext")

	b1, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	b2, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if bytes.Equal(b1, b2) {
		t.Error("two encryptions of the same plaintext must differ (fresh nonce)")
	}
}

func TestEncryptRejectsBadInput(t *testing.T) {
	if _, err := Encrypt([]byte("data"), []byte("short")); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
	if _, err := Encrypt(nil, testKey()); !errors.Is(err, ErrInvalidData) {
		t.Errorf("expected ErrInvalidData for empty plaintext, got %v", err)
	}
}

func TestDecryptRejectsBadInput(t *testing.T) {
	key := testKey()
	blob, err := Encrypt([]byte("payload"), key)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	if _, err := Decrypt(blob, []byte("short")); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
	if _, err := Decrypt(blob[:NonceLength+TagLength], key); !errors.Is(err, ErrInvalidData) {
		t.Errorf("expected ErrInvalidData for short blob, got %v", err)
	}
}

func TestDecryptWrongKey(t *testing.T) {
	blob, err := Encrypt([]byte("payload"), testKey())
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	wrong := testKey()
	wrong[0] ^= 0xff
	if _, err := Decrypt(blob, wrong); !errors.Is(err, ErrIntegrityCheckFailed) {
		t.Errorf("expected ErrIntegrityCheckFailed, got %v", err)
	}
}

func TestDecryptDetectsBitFlips(t *testing.T) {
	key := testKey()
	blob, err := Encrypt([]byte("payload"), key)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	// Flip one bit at every position: nonce, ciphertext, tag.
	for i := range blob {
		tampered := make([]byte, len(blob))
		copy(tampered, blob)
		tampered[i] ^= 0x01
		if _, err := Decrypt(tampered, key); !errors.Is(err, ErrIntegrityCheckFailed) {
			t.Fatalf("bit flip at offset %d not detected: %v", i, err)
		}
	}
}

func TestRecordRoundTrip(t *testing.T) {
	type payload struct {
		Name   string `json:"name"`
		Secret string `json:"secret"`
	}

	key := testKey()
	in := payload{Name: "stripe", Secret: "sk_live_abc"}

	blob, err := EncryptRecord(in, key)
	if err != nil {
		t.Fatalf("EncryptRecord failed: %v", err)
	}
	out, err := DecryptRecord[payload](blob, key)
	if err != nil {
		t.Fatalf("DecryptRecord failed: %v", err)
	}
	if out != in {
		t.Errorf("record round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestRecordDecodeFailure(t *testing.T) {
	key := testKey()

	// Authentic ciphertext whose plaintext is not JSON at all.
	blob, err := Encrypt([]byte("not json"), key)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	type payload struct{ Name string }
	if _, err := DecryptRecord[payload](blob, key); !errors.Is(err, ErrDecodeFailed) {
		t.Errorf("expected ErrDecodeFailed, got %v", err)
	}

	// Wrong key must surface as an integrity failure, not a decode failure.
	wrong := testKey()
	wrong[31] ^= 0xff
	if _, err := DecryptRecord[payload](blob, wrong); !errors.Is(err, ErrIntegrityCheckFailed) {
		t.Errorf("expected ErrIntegrityCheckFailed, got %v", err)
	}
}

func TestSecureWipe(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	SecureWipe(b)
	for i, v := range b {
		if v != 0 {
			t.Errorf("byte %d not wiped: %d", i, v)
		}
	}
}
