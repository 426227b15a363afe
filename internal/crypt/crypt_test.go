package crypt

import (
	"errors"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	k, err := NewKeychain("unit-test-secret")
	if err != nil {
		t.Fatalf("NewKeychain: %v", err)
	}
	in := `{"api_key":"abc-123","username":"merchant"}`
	enc, err := k.Encrypt(in)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if enc == in {
		t.Fatal("ciphertext equals plaintext")
	}
	out, err := k.Decrypt(enc)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if out != in {
		t.Fatalf("roundtrip mismatch: %q", out)
	}
}

func TestTamperDetected(t *testing.T) {
	k, _ := NewKeychain("unit-test-secret")
	enc, _ := k.Encrypt("secret payload")
	mangled := "A" + enc[1:]
	if _, err := k.Decrypt(mangled); !errors.Is(err, ErrBadCiphertext) {
		t.Fatalf("expected ErrBadCiphertext, got %v", err)
	}
}

func TestWrongKeyFails(t *testing.T) {
	k1, _ := NewKeychain("key-one")
	k2, _ := NewKeychain("key-two")
	enc, _ := k1.Encrypt("payload")
	if _, err := k2.Decrypt(enc); err == nil {
		t.Fatal("decrypt with wrong key should fail")
	}
}

func TestEmptySecretRejected(t *testing.T) {
	if _, err := NewKeychain(""); err == nil {
		t.Fatal("empty secret must be rejected")
	}
}
