package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
)

func TestSignatureValidity(t *testing.T) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate Ed25519 keypair: %v", err)
	}

	data := []byte("signed call")
	signature, err := Sign(privateKey, data)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if !Verify(publicKey, data, signature) {
		t.Fatalf("expected signature verification to succeed")
	}
}

func TestSignatureTamperingRejected(t *testing.T) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate Ed25519 keypair: %v", err)
	}

	signature, err := Sign(privateKey, []byte("add-message hello"))
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if Verify(publicKey, []byte("add-message hello!"), signature) {
		t.Fatalf("expected signature verification to fail for tampered data")
	}
	if Verify(publicKey, nil, signature) {
		t.Fatalf("expected empty data to fail verification")
	}
}

func TestSignRejectsBadInput(t *testing.T) {
	if _, err := Sign(ed25519.PrivateKey{1, 2, 3}, []byte("x")); err == nil {
		t.Fatalf("expected short private key to be rejected")
	}

	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate Ed25519 keypair: %v", err)
	}
	if _, err := Sign(privateKey, nil); err == nil {
		t.Fatalf("expected empty data to be rejected")
	}
}

func TestDigestIsStableHex(t *testing.T) {
	a := Digest([]byte("payload"))
	b := Digest([]byte("payload"))
	if a != b {
		t.Fatalf("expected stable digest")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	if a == Digest([]byte("payload2")) {
		t.Fatalf("expected different payloads to digest differently")
	}
}
