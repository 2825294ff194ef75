package signer

import (
	"math/big"
	"testing"
)

const testMnemonic = "test test test test test test test test test test test junk"

func TestSignAndVerifyRoundTrip(t *testing.T) {
	s, err := New(testMnemonic, 31337)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	payload := `{"walletAddress":"0x1111111111111111111111111111111111111111","amountGwei":"100000000"}`
	digest, sig, err := s.Sign("deposit", payload, nil)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	ok, err := Verify(big.NewInt(31337), "deposit", payload, nil, sig, s.PublicKey())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatalf("expected signature to verify")
	}

	wantDigest, err := Digest(big.NewInt(31337), "deposit", payload, nil)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if digest != wantDigest {
		t.Fatalf("digest mismatch between Sign and Digest")
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	s, err := New(testMnemonic, 31337)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, sig, err := s.Sign("deposit", `{"amountGwei":"1"}`, nil)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	ok, err := Verify(big.NewInt(31337), "deposit", `{"amountGwei":"2"}`, nil, sig, s.PublicKey())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatalf("expected tampered payload to fail verification")
	}
}

func TestVerifyWithNonce(t *testing.T) {
	s, err := New(testMnemonic, 31337)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	nonce := big.NewInt(42)
	_, sig, err := s.Sign("withdrawal_request", `{"nonce":"42"}`, nonce)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	ok, err := Verify(big.NewInt(31337), "withdrawal_request", `{"nonce":"42"}`, nonce, sig, s.PublicKey())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatalf("expected signature with nonce to verify")
	}
}
