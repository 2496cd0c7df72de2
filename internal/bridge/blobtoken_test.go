package bridge

import (
	"testing"
	"time"
)

func TestBlobTokenRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token, err := SignBlobToken("secret", "proj-1", "abc123", now.Add(DefaultBlobTokenTTL))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := VerifyBlobToken("secret", token, "proj-1", "abc123", now); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestBlobTokenRejectsExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token, err := SignBlobToken("secret", "proj-1", "abc123", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := VerifyBlobToken("secret", token, "proj-1", "abc123", now.Add(2*time.Minute)); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestBlobTokenRejectsWrongScope(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token, err := SignBlobToken("secret", "proj-1", "abc123", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := VerifyBlobToken("secret", token, "proj-2", "abc123", now); err == nil {
		t.Fatal("expected project mismatch to fail")
	}
	if err := VerifyBlobToken("secret", token, "proj-1", "other", now); err == nil {
		t.Fatal("expected hash mismatch to fail")
	}
	if err := VerifyBlobToken("wrong", token, "proj-1", "abc123", now); err == nil {
		t.Fatal("expected bad secret to fail")
	}
}

func TestSignBlobTokenRequiresSecret(t *testing.T) {
	if _, err := SignBlobToken("", "proj-1", "abc123", time.Now()); err == nil {
		t.Fatal("expected empty secret to fail")
	}
}
