package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/nupay/banking-service/internal/bank"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if hash == "s3cret" {
		t.Fatal("password stored in plaintext")
	}
	if !CheckPassword(hash, "s3cret") {
		t.Error("correct password rejected")
	}
	if CheckPassword(hash, "wrong") {
		t.Error("wrong password accepted")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	gate := NewGate("test-secret", time.Hour)
	token, err := gate.IssueToken("alice@nu.edu")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	email, err := gate.Authenticate("Bearer " + token)
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if email != "alice@nu.edu" {
		t.Errorf("subject = %q, want alice@nu.edu", email)
	}
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	gate := NewGate("test-secret", time.Hour)
	good, err := gate.IssueToken("alice@nu.edu")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	expiredGate := NewGate("test-secret", -time.Minute)
	expired, err := expiredGate.IssueToken("alice@nu.edu")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	otherGate := NewGate("other-secret", time.Hour)
	forged, err := otherGate.IssueToken("alice@nu.edu")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"no bearer prefix", good},
		{"garbage token", "Bearer not.a.token"},
		{"expired token", "Bearer " + expired},
		{"wrong secret", "Bearer " + forged},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := gate.Authenticate(tc.header); !errors.Is(err, bank.ErrUnauthenticated) {
				t.Fatalf("err = %v, want ErrUnauthenticated", err)
			}
		})
	}
}

func TestCardFingerprintIsStableAndOpaque(t *testing.T) {
	a := CardFingerprint("04:a2:5c:91")
	b := CardFingerprint("04:a2:5c:91")
	if a != b {
		t.Error("fingerprint not deterministic")
	}
	if a == "04:a2:5c:91" {
		t.Error("raw tag data leaked into the fingerprint")
	}
	if len(a) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(a))
	}
	if CardFingerprint("different") == a {
		t.Error("distinct inputs collided")
	}
}
