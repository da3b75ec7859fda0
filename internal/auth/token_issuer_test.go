package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/solsticelabs/beacon/internal/subject"
)

var testClock = func() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func newTestIssuer(t *testing.T) *TokenIssuer {
	t.Helper()
	return NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("unit-test-secret"),
		Issuer:        "beacon-idp",
		Audience:      "beacon-api",
		TokenTTL:      15 * time.Minute,
		Clock:         testClock,
	})
}

func TestIssueSubjectTokenRoundTrip(t *testing.T) {
	issuer := newTestIssuer(t)

	resolved := subject.ResolvedSubject{
		SubjectID: "1234567",
		Username:  "alice",
		IsActive:  true,
		Claims: []subject.Claim{
			{Type: subject.ClaimTypeEmail, Value: "alice@example.com"},
		},
	}

	token, expiresIn, err := issuer.IssueSubjectToken(context.Background(), resolved)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if expiresIn != int64((15 * time.Minute).Seconds()) {
		t.Fatalf("expected expiry of 900 seconds, got %d", expiresIn)
	}

	subjectID, err := issuer.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if subjectID != "1234567" {
		t.Fatalf("expected subject 1234567, got %q", subjectID)
	}
}

func TestIssueSubjectTokenEmbedsClaims(t *testing.T) {
	issuer := newTestIssuer(t)

	resolved := subject.ResolvedSubject{
		SubjectID:    "42",
		ProviderName: "Google",
		Claims: []subject.Claim{
			{Type: subject.ClaimTypeRole, Value: "admin"},
			{Type: subject.ClaimTypeRole, Value: "auditor"},
			{Type: "sub", Value: "spoofed"},
		},
	}

	token, _, err := issuer.IssueSubjectToken(context.Background(), resolved)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	payload := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(token, payload, func(*jwt.Token) (interface{}, error) {
		return []byte("unit-test-secret"), nil
	}, jwt.WithTimeFunc(testClock))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if payload["sub"] != "42" {
		t.Fatalf("reserved sub claim must not be overridden, got %v", payload["sub"])
	}
	if payload["idp"] != "Google" {
		t.Fatalf("expected idp claim, got %v", payload["idp"])
	}
	roles, ok := payload["role"].([]interface{})
	if !ok || len(roles) != 2 {
		t.Fatalf("expected two role values, got %v", payload["role"])
	}
}

func TestIssueSubjectTokenRequiresSubject(t *testing.T) {
	issuer := newTestIssuer(t)

	if _, _, err := issuer.IssueSubjectToken(context.Background(), subject.ResolvedSubject{}); err == nil {
		t.Fatalf("expected error for empty subject id")
	}
}

func TestValidateTokenRejectsForeignSignature(t *testing.T) {
	issuer := newTestIssuer(t)
	other := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("a-different-secret"),
		Issuer:        "beacon-idp",
		Audience:      "beacon-api",
		Clock:         testClock,
	})

	token, _, err := other.IssueSubjectToken(context.Background(), subject.ResolvedSubject{SubjectID: "7"})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	if _, err := issuer.ValidateToken(token); err == nil {
		t.Fatalf("expected validation to fail for foreign signature")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("unit-test-secret"),
		Issuer:        "beacon-idp",
		Audience:      "beacon-api",
		TokenTTL:      time.Minute,
		Clock:         testClock,
	})

	token, _, err := issuer.IssueSubjectToken(context.Background(), subject.ResolvedSubject{SubjectID: "7"})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	late := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("unit-test-secret"),
		Issuer:        "beacon-idp",
		Audience:      "beacon-api",
		Clock: func() time.Time {
			return testClock().Add(2 * time.Minute)
		},
	})
	if _, err := late.ValidateToken(token); err == nil {
		t.Fatalf("expected validation to fail for expired token")
	}
}
