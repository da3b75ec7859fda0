package subject

import (
	"regexp"
	"testing"
)

var hexSubjectIDPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

func TestAutoProvisionUserSynthesizesName(t *testing.T) {
	resolver, _ := newTestResolver(t)

	provisioned, err := resolver.AutoProvisionUser("Google", "ext-1", []Claim{
		{Type: ClaimTypeGivenName, Value: "Ada"},
		{Type: ClaimTypeFamilyName, Value: "Lovelace"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	name, ok := findClaim(provisioned.Claims, ClaimTypeName)
	if !ok || name != "Ada Lovelace" {
		t.Fatalf("expected synthesized name claim 'Ada Lovelace', got %q (present=%v)", name, ok)
	}
	if provisioned.Username != "Ada Lovelace" {
		t.Fatalf("expected display name from name claim, got %q", provisioned.Username)
	}
	if provisioned.ProviderName != "Google" {
		t.Fatalf("unexpected provider %q", provisioned.ProviderName)
	}
	if provisioned.ProviderSubjectID != "ext-1" {
		t.Fatalf("unexpected provider subject id %q", provisioned.ProviderSubjectID)
	}
	if !hexSubjectIDPattern.MatchString(provisioned.SubjectID) {
		t.Fatalf("expected 32 hex char subject id, got %q", provisioned.SubjectID)
	}
}

func TestAutoProvisionUserNameFallbacks(t *testing.T) {
	resolver, _ := newTestResolver(t)

	firstOnly, err := resolver.AutoProvisionUser("Google", "ext-2", []Claim{
		{Type: ClaimTypeGivenName, Value: "Grace"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if firstOnly.Username != "Grace" {
		t.Fatalf("expected given name alone, got %q", firstOnly.Username)
	}

	lastOnly, err := resolver.AutoProvisionUser("Google", "ext-3", []Claim{
		{Type: ClaimTypeFamilyName, Value: "Hopper"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lastOnly.Username != "Hopper" {
		t.Fatalf("expected family name alone, got %q", lastOnly.Username)
	}

	noName, err := resolver.AutoProvisionUser("Google", "ext-4", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := findClaim(noName.Claims, ClaimTypeName); ok {
		t.Fatalf("expected no name claim when nothing to synthesize from")
	}
	if noName.Username != noName.SubjectID {
		t.Fatalf("display name must fall back to the subject id, got %q", noName.Username)
	}
}

func TestAutoProvisionUserRemapsClaimTypes(t *testing.T) {
	resolver, _ := newTestResolver(t)

	provisioned, err := resolver.AutoProvisionUser("AzureAD", "ext-5", []Claim{
		{Type: externalNameClaimType, Value: "Katherine Johnson"},
		{Type: "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress", Value: "kj@example.com"},
		{Type: "favorite_color", Value: "blue"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if name, ok := findClaim(provisioned.Claims, ClaimTypeName); !ok || name != "Katherine Johnson" {
		t.Fatalf("expected display-name claim remapped to %q, got %q", ClaimTypeName, name)
	}
	if email, ok := findClaim(provisioned.Claims, ClaimTypeEmail); !ok || email != "kj@example.com" {
		t.Fatalf("expected email claim remapped from long form, got %q", email)
	}
	if color, ok := findClaim(provisioned.Claims, "favorite_color"); !ok || color != "blue" {
		t.Fatalf("expected unmapped claim to pass through, got %q", color)
	}
	for _, claim := range provisioned.Claims {
		if claim.Type == externalNameClaimType {
			t.Fatalf("long-form name claim type must not survive remapping: %v", provisioned.Claims)
		}
	}
}

func TestAutoProvisionUserGeneratesUniqueSubjectIDs(t *testing.T) {
	resolver, _ := newTestResolver(t)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		provisioned, err := resolver.AutoProvisionUser("Google", "ext", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seen[provisioned.SubjectID] {
			t.Fatalf("duplicate subject id %q", provisioned.SubjectID)
		}
		seen[provisioned.SubjectID] = true
	}
}
