package subject

// Claim type constants follow the OIDC standard claim names.
const (
	ClaimTypeName       = "name"
	ClaimTypeGivenName  = "given_name"
	ClaimTypeFamilyName = "family_name"
	ClaimTypeEmail      = "email"
	ClaimTypeRole       = "role"
)

// externalNameClaimType is the generic display-name claim type emitted by
// WS-Fed style external identity systems; it is rewritten to the canonical
// name claim during auto-provisioning.
const externalNameClaimType = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/name"

// outboundClaimTypeMap translates long-form external claim type URIs to their
// canonical short types. Claim types absent from this table pass through the
// auto-provisioning remap unchanged.
var outboundClaimTypeMap = map[string]string{
	"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress":   ClaimTypeEmail,
	"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/givenname":      ClaimTypeGivenName,
	"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/surname":        ClaimTypeFamilyName,
	"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/nameidentifier": "nameid",
	"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/dateofbirth":    "birthdate",
	"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/gender":         "gender",
	"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/webpage":        "website",
	"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/mobilephone":    "phone_number",
}

// Claim is a typed key/value assertion about a subject.
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ResolvedSubject is the canonical identity record handed to the protocol
// layer after resolution. It is built fresh on every call and never cached.
type ResolvedSubject struct {
	SubjectID         string
	Username          string
	IsActive          bool
	Claims            []Claim
	PasswordHash      string
	ProviderName      string
	ProviderSubjectID string
}

func findClaim(claims []Claim, claimType string) (string, bool) {
	for _, claim := range claims {
		if claim.Type == claimType {
			return claim.Value, true
		}
	}
	return "", false
}
