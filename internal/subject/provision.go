package subject

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const subjectIDByteLength = 16

// AutoProvisionUser builds a transient subject for a first-time federated
// login. External claim types are remapped to their canonical short forms, a
// name claim is synthesized from given/family name when absent, and a fresh
// random subject id is generated. The subject is not persisted; persistence,
// when wanted, belongs to the protocol layer.
func (r *Resolver) AutoProvisionUser(provider, externalUserID string, externalClaims []Claim) (ResolvedSubject, error) {
	filtered := make([]Claim, 0, len(externalClaims)+1)
	for _, claim := range externalClaims {
		switch {
		case claim.Type == externalNameClaimType:
			filtered = append(filtered, Claim{Type: ClaimTypeName, Value: claim.Value})
		case outboundClaimTypeMap[claim.Type] != "":
			filtered = append(filtered, Claim{Type: outboundClaimTypeMap[claim.Type], Value: claim.Value})
		default:
			filtered = append(filtered, claim)
		}
	}

	if _, ok := findClaim(filtered, ClaimTypeName); !ok {
		first, hasFirst := findClaim(filtered, ClaimTypeGivenName)
		last, hasLast := findClaim(filtered, ClaimTypeFamilyName)
		switch {
		case hasFirst && hasLast:
			filtered = append(filtered, Claim{Type: ClaimTypeName, Value: first + " " + last})
		case hasFirst:
			filtered = append(filtered, Claim{Type: ClaimTypeName, Value: first})
		case hasLast:
			filtered = append(filtered, Claim{Type: ClaimTypeName, Value: last})
		}
	}

	sub, err := newUniqueSubjectID()
	if err != nil {
		return ResolvedSubject{}, fmt.Errorf("subject: generate subject id: %w", err)
	}

	displayName := sub
	if name, ok := findClaim(filtered, ClaimTypeName); ok {
		displayName = name
	}

	return ResolvedSubject{
		SubjectID:         sub,
		Username:          displayName,
		IsActive:          true,
		Claims:            filtered,
		ProviderName:      provider,
		ProviderSubjectID: externalUserID,
	}, nil
}

// newUniqueSubjectID returns a hex-encoded identifier built from
// cryptographically strong random bytes.
func newUniqueSubjectID() (string, error) {
	buf := make([]byte, subjectIDByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
