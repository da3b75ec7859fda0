package subject

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/solsticelabs/beacon/internal/identity"
	"go.uber.org/zap"
)

var (
	errMissingStore = errors.New("subject: identity store is required")
	noOpLogger      = zap.NewNop()
)

// ResolverConfig describes the dependencies for subject resolution.
type ResolverConfig struct {
	Store  *identity.Store
	Logger *zap.Logger
}

// Resolver reconstructs complete identity claim sets from the relational
// identity graph. All query methods are stateless and safe for concurrent use.
type Resolver struct {
	store  *identity.Store
	logger *zap.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Resolver{
		store:  cfg.Store,
		logger: logger,
	}, nil
}

// HashPassword applies the store's one-way password hash.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// ValidateCredentials checks the supplied password against the stored hash.
// A missing user and a wrong password are indistinguishable to the caller;
// both yield false. An account with an empty stored hash accepts an empty
// password. The returned error carries storage failures only.
func (r *Resolver) ValidateCredentials(ctx context.Context, username, password string) (bool, error) {
	user, err := r.store.UserByUsername(ctx, username)
	if err != nil {
		return false, err
	}
	if user == nil {
		return false, nil
	}
	if strings.TrimSpace(user.PasswordHash) == "" && strings.TrimSpace(password) == "" {
		return true, nil
	}
	return user.PasswordHash == HashPassword(password), nil
}

// FindByUsername resolves a subject by exact username match. A miss returns
// nil without error.
func (r *Resolver) FindByUsername(ctx context.Context, username string) (*ResolvedSubject, error) {
	user, err := r.store.UserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}
	return r.resolve(ctx, user)
}

// FindBySubjectID resolves a subject by its derived external identifier. The
// derivation is not invertible, so every user is scanned and the first whose
// derived id matches wins.
func (r *Resolver) FindBySubjectID(ctx context.Context, subjectID string) (*ResolvedSubject, error) {
	users, err := r.store.AllUsers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if SubjectID(users[i].ID) == subjectID {
			return r.resolve(ctx, &users[i])
		}
	}
	return nil, nil
}

func (r *Resolver) resolve(ctx context.Context, user *identity.User) (*ResolvedSubject, error) {
	claims, err := r.GetClaims(ctx, user)
	if err != nil {
		return nil, err
	}
	return &ResolvedSubject{
		SubjectID:    SubjectID(user.ID),
		Username:     user.UserName,
		IsActive:     true,
		Claims:       claims,
		PasswordHash: user.PasswordHash,
	}, nil
}

// GetClaims aggregates the user's claim set in three ordered segments: one
// role claim per membership, then role-derived claims, then direct user
// claims. Role-derived claims are de-duplicated on claim value alone, so
// claims of different types sharing a value collapse to the first one seen.
func (r *Resolver) GetClaims(ctx context.Context, user *identity.User) ([]Claim, error) {
	roleNames, err := r.store.RoleNamesForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	claims := make([]Claim, 0, len(roleNames))
	for _, name := range roleNames {
		claims = append(claims, Claim{Type: ClaimTypeRole, Value: name})
	}

	roleClaims, err := r.store.RoleClaimsForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	seenValues := make(map[string]struct{}, len(roleClaims))
	for _, roleClaim := range roleClaims {
		if _, dup := seenValues[roleClaim.ClaimValue]; dup {
			continue
		}
		seenValues[roleClaim.ClaimValue] = struct{}{}
		claims = append(claims, Claim{Type: roleClaim.ClaimType, Value: roleClaim.ClaimValue})
	}

	userClaims, err := r.store.UserClaims(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	for _, userClaim := range userClaims {
		claims = append(claims, Claim{Type: userClaim.ClaimType, Value: userClaim.ClaimValue})
	}

	return claims, nil
}

// FindByExternalProvider performs no lookup and returns the zero subject.
// External identities are matched through auto-provisioning instead; callers
// depend on this pass-through.
func (r *Resolver) FindByExternalProvider(provider, userID string) ResolvedSubject {
	_ = provider
	_ = userID
	return ResolvedSubject{}
}
