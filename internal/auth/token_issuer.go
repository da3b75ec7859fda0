// Package auth carries the thin token edge around subject resolution: issuing
// HS256 access tokens for resolved subjects and verifying external provider
// ID tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/solsticelabs/beacon/internal/subject"
)

const defaultTokenTTL = 30 * time.Minute

var (
	errMissingSigningSecret = errors.New("signing secret must be provided")
	errMissingSubjectClaim  = errors.New("subject claim must be provided")
)

// reservedClaims are set by the issuer itself; subject claims with these
// types are not copied into the token payload.
var reservedClaims = map[string]struct{}{
	"sub": {},
	"iss": {},
	"aud": {},
	"iat": {},
	"exp": {},
}

// TokenIssuerConfig configures the access token issuer.
type TokenIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// TokenIssuer issues access tokens for resolved subjects.
type TokenIssuer struct {
	config TokenIssuerConfig
	clock  func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer with sane defaults.
func NewTokenIssuer(cfg TokenIssuerConfig) *TokenIssuer {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenIssuer{
		config: TokenIssuerConfig{
			SigningSecret: cfg.SigningSecret,
			Issuer:        cfg.Issuer,
			Audience:      cfg.Audience,
			TokenTTL:      ttl,
			Clock:         clock,
		},
		clock: clock,
	}
}

// IssueSubjectToken produces a signed JWT for the resolved subject along with
// its expiry in seconds. The subject's claim set is embedded in the payload;
// repeated claim types accumulate into arrays.
func (i *TokenIssuer) IssueSubjectToken(_ context.Context, resolved subject.ResolvedSubject) (string, int64, error) {
	if len(i.config.SigningSecret) == 0 {
		return "", 0, errMissingSigningSecret
	}
	if resolved.SubjectID == "" {
		return "", 0, errMissingSubjectClaim
	}

	now := i.clock().UTC()
	expiresAt := now.Add(i.config.TokenTTL).UTC()

	payload := jwt.MapClaims{
		"sub": resolved.SubjectID,
		"iss": i.config.Issuer,
		"aud": i.config.Audience,
		"iat": jwt.NewNumericDate(now),
		"exp": jwt.NewNumericDate(expiresAt),
	}
	if resolved.ProviderName != "" {
		payload["idp"] = resolved.ProviderName
	}
	for _, claim := range resolved.Claims {
		if _, reserved := reservedClaims[claim.Type]; reserved {
			continue
		}
		switch existing := payload[claim.Type].(type) {
		case nil:
			payload[claim.Type] = claim.Value
		case string:
			payload[claim.Type] = []string{existing, claim.Value}
		case []string:
			payload[claim.Type] = append(existing, claim.Value)
		}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)
	signed, err := token.SignedString(i.config.SigningSecret)
	if err != nil {
		return "", 0, err
	}

	return signed, int64(expiresAt.Sub(now).Seconds()), nil
}

// ValidateToken ensures the access token is well formed and returns its
// subject identifier.
func (i *TokenIssuer) ValidateToken(tokenString string) (string, error) {
	if len(i.config.SigningSecret) == 0 {
		return "", errMissingSigningSecret
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", token.Method.Alg())
			}
			return i.config.SigningSecret, nil
		},
		jwt.WithAudience(i.config.Audience),
		jwt.WithIssuer(i.config.Issuer),
		jwt.WithTimeFunc(i.clock),
	)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errMissingSubjectClaim
	}
	return claims.Subject, nil
}
