package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/solsticelabs/beacon/internal/subject"
	"go.uber.org/zap"
)

const defaultJWKSCacheTTL = 10 * time.Minute

var (
	errMissingToken          = errors.New("id token must not be empty")
	errMissingKeyIdentifier  = errors.New("token missing key identifier")
	errKeyNotFound           = errors.New("signing key not found in JWKS")
	errUntrustedIssuer       = errors.New("token issuer not allowed")
	errMissingSubject        = errors.New("token missing subject claim")
	errMissingProviderName   = errors.New("provider name configuration required")
	errMissingAudienceConfig = errors.New("audience configuration required")
	errMissingJWKSURL        = errors.New("jwks url configuration required")
	errNoAllowedIssuers      = errors.New("no allowed issuers configured")

	// ErrInvalidVerifierConfig wraps any provider verifier construction failure.
	ErrInvalidVerifierConfig = errors.New("auth: invalid provider verifier config")
)

// profileClaimTypes are the token payload claims carried over into the
// external identity for auto-provisioning.
var profileClaimTypes = []string{
	subject.ClaimTypeName,
	subject.ClaimTypeGivenName,
	subject.ClaimTypeFamilyName,
	subject.ClaimTypeEmail,
	"picture",
	"locale",
}

// ProviderVerifierConfig bundles configuration for one external identity provider.
type ProviderVerifierConfig struct {
	Provider       string
	Audience       string
	JWKSURL        string
	AllowedIssuers []string
	HTTPClient     *http.Client
	CacheTTL       time.Duration
	Logger         *zap.Logger
	Clock          func() time.Time
}

// ExternalIdentity is the validated result of an external ID token: the
// provider name, the provider-side subject and the profile claims worth
// transferring into the local claim set.
type ExternalIdentity struct {
	Provider string
	Subject  string
	Claims   []subject.Claim
}

// ProviderVerifier verifies external provider ID tokens offline using cached JWKS.
type ProviderVerifier struct {
	config     ProviderVerifierConfig
	logger     *zap.Logger
	httpClient *http.Client
	clock      func() time.Time
	cache      *jwksCache
	issuers    map[string]struct{}
}

// NewProviderVerifier constructs a verifier with validated configuration.
func NewProviderVerifier(cfg ProviderVerifierConfig) (*ProviderVerifier, error) {
	provider := strings.TrimSpace(cfg.Provider)
	if provider == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVerifierConfig, errMissingProviderName)
	}

	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVerifierConfig, errMissingAudienceConfig)
	}

	jwksURL := strings.TrimSpace(cfg.JWKSURL)
	if jwksURL == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVerifierConfig, errMissingJWKSURL)
	}

	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = defaultJWKSCacheTTL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	issuers := make(map[string]struct{})
	for _, issuer := range cfg.AllowedIssuers {
		normalized := strings.TrimSpace(issuer)
		if normalized == "" {
			continue
		}
		issuers[normalized] = struct{}{}
	}
	if len(issuers) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVerifierConfig, errNoAllowedIssuers)
	}

	return &ProviderVerifier{
		config: ProviderVerifierConfig{
			Provider:       provider,
			Audience:       audience,
			JWKSURL:        jwksURL,
			AllowedIssuers: cfg.AllowedIssuers,
			HTTPClient:     httpClient,
			CacheTTL:       cacheTTL,
			Logger:         logger,
			Clock:          clock,
		},
		logger:     logger,
		httpClient: httpClient,
		clock:      clock,
		cache:      &jwksCache{ttl: cacheTTL},
		issuers:    issuers,
	}, nil
}

// Provider returns the configured provider name.
func (v *ProviderVerifier) Provider() string {
	return v.config.Provider
}

// Verify validates the provided ID token and returns the external identity it
// asserts.
func (v *ProviderVerifier) Verify(ctx context.Context, rawToken string) (ExternalIdentity, error) {
	if rawToken == "" {
		return ExternalIdentity{}, errMissingToken
	}

	payload := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(
		rawToken,
		payload,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodRS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", token.Method.Alg())
			}
			keyID, _ := token.Header["kid"].(string)
			if keyID == "" {
				return nil, errMissingKeyIdentifier
			}
			return v.lookupKey(ctx, keyID)
		},
		jwt.WithAudience(v.config.Audience),
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithTimeFunc(v.clock),
	)
	if err != nil {
		return ExternalIdentity{}, err
	}
	if !token.Valid {
		return ExternalIdentity{}, errors.New("token signature invalid")
	}

	issuer, _ := payload.GetIssuer()
	if _, allowed := v.issuers[issuer]; !allowed {
		return ExternalIdentity{}, errUntrustedIssuer
	}

	externalSubject, _ := payload.GetSubject()
	if externalSubject == "" {
		return ExternalIdentity{}, errMissingSubject
	}

	claims := make([]subject.Claim, 0, len(profileClaimTypes))
	for _, claimType := range profileClaimTypes {
		if value, ok := payload[claimType].(string); ok && value != "" {
			claims = append(claims, subject.Claim{Type: claimType, Value: value})
		}
	}

	return ExternalIdentity{
		Provider: v.config.Provider,
		Subject:  externalSubject,
		Claims:   claims,
	}, nil
}

func (v *ProviderVerifier) lookupKey(ctx context.Context, keyID string) (*rsa.PublicKey, error) {
	now := v.clock()
	if key := v.cache.get(keyID, now); key != nil {
		return key, nil
	}

	if err := v.refreshKeys(ctx, now); err != nil {
		return nil, err
	}

	if key := v.cache.get(keyID, now); key != nil {
		return key, nil
	}

	return nil, errKeyNotFound
}

func (v *ProviderVerifier) refreshKeys(ctx context.Context, fetchedAt time.Time) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.config.JWKSURL, nil)
	if err != nil {
		return err
	}

	response, err := v.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks request returned status %d", response.StatusCode)
	}

	var document jwksDocument
	if err := json.NewDecoder(response.Body).Decode(&document); err != nil {
		return err
	}

	keyMap := make(map[string]*rsa.PublicKey, len(document.Keys))
	for _, key := range document.Keys {
		if key.KeyType != "RSA" || key.Use != "sig" {
			continue
		}
		publicKey, err := key.toRSAPublicKey()
		if err != nil {
			v.logger.Debug("skipping jwk", zap.String("kid", key.KeyID), zap.Error(err))
			continue
		}
		keyMap[key.KeyID] = publicKey
	}

	if len(keyMap) == 0 {
		return errors.New("jwks document contained no usable keys")
	}

	v.cache.store(keyMap, fetchedAt)
	return nil
}

type jwksCache struct {
	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	expiresAt time.Time
	ttl       time.Duration
}

func (c *jwksCache) get(keyID string, now time.Time) *rsa.PublicKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.keys == nil || now.After(c.expiresAt) {
		return nil
	}
	return c.keys[keyID]
}

func (c *jwksCache) store(keys map[string]*rsa.PublicKey, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = keys
	c.expiresAt = now.Add(c.ttl)
}

type jwksDocument struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	KeyType string `json:"kty"`
	Alg     string `json:"alg"`
	KeyID   string `json:"kid"`
	Use     string `json:"use"`
	Modulus string `json:"n"`
	Exp     string `json:"e"`
}

func (k jwk) toRSAPublicKey() (*rsa.PublicKey, error) {
	modulusBytes, err := base64.RawURLEncoding.DecodeString(k.Modulus)
	if err != nil {
		return nil, fmt.Errorf("invalid modulus encoding: %w", err)
	}
	exponentBytes, err := base64.RawURLEncoding.DecodeString(k.Exp)
	if err != nil {
		return nil, fmt.Errorf("invalid exponent encoding: %w", err)
	}

	if len(exponentBytes) == 0 {
		return nil, errors.New("missing exponent bytes")
	}

	exponent := 0
	for _, b := range exponentBytes {
		exponent = exponent<<8 + int(b)
	}
	if exponent == 0 {
		return nil, errors.New("invalid exponent value")
	}

	publicKey := &rsa.PublicKey{
		N: new(big.Int).SetBytes(modulusBytes),
		E: exponent,
	}

	return publicKey, nil
}
