// Package origins answers whether a web origin is allowed to call the
// provider cross-origin, from an allow list derived from registered clients.
package origins

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/solsticelabs/beacon/internal/identity"
	"go.uber.org/zap"
)

var (
	errMissingStore = errors.New("origins: identity store is required")
	noOpLogger      = zap.NewNop()
)

// originSet is an immutable lowercase origin lookup table. Lookups always go
// through an atomically published snapshot; the live set is never mutated.
type originSet map[string]struct{}

// PolicyConfig describes the dependencies and initial switches for the policy.
type PolicyConfig struct {
	Store    *identity.Store
	Logger   *zap.Logger
	AllowAll bool
}

// Policy serves point lookups against the current origin allow list.
type Policy struct {
	store    *identity.Store
	logger   *zap.Logger
	allowed  atomic.Pointer[originSet]
	allowAll atomic.Bool
}

// NewPolicy constructs the policy and performs the initial allow-list load.
// The list does not refresh on its own afterwards; callers schedule Refresh
// when staleness matters.
func NewPolicy(ctx context.Context, cfg PolicyConfig) (*Policy, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	policy := &Policy{
		store:  cfg.Store,
		logger: logger,
	}
	policy.allowAll.Store(cfg.AllowAll)
	empty := make(originSet)
	policy.allowed.Store(&empty)

	if err := policy.Refresh(ctx); err != nil {
		return nil, err
	}
	return policy, nil
}

// Refresh rebuilds the allow list from every origin owned by a registered
// client and publishes it as a new snapshot. In-flight lookups keep reading
// the previous snapshot until the swap.
func (p *Policy) Refresh(ctx context.Context) error {
	stored, err := p.store.ClientOrigins(ctx)
	if err != nil {
		return err
	}

	next := make(originSet, len(stored))
	for _, origin := range stored {
		next[strings.ToLower(origin)] = struct{}{}
	}
	p.allowed.Store(&next)

	p.logger.Debug("origin allow list refreshed", zap.Int("origins", len(next)))
	return nil
}

// IsOriginAllowed reports whether the origin may call cross-origin. A blank
// origin is never allowed, even under the allow-all override; otherwise the
// override short-circuits, then the allow list is consulted
// case-insensitively. No wildcard or suffix matching is performed.
func (p *Policy) IsOriginAllowed(origin string) bool {
	if strings.TrimSpace(origin) == "" {
		return false
	}
	if p.allowAll.Load() {
		p.logger.Debug("allow-all enabled, origin allowed", zap.String("origin", origin))
		return true
	}

	set := *p.allowed.Load()
	if _, ok := set[strings.ToLower(origin)]; ok {
		p.logger.Debug("origin allowed", zap.String("origin", origin))
		return true
	}
	p.logger.Debug("origin not allowed", zap.String("origin", origin))
	return false
}

// SetAllowAll toggles the all-or-nothing override.
func (p *Policy) SetAllowAll(allow bool) {
	p.allowAll.Store(allow)
}

// AllowAll reports the current override state.
func (p *Policy) AllowAll() bool {
	return p.allowAll.Load()
}
