package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("identity: database handle is required")
	noOpLogger         = zap.NewNop()
)

// StoreConfig describes the dependencies required by the identity store.
type StoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Store provides set-based read access to the identity graph and a
// concurrency-safe write pipeline over it.
type Store struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewStore constructs the store around an open database handle.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{
		db:     cfg.Database,
		clock:  clock,
		logger: logger,
	}, nil
}

// UserByUsername returns the user matching the exact username, or nil when absent.
func (s *Store) UserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).
		Where("user_name = ?", username).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UserByID returns the user with the given internal id, or nil when absent.
func (s *Store) UserByID(ctx context.Context, id string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).
		Where("id = ?", id).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// AllUsers returns every user row in store iteration order.
func (s *Store) AllUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := s.db.WithContext(ctx).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// UserClaims returns the direct claims of one user in store iteration order.
func (s *Store) UserClaims(ctx context.Context, userID string) ([]UserClaim, error) {
	var claims []UserClaim
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&claims).Error; err != nil {
		return nil, err
	}
	return claims, nil
}

// RoleNamesForUser returns the name of every role joined to the user, one entry
// per membership row.
func (s *Store) RoleNamesForUser(ctx context.Context, userID string) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).
		Model(&UserRole{}).
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Where("user_roles.user_id = ?", userID).
		Pluck("roles.name", &names).Error
	if err != nil {
		return nil, err
	}
	return names, nil
}

// RoleClaimsForUser returns every role claim reachable through the user's
// memberships, without de-duplication.
func (s *Store) RoleClaimsForUser(ctx context.Context, userID string) ([]RoleClaim, error) {
	var claims []RoleClaim
	err := s.db.WithContext(ctx).
		Model(&RoleClaim{}).
		Joins("JOIN user_roles ON user_roles.role_id = role_claims.role_id").
		Where("user_roles.user_id = ?", userID).
		Find(&claims).Error
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// ClientOrigins returns every distinct origin string owned by a registered client.
func (s *Store) ClientOrigins(ctx context.Context) ([]string, error) {
	var origins []string
	err := s.db.WithContext(ctx).
		Model(&ClientCorsOrigin{}).
		Joins("JOIN clients ON clients.id = client_cors_origins.client_id").
		Distinct().
		Pluck("client_cors_origins.origin", &origins).Error
	if err != nil {
		return nil, err
	}
	return origins, nil
}

func normalize(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}

func newRowID() string {
	value, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the entropy source does; fall back to v4.
		return uuid.NewString()
	}
	return value.String()
}
