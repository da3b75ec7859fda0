package identity

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrRecordAlreadyUpdated is returned when a commit loses an optimistic
// concurrency race. The caller must re-read and reapply; the store never
// retries or merges on its own.
var ErrRecordAlreadyUpdated = errors.New("identity: record already updated")

// commit runs one atomic write: stamp the commit time, apply inside a
// transaction, translate a zero-row update into the conflict error. Each call
// moves through stamping, committing and either committed or conflict; a
// conflicting call is terminal and the caller starts over if it retries.
func (s *Store) commit(ctx context.Context, entity string, apply func(tx *gorm.DB, now time.Time) (int64, error)) error {
	now := s.clock().UTC()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		affected, applyErr := apply(tx, now)
		if applyErr != nil {
			return applyErr
		}
		if affected == 0 {
			return ErrRecordAlreadyUpdated
		}
		return nil
	})

	if errors.Is(err, ErrRecordAlreadyUpdated) {
		// zap has no critical level; Error is the highest severity that does
		// not panic, so conflicts are logged there with an explicit marker.
		s.logger.Error("optimistic concurrency conflict",
			zap.String("severity", "critical"),
			zap.String("entity", entity))
		return ErrRecordAlreadyUpdated
	}
	return err
}

// SaveUser commits pending changes to an existing user row. The updated-at
// column is always stamped with the store clock, never the caller's value, and
// the concurrency stamp is rotated so later writers see the row changed.
func (s *Store) SaveUser(ctx context.Context, user *User) error {
	previousStamp := user.ConcurrencyStamp
	previousUpdatedAt := user.UpdatedAt

	err := s.commit(ctx, "user", func(tx *gorm.DB, now time.Time) (int64, error) {
		user.UpdatedAt = now
		user.ConcurrencyStamp = newRowID()
		res := tx.Model(&User{}).
			Where("id = ? AND concurrency_stamp = ?", user.ID, previousStamp).
			Updates(map[string]any{
				"user_name":            user.UserName,
				"normalized_user_name": user.NormalizedUserName,
				"email":                user.Email,
				"normalized_email":     user.NormalizedEmail,
				"password_hash":        user.PasswordHash,
				"concurrency_stamp":    user.ConcurrencyStamp,
				"updated_at":           user.UpdatedAt,
			})
		return res.RowsAffected, res.Error
	})
	if err != nil {
		user.ConcurrencyStamp = previousStamp
		user.UpdatedAt = previousUpdatedAt
		return err
	}
	return nil
}

// SaveRole commits pending changes to an existing role row under the same
// stamping and conflict policy as SaveUser.
func (s *Store) SaveRole(ctx context.Context, role *Role) error {
	previousStamp := role.ConcurrencyStamp
	previousUpdatedAt := role.UpdatedAt

	err := s.commit(ctx, "role", func(tx *gorm.DB, now time.Time) (int64, error) {
		role.UpdatedAt = now
		role.ConcurrencyStamp = newRowID()
		res := tx.Model(&Role{}).
			Where("id = ? AND concurrency_stamp = ?", role.ID, previousStamp).
			Updates(map[string]any{
				"name":              role.Name,
				"normalized_name":   role.NormalizedName,
				"concurrency_stamp": role.ConcurrencyStamp,
				"updated_at":        role.UpdatedAt,
			})
		return res.RowsAffected, res.Error
	})
	if err != nil {
		role.ConcurrencyStamp = previousStamp
		role.UpdatedAt = previousUpdatedAt
		return err
	}
	return nil
}

// CreateUser inserts a new user row, assigning the generated id, normalized
// columns and initial concurrency stamp.
func (s *Store) CreateUser(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = newRowID()
	}
	user.NormalizedUserName = normalize(user.UserName)
	user.NormalizedEmail = normalize(user.Email)
	user.ConcurrencyStamp = newRowID()
	user.UpdatedAt = s.clock().UTC()
	return s.db.WithContext(ctx).Create(user).Error
}

// CreateRole inserts a new role row.
func (s *Store) CreateRole(ctx context.Context, role *Role) error {
	if role.ID == "" {
		role.ID = newRowID()
	}
	role.NormalizedName = normalize(role.Name)
	role.ConcurrencyStamp = newRowID()
	role.UpdatedAt = s.clock().UTC()
	return s.db.WithContext(ctx).Create(role).Error
}

// AddUserClaim attaches a direct claim to a user.
func (s *Store) AddUserClaim(ctx context.Context, userID, claimType, claimValue string) error {
	claim := UserClaim{
		ID:         newRowID(),
		UserID:     userID,
		ClaimType:  claimType,
		ClaimValue: claimValue,
	}
	return s.db.WithContext(ctx).Create(&claim).Error
}

// AddRoleClaim attaches a claim to a role.
func (s *Store) AddRoleClaim(ctx context.Context, roleID, claimType, claimValue string) error {
	claim := RoleClaim{
		ID:         newRowID(),
		RoleID:     roleID,
		ClaimType:  claimType,
		ClaimValue: claimValue,
	}
	return s.db.WithContext(ctx).Create(&claim).Error
}

// AssignRole joins a user to a role.
func (s *Store) AssignRole(ctx context.Context, userID, roleID string) error {
	membership := UserRole{UserID: userID, RoleID: roleID}
	return s.db.WithContext(ctx).Create(&membership).Error
}

// AddUserLogin records an external identity mapping for a user.
func (s *Store) AddUserLogin(ctx context.Context, login *UserLogin) error {
	return s.db.WithContext(ctx).Create(login).Error
}

// CreateClient inserts a client together with its CORS origins.
func (s *Store) CreateClient(ctx context.Context, client *Client, origins ...string) error {
	if client.ID == "" {
		client.ID = newRowID()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(client).Error; err != nil {
			return err
		}
		for _, origin := range origins {
			row := ClientCorsOrigin{
				ID:       newRowID(),
				ClientID: client.ID,
				Origin:   origin,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
