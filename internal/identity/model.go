package identity

import "time"

// User is a locally registered account. The concurrency stamp is opaque and is
// rotated by the store on every successful update; callers must never interpret it.
type User struct {
	ID                 string    `gorm:"column:id;primaryKey;size:190;not null"`
	UserName           string    `gorm:"column:user_name;size:256;uniqueIndex"`
	NormalizedUserName string    `gorm:"column:normalized_user_name;size:256;index"`
	Email              string    `gorm:"column:email;size:256"`
	NormalizedEmail    string    `gorm:"column:normalized_email;size:256"`
	PasswordHash       string    `gorm:"column:password_hash;type:text"`
	ConcurrencyStamp   string    `gorm:"column:concurrency_stamp;size:64;not null"`
	// The write pipeline owns this column; gorm's automatic tracking is off.
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime:false"`

	Claims []UserClaim `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Roles  []UserRole  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Logins []UserLogin `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Tokens []UserToken `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}

// Role groups claims shared by its members.
type Role struct {
	ID               string    `gorm:"column:id;primaryKey;size:190;not null"`
	Name             string    `gorm:"column:name;size:256;uniqueIndex"`
	NormalizedName   string    `gorm:"column:normalized_name;size:256;index"`
	ConcurrencyStamp string    `gorm:"column:concurrency_stamp;size:64;not null"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime:false"`

	Claims  []RoleClaim `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE"`
	Members []UserRole  `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE"`
}

// TableName provides the explicit table binding for GORM.
func (Role) TableName() string {
	return "roles"
}

// UserClaim is a typed assertion attached directly to a user.
type UserClaim struct {
	ID         string `gorm:"column:id;primaryKey;size:190;not null"`
	UserID     string `gorm:"column:user_id;size:190;not null;index"`
	ClaimType  string `gorm:"column:claim_type;size:256"`
	ClaimValue string `gorm:"column:claim_value;type:text"`
}

// TableName provides the explicit table binding for GORM.
func (UserClaim) TableName() string {
	return "user_claims"
}

// RoleClaim is a typed assertion inherited by every member of a role.
type RoleClaim struct {
	ID         string `gorm:"column:id;primaryKey;size:190;not null"`
	RoleID     string `gorm:"column:role_id;size:190;not null;index"`
	ClaimType  string `gorm:"column:claim_type;size:256"`
	ClaimValue string `gorm:"column:claim_value;type:text"`
}

// TableName provides the explicit table binding for GORM.
func (RoleClaim) TableName() string {
	return "role_claims"
}

// UserRole joins users to roles. The composite key forbids duplicate memberships.
type UserRole struct {
	UserID string `gorm:"column:user_id;primaryKey;size:190;not null"`
	RoleID string `gorm:"column:role_id;primaryKey;size:190;not null"`
}

// TableName provides the explicit table binding for GORM.
func (UserRole) TableName() string {
	return "user_roles"
}

// UserLogin maps one external identity (provider plus provider-side key) to at
// most one local user.
type UserLogin struct {
	LoginProvider       string `gorm:"column:login_provider;primaryKey;size:128;not null"`
	ProviderKey         string `gorm:"column:provider_key;primaryKey;size:190;not null"`
	ProviderDisplayName string `gorm:"column:provider_display_name;size:256"`
	UserID              string `gorm:"column:user_id;size:190;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (UserLogin) TableName() string {
	return "user_logins"
}

// UserToken stores provider-issued token material keyed by user, provider and name.
type UserToken struct {
	UserID        string `gorm:"column:user_id;primaryKey;size:190;not null"`
	LoginProvider string `gorm:"column:login_provider;primaryKey;size:128;not null"`
	Name          string `gorm:"column:name;primaryKey;size:128;not null"`
	Value         string `gorm:"column:value;type:text"`
}

// TableName provides the explicit table binding for GORM.
func (UserToken) TableName() string {
	return "user_tokens"
}

// Client is a registered relying party. Origins are only trusted while their
// owning client row exists.
type Client struct {
	ID         string `gorm:"column:id;primaryKey;size:190;not null"`
	ClientID   string `gorm:"column:client_id;size:190;uniqueIndex"`
	ClientName string `gorm:"column:client_name;size:256"`
	Enabled    bool   `gorm:"column:enabled;not null;default:true"`

	CorsOrigins []ClientCorsOrigin `gorm:"foreignKey:ClientID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName provides the explicit table binding for GORM.
func (Client) TableName() string {
	return "clients"
}

// ClientCorsOrigin is one web origin a client may call the provider from.
type ClientCorsOrigin struct {
	ID       string `gorm:"column:id;primaryKey;size:190;not null"`
	ClientID string `gorm:"column:client_id;size:190;not null;index"`
	Origin   string `gorm:"column:origin;size:320;not null"`
}

// TableName provides the explicit table binding for GORM.
func (ClientCorsOrigin) TableName() string {
	return "client_cors_origins"
}

// Models lists every persisted entity for schema migration.
func Models() []any {
	return []any{
		&User{},
		&Role{},
		&UserClaim{},
		&RoleClaim{},
		&UserRole{},
		&UserLogin{},
		&UserToken{},
		&Client{},
		&ClientCorsOrigin{},
	}
}
