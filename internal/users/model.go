package users

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Provider enumerates the external identity services a user can link.
type Provider string

const (
	ProviderGitHub   Provider = "github"
	ProviderTwitter  Provider = "twitter"
	ProviderFacebook Provider = "facebook"
)

const unusablePasswordPrefix = "!"

// ErrUnknownProvider indicates the provider is not one of the supported services.
var ErrUnknownProvider = errors.New("users: unknown provider")

// Providers returns the supported providers in display order.
func Providers() []Provider {
	return []Provider{ProviderGitHub, ProviderTwitter, ProviderFacebook}
}

// ParseProvider validates raw input and returns the matching Provider.
func ParseProvider(rawInput string) (Provider, error) {
	candidate := Provider(strings.ToLower(strings.TrimSpace(rawInput)))
	for _, provider := range Providers() {
		if provider == candidate {
			return provider, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, rawInput)
}

// String returns the provider identifier.
func (p Provider) String() string {
	return string(p)
}

// User is a local account. Linked identities reference it by ID.
type User struct {
	ID           string    `gorm:"column:id;primaryKey;size:64;not null"`
	Username     string    `gorm:"column:username;size:150;not null;uniqueIndex"`
	Email        string    `gorm:"column:email;size:320"`
	PasswordHash string    `gorm:"column:password_hash;size:128;not null;default:''"`
	IsStaff      bool      `gorm:"column:is_staff;not null;default:false"`
	IsActive     bool      `gorm:"column:is_active;not null;default:true"`
	LastLoginAt  time.Time `gorm:"column:last_login_at"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing local accounts.
func (User) TableName() string {
	return "users"
}

// HasUsablePassword reports whether the account can sign in with a local password.
func (u User) HasUsablePassword() bool {
	return u.PasswordHash != "" && !strings.HasPrefix(u.PasswordHash, unusablePasswordPrefix)
}

// LinkedIdentity associates a user with one account at an external provider.
type LinkedIdentity struct {
	ID          uint      `gorm:"column:id;primaryKey;autoIncrement"`
	UserID      string    `gorm:"column:user_id;size:64;not null;uniqueIndex:idx_identity_user_provider,priority:1"`
	Provider    Provider  `gorm:"column:provider;size:32;not null;uniqueIndex:idx_identity_user_provider,priority:2;uniqueIndex:idx_identity_provider_uid,priority:1"`
	UID         string    `gorm:"column:uid;size:190;not null;uniqueIndex:idx_identity_provider_uid,priority:2"`
	Login       string    `gorm:"column:login;size:190"`
	DisplayName string    `gorm:"column:display_name;size:320"`
	ProfileURL  string    `gorm:"column:profile_url;size:512"`
	ExtraJSON   string    `gorm:"column:extra_json;type:text"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing linked identities.
func (LinkedIdentity) TableName() string {
	return "linked_identities"
}

// Profile is the normalized account data returned by a provider after a successful handshake.
type Profile struct {
	Provider    Provider
	UID         string
	Login       string
	DisplayName string
	Email       string
	ProfileURL  string
	RawJSON     string
}

// NewUserRequest describes a local account to create.
// An empty Password produces an account without a usable password.
type NewUserRequest struct {
	Username string
	Email    string
	Password string
	IsStaff  bool
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
