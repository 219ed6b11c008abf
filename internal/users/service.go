package users

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	maxUsernameLength  = 150
	minPasswordLength  = 8
	usernameCollisions = 50
)

var (
	// ErrInvalidIdentity indicates the provider profile did not contain a usable identifier.
	ErrInvalidIdentity = errors.New("users: invalid identity")
	// ErrInvalidCredentials indicates the username/password pair did not authenticate.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrUserNotFound indicates no account matched the lookup.
	ErrUserNotFound = errors.New("users: user not found")
	// ErrInvalidUsername indicates the username is empty or exceeds storage bounds.
	ErrInvalidUsername = errors.New("users: invalid username")
	// ErrUsernameTaken indicates another account already owns the username.
	ErrUsernameTaken = errors.New("users: username taken")
	// ErrPasswordTooShort indicates the password does not meet the minimum length.
	ErrPasswordTooShort = errors.New("users: password too short")
	// ErrIdentityConflict indicates the provider account belongs to another user,
	// or the user already linked a different account at the same provider.
	ErrIdentityConflict = errors.New("users: identity already associated")
	// ErrLastCredential indicates removing the identity would leave the user unable to sign in.
	ErrLastCredential = errors.New("users: cannot remove last credential")

	errMissingDatabase = errors.New("users: database connection required")
)

// ServiceConfig describes the dependencies required for account and identity management.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service manages local accounts and the provider identities linked to them.
type Service struct {
	db         *gorm.DB
	now        func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         cfg.Database,
		now:        clock,
		idProvider: idProvider,
		logger:     logger,
	}, nil
}

// CreateUser stores a new local account.
func (s *Service) CreateUser(ctx context.Context, request NewUserRequest) (User, error) {
	username := normalize(request.Username)
	if username == "" || len(username) > maxUsernameLength {
		return User{}, ErrInvalidUsername
	}
	passwordHash := unusablePasswordPrefix
	if request.Password != "" {
		hashed, err := hashPassword(request.Password)
		if err != nil {
			return User{}, err
		}
		passwordHash = hashed
	}
	identifier, err := s.idProvider.NewID()
	if err != nil {
		return User{}, fmt.Errorf("users: issue id: %w", err)
	}

	user := User{
		ID:           identifier,
		Username:     username,
		Email:        normalize(request.Email),
		PasswordHash: passwordHash,
		IsStaff:      request.IsStaff,
		IsActive:     true,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := usernameExists(tx, username)
		if err != nil {
			return err
		}
		if taken {
			return ErrUsernameTaken
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		return User{}, err
	}
	s.logger.Info("user created", zap.String("user_id", user.ID), zap.Bool("staff", user.IsStaff))
	return user, nil
}

// SetPassword replaces the password of the named account.
func (s *Service) SetPassword(ctx context.Context, userID, password string) error {
	hashed, err := hashPassword(password)
	if err != nil {
		return err
	}
	return s.updatePasswordHash(ctx, userID, hashed)
}

// SetUnusablePassword disables password sign-in for the account.
func (s *Service) SetUnusablePassword(ctx context.Context, userID string) error {
	return s.updatePasswordHash(ctx, userID, unusablePasswordPrefix)
}

func (s *Service) updatePasswordHash(ctx context.Context, userID, hash string) error {
	result := s.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", userID).
		Update("password_hash", hash)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Authenticate verifies the username/password pair and records the login time.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	username = normalize(username)
	if username == "" || password == "" {
		return User{}, ErrInvalidCredentials
	}
	user, err := s.GetUserByUsername(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if !user.IsActive || !user.HasUsablePassword() {
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	s.touchLastLogin(ctx, user.ID)
	return user, nil
}

// GetUser loads an account by id.
func (s *Service) GetUser(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", normalize(userID)).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// GetUserByUsername loads an account by username.
func (s *Service) GetUserByUsername(ctx context.Context, username string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("username = ?", normalize(username)).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// ListUsers returns every account ordered by username.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	var accounts []User
	if err := s.db.WithContext(ctx).Order("username ASC").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// FindIdentity returns the user's identity at the provider.
// A missing link is reported through the boolean, never as an error.
func (s *Service) FindIdentity(ctx context.Context, userID string, provider Provider) (LinkedIdentity, bool, error) {
	var identity LinkedIdentity
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, provider).
		Take(&identity).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return LinkedIdentity{}, false, nil
	}
	if err != nil {
		return LinkedIdentity{}, false, err
	}
	return identity, true, nil
}

// CountIdentities returns the number of identities linked to the user across all providers.
func (s *Service) CountIdentities(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&LinkedIdentity{}).
		Where("user_id = ?", userID).
		Count(&count).
		Error
	return count, err
}

// ListIdentities returns the user's identities ordered by provider.
func (s *Service) ListIdentities(ctx context.Context, userID string) ([]LinkedIdentity, error) {
	var identities []LinkedIdentity
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("provider ASC").
		Find(&identities).
		Error
	if err != nil {
		return nil, err
	}
	return identities, nil
}

// ResolveOAuthUser maps a provider profile onto a local account.
// A known provider account signs in its owner. Otherwise the profile is linked to
// currentUserID when set, or a new account without a usable password is created.
func (s *Service) ResolveOAuthUser(ctx context.Context, profile Profile, currentUserID string) (User, error) {
	provider, err := ParseProvider(profile.Provider.String())
	if err != nil {
		return User{}, err
	}
	profile.Provider = provider
	profile.UID = normalize(profile.UID)
	if profile.UID == "" {
		return User{}, ErrInvalidIdentity
	}
	currentUserID = normalize(currentUserID)

	var resolved User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing LinkedIdentity
		err := tx.Where("provider = ? AND uid = ?", provider, profile.UID).Take(&existing).Error
		switch {
		case err == nil:
			if currentUserID != "" && existing.UserID != currentUserID {
				return ErrIdentityConflict
			}
			if updates := profileColumns(profile); len(updates) > 0 {
				if err := tx.Model(&LinkedIdentity{}).
					Where("id = ?", existing.ID).
					Updates(updates).
					Error; err != nil {
					return err
				}
			}
			return tx.Where("id = ?", existing.UserID).Take(&resolved).Error
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		if currentUserID != "" {
			if err := tx.Where("id = ?", currentUserID).Take(&resolved).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrUserNotFound
				}
				return err
			}
			var sameProvider int64
			if err := tx.Model(&LinkedIdentity{}).
				Where("user_id = ? AND provider = ?", currentUserID, provider).
				Count(&sameProvider).
				Error; err != nil {
				return err
			}
			if sameProvider > 0 {
				return ErrIdentityConflict
			}
		} else {
			created, err := s.createOAuthUser(tx, profile)
			if err != nil {
				return err
			}
			resolved = created
		}

		identity := LinkedIdentity{
			UserID:      resolved.ID,
			Provider:    provider,
			UID:         profile.UID,
			Login:       normalize(profile.Login),
			DisplayName: normalize(profile.DisplayName),
			ProfileURL:  normalize(profile.ProfileURL),
			ExtraJSON:   profile.RawJSON,
		}
		return tx.Create(&identity).Error
	})
	if err != nil {
		return User{}, err
	}
	if !resolved.IsActive {
		return User{}, ErrInvalidCredentials
	}

	s.touchLastLogin(ctx, resolved.ID)
	return resolved, nil
}

// DisconnectIdentity removes the user's identity at the provider.
// It refuses when the user would be left without any way to sign in.
func (s *Service) DisconnectIdentity(ctx context.Context, user User, provider Provider) error {
	var removed LinkedIdentity
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("user_id = ? AND provider = ?", user.ID, provider).Take(&removed).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&LinkedIdentity{}).Where("user_id = ?", user.ID).Count(&count).Error; err != nil {
			return err
		}
		if count <= 1 && !user.HasUsablePassword() {
			return ErrLastCredential
		}
		return tx.Delete(&LinkedIdentity{}, removed.ID).Error
	})
	if err != nil {
		return err
	}
	if removed.ID != 0 {
		s.logger.Info("identity disconnected",
			zap.String("user_id", user.ID),
			zap.String("provider", provider.String()),
		)
	}
	return nil
}

func (s *Service) createOAuthUser(tx *gorm.DB, profile Profile) (User, error) {
	username, err := availableUsername(tx, usernameBase(profile))
	if err != nil {
		return User{}, err
	}
	identifier, err := s.idProvider.NewID()
	if err != nil {
		return User{}, fmt.Errorf("users: issue id: %w", err)
	}
	user := User{
		ID:           identifier,
		Username:     username,
		Email:        normalize(profile.Email),
		PasswordHash: unusablePasswordPrefix,
		IsActive:     true,
	}
	if err := tx.Create(&user).Error; err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *Service) touchLastLogin(ctx context.Context, userID string) {
	err := s.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", userID).
		Update("last_login_at", s.now().UTC()).
		Error
	if err != nil {
		s.logger.Warn("touch last login failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func profileColumns(profile Profile) map[string]interface{} {
	updates := map[string]interface{}{}
	if login := normalize(profile.Login); login != "" {
		updates["login"] = login
	}
	if display := normalize(profile.DisplayName); display != "" {
		updates["display_name"] = display
	}
	if link := normalize(profile.ProfileURL); link != "" {
		updates["profile_url"] = link
	}
	if profile.RawJSON != "" {
		updates["extra_json"] = profile.RawJSON
	}
	return updates
}

func usernameBase(profile Profile) string {
	base := strings.ToLower(normalize(profile.Login))
	if base == "" {
		base = profile.Provider.String() + "-" + profile.UID
	}
	if limit := maxUsernameLength - 4; len(base) > limit {
		for limit > 0 && !utf8.RuneStart(base[limit]) {
			limit--
		}
		base = base[:limit]
	}
	return base
}

func availableUsername(tx *gorm.DB, base string) (string, error) {
	candidate := base
	for attempt := 2; attempt <= usernameCollisions+1; attempt++ {
		taken, err := usernameExists(tx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = base + strconv.Itoa(attempt)
	}
	return "", ErrUsernameTaken
}

func usernameExists(tx *gorm.DB, username string) (bool, error) {
	var count int64
	if err := tx.Model(&User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func hashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", ErrPasswordTooShort
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}
