package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aurachat/aurachat/backend/internal/auth"
	"github.com/aurachat/aurachat/backend/internal/ids"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrMissingField indicates a required registration or login field was empty.
	ErrMissingField = errors.New("users: required field missing")
	// ErrInvalidUsername indicates the username does not match the allowed pattern.
	ErrInvalidUsername = errors.New("users: username must be 3-20 letters, digits or underscores")
	// ErrInvalidEmail indicates the email address is malformed.
	ErrInvalidEmail = errors.New("users: invalid email")
	// ErrUsernameTaken indicates another account already uses the username.
	ErrUsernameTaken = errors.New("users: username already exists")
	// ErrEmailTaken indicates another account already uses the email.
	ErrEmailTaken = errors.New("users: email already exists")
	// ErrUserNotFound indicates no account matches the identifier.
	ErrUserNotFound = errors.New("users: user not found")
	// ErrInvalidCredentials indicates the email/password pair did not match.
	ErrInvalidCredentials = errors.New("users: invalid email or password")
)

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider ids.Provider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service manages user accounts in the relational store.
type Service struct {
	db         *gorm.DB
	idProvider ids.Provider
	now        func() time.Time
	logger     *zap.Logger
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = ids.NewUUIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         cfg.Database,
		idProvider: idProvider,
		now:        clock,
		logger:     logger,
	}, nil
}

// Registration carries the fields accepted by Register.
type Registration struct {
	Username string
	Email    string
	Password string
	FullName string
	Bio      string
}

// Register validates the registration, hashes the password and stores a new account.
func (s *Service) Register(ctx context.Context, registration Registration) (User, error) {
	username := normalize(registration.Username)
	email := normalizeEmail(registration.Email)
	fullName := normalize(registration.FullName)
	required := []struct {
		field string
		value string
	}{
		{"username", username},
		{"email", email},
		{"password", registration.Password},
		{"full_name", fullName},
	}
	for _, requirement := range required {
		if requirement.value == "" {
			return User{}, fmt.Errorf("%w: %s is required", ErrMissingField, requirement.field)
		}
	}
	if !usernamePattern.MatchString(username) {
		return User{}, ErrInvalidUsername
	}
	if !strings.Contains(email, "@") || strings.HasPrefix(email, "@") || strings.HasSuffix(email, "@") {
		return User{}, ErrInvalidEmail
	}

	hash, err := auth.HashPassword(registration.Password)
	if err != nil {
		return User{}, err
	}
	userID, err := s.idProvider.NewID()
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:           userID,
		Username:     username,
		Email:        email,
		FullName:     fullName,
		Bio:          normalize(registration.Bio),
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
		UpdatedAt:    s.now().UTC(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&User{}).Where("username = ?", username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrUsernameTaken
		}
		if err := tx.Model(&User{}).Where("email = ?", email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrEmailTaken
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return User{}, ErrUsernameTaken
		}
		if !errors.Is(err, ErrUsernameTaken) && !errors.Is(err, ErrEmailTaken) {
			s.logger.Error("user registration failed", zap.String("username", username), zap.Error(err))
		}
		return User{}, err
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("username", user.Username))
	return user, nil
}

// Authenticate returns the account matching the email when the password is correct.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return User{}, fmt.Errorf("%w: email and password", ErrMissingField)
	}

	var user User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	return user, nil
}

// Get loads an account by identifier.
func (s *Service) Get(ctx context.Context, userID string) (User, error) {
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

// UpdateProfilePicture stores a new avatar URL for the account.
func (s *Service) UpdateProfilePicture(ctx context.Context, userID, pictureURL string) (User, error) {
	result := s.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", normalize(userID)).
		Updates(map[string]interface{}{
			"profile_pic": normalize(pictureURL),
			"updated_at":  s.now().UTC(),
		})
	if result.Error != nil {
		return User{}, result.Error
	}
	if result.RowsAffected == 0 {
		return User{}, ErrUserNotFound
	}
	return s.Get(ctx, userID)
}

// Delete removes the account. Dependent rows (notes) are removed by the store's cascade.
func (s *Service) Delete(ctx context.Context, userID string) error {
	result := s.db.WithContext(ctx).Where("id = ?", normalize(userID)).Delete(&User{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	s.logger.Info("user deleted", zap.String("user_id", userID))
	return nil
}
