package service

import (
	"bitwise74/docstring-api/internal/model"
	"bitwise74/docstring-api/pkg/security"
	"bitwise74/docstring-api/pkg/util"
	"bitwise74/docstring-api/pkg/validators"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Accounts manages registered identities
type Accounts struct {
	DB    *gorm.DB
	Argon *security.ArgonHash
}

// Register creates a user on the free plan. The email is normalized before
// it's validated and stored
func (s *Accounts) Register(ctx context.Context, email, password, ip string) (*model.Identity, error) {
	email = validators.NormalizeEmail(email)

	if err := validators.EmailValidator(email); err != nil {
		return nil, err
	}

	if err := validators.PasswordValidator(password); err != nil {
		return nil, err
	}

	var found bool

	err := s.DB.WithContext(ctx).
		Model(&model.Identity{}).
		Select("count(*) > 0").
		Where("email = ?", email).
		Find(&found).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to check if email is registered, %w", err)
	}

	if found {
		return nil, ErrEmailTaken
	}

	hash, err := s.Argon.GenerateFromPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password, %w", err)
	}

	id, err := util.NewID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate identity ID, %w", err)
	}

	now := time.Now().UTC()
	identity := model.Identity{
		ID:            id,
		Email:         &email,
		PasswordHash:  hash,
		IPAddress:     ip,
		Role:          model.RoleUser,
		Plan:          model.PlanFree,
		LastResetDate: now,
		JoinedAt:      now,
	}

	if err := s.DB.WithContext(ctx).Create(&identity).Error; err != nil {
		// Lost a race against a concurrent registration with the same email
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}

		return nil, fmt.Errorf("failed to create user, %w", err)
	}

	return &identity, nil
}

// Authenticate checks an email and password pair. Unknown emails and wrong
// passwords both return ErrInvalidCredentials
func (s *Accounts) Authenticate(ctx context.Context, email, password string) (*model.Identity, error) {
	email = validators.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	var identity model.Identity

	err := s.DB.WithContext(ctx).
		Where("email = ?", email).
		First(&identity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}

		return nil, fmt.Errorf("failed to load user, %w", err)
	}

	ok, err := s.Argon.VerifyPasswd(password, identity.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password, %w", err)
	}

	if !ok {
		return nil, ErrInvalidCredentials
	}

	if identity.IsBlocked {
		return nil, ErrIdentityBlocked
	}

	return &identity, nil
}

// SeedAdmin makes sure an admin account exists for email. An existing account is
// promoted and keeps its password
func (s *Accounts) SeedAdmin(ctx context.Context, email, password string) (*model.Identity, error) {
	email = validators.NormalizeEmail(email)

	var identity model.Identity

	err := s.DB.WithContext(ctx).
		Where("email = ?", email).
		First(&identity).
		Error
	if err == nil {
		if identity.Role == model.RoleAdmin {
			zap.L().Info("Admin already exists", zap.String("email", email))
			return &identity, nil
		}

		err = s.DB.WithContext(ctx).
			Model(&identity).
			UpdateColumn("role", model.RoleAdmin).
			Error
		if err != nil {
			return nil, fmt.Errorf("failed to promote user, %w", err)
		}

		identity.Role = model.RoleAdmin
		zap.L().Info("Existing user promoted to admin", zap.String("email", email))
		return &identity, nil
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up admin, %w", err)
	}

	created, err := s.Register(ctx, email, password, "127.0.0.1")
	if err != nil {
		return nil, err
	}

	err = s.DB.WithContext(ctx).
		Model(created).
		UpdateColumn("role", model.RoleAdmin).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to promote user, %w", err)
	}

	created.Role = model.RoleAdmin
	zap.L().Info("Admin created", zap.String("email", email))
	return created, nil
}
