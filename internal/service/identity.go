package service

import (
	"bitwise74/docstring-api/internal/model"
	"bitwise74/docstring-api/pkg/util"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Identities resolves who is behind a request
type Identities struct {
	DB  *gorm.DB
	Now func() time.Time
}

func NewIdentities(db *gorm.DB) *Identities {
	return &Identities{DB: db, Now: time.Now}
}

// ByID loads any identity, guest or registered
func (s *Identities) ByID(ctx context.Context, id string) (*model.Identity, error) {
	var identity model.Identity

	err := s.DB.WithContext(ctx).
		Where("id = ?", id).
		First(&identity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIdentityNotFound
		}

		return nil, fmt.Errorf("failed to load identity, %w", err)
	}

	return &identity, nil
}

// FindGuest returns the guest tracked under ip without creating one. Accounts
// with an email are never returned even if they registered from the same ip
func (s *Identities) FindGuest(ctx context.Context, ip string) (*model.Identity, error) {
	var identity model.Identity

	err := s.DB.WithContext(ctx).
		Where("ip_address = ? AND email IS NULL", ip).
		First(&identity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIdentityNotFound
		}

		return nil, fmt.Errorf("failed to look up guest, %w", err)
	}

	return &identity, nil
}

// ResolveOrCreateIdentity returns exactly one identity for a request. identityID
// comes from a verified credential and may be empty. Without a usable credential
// the guest for ip is used and, if there is none yet, created
func (s *Identities) ResolveOrCreateIdentity(ctx context.Context, identityID, ip string) (*model.Identity, error) {
	if identityID != "" {
		identity, err := s.ByID(ctx, identityID)
		if err == nil {
			return identity, nil
		}

		if !errors.Is(err, ErrIdentityNotFound) {
			return nil, err
		}

		// The account was deleted after the token was issued
		zap.L().Debug("Credential points to a missing identity, falling back to guest", zap.String("identityID", identityID))
	}

	identity, err := s.FindGuest(ctx, ip)
	if err == nil {
		return identity, nil
	}

	if !errors.Is(err, ErrIdentityNotFound) {
		return nil, err
	}

	return s.createGuest(ctx, ip)
}

func (s *Identities) createGuest(ctx context.Context, ip string) (*model.Identity, error) {
	id, err := util.NewID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate identity ID, %w", err)
	}

	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}

	guest := model.Identity{
		ID:            id,
		IPAddress:     ip,
		Role:          model.RoleGuest,
		Plan:          model.PlanFree,
		LastResetDate: now,
		JoinedAt:      now,
	}

	// Two first requests from the same ip can race here. The partial unique
	// index on guest ips makes the loser insert nothing, it then reads the winner
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&guest)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to create guest, %w", res.Error)
	}

	if res.RowsAffected == 0 {
		return s.FindGuest(ctx, ip)
	}

	zap.L().Debug("New guest identity created", zap.String("identityID", id))
	return &guest, nil
}
