package service

import (
	"bitwise74/docstring-api/internal/model"
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type Growth struct {
	TotalUsers     int64 `json:"totalUsers"`
	ActiveUsers24h int64 `json:"activeUsers24h"`
}

type Health struct {
	RPM           int64 `json:"rpm"`
	DailyRequests int64 `json:"dailyRequests"`
	Errors        int64 `json:"errors"`
}

type Metrics struct {
	Growth Growth `json:"growth"`
	Health Health `json:"health"`
}

// Admin backs the admin dashboard
type Admin struct {
	DB  *gorm.DB
	Now func() time.Time
}

// Stats computes the dashboard metrics at the current time
func (s *Admin) Stats(ctx context.Context) (*Metrics, error) {
	now := s.now().UTC()
	midnight := StartOfDay(now).UTC()
	db := s.DB.WithContext(ctx)

	var m Metrics

	err := db.Model(&model.Identity{}).
		Where("role <> ?", model.RoleGuest).
		Count(&m.Growth.TotalUsers).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to count users, %w", err)
	}

	// Active means "generated something", counted by ip rather than identity
	err = db.Model(&model.Generation{}).
		Where("timestamp >= ?", now.Add(-24*time.Hour)).
		Distinct("ip_address").
		Count(&m.Growth.ActiveUsers24h).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to count active users, %w", err)
	}

	err = db.Model(&model.Generation{}).
		Where("timestamp >= ?", now.Add(-time.Minute)).
		Count(&m.Health.RPM).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to count recent generations, %w", err)
	}

	err = db.Model(&model.Generation{}).
		Where("timestamp >= ?", midnight).
		Count(&m.Health.DailyRequests).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to count daily generations, %w", err)
	}

	err = db.Model(&model.GenerationFailure{}).
		Where("timestamp >= ?", midnight).
		Count(&m.Health.Errors).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to count failures, %w", err)
	}

	return &m, nil
}

// Users lists registered identities, newest first
func (s *Admin) Users(ctx context.Context) ([]model.Identity, error) {
	users := make([]model.Identity, 0)

	err := s.DB.WithContext(ctx).
		Where("role <> ?", model.RoleGuest).
		Order("joined_at DESC").
		Find(&users).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to list users, %w", err)
	}

	return users, nil
}

// ToggleBlock flips the blocked flag of an identity
func (s *Admin) ToggleBlock(ctx context.Context, id string) (*model.Identity, error) {
	return s.mutate(ctx, id, func(i *model.Identity) map[string]any {
		i.IsBlocked = !i.IsBlocked
		return map[string]any{"is_blocked": i.IsBlocked}
	})
}

// TogglePlan switches pro to free and anything else to pro
func (s *Admin) TogglePlan(ctx context.Context, id string) (*model.Identity, error) {
	return s.mutate(ctx, id, func(i *model.Identity) map[string]any {
		if i.Plan == model.PlanPro {
			i.Plan = model.PlanFree
		} else {
			i.Plan = model.PlanPro
		}

		return map[string]any{"plan": i.Plan}
	})
}

func (s *Admin) mutate(ctx context.Context, id string, fn func(*model.Identity) map[string]any) (*model.Identity, error) {
	var identity model.Identity

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ?", id).First(&identity).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrIdentityNotFound
			}

			return fmt.Errorf("failed to load identity, %w", err)
		}

		return tx.Model(&identity).UpdateColumns(fn(&identity)).Error
	})
	if err != nil {
		return nil, err
	}

	return &identity, nil
}

func (s *Admin) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}

	return time.Now()
}
