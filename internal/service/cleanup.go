package service

import (
	"bitwise74/docstring-api/internal/model"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PurgeFailures deletes failure ledger rows recorded before cutoff
func PurgeFailures(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("timestamp < ?", cutoff.UTC()).
		Delete(&model.GenerationFailure{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge failures, %w", res.Error)
	}

	return res.RowsAffected, nil
}

// PurgeGuests deletes guests that haven't generated anything since cutoff along
// with everything they own. Registered accounts are never touched
func PurgeGuests(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	var deleted int64

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stale []string

		err := tx.Model(&model.Identity{}).
			Where("role = ? AND email IS NULL AND last_reset_date < ?", model.RoleGuest, cutoff.UTC()).
			Pluck("id", &stale).
			Error
		if err != nil {
			return err
		}

		if len(stale) == 0 {
			return nil
		}

		// Foreign keys cascade on postgres and on sqlite with _foreign_keys=on,
		// children are removed explicitly so a DSN without it still works
		err = tx.Where("identity_id IN ?", stale).Delete(&model.Generation{}).Error
		if err != nil {
			return err
		}

		err = tx.Where("identity_id IN ?", stale).Delete(&model.GenerationFailure{}).Error
		if err != nil {
			return err
		}

		res := tx.Where("id IN ?", stale).Delete(&model.Identity{})
		deleted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge guests, %w", err)
	}

	return deleted, nil
}

// FailureCleanup periodically drops failure records older than retention until
// ctx is done
func FailureCleanup(ctx context.Context, t, retention time.Duration, db *gorm.DB) {
	ticker := time.NewTicker(t)

	zap.L().Debug("Failure cleanup attached", zap.Duration("tick_every", t))

	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := PurgeFailures(ctx, db, time.Now().Add(-retention))
				if err != nil {
					zap.L().Error("Failed to cleanup failure ledger", zap.Error(err))
					continue
				}

				if n > 0 {
					zap.L().Debug("Failure ledger cleaned up", zap.Int64("deleted", n))
				}
			}
		}
	}()
}

// GuestCleanup periodically deletes guests idle for longer than retention until
// ctx is done
func GuestCleanup(ctx context.Context, t, retention time.Duration, db *gorm.DB) {
	ticker := time.NewTicker(t)

	zap.L().Debug("Guest cleanup attached", zap.Duration("tick_every", t))

	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := PurgeGuests(ctx, db, time.Now().Add(-retention))
				if err != nil {
					zap.L().Error("Failed to cleanup stale guests", zap.Error(err))
					continue
				}

				if n > 0 {
					zap.L().Debug("Stale guests cleaned up", zap.Int64("deleted", n))
				}
			}
		}
	}()
}
