package service

import (
	"bitwise74/docstring-api/internal/model"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Limits are the daily ceilings per tier
type Limits struct {
	GuestDaily   int
	FreeDaily    int
	FreeLanguage string
}

// Decision is the outcome of a successful quota check. It's handed back to
// Commit once the generation went through
type Decision struct {
	// Reset is set when the identity's counter belongs to a previous day
	Reset bool
	// Count is the effective count for today before this request
	Count int
	// Limit is the ceiling that applies to the identity, 0 means unlimited
	Limit int

	limitErr error
}

type Quota struct {
	Limits Limits
}

func NewQuota(l Limits) *Quota {
	l.FreeLanguage = strings.ToLower(l.FreeLanguage)
	return &Quota{Limits: l}
}

// StartOfDay returns local midnight of the day t falls on
func StartOfDay(t time.Time) time.Time {
	t = t.Local()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
}

// Evaluate decides whether identity may generate a docstring for language at now.
// It never writes anything, a rolled over day is only reported through Decision.Reset
func (q *Quota) Evaluate(identity *model.Identity, language string, now time.Time) (Decision, error) {
	d := Decision{Count: identity.GenerationsCount}

	if identity.LastResetDate.Before(StartOfDay(now)) {
		d.Reset = true
		d.Count = 0
	}

	if identity.IsBlocked {
		return d, ErrIdentityBlocked
	}

	switch {
	case identity.IsGuest():
		d.Limit, d.limitErr = q.Limits.GuestDaily, ErrGuestLimit
	case identity.Plan == model.PlanFree:
		d.Limit, d.limitErr = q.Limits.FreeDaily, ErrPlanLimit
	}

	if identity.IsGuest() && d.Count >= q.Limits.GuestDaily {
		return d, ErrGuestLimit
	}

	if identity.Plan == model.PlanFree && d.Count >= q.Limits.FreeDaily {
		return d, ErrPlanLimit
	}

	if identity.Plan == model.PlanFree && strings.ToLower(language) != q.Limits.FreeLanguage {
		return d, ErrLanguageNotAllowed
	}

	return d, nil
}

// Commit counts one generation against identity inside tx. The update only
// matches while the identity is still under its limit for today, so concurrent
// requests can't push the counter past the ceiling. If nothing matched, the
// limit error is returned and the caller must roll tx back
func (q *Quota) Commit(tx *gorm.DB, identity *model.Identity, d Decision, now time.Time) error {
	midnight := StartOfDay(now).UTC()

	if d.Reset {
		res := tx.Model(&model.Identity{}).
			Where("id = ? AND last_reset_date < ?", identity.ID, midnight).
			UpdateColumns(map[string]any{
				"generations_count": 1,
				"last_reset_date":   now.UTC(),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to reset daily counter, %w", res.Error)
		}

		if res.RowsAffected == 1 {
			identity.GenerationsCount = 1
			identity.LastResetDate = now.UTC()
			return nil
		}

		// Another request already rolled the day over, count on top of it
	}

	query := tx.Model(&model.Identity{}).
		Where("id = ? AND last_reset_date >= ?", identity.ID, midnight)

	if d.Limit > 0 {
		query = query.Where("generations_count < ?", d.Limit)
	}

	res := query.UpdateColumn("generations_count", gorm.Expr("generations_count + 1"))
	if res.Error != nil {
		return fmt.Errorf("failed to increment daily counter, %w", res.Error)
	}

	if res.RowsAffected == 0 {
		if d.limitErr != nil {
			return d.limitErr
		}

		return ErrIdentityNotFound
	}

	identity.GenerationsCount = d.Count + 1
	return nil
}
