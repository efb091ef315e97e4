package service

import (
	"bitwise74/docstring-api/internal/model"
	"bitwise74/docstring-api/pkg/validators"
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// History gives identities access to their own generations
type History struct {
	DB *gorm.DB
}

// List returns the identity's generations, newest first
func (s *History) List(ctx context.Context, identityID string) ([]model.Generation, error) {
	records := make([]model.Generation, 0)

	err := s.DB.WithContext(ctx).
		Where("identity_id = ?", identityID).
		Order("timestamp DESC").
		Find(&records).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to list history, %w", err)
	}

	return records, nil
}

// owned loads a record and makes sure identityID owns it. Admins get no bypass
func (s *History) owned(tx *gorm.DB, identityID, recordID string) (*model.Generation, error) {
	var record model.Generation

	err := tx.
		Where("id = ?", recordID).
		First(&record).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGenerationNotFound
		}

		return nil, fmt.Errorf("failed to load history item, %w", err)
	}

	if record.IdentityID != identityID {
		return nil, ErrNotOwner
	}

	return &record, nil
}

// UpdateDocstring replaces the docstring of a record owned by identityID and
// returns the updated record
func (s *History) UpdateDocstring(ctx context.Context, identityID, recordID, docstring string) (*model.Generation, error) {
	if err := validators.DocstringValidator(docstring); err != nil {
		return nil, err
	}

	var record *model.Generation

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := s.owned(tx, identityID, recordID)
		if err != nil {
			return err
		}

		err = tx.Model(r).UpdateColumn("docstring", docstring).Error
		if err != nil {
			return fmt.Errorf("failed to update history item, %w", err)
		}

		r.Docstring = docstring
		record = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

// Delete removes a record owned by identityID
func (s *History) Delete(ctx context.Context, identityID, recordID string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := s.owned(tx, identityID, recordID)
		if err != nil {
			return err
		}

		if err := tx.Delete(r).Error; err != nil {
			return fmt.Errorf("failed to delete history item, %w", err)
		}

		return nil
	})
}
