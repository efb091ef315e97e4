package service

import (
	"bitwise74/docstring-api/internal/model"
	"bitwise74/docstring-api/pkg/util"
	"bitwise74/docstring-api/pkg/validators"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultGenerateTimeout bounds a generator call when Docstrings.Timeout is unset
const DefaultGenerateTimeout = 30 * time.Second

// GenerateRequest carries everything a single generation needs. IdentityID is
// empty when the caller presented no valid credential
type GenerateRequest struct {
	IdentityID string
	IP         string
	Code       string
	Language   string
	Style      string
}

// Docstrings drives one generation from quota check to the stored record
type Docstrings struct {
	DB         *gorm.DB
	Identities *Identities
	Quota      *Quota
	Generator  Generator
	Timeout    time.Duration
	Now        func() time.Time
}

// Generate validates the request, checks the caller's quota, asks the generator
// for a docstring and stores the result. A failed generator call leaves both the
// history and the identity's counter untouched and returns ErrGenerationFailed
func (s *Docstrings) Generate(ctx context.Context, req GenerateRequest) (*model.Generation, error) {
	in := validators.GenerationInput{
		Code:     req.Code,
		Language: req.Language,
		Style:    req.Style,
	}

	if err := validators.GenerationValidator(&in); err != nil {
		return nil, err
	}

	identity, err := s.Identities.ResolveOrCreateIdentity(ctx, req.IdentityID, req.IP)
	if err != nil {
		return nil, err
	}

	now := s.now()

	decision, err := s.Quota.Evaluate(identity, in.Language, now)
	if err != nil {
		return nil, err
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultGenerateTimeout
	}

	genCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	docstring, err := s.Generator.Generate(genCtx, BuildPrompt(in.Code, in.Language, in.Style))
	if err != nil {
		s.recordFailure(ctx, identity, req.IP, in.Language, err)
		return nil, fmt.Errorf("%w, %w", ErrGenerationFailed, err)
	}

	id, err := util.NewID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate record ID, %w", err)
	}

	record := model.Generation{
		ID:         id,
		IdentityID: identity.ID,
		IPAddress:  req.IP,
		Code:       in.Code,
		Language:   in.Language,
		Style:      in.Style,
		Docstring:  docstring,
		Timestamp:  now.UTC(),
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("failed to save generation, %w", err)
		}

		return s.Quota.Commit(tx, identity, decision, now)
	})
	if err != nil {
		return nil, err
	}

	return &record, nil
}

func (s *Docstrings) recordFailure(ctx context.Context, identity *model.Identity, ip, language string, cause error) {
	reason := "upstream"
	switch {
	case errors.Is(cause, context.DeadlineExceeded):
		reason = "timeout"
	case errors.Is(cause, context.Canceled):
		reason = "canceled"
	}

	zap.L().Error("Docstring generation failed",
		zap.String("identityID", identity.ID),
		zap.String("reason", reason),
		zap.Error(cause))

	failure := model.GenerationFailure{
		IdentityID: identity.ID,
		IPAddress:  ip,
		Language:   language,
		Reason:     reason + ": " + cause.Error(),
		Timestamp:  s.now().UTC(),
	}

	// The request context may already be done when the generator timed out
	err := s.DB.WithContext(context.WithoutCancel(ctx)).Create(&failure).Error
	if err != nil {
		zap.L().Error("Failed to record generation failure", zap.Error(err))
	}
}

func (s *Docstrings) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}

	return time.Now()
}
