// Package service holds the business logic that sits between the HTTP handlers
// and the database
package service

import "errors"

// Handlers translate these into HTTP status codes, anything else is a 500
var (
	ErrIdentityNotFound   = errors.New("identity not found")
	ErrIdentityBlocked    = errors.New("identity blocked")
	ErrGuestLimit         = errors.New("guest daily limit reached")
	ErrPlanLimit          = errors.New("free plan daily limit reached")
	ErrLanguageNotAllowed = errors.New("plan does not permit language")
	ErrGenerationFailed   = errors.New("docstring generation failed")
	ErrGenerationNotFound = errors.New("generation not found")
	ErrNotOwner           = errors.New("identity does not own the generation")
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)
