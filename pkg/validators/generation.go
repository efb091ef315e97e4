package validators

import (
	"errors"
	"strings"
)

const (
	// MaxCodeSize is the biggest snippet (in bytes) accepted for a single generation
	MaxCodeSize = 50_000
	// MaxDocstringSize caps manual edits of a stored docstring
	MaxDocstringSize = 20_000

	DefaultLanguage = "python"
	DefaultStyle    = "Google"
)

var (
	ErrCodeRequired      = errors.New("code is required")
	ErrCodeTooLong       = errors.New("code is too long")
	ErrLanguageInvalid   = errors.New("invalid language provided")
	ErrStyleInvalid      = errors.New("invalid docstring style provided")
	ErrDocstringRequired = errors.New("docstring is required")
	ErrDocstringTooLong  = errors.New("docstring is too long")
)

// GenerationInput is the user controlled part of a generation request
type GenerationInput struct {
	Code     string
	Language string
	Style    string
}

// GenerationValidator checks a generation request and fills in the defaults
// for language and style
func GenerationValidator(in *GenerationInput) error {
	if strings.TrimSpace(in.Code) == "" {
		return ErrCodeRequired
	}

	if len(in.Code) > MaxCodeSize {
		return ErrCodeTooLong
	}

	in.Language = strings.ToLower(strings.TrimSpace(in.Language))
	if in.Language == "" {
		in.Language = DefaultLanguage
	}

	in.Style = strings.TrimSpace(in.Style)
	if in.Style == "" {
		in.Style = DefaultStyle
	}

	// Both end up inside the prompt so keep them to short single words
	if !isToken(in.Language, 32) {
		return ErrLanguageInvalid
	}

	if !isToken(in.Style, 32) {
		return ErrStyleInvalid
	}

	return nil
}

func DocstringValidator(d string) error {
	if strings.TrimSpace(d) == "" {
		return ErrDocstringRequired
	}

	if len(d) > MaxDocstringSize {
		return ErrDocstringTooLong
	}

	return nil
}

func isToken(s string, max int) bool {
	if len(s) > max {
		return false
	}

	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '+', r == '#', r == '-', r == '_', r == '.', r == ' ':
		default:
			return false
		}
	}

	return true
}
