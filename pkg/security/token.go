package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrTokenInvalid = errors.New("token invalid")

// Claims is the payload of an auth token
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	Type   string `json:"type"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 auth tokens with a server held secret
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (t *Tokens) Issue(userID, role string) (string, error) {
	now := t.now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID: userID,
		Role:   role,
		Type:   "auth",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	})

	return token.SignedString(t.secret)
}

// Parse verifies the signature and expiry of s. Every failure (malformed, expired,
// wrong signature, wrong type) is reported as ErrTokenInvalid wrapping the cause
func (t *Tokens) Parse(s string) (*Claims, error) {
	var claims Claims

	_, err := jwt.ParseWithClaims(s, &claims, func(tk *jwt.Token) (any, error) {
		if tk.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", tk.Method.Alg())
		}

		return t.secret, nil
	},
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w, %w", ErrTokenInvalid, err)
	}

	if claims.Type != "auth" || claims.UserID == "" {
		return nil, ErrTokenInvalid
	}

	return &claims, nil
}
