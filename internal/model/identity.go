// Package model defines database models
package model

import "time"

const (
	RoleGuest = "guest"
	RoleUser  = "user"
	RoleAdmin = "admin"

	PlanFree       = "free"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

// Identity is either a guest tracked by IP or a registered account. Guests never
// have an email set and registered accounts are never looked up by IP alone.
// There is at most one guest per IP address
type Identity struct {
	ID               string    `gorm:"primaryKey;size:16" json:"id"`
	Email            *string   `gorm:"uniqueIndex" json:"email,omitempty"`
	PasswordHash     string    `json:"-"`
	IPAddress        string    `gorm:"not null;index:idx_guest_ip,unique,where:email IS NULL" json:"ipAddress"`
	Role             string    `gorm:"not null;default:guest" json:"role"`
	Plan             string    `gorm:"not null;default:free" json:"plan"`
	GenerationsCount int       `gorm:"not null;default:0" json:"generationsCount"`
	LastResetDate    time.Time `gorm:"not null" json:"lastResetDate"`
	IsBlocked        bool      `gorm:"not null;default:false" json:"isBlocked"`
	JoinedAt         time.Time `gorm:"not null" json:"joinedAt"`

	Generations []Generation        `gorm:"foreignKey:IdentityID;constraint:OnDelete:CASCADE" json:"-"`
	Failures    []GenerationFailure `gorm:"foreignKey:IdentityID;constraint:OnDelete:CASCADE" json:"-"`
}

// IsGuest reports whether the identity is tracked by IP only
func (i *Identity) IsGuest() bool {
	return i.Role == RoleGuest
}
