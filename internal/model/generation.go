package model

import "time"

// Generation is one successful docstring generation. Only the owning identity
// may edit its docstring or delete it
type Generation struct {
	ID         string    `gorm:"primaryKey;size:16" json:"id"`
	IdentityID string    `gorm:"not null;index;size:16" json:"identityId"`
	IPAddress  string    `gorm:"not null;index" json:"ipAddress"`
	Code       string    `gorm:"type:text;not null" json:"code"`
	Language   string    `gorm:"not null" json:"language"`
	Style      string    `gorm:"not null" json:"style"`
	Docstring  string    `gorm:"type:text;not null" json:"docstring"`
	Timestamp  time.Time `gorm:"not null;index" json:"timestamp"`
}
