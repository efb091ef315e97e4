package model

import "time"

// GenerationFailure records a generation attempt that reached the upstream
// generator and failed there. Reason is for operators only and never leaves the server
type GenerationFailure struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	IdentityID string    `gorm:"not null;index;size:16"`
	IPAddress  string    `gorm:"not null"`
	Language   string    `gorm:"not null"`
	Reason     string    `gorm:"type:text"`
	Timestamp  time.Time `gorm:"not null;index"`
}
