package model

import "time"

// Reminder is a user's outstanding request to be notified when the tracked
// server reaches a player count. A requester has at most one reminder.
type Reminder struct {
	ID                int64     `gorm:"primaryKey"`
	RequesterID       string    `gorm:"uniqueIndex;size:64;not null"`
	TargetPlayerCount int       `gorm:"index;not null"`
	FallbackLocation  string    `gorm:"size:128"`
	CreatedAt         time.Time `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}
