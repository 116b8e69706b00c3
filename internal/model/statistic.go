package model

import "time"

// StatisticRecord is one sample of the tracked server's population (append-only).
type StatisticRecord struct {
	ID          int64     `gorm:"primaryKey"`
	Time        time.Time `gorm:"column:recorded_at;index;not null"`
	PlayerCount int       `gorm:"index;not null"`
	MaxPlayers  int       `gorm:"not null"`
	Version     string    `gorm:"size:64;not null"`
}

// TableName pins the table name independently of the struct name.
func (StatisticRecord) TableName() string {
	return "server_statistics"
}
