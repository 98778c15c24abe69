package database

import "time"

// QueryRecord is one audit row per device query, successful or not.
type QueryRecord struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"`
	ServerName    string    `gorm:"not null;index"`
	Command       string    `gorm:"not null"`
	Status        string    `gorm:"not null;default:ok"` // "ok", "partial" or "error"
	Error         string    `gorm:"not null;default:''"`
	ResponseBytes int       `gorm:"not null;default:0"`
	DurationMs    int64     `gorm:"not null;default:0"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index"`
}
