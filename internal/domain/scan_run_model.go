package domain

import "time"

// ScanRun records one completed (or cancelled) scan.
type ScanRun struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	// ScanID is the process-generated identifier shared with the Redis keys.
	ScanID    string `gorm:"size:128;uniqueIndex;not null"`
	Token     string `gorm:"size:64;not null"`
	SourceURL string `gorm:"size:512;not null;default:''"`

	Candidates int  `gorm:"not null;default:0"`
	Workers    int  `gorm:"not null;default:0"`
	Partial    bool `gorm:"not null;default:false"`

	StartedAt  time.Time
	FinishedAt time.Time

	Detections []DetectedAddress `gorm:"foreignKey:ScanRunID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}
