package models

import (
	"time"

	"gorm.io/datatypes"
)

type ReviewResult struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement"`
	AgentID uint64 `gorm:"not null;index"`
	RunID   string `gorm:"type:varchar(64);not null;index"`

	Log string `gorm:"type:text"`

	Rebalance     *bool
	NewAllocation *float64
	ShortReport   string `gorm:"type:text"`

	// Error holds {"message": ..., "stage": ...} when the run failed.
	Error datatypes.JSON `gorm:"type:jsonb"`

	RawLogID *uint64 `gorm:"index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (ReviewResult) TableName() string {
	return "review_results"
}

func (r *ReviewResult) HasError() bool {
	return r != nil && len(r.Error) > 0 && string(r.Error) != "null"
}
