package models

import "time"

// ReviewRawLog is an append-only prompt/response pair exchanged with the AI
// on behalf of one agent.
type ReviewRawLog struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement"`
	AgentID uint64 `gorm:"not null;index"`
	RunID   string `gorm:"type:varchar(64);not null;index"`

	Stage string `gorm:"type:varchar(20);not null"`
	Token string `gorm:"type:varchar(30)"`

	Prompt   string `gorm:"type:text;not null"`
	Response string `gorm:"type:text;not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (ReviewRawLog) TableName() string {
	return "review_raw_logs"
}
