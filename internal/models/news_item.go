package models

import (
	"time"

	"gorm.io/datatypes"
)

type NewsItem struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	Title  string `gorm:"type:text;not null"`
	Link   string `gorm:"type:varchar(500);not null;uniqueIndex"`
	Source string `gorm:"type:varchar(120)"`

	// Tokens is a JSON array of upper-case symbols mentioned by the item.
	Tokens datatypes.JSON `gorm:"type:jsonb"`

	PublishedAt time.Time `gorm:"type:timestamptz;index"`
	CreatedAt   time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (NewsItem) TableName() string {
	return "news_items"
}
