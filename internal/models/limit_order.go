package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	LimitOrderStatusOpen     = "open"
	LimitOrderStatusFilled   = "filled"
	LimitOrderStatusCanceled = "canceled"
)

type LimitOrder struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement"`
	UserID         uint64 `gorm:"not null;index"`
	AgentID        uint64 `gorm:"not null;index"`
	ReviewResultID uint64 `gorm:"not null;index"`

	Symbol   string          `gorm:"type:varchar(30);not null"`
	Side     string          `gorm:"type:varchar(10);not null"`
	Quantity decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Price    decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	ExecutedQuantity *decimal.Decimal `gorm:"type:numeric(30,10)"`

	ExchangeOrderID    string `gorm:"type:varchar(64);index"`
	Status             string `gorm:"type:varchar(20);not null;default:'open';index"`
	CancellationReason string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (LimitOrder) TableName() string {
	return "limit_orders"
}
