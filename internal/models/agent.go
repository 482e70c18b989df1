package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	AgentStatusDraft    = "draft"
	AgentStatusActive   = "active"
	AgentStatusInactive = "inactive"
)

// ReviewIntervals lists the cadences an agent may be reviewed on.
var ReviewIntervals = []string{"1h", "3h", "5h", "12h", "24h", "3d", "1w"}

// Agent is a user-configured portfolio that is reviewed on a fixed cadence.
type Agent struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	UserID uint64 `gorm:"not null;index"`

	Name      string `gorm:"type:varchar(120);not null"`
	Model     string `gorm:"type:varchar(60);not null"`
	CashToken string `gorm:"type:varchar(20);not null;default:'USDT'"`

	// Tokens are ordered by Position; the first two form the traded pair.
	Tokens []AgentToken `gorm:"foreignKey:AgentID;constraint:OnDelete:CASCADE"`

	RiskTolerance   string `gorm:"type:varchar(10);not null;default:'medium'"`
	ReviewInterval  string `gorm:"type:varchar(10);not null;index"`
	Instructions    string `gorm:"type:text"`
	ManualRebalance bool   `gorm:"not null;default:false"`

	Status          string           `gorm:"type:varchar(20);not null;default:'draft';index"`
	StartBalanceUSD *decimal.Decimal `gorm:"type:numeric(30,10)"`
	StartedAt       *time.Time       `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Agent) TableName() string {
	return "agents"
}

type AgentToken struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	AgentID  uint64 `gorm:"not null;uniqueIndex:idx_agent_token_position"`
	Position int    `gorm:"not null;uniqueIndex:idx_agent_token_position"`

	Token                string  `gorm:"type:varchar(20);not null"`
	MinAllocationPercent float64 `gorm:"not null;default:0"`
}

func (AgentToken) TableName() string {
	return "agent_tokens"
}
