package review

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"promptswap/internal/analyst"
	"promptswap/internal/models"
	"promptswap/internal/portfolio"
)

const maxPreviousResponses = 5

// Payload is the exact document sent to the decision engine and stored as the
// prompt of the decision raw log.
type Payload struct {
	Instructions      string                `json:"instructions"`
	RiskTolerance     string                `json:"risk_tolerance"`
	CashToken         string                `json:"cash_token"`
	Reports           []analyst.TokenReport `json:"reports"`
	Performance       *analyst.Analysis     `json:"performance"`
	Portfolio         PortfolioView         `json:"portfolio"`
	PreviousResponses []PreviousResponse    `json:"previous_responses"`
}

type PortfolioView struct {
	Floor           map[string]float64   `json:"floor"`
	Positions       []portfolio.Position `json:"positions"`
	StartBalanceUSD *decimal.Decimal     `json:"start_balance_usd"`
	CurrentValue    decimal.Decimal      `json:"current_value"`
}

type PreviousResponse struct {
	Rebalance     *bool    `json:"rebalance"`
	NewAllocation *float64 `json:"newAllocation"`
	ShortReport   string   `json:"shortReport"`
	Error         *string  `json:"error"`
}

// BuildPayload merges one agent's inputs. previous is newest first and is
// capped at five entries.
func BuildPayload(agent *models.Agent, reports []analyst.TokenReport, performance *analyst.Analysis, snap *portfolio.Snapshot, previous []models.ReviewResult) Payload {
	if reports == nil {
		reports = []analyst.TokenReport{}
	}
	p := Payload{
		Instructions:      agent.Instructions,
		RiskTolerance:     agent.RiskTolerance,
		CashToken:         snap.CashToken,
		Reports:           reports,
		Performance:       performance,
		PreviousResponses: make([]PreviousResponse, 0, maxPreviousResponses),
		Portfolio: PortfolioView{
			Floor:           snap.Floor,
			Positions:       snap.Positions,
			StartBalanceUSD: agent.StartBalanceUSD,
			CurrentValue:    snap.TotalValue,
		},
	}
	for i, r := range previous {
		if i == maxPreviousResponses {
			break
		}
		p.PreviousResponses = append(p.PreviousResponses, PreviousResponse{
			Rebalance:     r.Rebalance,
			NewAllocation: r.NewAllocation,
			ShortReport:   r.ShortReport,
			Error:         errorMessage(r),
		})
	}
	return p
}

func errorMessage(r models.ReviewResult) *string {
	if !r.HasError() {
		return nil
	}
	var e RunError
	if err := json.Unmarshal(r.Error, &e); err != nil || e.Message == "" {
		msg := string(r.Error)
		return &msg
	}
	return &e.Message
}
