package portfolio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"promptswap/internal/exchange"
	"promptswap/internal/models"
)

var (
	ErrBalances   = errors.New("failed to fetch token balances")
	ErrMarketData = errors.New("failed to fetch market data")
)

type Position struct {
	Token    string          `json:"token"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Value    decimal.Decimal `json:"value"`
}

// Snapshot values an agent's configured tokens in its cash token.
type Snapshot struct {
	CashToken  string             `json:"cash_token"`
	Positions  []Position         `json:"positions"`
	Floor      map[string]float64 `json:"floor"`
	TotalValue decimal.Decimal    `json:"current_value"`
}

func (s *Snapshot) Position(token string) (Position, bool) {
	if s == nil {
		return Position{}, false
	}
	for _, p := range s.Positions {
		if strings.EqualFold(p.Token, token) {
			return p, true
		}
	}
	return Position{}, false
}

type Builder struct {
	Balances exchange.Balances
	Pairs    exchange.Pairs
}

func (b *Builder) Build(ctx context.Context, agent *models.Agent) (*Snapshot, error) {
	if agent == nil || len(agent.Tokens) == 0 {
		return nil, fmt.Errorf("%w: agent has no tokens", ErrBalances)
	}
	balances, err := b.Balances.AccountBalances(ctx, agent.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBalances, err)
	}
	byAsset := make(map[string]exchange.Balance, len(balances))
	for _, bal := range balances {
		byAsset[strings.ToUpper(bal.Asset)] = bal
	}

	cash := strings.ToUpper(strings.TrimSpace(agent.CashToken))
	if cash == "" {
		cash = "USDT"
	}
	snap := &Snapshot{
		CashToken:  cash,
		Positions:  make([]Position, 0, len(agent.Tokens)),
		Floor:      make(map[string]float64, len(agent.Tokens)),
		TotalValue: decimal.Zero,
	}
	for _, tok := range agent.Tokens {
		token := strings.ToUpper(strings.TrimSpace(tok.Token))
		bal, ok := byAsset[token]
		if !ok {
			return nil, fmt.Errorf("%w: no balance for %s", ErrBalances, token)
		}
		price, err := b.price(ctx, token, cash)
		if err != nil {
			return nil, err
		}
		qty := bal.Free.Add(bal.Locked)
		value := qty.Mul(price)
		snap.Positions = append(snap.Positions, Position{
			Token:    token,
			Quantity: qty,
			Price:    price,
			Value:    value,
		})
		snap.Floor[token] = tok.MinAllocationPercent
		snap.TotalValue = snap.TotalValue.Add(value)
	}
	return snap, nil
}

func (b *Builder) price(ctx context.Context, token, cash string) (decimal.Decimal, error) {
	if token == cash {
		return decimal.NewFromInt(1), nil
	}
	if (token == "USDT" || token == "USDC") && exchange.IsStablecoin(cash) {
		return decimal.NewFromInt(1), nil
	}
	pair, err := b.Pairs.PairData(ctx, token, cash)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s/%s: %v", ErrMarketData, token, cash, err)
	}
	if pair == nil || !pair.CurrentPrice.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: no price for %s/%s", ErrMarketData, token, cash)
	}
	if strings.EqualFold(pair.BaseAsset, token) {
		return pair.CurrentPrice, nil
	}
	return decimal.NewFromInt(1).DivRound(pair.CurrentPrice, 16), nil
}
