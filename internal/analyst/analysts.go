package analyst

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"promptswap/internal/exchange"
	"promptswap/internal/models"
	"promptswap/internal/repository"
)

const (
	newsInstructions = "You are a crypto news analyst. Judge how the headlines affect the token's price over the " +
		"next review period. Reply with a short comment and a score from -5 (very bearish) to 5 (very bullish)."
	technicalInstructions = "You are a crypto technical analyst. Judge the token's trend and momentum from the " +
		"indicators. Reply with a short comment and a score from -5 (very bearish) to 5 (very bullish)."
	orderBookInstructions = "You are a market microstructure analyst. Judge buying versus selling pressure from the " +
		"order book summary. Reply with a short comment and a score from -5 (heavy selling) to 5 (heavy buying)."
	performanceInstructions = "You review a trading agent's recent orders against the current market reports. Judge " +
		"whether its recent decisions worked. Reply with a short comment and a score from -5 (poor) to 5 (excellent)."
)

// Analysts is the production set of analyst adapters.
type Analysts struct {
	Caller *Caller
	News   repository.NewsRepository
	Market exchange.MarketData

	NewsLookback     time.Duration
	NewsLimit        int
	TechnicalCandles int
	OrderBookDepth   int
}

type headline struct {
	Title       string    `json:"title"`
	Source      string    `json:"source,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

func (a *Analysts) NewsAnalysis(ctx context.Context, userID uint64, token string) (*Output, error) {
	if a == nil || a.News == nil {
		return nil, errors.New("news source not configured")
	}
	token = strings.ToUpper(strings.TrimSpace(token))
	lookback := a.NewsLookback
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	since := time.Now().UTC().Add(-lookback)
	items, err := a.News.ListNewsItems(ctx, repository.ListNewsItemsParams{
		Token: token,
		Since: &since,
		Limit: a.NewsLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("load news: %w", err)
	}
	if len(items) == 0 {
		return &Output{Analysis: Analysis{Comment: "No recent news for " + token, Score: 0}}, nil
	}
	return a.Caller.ask(ctx, userID, newsInstructions, map[string]any{
		"token":     token,
		"headlines": headlines(items),
	})
}

func headlines(items []models.NewsItem) []headline {
	out := make([]headline, 0, len(items))
	for _, it := range items {
		out = append(out, headline{Title: it.Title, Source: it.Source, PublishedAt: it.PublishedAt})
	}
	return out
}

func (a *Analysts) TechnicalAnalysis(ctx context.Context, userID uint64, token, timeframe string) (*Output, error) {
	if a == nil || a.Market == nil {
		return nil, errors.New("market data not configured")
	}
	token = strings.ToUpper(strings.TrimSpace(token))
	limit := a.TechnicalCandles
	if limit <= 0 {
		limit = 100
	}
	candles, err := a.Market.Klines(ctx, exchange.USDPair(token), timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("load candles: %w", err)
	}
	ind, err := ComputeIndicators(candles)
	if err != nil {
		return nil, err
	}
	return a.Caller.ask(ctx, userID, technicalInstructions, map[string]any{
		"token":      token,
		"timeframe":  timeframe,
		"indicators": ind,
	})
}

func (a *Analysts) OrderBookAnalysis(ctx context.Context, userID uint64, pair string) (*Output, error) {
	if a == nil || a.Market == nil {
		return nil, errors.New("market data not configured")
	}
	depth := a.OrderBookDepth
	if depth <= 0 {
		depth = 20
	}
	book, err := a.Market.OrderBook(ctx, pair, depth)
	if err != nil {
		return nil, fmt.Errorf("load order book: %w", err)
	}
	summary, err := SummarizeBook(book)
	if err != nil {
		return nil, err
	}
	return a.Caller.ask(ctx, userID, orderBookInstructions, map[string]any{
		"pair":    strings.ToUpper(pair),
		"summary": summary,
	})
}

// PerformanceInput is what the performance analyst sees for one agent.
type PerformanceInput struct {
	AgentID uint64
	Orders  []models.LimitOrder
	Reports []TokenReport
}

func (a *Analysts) PerformanceAnalysis(ctx context.Context, userID uint64, in PerformanceInput) (*Output, error) {
	if a == nil {
		return nil, errors.New("analysts not configured")
	}
	if len(in.Orders) == 0 {
		return &Output{Analysis: Analysis{Comment: "No completed orders yet", Score: 0}}, nil
	}
	return a.Caller.ask(ctx, userID, performanceInstructions, map[string]any{
		"orders":  orderRows(in.Orders),
		"stats":   SummarizeOrders(in.Orders),
		"reports": in.Reports,
	})
}

type orderRow struct {
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Quantity  string    `json:"quantity"`
	Executed  string    `json:"executed_quantity,omitempty"`
	Price     string    `json:"price"`
	Status    string    `json:"status"`
	Reason    string    `json:"cancellation_reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func orderRows(orders []models.LimitOrder) []orderRow {
	out := make([]orderRow, 0, len(orders))
	for _, o := range orders {
		var executed string
		if o.ExecutedQuantity != nil {
			executed = o.ExecutedQuantity.String()
		}
		out = append(out, orderRow{
			Symbol:    o.Symbol,
			Side:      o.Side,
			Quantity:  o.Quantity.String(),
			Executed:  executed,
			Price:     o.Price.String(),
			Status:    o.Status,
			Reason:    o.CancellationReason,
			CreatedAt: o.CreatedAt,
		})
	}
	return out
}
