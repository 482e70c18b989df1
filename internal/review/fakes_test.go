package review

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"promptswap/internal/analyst"
	"promptswap/internal/exchange"
	"promptswap/internal/models"
	"promptswap/internal/portfolio"
	"promptswap/internal/trader"
)

type fakeAnalysts struct {
	mu          sync.Mutex
	news        map[string]int
	tech        map[string]int
	orderbook   map[string]int
	performance int
	failNews    map[string]bool
}

func newFakeAnalysts() *fakeAnalysts {
	return &fakeAnalysts{news: map[string]int{}, tech: map[string]int{}, orderbook: map[string]int{}, failNews: map[string]bool{}}
}

func logged(comment string, score float64) *analyst.Output {
	return &analyst.Output{
		Analysis: analyst.Analysis{Comment: comment, Score: score},
		Prompt:   `{"input":"` + comment + `"}`,
		Response: `{"output":[]}`,
	}
}

func (f *fakeAnalysts) NewsAnalysis(ctx context.Context, userID uint64, token string) (*analyst.Output, error) {
	f.mu.Lock()
	f.news[token]++
	fail := f.failNews[token]
	f.mu.Unlock()
	if fail {
		return nil, errors.New("news feed down")
	}
	return logged("news "+token, 1), nil
}

func (f *fakeAnalysts) TechnicalAnalysis(ctx context.Context, userID uint64, token, timeframe string) (*analyst.Output, error) {
	f.mu.Lock()
	f.tech[token+"/"+timeframe]++
	f.mu.Unlock()
	return logged("tech "+token, 2), nil
}

func (f *fakeAnalysts) OrderBookAnalysis(ctx context.Context, userID uint64, pair string) (*analyst.Output, error) {
	f.mu.Lock()
	f.orderbook[pair]++
	f.mu.Unlock()
	return logged("book "+pair, -1), nil
}

func (f *fakeAnalysts) PerformanceAnalysis(ctx context.Context, userID uint64, in analyst.PerformanceInput) (*analyst.Output, error) {
	f.mu.Lock()
	f.performance++
	f.mu.Unlock()
	return &analyst.Output{Analysis: analyst.Analysis{Comment: "No completed orders yet"}}, nil
}

func (f *fakeAnalysts) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.performance
	for _, m := range []map[string]int{f.news, f.tech, f.orderbook} {
		for _, v := range m {
			n += v
		}
	}
	return n
}

func (f *fakeAnalysts) newsCalls() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]int{}
	for k, v := range f.news {
		out[k] = v
	}
	return out
}

type fakeSnapshots struct {
	err error
}

func (f *fakeSnapshots) Build(ctx context.Context, agent *models.Agent) (*portfolio.Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	snap := &portfolio.Snapshot{CashToken: "USDT", Floor: map[string]float64{}, TotalValue: decimal.Zero}
	for _, tok := range agent.Tokens {
		v := decimal.NewFromInt(100)
		snap.Positions = append(snap.Positions, portfolio.Position{Token: tok.Token, Quantity: decimal.NewFromInt(1), Price: v, Value: v})
		snap.Floor[tok.Token] = tok.MinAllocationPercent
		snap.TotalValue = snap.TotalValue.Add(v)
	}
	return snap, nil
}

type fakeDecider struct {
	mu       sync.Mutex
	calls    int
	payloads []Payload
	decision trader.Decision
	err      error
	panicMsg string
}

func (f *fakeDecider) Decide(ctx context.Context, agent *models.Agent, payload any) (*trader.Call, error) {
	f.mu.Lock()
	f.calls++
	if p, ok := payload.(Payload); ok {
		f.payloads = append(f.payloads, p)
	}
	f.mu.Unlock()
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	d := f.decision
	call := &trader.Call{Decision: &d, Prompt: `{"payload":true}`, Response: `{"output":[]}`}
	if f.err != nil {
		return call, f.err
	}
	return call, nil
}

type fakeExecutor struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeExecutor) Execute(ctx context.Context, agent *models.Agent, result *models.ReviewResult, snap *portfolio.Snapshot) (*models.LimitOrder, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &models.LimitOrder{ReviewResultID: result.ID}, nil
}

// fakeExchange backs a real portfolio.Builder.
type fakeExchange struct {
	balances []exchange.Balance
	prices   map[string]decimal.Decimal
}

func (f *fakeExchange) AccountBalances(ctx context.Context, userID uint64) ([]exchange.Balance, error) {
	return f.balances, nil
}

func (f *fakeExchange) PairData(ctx context.Context, a, b string) (*exchange.PairData, error) {
	p, ok := f.prices[a+b]
	if !ok {
		return nil, fmt.Errorf("%w: %s%s", exchange.ErrPairNotFound, a, b)
	}
	return &exchange.PairData{Symbol: a + b, BaseAsset: a, QuoteAsset: b, CurrentPrice: p}, nil
}

func (f *fakeExchange) PairPrecision(ctx context.Context, a, b string) (*exchange.PairPrecision, error) {
	return &exchange.PairPrecision{Symbol: a + b, QuantityPrecision: 4, PricePrecision: 2}, nil
}
