package analyst

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"promptswap/internal/credentials"
	"promptswap/internal/exchange"
	"promptswap/internal/llm"
	"promptswap/internal/models"
	memrepository "promptswap/internal/repository/memory"
)

type fakeAI struct {
	mu    sync.Mutex
	calls []llm.Request
	raw   string
	err   error
}

func (f *fakeAI) Complete(ctx context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	return f.raw, f.err
}

func analysisResponse(comment string, score float64) string {
	return fmt.Sprintf(`{"output":[{"type":"message","content":[{"type":"output_text","text":"{\"result\":{\"comment\":\"%s\",\"score\":%v}}"}]}]}`, comment, score)
}

type fakeMarket struct {
	candles []exchange.Candle
	book    *exchange.OrderBook
}

func (f *fakeMarket) Klines(ctx context.Context, symbol, interval string, limit int) ([]exchange.Candle, error) {
	return f.candles, nil
}

func (f *fakeMarket) OrderBook(ctx context.Context, symbol string, depth int) (*exchange.OrderBook, error) {
	return f.book, nil
}

func rising(n int) []exchange.Candle {
	out := make([]exchange.Candle, n)
	for i := range out {
		out[i] = exchange.Candle{Close: 100 + float64(i) + math.Sin(float64(i))}
	}
	return out
}

func newAnalysts(ai *fakeAI, market exchange.MarketData) (*Analysts, *memrepository.Store) {
	store := memrepository.New()
	return &Analysts{
		Caller: &Caller{AI: ai, Keys: credentials.Static{OpenAI: "sk"}, Model: "m"},
		News:   store,
		Market: market,
	}, store
}

func TestNewsAnalysis_NoHeadlinesSkipsAI(t *testing.T) {
	ai := &fakeAI{raw: analysisResponse("x", 1)}
	a, _ := newAnalysts(ai, nil)
	out, err := a.NewsAnalysis(context.Background(), 1, "btc")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(ai.calls) != 0 {
		t.Fatalf("ai calls=%d want=0", len(ai.calls))
	}
	if out.Logged() || out.Analysis.Score != 0 {
		t.Fatalf("out=%+v want neutral unlogged", out)
	}
}

func TestNewsAnalysis_UsesTaggedHeadlines(t *testing.T) {
	ai := &fakeAI{raw: analysisResponse("bullish ETF flows", 3)}
	a, store := newAnalysts(ai, nil)
	_, _ = store.UpsertNewsItems(context.Background(), []models.NewsItem{
		{Title: "Bitcoin ETF inflows", Link: "l1", Tokens: datatypes.JSON(`["BTC"]`), PublishedAt: time.Now().UTC()},
		{Title: "Ether upgrade", Link: "l2", Tokens: datatypes.JSON(`["ETH"]`), PublishedAt: time.Now().UTC()},
	})
	out, err := a.NewsAnalysis(context.Background(), 1, "BTC")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if out.Analysis.Score != 3 || !out.Logged() {
		t.Fatalf("out=%+v want score 3 logged", out)
	}
	if !strings.Contains(out.Prompt, "Bitcoin ETF inflows") || strings.Contains(out.Prompt, "Ether upgrade") {
		t.Fatalf("prompt=%s want BTC headline only", out.Prompt)
	}
}

func TestCaller_ClampsScoreAndRejectsMalformed(t *testing.T) {
	ai := &fakeAI{raw: analysisResponse("wild", 42)}
	c := &Caller{AI: ai, Keys: credentials.Static{OpenAI: "sk"}, Model: "m"}
	out, err := c.ask(context.Background(), 1, "i", map[string]any{})
	if err != nil || out.Analysis.Score != MaxScore {
		t.Fatalf("out=%+v err=%v want clamped to %v", out, err, MaxScore)
	}

	ai.raw = `{"output":[]}`
	if _, err := c.ask(context.Background(), 1, "i", nil); !errors.Is(err, llm.ErrInvalidResponse) {
		t.Fatalf("err=%v want ErrInvalidResponse", err)
	}
}

func TestTechnicalAnalysis(t *testing.T) {
	ai := &fakeAI{raw: analysisResponse("uptrend", 2)}
	a, _ := newAnalysts(ai, &fakeMarket{candles: rising(60)})
	out, err := a.TechnicalAnalysis(context.Background(), 1, "BTC", "1d")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if out.Analysis.Score != 2 {
		t.Fatalf("score=%v want=2", out.Analysis.Score)
	}
	if !strings.Contains(out.Prompt, "rsi_14") || !strings.Contains(out.Prompt, `"timeframe":"1d"`) {
		t.Fatalf("prompt=%s want indicators and timeframe", out.Prompt)
	}
}

func TestComputeIndicators(t *testing.T) {
	if _, err := ComputeIndicators(rising(5)); !errors.Is(err, ErrNotEnoughData) {
		t.Fatalf("err=%v want ErrNotEnoughData", err)
	}
	ind, err := ComputeIndicators(rising(60))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if ind.ChangePct <= 0 || ind.RSI14 == nil || ind.SMA50 == nil || ind.EMA20 == nil {
		t.Fatalf("ind=%+v want positive change and indicators", ind)
	}
	if *ind.RSI14 < 50 {
		t.Fatalf("rsi=%v want >=50 on rising series", *ind.RSI14)
	}
}

func TestSummarizeBook(t *testing.T) {
	s, err := SummarizeBook(&exchange.OrderBook{
		Bids: []exchange.BookLevel{{Price: 99, Quantity: 2}, {Price: 98, Quantity: 1}},
		Asks: []exchange.BookLevel{{Price: 101, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if s.BidNotional != 296 || s.AskNotional != 101 || s.SpreadBps != 200 {
		t.Fatalf("summary=%+v want bid=296 ask=101 spread=200", s)
	}
	if _, err := SummarizeBook(&exchange.OrderBook{}); err == nil {
		t.Fatalf("err=nil want empty book error")
	}
}

func TestSummarizeOrders(t *testing.T) {
	stats := SummarizeOrders([]models.LimitOrder{
		{Status: models.LimitOrderStatusFilled, Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(100)},
		{Status: models.LimitOrderStatusCanceled, Quantity: decimal.NewFromInt(2), Price: decimal.NewFromInt(100)},
	})
	if stats.Filled != 1 || stats.Canceled != 1 || stats.FillRate != 0.5 || stats.MeanNotional != 150 {
		t.Fatalf("stats=%+v", stats)
	}
}

func TestOutcome_Analysis(t *testing.T) {
	if got := (Outcome{}).Analysis(); got != nil {
		t.Fatalf("absent=%v want nil", got)
	}
	failed := Failed(errors.New("timeout")).Analysis()
	if failed == nil || failed.Comment != "Error: timeout" || failed.Score != 0 {
		t.Fatalf("failed=%+v want Error: timeout with neutral score", failed)
	}
	ok := Ok(&Output{Analysis: Analysis{Comment: "c", Score: 1}}).Analysis()
	if ok == nil || ok.Score != 1 {
		t.Fatalf("ok=%+v", ok)
	}
}
