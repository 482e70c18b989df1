package analyst

import (
	"errors"
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"promptswap/internal/exchange"
	"promptswap/internal/models"
)

var ErrNotEnoughData = errors.New("not enough market data")

const minCandles = 20

// Indicators is the technical summary sent to the AI. Pointer fields are
// omitted when the history is too short for them.
type Indicators struct {
	LastClose      float64  `json:"last_close"`
	ChangePct      float64  `json:"change_pct"`
	RSI14          *float64 `json:"rsi_14,omitempty"`
	EMA20          *float64 `json:"ema_20,omitempty"`
	SMA50          *float64 `json:"sma_50,omitempty"`
	BollingerUpper *float64 `json:"bollinger_upper,omitempty"`
	BollingerLower *float64 `json:"bollinger_lower,omitempty"`
	BollingerPos   *float64 `json:"bollinger_position,omitempty"`
	MeanReturnPct  float64  `json:"mean_return_pct"`
	VolatilityPct  float64  `json:"volatility_pct"`
	Candles        int      `json:"candles"`
}

func ComputeIndicators(candles []exchange.Candle) (*Indicators, error) {
	if len(candles) < minCandles {
		return nil, ErrNotEnoughData
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	first, last := closes[0], closes[len(closes)-1]
	if first <= 0 || last <= 0 {
		return nil, ErrNotEnoughData
	}

	out := &Indicators{
		LastClose: last,
		ChangePct: round2((last - first) / first * 100),
		Candles:   len(closes),
	}
	if len(closes) > 14 {
		out.RSI14 = lastValue(talib.Rsi(closes, 14))
	}
	out.EMA20 = lastValue(talib.Ema(closes, 20))
	if len(closes) >= 50 {
		out.SMA50 = lastValue(talib.Sma(closes, 50))
	}
	upper, _, lower := talib.BBands(closes, 20, 2, 2, talib.SMA)
	out.BollingerUpper = lastValue(upper)
	out.BollingerLower = lastValue(lower)
	if out.BollingerUpper != nil && out.BollingerLower != nil && *out.BollingerUpper > *out.BollingerLower {
		pos := round2((last - *out.BollingerLower) / (*out.BollingerUpper - *out.BollingerLower))
		out.BollingerPos = &pos
	}

	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] > 0 {
			returns = append(returns, (closes[i]-closes[i-1])/closes[i-1]*100)
		}
	}
	if len(returns) > 1 {
		out.MeanReturnPct = round2(stat.Mean(returns, nil))
		out.VolatilityPct = round2(stat.StdDev(returns, nil))
	}
	return out, nil
}

// BookSummary condenses an order book into notional pressure figures.
type BookSummary struct {
	BestBid     float64 `json:"best_bid"`
	BestAsk     float64 `json:"best_ask"`
	SpreadBps   float64 `json:"spread_bps"`
	BidNotional float64 `json:"bid_notional"`
	AskNotional float64 `json:"ask_notional"`
	Imbalance   float64 `json:"imbalance"`
	Levels      int     `json:"levels"`
}

func SummarizeBook(book *exchange.OrderBook) (*BookSummary, error) {
	if book == nil || len(book.Bids) == 0 || len(book.Asks) == 0 {
		return nil, errors.New("empty order book")
	}
	out := &BookSummary{
		BestBid: book.Bids[0].Price,
		BestAsk: book.Asks[0].Price,
		Levels:  len(book.Bids) + len(book.Asks),
	}
	for _, l := range book.Bids {
		out.BidNotional += l.Price * l.Quantity
	}
	for _, l := range book.Asks {
		out.AskNotional += l.Price * l.Quantity
	}
	out.Imbalance = 1
	if out.AskNotional > 0 {
		out.Imbalance = round2(out.BidNotional / out.AskNotional)
	}
	if mid := (out.BestBid + out.BestAsk) / 2; mid > 0 {
		out.SpreadBps = round2((out.BestAsk - out.BestBid) / mid * 10000)
	}
	out.BidNotional = round2(out.BidNotional)
	out.AskNotional = round2(out.AskNotional)
	return out, nil
}

// OrderStats summarizes an agent's terminal orders.
type OrderStats struct {
	Total          int     `json:"total"`
	Filled         int     `json:"filled"`
	Canceled       int     `json:"canceled"`
	FillRate       float64 `json:"fill_rate"`
	MeanNotional   float64 `json:"mean_notional"`
	StdDevNotional float64 `json:"stddev_notional"`
}

func SummarizeOrders(orders []models.LimitOrder) OrderStats {
	out := OrderStats{Total: len(orders)}
	notionals := make([]float64, 0, len(orders))
	for _, o := range orders {
		switch o.Status {
		case models.LimitOrderStatusFilled:
			out.Filled++
		case models.LimitOrderStatusCanceled:
			out.Canceled++
		}
		n, _ := o.Quantity.Mul(o.Price).Float64()
		notionals = append(notionals, n)
	}
	if out.Total > 0 {
		out.FillRate = round2(float64(out.Filled) / float64(out.Total))
	}
	if len(notionals) > 0 {
		out.MeanNotional = round2(stat.Mean(notionals, nil))
	}
	if len(notionals) > 1 {
		out.StdDevNotional = round2(stat.StdDev(notionals, nil))
	}
	return out
}

func lastValue(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	v := values[len(values)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) || v == 0 {
		return nil
	}
	v = round2(v)
	return &v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
