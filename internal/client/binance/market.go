package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"promptswap/internal/exchange"
)

type symbolInfo struct {
	Symbol      string
	BaseAsset   string
	QuoteAsset  string
	StepSize    string
	TickSize    string
	MinNotional decimal.Decimal
}

type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol     string `json:"symbol"`
		Status     string `json:"status"`
		BaseAsset  string `json:"baseAsset"`
		QuoteAsset string `json:"quoteAsset"`
		Filters    []struct {
			FilterType  string `json:"filterType"`
			StepSize    string `json:"stepSize"`
			TickSize    string `json:"tickSize"`
			MinNotional string `json:"minNotional"`
		} `json:"filters"`
	} `json:"symbols"`
}

func (c *Client) symbol(ctx context.Context, symbol string) (*symbolInfo, error) {
	symbol = strings.ToUpper(symbol)
	c.mu.RLock()
	info, ok := c.symbols[symbol]
	c.mu.RUnlock()
	if ok {
		return info, nil
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	raw, err := c.doPublic(ctx, "/api/v3/exchangeInfo", q)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == -1121 {
			return nil, exchange.ErrPairNotFound
		}
		return nil, err
	}
	var resp exchangeInfoResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode exchangeInfo: %w", err)
	}
	if len(resp.Symbols) == 0 {
		return nil, exchange.ErrPairNotFound
	}
	s := resp.Symbols[0]
	info = &symbolInfo{
		Symbol:     s.Symbol,
		BaseAsset:  strings.ToUpper(s.BaseAsset),
		QuoteAsset: strings.ToUpper(s.QuoteAsset),
	}
	for _, f := range s.Filters {
		switch f.FilterType {
		case "LOT_SIZE":
			info.StepSize = f.StepSize
		case "PRICE_FILTER":
			info.TickSize = f.TickSize
		case "MIN_NOTIONAL", "NOTIONAL":
			if v, err := decimal.NewFromString(f.MinNotional); err == nil {
				info.MinNotional = v
			}
		}
	}

	c.mu.Lock()
	c.symbols[symbol] = info
	c.mu.Unlock()
	return info, nil
}

// resolvePair finds whichever orientation of the two tokens is listed.
func (c *Client) resolvePair(ctx context.Context, tokenA, tokenB string) (*symbolInfo, error) {
	a := strings.ToUpper(strings.TrimSpace(tokenA))
	b := strings.ToUpper(strings.TrimSpace(tokenB))
	info, err := c.symbol(ctx, a+b)
	if err == nil {
		return info, nil
	}
	if !errors.Is(err, exchange.ErrPairNotFound) {
		return nil, err
	}
	info, err = c.symbol(ctx, b+a)
	if err != nil {
		if errors.Is(err, exchange.ErrPairNotFound) {
			return nil, fmt.Errorf("%s/%s: %w", a, b, err)
		}
		return nil, err
	}
	return info, nil
}

func (c *Client) PairData(ctx context.Context, tokenA, tokenB string) (*exchange.PairData, error) {
	info, err := c.resolvePair(ctx, tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("symbol", info.Symbol)
	raw, err := c.doPublic(ctx, "/api/v3/ticker/price", q)
	if err != nil {
		return nil, err
	}
	var p struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode ticker: %w", err)
	}
	price, err := decimal.NewFromString(p.Price)
	if err != nil {
		return nil, fmt.Errorf("parse price %q: %w", p.Price, err)
	}
	return &exchange.PairData{
		Symbol:       info.Symbol,
		BaseAsset:    info.BaseAsset,
		QuoteAsset:   info.QuoteAsset,
		CurrentPrice: price,
	}, nil
}

func (c *Client) PairPrecision(ctx context.Context, tokenA, tokenB string) (*exchange.PairPrecision, error) {
	info, err := c.resolvePair(ctx, tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	return &exchange.PairPrecision{
		Symbol:            info.Symbol,
		QuantityPrecision: digitsFromStep(info.StepSize, 6),
		PricePrecision:    digitsFromStep(info.TickSize, 2),
		MinNotional:       info.MinNotional,
	}, nil
}

// digitsFromStep counts significant decimals in a step such as "0.00100000".
func digitsFromStep(step string, def int32) int32 {
	step = strings.TrimSpace(step)
	if step == "" {
		return def
	}
	v, err := decimal.NewFromString(step)
	if err != nil || !v.IsPositive() {
		return def
	}
	i := strings.IndexByte(step, '.')
	if i < 0 {
		return 0
	}
	n := int32(len(strings.TrimRight(step[i+1:], "0")))
	if n > 10 {
		n = 10
	}
	return n
}

func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]exchange.Candle, error) {
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))
	raw, err := c.doPublic(ctx, "/api/v3/klines", q)
	if err != nil {
		return nil, err
	}
	// [openTime, open, high, low, close, volume, closeTime, ...]
	var rows [][]json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}
	out := make([]exchange.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		var openTime int64
		if err := json.Unmarshal(row[0], &openTime); err != nil {
			continue
		}
		out = append(out, exchange.Candle{
			OpenTime: time.UnixMilli(openTime).UTC(),
			Open:     rawFloat(row[1]),
			High:     rawFloat(row[2]),
			Low:      rawFloat(row[3]),
			Close:    rawFloat(row[4]),
			Volume:   rawFloat(row[5]),
		})
	}
	return out, nil
}

func (c *Client) OrderBook(ctx context.Context, symbol string, depth int) (*exchange.OrderBook, error) {
	switch {
	case depth <= 5:
		depth = 5
	case depth <= 10:
		depth = 10
	case depth <= 20:
		depth = 20
	case depth <= 50:
		depth = 50
	default:
		depth = 100
	}
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))
	q.Set("limit", strconv.Itoa(depth))
	raw, err := c.doPublic(ctx, "/api/v3/depth", q)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode depth: %w", err)
	}
	return &exchange.OrderBook{
		Symbol: strings.ToUpper(symbol),
		Bids:   levels(resp.Bids),
		Asks:   levels(resp.Asks),
	}, nil
}

func levels(rows [][]string) []exchange.BookLevel {
	out := make([]exchange.BookLevel, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		p, err1 := strconv.ParseFloat(row[0], 64)
		q, err2 := strconv.ParseFloat(row[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, exchange.BookLevel{Price: p, Quantity: q})
	}
	return out
}

func rawFloat(raw json.RawMessage) float64 {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	var f float64
	_ = json.Unmarshal(raw, &f)
	return f
}
