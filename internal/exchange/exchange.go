// Package exchange declares what the review engine needs from a spot exchange.
package exchange

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var ErrPairNotFound = errors.New("trading pair not found")

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type Balance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// PairData describes the listed orientation of a pair. BaseAsset is priced in
// QuoteAsset by CurrentPrice.
type PairData struct {
	Symbol       string
	BaseAsset    string
	QuoteAsset   string
	CurrentPrice decimal.Decimal
}

type PairPrecision struct {
	Symbol            string
	QuantityPrecision int32
	PricePrecision    int32
	MinNotional       decimal.Decimal
}

type OrderRequest struct {
	Symbol   string
	Side     Side
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

type BookLevel struct {
	Price    float64
	Quantity float64
}

type OrderBook struct {
	Symbol string
	Bids   []BookLevel
	Asks   []BookLevel
}

type Balances interface {
	AccountBalances(ctx context.Context, userID uint64) ([]Balance, error)
}

type Pairs interface {
	PairData(ctx context.Context, tokenA, tokenB string) (*PairData, error)
	PairPrecision(ctx context.Context, tokenA, tokenB string) (*PairPrecision, error)
}

type Orders interface {
	CreateLimitOrder(ctx context.Context, userID uint64, req OrderRequest) (string, error)
	// ParseError turns an exchange failure into a short user-facing message,
	// or "" when err did not come from the exchange.
	ParseError(err error) string
}

// OrderState is an order as the exchange reports it. Status is the raw
// exchange status, e.g. NEW, PARTIALLY_FILLED, FILLED, CANCELED.
type OrderState struct {
	Status      string
	ExecutedQty decimal.Decimal
}

type OrderTracker interface {
	OrderStatus(ctx context.Context, userID uint64, symbol, orderID string) (*OrderState, error)
	// CancelOrder cancels the order and returns its final state.
	CancelOrder(ctx context.Context, userID uint64, symbol, orderID string) (*OrderState, error)
}

type MarketData interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	OrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error)
}

// Client is the full adapter surface wired in cmd/reviewer.
type Client interface {
	Balances
	Pairs
	Orders
	OrderTracker
	MarketData
}

var stablecoins = map[string]bool{
	"USDT":  true,
	"USDC":  true,
	"DAI":   true,
	"FDUSD": true,
	"TUSD":  true,
	"BUSD":  true,
}

func IsStablecoin(token string) bool {
	return stablecoins[strings.ToUpper(strings.TrimSpace(token))]
}

// USDPair is the symbol used for order-book analysis of token.
func USDPair(token string) string {
	return strings.ToUpper(strings.TrimSpace(token)) + "USDT"
}
