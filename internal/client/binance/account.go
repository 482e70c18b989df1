package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"promptswap/internal/exchange"
)

func (c *Client) AccountBalances(ctx context.Context, userID uint64) ([]exchange.Balance, error) {
	raw, err := c.doSigned(ctx, http.MethodGet, "/api/v3/account", userID, url.Values{})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	out := make([]exchange.Balance, 0, len(resp.Balances))
	for _, b := range resp.Balances {
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			continue
		}
		locked, err := decimal.NewFromString(b.Locked)
		if err != nil {
			continue
		}
		out = append(out, exchange.Balance{
			Asset:  strings.ToUpper(b.Asset),
			Free:   free,
			Locked: locked,
		})
	}
	return out, nil
}

func (c *Client) CreateLimitOrder(ctx context.Context, userID uint64, req exchange.OrderRequest) (string, error) {
	if req.Symbol == "" {
		return "", fmt.Errorf("symbol is required")
	}
	if !req.Quantity.IsPositive() || !req.Price.IsPositive() {
		return "", fmt.Errorf("quantity and price must be positive")
	}
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(req.Symbol))
	q.Set("side", string(req.Side))
	q.Set("type", "LIMIT")
	q.Set("timeInForce", "GTC")
	q.Set("quantity", req.Quantity.String())
	q.Set("price", req.Price.String())
	raw, err := c.doSigned(ctx, http.MethodPost, "/api/v3/order", userID, q)
	if err != nil {
		return "", err
	}
	var resp struct {
		OrderID int64 `json:"orderId"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode order: %w", err)
	}
	return strconv.FormatInt(resp.OrderID, 10), nil
}

func (c *Client) OrderStatus(ctx context.Context, userID uint64, symbol, orderID string) (*exchange.OrderState, error) {
	return c.orderState(ctx, http.MethodGet, userID, symbol, orderID)
}

func (c *Client) CancelOrder(ctx context.Context, userID uint64, symbol, orderID string) (*exchange.OrderState, error) {
	return c.orderState(ctx, http.MethodDelete, userID, symbol, orderID)
}

func (c *Client) orderState(ctx context.Context, method string, userID uint64, symbol, orderID string) (*exchange.OrderState, error) {
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))
	q.Set("orderId", orderID)
	raw, err := c.doSigned(ctx, method, "/api/v3/order", userID, q)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Status      string `json:"status"`
		ExecutedQty string `json:"executedQty"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	state := &exchange.OrderState{Status: resp.Status}
	if resp.ExecutedQty != "" {
		state.ExecutedQty, err = decimal.NewFromString(resp.ExecutedQty)
		if err != nil {
			return nil, fmt.Errorf("decode executedQty %q: %w", resp.ExecutedQty, err)
		}
	}
	return state, nil
}
