package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"promptswap/internal/credentials"
	"promptswap/internal/exchange"
)

const defaultHost = "https://api.binance.com"

type Client struct {
	host       string
	httpClient *http.Client
	recvWindow int
	keys       credentials.Provider

	mu      sync.RWMutex
	symbols map[string]*symbolInfo
}

var _ exchange.Client = (*Client)(nil)

// APIError is a non-2xx reply. Code and Msg are filled when the body carried
// Binance's {"code","msg"} envelope.
type APIError struct {
	Status int
	Code   int
	Msg    string
	Body   string
}

func (e *APIError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("binance error (%d/%d): %s", e.Status, e.Code, e.Msg)
	}
	return fmt.Sprintf("binance error (%d): %s", e.Status, e.Body)
}

func NewClient(httpClient *http.Client, host string, recvWindow int, keys credentials.Provider) *Client {
	if host == "" {
		host = defaultHost
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		host:       strings.TrimRight(host, "/"),
		httpClient: httpClient,
		recvWindow: recvWindow,
		keys:       keys,
		symbols:    map[string]*symbolInfo{},
	}
}

func sign(secret string, q url.Values) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = io.WriteString(mac, q.Encode())
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) doPublic(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, query, "")
}

func (c *Client) doSigned(ctx context.Context, method, path string, userID uint64, query url.Values) ([]byte, error) {
	if c.keys == nil {
		return nil, credentials.ErrMissing
	}
	keys, err := c.keys.ExchangeKeys(ctx, userID)
	if err != nil {
		return nil, err
	}
	if query == nil {
		query = url.Values{}
	}
	query.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	if c.recvWindow > 0 {
		query.Set("recvWindow", strconv.Itoa(c.recvWindow))
	}
	query.Set("signature", sign(keys.APISecret, query))
	return c.do(ctx, method, path, query, keys.APIKey)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, apiKey string) ([]byte, error) {
	fullURL := c.host + path
	var body io.Reader
	if method == http.MethodPost {
		body = strings.NewReader(query.Encode())
	} else if len(query) > 0 {
		fullURL = fullURL + "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{Status: resp.StatusCode, Body: string(raw)}
		var env struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		if json.Unmarshal(raw, &env) == nil {
			apiErr.Code = env.Code
			apiErr.Msg = env.Msg
		}
		return nil, apiErr
	}
	return raw, nil
}

// ParseError maps Binance rejections to short messages.
func (c *Client) ParseError(err error) string {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return ""
	}
	switch apiErr.Code {
	case -2010:
		return "insufficient balance"
	case -1013:
		return "order rejected by exchange filters: " + apiErr.Msg
	case -1021:
		return "timestamp outside recv window"
	case -1121:
		return "invalid symbol"
	case -2014, -2015:
		return "invalid API key or permissions"
	}
	if apiErr.Msg != "" {
		return apiErr.Msg
	}
	return fmt.Sprintf("exchange error (%d)", apiErr.Status)
}
