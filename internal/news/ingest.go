// Package news pulls crypto headlines from RSS and Atom feeds and stores the
// ones that mention a tracked token.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"promptswap/internal/exchange"
	"promptswap/internal/metrics"
	"promptswap/internal/models"
	"promptswap/internal/repository"
)

// KnownNames maps common coin names to their symbols.
var KnownNames = map[string]string{
	"bitcoin":      "BTC",
	"ethereum":     "ETH",
	"ether":        "ETH",
	"solana":       "SOL",
	"binance coin": "BNB",
	"ripple":       "XRP",
	"cardano":      "ADA",
	"dogecoin":     "DOGE",
	"polkadot":     "DOT",
	"avalanche":    "AVAX",
	"chainlink":    "LINK",
	"polygon":      "POL",
	"litecoin":     "LTC",
	"toncoin":      "TON",
	"tron":         "TRX",
}

type Ingester struct {
	HTTP   *http.Client
	Repo   repository.NewsRepository
	Agents repository.AgentRepository
	Logger *zap.Logger

	Feeds []string

	now func() time.Time
}

// Sync fetches every feed once and returns how many new items were stored.
// A failing feed is logged and skipped.
func (i *Ingester) Sync(ctx context.Context) (int64, error) {
	if i == nil || i.Repo == nil || len(i.Feeds) == 0 {
		return 0, nil
	}
	if i.HTTP == nil {
		i.HTTP = &http.Client{Timeout: 15 * time.Second}
	}
	tagger := newTagger(i.symbols(ctx))

	var total int64
	for _, feed := range i.Feeds {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		items, err := i.fetch(ctx, feed, tagger)
		if err != nil {
			if i.Logger != nil {
				i.Logger.Warn("news feed fetch failed", zap.String("feed", feed), zap.Error(err))
			}
			continue
		}
		if len(items) == 0 {
			continue
		}
		n, err := i.Repo.UpsertNewsItems(ctx, items)
		if err != nil {
			return total, fmt.Errorf("store news from %s: %w", feed, err)
		}
		total += n
	}
	metrics.NewsIngested.Add(float64(total))
	if i.Logger != nil {
		i.Logger.Info("news synced", zap.Int("feeds", len(i.Feeds)), zap.Int64("stored", total))
	}
	return total, nil
}

func (i *Ingester) fetch(ctx context.Context, feed string, tagger *tagger) ([]models.NewsItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9")
	resp, err := i.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	title, entries, err := parseFeed(raw, i.clock())
	if err != nil {
		return nil, err
	}
	source := title
	if source == "" {
		source = feed
	}

	items := make([]models.NewsItem, 0, len(entries))
	for _, e := range entries {
		if e.Title == "" || e.Link == "" {
			continue
		}
		tokens := tagger.Tokens(e.Title)
		if len(tokens) == 0 {
			continue
		}
		rawTokens, _ := json.Marshal(tokens)
		items = append(items, models.NewsItem{
			Title:       e.Title,
			Link:        e.Link,
			Source:      truncate(source, 120),
			Tokens:      datatypes.JSON(rawTokens),
			PublishedAt: e.PublishedAt,
		})
	}
	return items, nil
}

// symbols is every known symbol plus the tokens active agents hold.
func (i *Ingester) symbols(ctx context.Context) []string {
	set := map[string]bool{}
	for _, sym := range KnownNames {
		set[sym] = true
	}
	if i.Agents != nil {
		status := models.AgentStatusActive
		agents, err := i.Agents.ListAgents(ctx, repository.ListAgentsParams{Status: &status, Limit: 500})
		if err != nil && i.Logger != nil {
			i.Logger.Warn("list agents for news tagging failed", zap.Error(err))
		}
		for _, a := range agents {
			for _, t := range a.Tokens {
				set[strings.ToUpper(strings.TrimSpace(t.Token))] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for sym := range set {
		if sym != "" && !exchange.IsStablecoin(sym) {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out
}

func (i *Ingester) clock() time.Time {
	if i.now != nil {
		return i.now()
	}
	return time.Now().UTC()
}

type tagger struct {
	symbols map[string]bool
	names   map[string]string
	words   *regexp.Regexp
}

func newTagger(symbols []string) *tagger {
	t := &tagger{symbols: map[string]bool{}, names: map[string]string{}, words: regexp.MustCompile(`[A-Za-z0-9$]+`)}
	for _, s := range symbols {
		t.symbols[s] = true
	}
	for name, sym := range KnownNames {
		if t.symbols[sym] {
			t.names[name] = sym
		}
	}
	return t
}

// Tokens returns the symbols a headline mentions, sorted. Symbols match as
// upper-case words ("BTC", "$BTC"); names match case-insensitively.
func (t *tagger) Tokens(title string) []string {
	found := map[string]bool{}
	for _, w := range t.words.FindAllString(title, -1) {
		sym := strings.TrimPrefix(w, "$")
		if sym == strings.ToUpper(sym) && t.symbols[sym] {
			found[sym] = true
		}
	}
	lower := " " + strings.ToLower(strings.Join(t.words.FindAllString(title, -1), " ")) + " "
	for name, sym := range t.names {
		if strings.Contains(lower, " "+name+" ") {
			found[sym] = true
		}
	}
	out := make([]string, 0, len(found))
	for sym := range found {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
