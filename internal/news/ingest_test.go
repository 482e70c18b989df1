package news

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"promptswap/internal/models"
	"promptswap/internal/repository"
	memrepository "promptswap/internal/repository/memory"
)

const rssFeed = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Coin Wire</title>
<item><title>Bitcoin breaks resistance as $ETH lags</title><link>https://news.test/a</link><pubDate>Mon, 19 Oct 2026 08:00:00 +0000</pubDate></item>
<item><title>Weather is nice today</title><link>https://news.test/b</link></item>
<item><title>SUI  rallies
 on upgrade</title><link>https://news.test/c</link><pubDate>Mon, 19 Oct 2026 09:00:00 +0000</pubDate></item>
</channel></rss>`

const atomFeed = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom"><title>Chain Daily</title>
<entry><title>Solana fees drop</title><link rel="alternate" href="https://atom.test/1"/><updated>2026-10-18T12:00:00Z</updated></entry>
</feed>`

func TestTagger(t *testing.T) {
	tg := newTagger([]string{"BTC", "ETH", "SOL", "BNB"})
	cases := map[string][]string{
		"Bitcoin and ETH rally":         {"BTC", "ETH"},
		"$SOL up 5%":                    {"SOL"},
		"Binance Coin burn scheduled":   {"BNB"},
		"Ethereal music, eth lowercase": {},
		"BTCUSDT funding flips":         {},
	}
	for title, want := range cases {
		got := tg.Tokens(title)
		if len(got) != len(want) {
			t.Fatalf("Tokens(%q)=%v want=%v", title, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("Tokens(%q)=%v want=%v", title, got, want)
			}
		}
	}
}

func TestParseFeed(t *testing.T) {
	now := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	title, entries, err := parseFeed([]byte(rssFeed), now)
	if err != nil || title != "Coin Wire" || len(entries) != 3 {
		t.Fatalf("title=%q entries=%d err=%v", title, len(entries), err)
	}
	if !entries[0].PublishedAt.Equal(time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("published=%v", entries[0].PublishedAt)
	}
	if !entries[1].PublishedAt.Equal(now) {
		t.Fatalf("missing pubDate should fall back to now, got %v", entries[1].PublishedAt)
	}
	if entries[2].Title != "SUI rallies on upgrade" {
		t.Fatalf("title=%q want whitespace collapsed", entries[2].Title)
	}

	title, entries, err = parseFeed([]byte(atomFeed), now)
	if err != nil || title != "Chain Daily" || len(entries) != 1 || entries[0].Link != "https://atom.test/1" {
		t.Fatalf("atom title=%q entries=%+v err=%v", title, entries, err)
	}

	if _, _, err := parseFeed([]byte(`<html></html>`), now); err == nil {
		t.Fatalf("html accepted as feed")
	}
}

func TestIngester_SyncStoresTaggedItemsOnce(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rss", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(rssFeed)) })
	mux.HandleFunc("/atom", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(atomFeed)) })
	mux.HandleFunc("/down", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := memrepository.New()
	store.PutAgent(models.Agent{Status: models.AgentStatusActive, Tokens: []models.AgentToken{{Token: "sui"}, {Token: "USDT"}}})
	ing := &Ingester{
		HTTP:   srv.Client(),
		Repo:   store,
		Agents: store,
		Feeds:  []string{srv.URL + "/rss", srv.URL + "/down", srv.URL + "/atom"},
	}

	n, err := ing.Sync(context.Background())
	if err != nil || n != 3 {
		t.Fatalf("stored=%d err=%v want 3", n, err)
	}
	again, err := ing.Sync(context.Background())
	if err != nil || again != 0 {
		t.Fatalf("second sync stored=%d err=%v want 0", again, err)
	}

	sui, _ := store.ListNewsItems(context.Background(), repository.ListNewsItemsParams{Token: "SUI"})
	if len(sui) != 1 || sui[0].Source != "Coin Wire" {
		t.Fatalf("SUI news=%+v want the agent-token headline", sui)
	}
	eth, _ := store.ListNewsItems(context.Background(), repository.ListNewsItemsParams{Token: "ETH"})
	if len(eth) != 1 {
		t.Fatalf("ETH news=%d want=1", len(eth))
	}
}
