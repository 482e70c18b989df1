package review

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"promptswap/internal/analyst"
	"promptswap/internal/exchange"
	"promptswap/internal/metrics"
	"promptswap/internal/models"
)

type Analysts interface {
	NewsAnalysis(ctx context.Context, userID uint64, token string) (*analyst.Output, error)
	TechnicalAnalysis(ctx context.Context, userID uint64, token, timeframe string) (*analyst.Output, error)
	OrderBookAnalysis(ctx context.Context, userID uint64, pair string) (*analyst.Output, error)
	PerformanceAnalysis(ctx context.Context, userID uint64, in analyst.PerformanceInput) (*analyst.Output, error)
}

func analysisTokens(agent *models.Agent) []string {
	cash := strings.ToUpper(strings.TrimSpace(agent.CashToken))
	seen := map[string]bool{}
	out := make([]string, 0, len(agent.Tokens))
	for _, tok := range agent.Tokens {
		token := strings.ToUpper(strings.TrimSpace(tok.Token))
		if token == "" || token == cash || exchange.IsStablecoin(token) || seen[token] {
			continue
		}
		seen[token] = true
		out = append(out, token)
	}
	return out
}

func instrumented(stage string, fn func(context.Context) (*analyst.Output, error)) func(context.Context) (*analyst.Output, error) {
	return func(ctx context.Context) (*analyst.Output, error) {
		out, err := fn(ctx)
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.AnalystCalls.WithLabelValues(stage, outcome).Inc()
		return out, err
	}
}

func (s *Supervisor) lookupNews(ctx context.Context, b *Batch, userID uint64, token string) analyst.Outcome {
	return b.Lookup(ctx, newsKey(token, b.RunID), instrumented(analyst.StageNews, func(ctx context.Context) (*analyst.Output, error) {
		return s.Analysts.NewsAnalysis(ctx, userID, token)
	}))
}

func (s *Supervisor) lookupTechnical(ctx context.Context, b *Batch, userID uint64, token string) analyst.Outcome {
	timeframe := s.timeframe()
	return b.Lookup(ctx, techKey(token, timeframe, b.RunID), instrumented(analyst.StageTechnical, func(ctx context.Context) (*analyst.Output, error) {
		return s.Analysts.TechnicalAnalysis(ctx, userID, token, timeframe)
	}))
}

func (s *Supervisor) lookupOrderBook(ctx context.Context, b *Batch, userID uint64, pair string) analyst.Outcome {
	return b.Lookup(ctx, orderBookKey(pair, b.RunID), instrumented(analyst.StageOrderBook, func(ctx context.Context) (*analyst.Output, error) {
		return s.Analysts.OrderBookAnalysis(ctx, userID, pair)
	}))
}

// prefetch computes every shared analysis of the batch once, before any agent
// pipeline reads it. Each token is analysed with the key of the first agent
// that holds it.
func (s *Supervisor) prefetch(ctx context.Context, b *Batch, agents []models.Agent) {
	owner := map[string]uint64{}
	var tokens []string
	for i := range agents {
		for _, token := range analysisTokens(&agents[i]) {
			if _, ok := owner[token]; ok {
				continue
			}
			owner[token] = agents[i].UserID
			tokens = append(tokens, token)
		}
	}
	if len(tokens) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(s.concurrency())
	for _, token := range tokens {
		userID := owner[token]
		g.Go(func() error {
			s.lookupNews(ctx, b, userID, token)
			return nil
		})
		g.Go(func() error {
			s.lookupTechnical(ctx, b, userID, token)
			return nil
		})
		g.Go(func() error {
			s.lookupOrderBook(ctx, b, userID, exchange.USDPair(token))
			return nil
		})
	}
	_ = g.Wait()
	s.logger().Debug("analysis prefetched", zap.String("run_id", b.RunID), zap.Int("tokens", len(tokens)))
}

// tokenReports assembles the agent's per-token reports from the batch cache
// and the raw logs the agent owes for them. Excluded tokens keep null
// analyses.
func (s *Supervisor) tokenReports(ctx context.Context, b *Batch, agent *models.Agent) ([]analyst.TokenReport, []models.ReviewRawLog) {
	analysed := map[string]bool{}
	for _, token := range analysisTokens(agent) {
		analysed[token] = true
	}
	reports := make([]analyst.TokenReport, 0, len(agent.Tokens))
	var logs []models.ReviewRawLog
	record := func(stage, token string, o analyst.Outcome) *analyst.Analysis {
		if o.Succeeded() && o.Output.Logged() {
			logs = append(logs, models.ReviewRawLog{
				AgentID:  agent.ID,
				RunID:    b.RunID,
				Stage:    stage,
				Token:    token,
				Prompt:   o.Output.Prompt,
				Response: o.Output.Response,
			})
		}
		return o.Analysis()
	}
	for _, tok := range agent.Tokens {
		token := strings.ToUpper(strings.TrimSpace(tok.Token))
		report := analyst.TokenReport{Token: token}
		if analysed[token] {
			pair := exchange.USDPair(token)
			report.News = record(analyst.StageNews, token, s.lookupNews(ctx, b, agent.UserID, token))
			report.Tech = record(analyst.StageTechnical, token, s.lookupTechnical(ctx, b, agent.UserID, token))
			report.OrderBook = record(analyst.StageOrderBook, pair, s.lookupOrderBook(ctx, b, agent.UserID, pair))
		}
		reports = append(reports, report)
	}
	return reports, logs
}
