package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"promptswap/internal/analyst"
	"promptswap/internal/config"
	"promptswap/internal/lock"
	"promptswap/internal/logger"
	"promptswap/internal/metrics"
	"promptswap/internal/models"
	"promptswap/internal/portfolio"
	"promptswap/internal/rebalance"
	"promptswap/internal/repository"
	"promptswap/internal/trader"
)

var (
	ErrAlreadyReviewing = errors.New("already reviewing")
	ErrAgentNotFound    = errors.New("agent not found")
)

// Stages recorded in a Review Result error.
const (
	StageAnalysis  = "analysis"
	StagePortfolio = "portfolio"
	StageDecision  = "decision"
	StageExecution = "execution"
	StageRun       = "run"
)

type RunError struct {
	Message       string   `json:"message"`
	Stage         string   `json:"stage"`
	NewAllocation *float64 `json:"newAllocation,omitempty"`
}

type Snapshotter interface {
	Build(ctx context.Context, agent *models.Agent) (*portfolio.Snapshot, error)
}

type Decider interface {
	Decide(ctx context.Context, agent *models.Agent, payload any) (*trader.Call, error)
}

type Executor interface {
	Execute(ctx context.Context, agent *models.Agent, result *models.ReviewResult, snap *portfolio.Snapshot) (*models.LimitOrder, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, agent *models.Agent) error
}

type Supervisor struct {
	Repo       repository.Repository
	Analysts   Analysts
	Portfolio  Snapshotter
	Trader     Decider
	Executor   Executor
	Reconciler Reconciler
	Locks      lock.Locker
	Logger     *zap.Logger
	Config     config.ReviewConfig
}

// RunReview reviews one agent now. The returned result is the run's single
// Review Result, whether the run completed or failed; an error means no
// result was written.
func (s *Supervisor) RunReview(ctx context.Context, agentID uint64) (*models.ReviewResult, error) {
	agent, err := s.Repo.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, ErrAgentNotFound
	}
	release, err := s.acquire(ctx, agent.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	batch := NewBatch(s.Logger)
	s.prefetch(ctx, batch, []models.Agent{*agent})
	return s.runAgent(ctx, batch, agent)
}

// RunReviewBatch reviews every active agent on interval concurrently. Agents
// still busy from an earlier run are skipped; one agent's failure never stops
// the others.
func (s *Supervisor) RunReviewBatch(ctx context.Context, interval string) error {
	status := models.AgentStatusActive
	agents, err := s.Repo.ListAgents(ctx, repository.ListAgentsParams{
		Status:         &status,
		ReviewInterval: &interval,
		Limit:          500,
	})
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}
	if len(agents) == 0 {
		return nil
	}

	batch := NewBatch(s.Logger)
	log := s.logger().With(zap.String("run_id", batch.RunID), zap.String("interval", interval))

	ready := make([]models.Agent, 0, len(agents))
	releases := make([]func(), 0, len(agents))
	for i := range agents {
		release, err := s.acquire(ctx, agents[i].ID)
		switch {
		case errors.Is(err, ErrAlreadyReviewing):
			log.Warn("agent still reviewing, skipped", zap.Uint64("agent_id", agents[i].ID))
			continue
		case err != nil:
			log.Error("agent review not recorded", zap.Uint64("agent_id", agents[i].ID), zap.Error(err))
			continue
		}
		ready = append(ready, agents[i])
		releases = append(releases, release)
	}
	if len(ready) == 0 {
		return nil
	}
	log.Info("review batch started", zap.Int("agents", len(ready)), zap.Int("skipped", len(agents)-len(ready)))
	s.prefetch(ctx, batch, ready)

	var g errgroup.Group
	g.SetLimit(s.concurrency())
	for i := range ready {
		agent, release := &ready[i], releases[i]
		g.Go(func() error {
			defer release()
			if _, err := s.runAgent(ctx, batch, agent); err != nil {
				log.Error("agent review not recorded", zap.Uint64("agent_id", agent.ID), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	log.Info("review batch finished")
	return nil
}

// run carries one agent's pipeline state so a panic can still finish the
// single Review Result.
type run struct {
	agent  *models.Agent
	batch  *Batch
	log    *zap.Logger
	result *models.ReviewResult
	lines  []string
}

func (s *Supervisor) acquire(ctx context.Context, agentID uint64) (func(), error) {
	key := "review:" + strconv.FormatUint(agentID, 10)
	ok, err := s.Locks.Acquire(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		metrics.ReviewRuns.WithLabelValues("rejected").Inc()
		return nil, ErrAlreadyReviewing
	}
	return func() {
		if err := s.Locks.Release(context.WithoutCancel(ctx), key); err != nil {
			s.logger().Warn("release run lock failed", zap.Uint64("agent_id", agentID), zap.Error(err))
		}
	}, nil
}

// runAgent expects the caller to hold the agent's run lock.
func (s *Supervisor) runAgent(ctx context.Context, b *Batch, agent *models.Agent) (result *models.ReviewResult, err error) {
	started := time.Now()
	r := &run{agent: agent, batch: b, log: logger.ForRun(s.Logger, agent.ID, b.RunID)}
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("review run panicked", zap.Any("panic", rec), zap.Stack("stack"))
			result, err = s.finish(ctx, r, &RunError{Message: fmt.Sprintf("internal error: %v", rec), Stage: StageRun})
		}
		outcome := "completed"
		if result == nil || result.HasError() {
			outcome = "failed"
		}
		metrics.ReviewRuns.WithLabelValues(outcome).Inc()
		metrics.ReviewRunDuration.WithLabelValues(outcome).Observe(time.Since(started).Seconds())
	}()

	r.log.Info("review run started")
	return s.pipeline(ctx, r)
}

func (s *Supervisor) pipeline(ctx context.Context, r *run) (*models.ReviewResult, error) {
	agent := r.agent
	if s.Reconciler != nil {
		if err := s.Reconciler.Reconcile(ctx, agent); err != nil {
			r.log.Warn("order reconciliation failed", zap.Error(err))
		}
	}

	reports, logs := s.tokenReports(ctx, r.batch, agent)
	r.lines = append(r.lines, reportLines(reports)...)

	snap, err := s.Portfolio.Build(ctx, agent)
	if err != nil {
		s.writeRawLogs(ctx, r, logs)
		return s.finish(ctx, r, &RunError{Message: err.Error(), Stage: StagePortfolio})
	}

	perf, perfLog := s.performance(ctx, r, reports)
	if perfLog != nil {
		logs = append(logs, *perfLog)
	}
	if perf != nil {
		r.lines = append(r.lines, fmt.Sprintf("performance: %s (%+.1f)", perf.Comment, perf.Score))
	}
	s.writeRawLogs(ctx, r, logs)

	previous, err := s.Repo.ListReviewResults(ctx, repository.ListReviewResultsParams{
		AgentID: agent.ID,
		Limit:   s.previousLimit(),
	})
	if err != nil {
		return s.finish(ctx, r, &RunError{Message: "failed to load previous results: " + err.Error(), Stage: StageAnalysis})
	}

	payload := BuildPayload(agent, reports, perf, snap, previous)
	call, err := s.Trader.Decide(ctx, agent, payload)
	var rawLogID *uint64
	if call != nil && call.Prompt != "" && call.Response != "" {
		rawLogID = s.writeRawLog(ctx, r, models.ReviewRawLog{
			AgentID:  agent.ID,
			RunID:    r.batch.RunID,
			Stage:    StageDecision,
			Prompt:   call.Prompt,
			Response: call.Response,
		})
	}
	if err != nil {
		runErr := &RunError{Message: err.Error(), Stage: StageDecision}
		var verr *trader.ValidationError
		if errors.As(err, &verr) {
			runErr.NewAllocation = verr.NewAllocation
		}
		r.result = &models.ReviewResult{RawLogID: rawLogID}
		if call != nil && call.Decision != nil {
			r.result.Rebalance = &call.Decision.Rebalance
			r.result.ShortReport = call.Decision.ShortReport
		}
		return s.finish(ctx, r, runErr)
	}

	d := call.Decision
	r.lines = append(r.lines, "decision: "+describeDecision(d))
	r.result = &models.ReviewResult{
		Rebalance:   &d.Rebalance,
		ShortReport: d.ShortReport,
		RawLogID:    rawLogID,
	}
	if d.Rebalance {
		r.result.NewAllocation = d.NewAllocation
	}
	result, err := s.finish(ctx, r, nil)
	if err != nil || !d.Rebalance {
		return result, err
	}
	if agent.ManualRebalance {
		r.log.Info("rebalance awaiting manual execution", zap.Uint64("review_result_id", result.ID))
		return result, nil
	}
	if s.Executor == nil {
		return result, nil
	}
	if _, err := s.Executor.Execute(ctx, agent, result, snap); err != nil {
		return s.finish(ctx, r, &RunError{Message: executionMessage(err), Stage: StageExecution, NewAllocation: d.NewAllocation})
	}
	return result, nil
}

// finish writes the run's Review Result. The first call inserts the row;
// later calls only attach runErr to it.
func (s *Supervisor) finish(ctx context.Context, r *run, runErr *RunError) (*models.ReviewResult, error) {
	ctx = context.WithoutCancel(ctx)
	if r.result == nil {
		r.result = &models.ReviewResult{}
	}
	res := r.result
	var errJSON datatypes.JSON
	if runErr != nil {
		raw, _ := json.Marshal(runErr)
		errJSON = datatypes.JSON(raw)
		r.lines = append(r.lines, fmt.Sprintf("error (%s): %s", runErr.Stage, runErr.Message))
		r.log.Warn("review run failed", zap.String("stage", runErr.Stage), zap.String("error", runErr.Message))
	}
	if res.ID != 0 {
		res.Error = errJSON
		res.Log = strings.Join(r.lines, "\n")
		if err := s.Repo.UpdateReviewResult(ctx, res.ID, map[string]any{"error": errJSON, "log": res.Log}); err != nil {
			return res, fmt.Errorf("update review result: %w", err)
		}
		return res, nil
	}
	res.AgentID = r.agent.ID
	res.RunID = r.batch.RunID
	res.Error = errJSON
	res.Log = strings.Join(r.lines, "\n")
	if err := s.Repo.InsertReviewResult(ctx, res); err != nil {
		return nil, fmt.Errorf("insert review result: %w", err)
	}
	if runErr == nil {
		r.log.Info("review run completed", zap.Uint64("review_result_id", res.ID))
	}
	return res, nil
}

func (s *Supervisor) performance(ctx context.Context, r *run, reports []analyst.TokenReport) (*analyst.Analysis, *models.ReviewRawLog) {
	agent := r.agent
	agentID := agent.ID
	outcome := r.batch.Lookup(ctx, performanceKey(agent.ID, r.batch.RunID), instrumented(analyst.StagePerformance, func(ctx context.Context) (*analyst.Output, error) {
		orders, err := s.Repo.ListLimitOrders(ctx, repository.ListLimitOrdersParams{
			AgentID:  &agentID,
			Statuses: []string{models.LimitOrderStatusFilled, models.LimitOrderStatusCanceled},
			Limit:    s.performanceOrders(),
		})
		if err != nil {
			return nil, err
		}
		return s.Analysts.PerformanceAnalysis(ctx, agent.UserID, analyst.PerformanceInput{
			AgentID: agent.ID,
			Orders:  orders,
			Reports: reports,
		})
	}))
	var log *models.ReviewRawLog
	if outcome.Succeeded() && outcome.Output.Logged() {
		log = &models.ReviewRawLog{
			AgentID:  agent.ID,
			RunID:    r.batch.RunID,
			Stage:    analyst.StagePerformance,
			Prompt:   outcome.Output.Prompt,
			Response: outcome.Output.Response,
		}
	}
	return outcome.Analysis(), log
}

func (s *Supervisor) writeRawLogs(ctx context.Context, r *run, logs []models.ReviewRawLog) {
	for _, l := range logs {
		s.writeRawLog(ctx, r, l)
	}
}

func (s *Supervisor) writeRawLog(ctx context.Context, r *run, l models.ReviewRawLog) *uint64 {
	if err := s.Repo.InsertReviewRawLog(ctx, &l); err != nil {
		r.log.Warn("write raw log failed", zap.String("stage", l.Stage), zap.String("token", l.Token), zap.Error(err))
		return nil
	}
	id := l.ID
	return &id
}

func executionMessage(err error) string {
	var xerr *rebalance.ExchangeError
	if errors.As(err, &xerr) {
		return "exchange rejected order: " + xerr.Message
	}
	return err.Error()
}

func describeDecision(d *trader.Decision) string {
	if !d.Rebalance {
		return "hold. " + d.ShortReport
	}
	return fmt.Sprintf("rebalance to %.2f%%. %s", *d.NewAllocation, d.ShortReport)
}

func reportLines(reports []analyst.TokenReport) []string {
	lines := make([]string, 0, len(reports))
	for _, rep := range reports {
		lines = append(lines, fmt.Sprintf("%s: news %s, tech %s, orderbook %s",
			rep.Token, scoreText(rep.News), scoreText(rep.Tech), scoreText(rep.OrderBook)))
	}
	return lines
}

func scoreText(a *analyst.Analysis) string {
	if a == nil {
		return "n/a"
	}
	return strconv.FormatFloat(a.Score, 'f', 1, 64)
}

func (s *Supervisor) logger() *zap.Logger {
	return logger.OrNop(s.Logger)
}

func (s *Supervisor) concurrency() int {
	if s.Config.MaxConcurrency <= 0 {
		return 8
	}
	return s.Config.MaxConcurrency
}

func (s *Supervisor) timeframe() string {
	if tf := strings.TrimSpace(s.Config.TechnicalTimeframe); tf != "" {
		return tf
	}
	return "1d"
}

func (s *Supervisor) previousLimit() int {
	if s.Config.PreviousResults <= 0 || s.Config.PreviousResults > maxPreviousResponses {
		return maxPreviousResponses
	}
	return s.Config.PreviousResults
}

func (s *Supervisor) performanceOrders() int {
	if s.Config.PerformanceOrders <= 0 {
		return 10
	}
	return s.Config.PerformanceOrders
}
