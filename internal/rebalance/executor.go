// Package rebalance turns an accepted allocation into one limit order on the
// agent's first token pair.
package rebalance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"promptswap/internal/exchange"
	"promptswap/internal/lock"
	"promptswap/internal/metrics"
	"promptswap/internal/models"
	"promptswap/internal/portfolio"
	"promptswap/internal/repository"
)

var ErrDuplicateOrder = errors.New("order already exists for review result")

// PolicyError is a placement refused before reaching the exchange.
type PolicyError struct {
	Reason string
}

func (e *PolicyError) Error() string { return e.Reason }

// ExchangeError is an order the exchange rejected. Message is the parsed,
// user-facing text.
type ExchangeError struct {
	Message string
	Err     error
}

func (e *ExchangeError) Error() string { return e.Message }

func (e *ExchangeError) Unwrap() error { return e.Err }

// Executor places rebalance orders. Locks guards each review result while
// its order is placed; a nil Locks falls back to a process-local set.
type Executor struct {
	Pairs  exchange.Pairs
	Orders exchange.Orders
	Repo   repository.OrderRepository
	Locks  lock.Locker
	Logger *zap.Logger

	local lock.Set
}

// Plan is the order Execute would place, before idempotency checks.
type Plan struct {
	Symbol   string
	Side     exchange.Side
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// Execute places the order for result. At most one order is ever stored per
// review result; later calls get ErrDuplicateOrder.
func (e *Executor) Execute(ctx context.Context, agent *models.Agent, result *models.ReviewResult, snap *portfolio.Snapshot) (*models.LimitOrder, error) {
	if e == nil || e.Pairs == nil || e.Orders == nil || e.Repo == nil {
		return nil, errors.New("rebalance executor not configured")
	}
	if agent == nil || result == nil || result.ID == 0 {
		return nil, &PolicyError{Reason: "review result not found"}
	}
	if result.HasError() || result.Rebalance == nil || !*result.Rebalance || result.NewAllocation == nil {
		return nil, &PolicyError{Reason: "review result has no rebalance decision"}
	}

	var locks lock.Locker = &e.local
	if e.Locks != nil {
		locks = e.Locks
	}
	key := "rebalance:" + strconv.FormatUint(result.ID, 10)
	ok, err := locks.Acquire(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("acquire order lock: %w", err)
	}
	if !ok {
		return nil, ErrDuplicateOrder
	}
	defer func() {
		if err := locks.Release(context.WithoutCancel(ctx), key); err != nil && e.Logger != nil {
			e.Logger.Warn("release order lock failed", zap.String("key", key), zap.Error(err))
		}
	}()

	existing, err := e.Repo.GetLimitOrderByReviewResultID(ctx, result.ID)
	if err != nil {
		return nil, fmt.Errorf("lookup order: %w", err)
	}
	if existing != nil {
		return nil, ErrDuplicateOrder
	}

	plan, err := e.Plan(ctx, agent, *result.NewAllocation, snap)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, nil
	}

	side := strings.ToLower(string(plan.Side))
	orderID, err := e.Orders.CreateLimitOrder(ctx, agent.UserID, exchange.OrderRequest{
		Symbol:   plan.Symbol,
		Side:     plan.Side,
		Quantity: plan.Quantity,
		Price:    plan.Price,
	})
	if err != nil {
		metrics.LimitOrders.WithLabelValues(side, "rejected").Inc()
		msg := e.Orders.ParseError(err)
		if msg == "" {
			msg = err.Error()
		}
		return nil, &ExchangeError{Message: msg, Err: err}
	}
	metrics.LimitOrders.WithLabelValues(side, "placed").Inc()

	order := &models.LimitOrder{
		UserID:          agent.UserID,
		AgentID:         agent.ID,
		ReviewResultID:  result.ID,
		Symbol:          plan.Symbol,
		Side:            string(plan.Side),
		Quantity:        plan.Quantity,
		Price:           plan.Price,
		ExchangeOrderID: orderID,
		Status:          models.LimitOrderStatusOpen,
	}
	if err := e.Repo.InsertLimitOrder(ctx, order); err != nil {
		if e.Logger != nil {
			e.Logger.Error("limit order placed but not stored",
				zap.Uint64("review_result_id", result.ID),
				zap.String("exchange_order_id", orderID),
				zap.Error(err),
			)
		}
		return nil, fmt.Errorf("store order: %w", err)
	}
	if e.Logger != nil {
		e.Logger.Info("limit order placed",
			zap.Uint64("agent_id", agent.ID),
			zap.Uint64("review_result_id", result.ID),
			zap.String("symbol", plan.Symbol),
			zap.String("side", string(plan.Side)),
			zap.String("quantity", plan.Quantity.String()),
			zap.String("price", plan.Price.String()),
		)
	}
	return order, nil
}

// Plan sizes the order moving the first two tokens to alloc percent in the
// first one. A nil plan means the allocation is already in place.
func (e *Executor) Plan(ctx context.Context, agent *models.Agent, alloc float64, snap *portfolio.Snapshot) (*Plan, error) {
	if len(agent.Tokens) < 2 {
		return nil, &PolicyError{Reason: "agent needs at least two tokens"}
	}
	tokenA := strings.ToUpper(agent.Tokens[0].Token)
	tokenB := strings.ToUpper(agent.Tokens[1].Token)
	posA, okA := snap.Position(tokenA)
	posB, okB := snap.Position(tokenB)
	if !okA || !okB {
		return nil, &PolicyError{Reason: "portfolio snapshot missing pair tokens"}
	}
	total := posA.Value.Add(posB.Value)
	if !total.IsPositive() {
		return nil, &PolicyError{Reason: "pair has no value to rebalance"}
	}

	diff := total.Mul(decimal.NewFromFloat(alloc)).Div(hundred).Sub(posA.Value)
	if diff.IsZero() {
		return nil, nil
	}

	pair, err := e.Pairs.PairData(ctx, tokenA, tokenB)
	if err != nil {
		return nil, fmt.Errorf("pair data %s/%s: %w", tokenA, tokenB, err)
	}
	prec, err := e.Pairs.PairPrecision(ctx, tokenA, tokenB)
	if err != nil {
		return nil, fmt.Errorf("pair precision %s/%s: %w", tokenA, tokenB, err)
	}

	// diff > 0 moves value from B into A.
	buyingA := diff.IsPositive()
	base := posA
	side := exchange.SideSell
	if buyingA {
		side = exchange.SideBuy
	}
	if strings.EqualFold(pair.BaseAsset, tokenB) {
		base = posB
		if buyingA {
			side = exchange.SideSell
		} else {
			side = exchange.SideBuy
		}
	}
	if !base.Price.IsPositive() {
		return nil, &PolicyError{Reason: "no price for " + base.Token}
	}

	quantity := diff.Abs().Div(base.Price).RoundFloor(prec.QuantityPrecision)
	price := pair.CurrentPrice.RoundFloor(prec.PricePrecision)
	if !quantity.IsPositive() || !price.IsPositive() {
		return nil, &PolicyError{Reason: "order size rounds to zero"}
	}
	notional := quantity.Mul(price)
	if notional.LessThan(prec.MinNotional) {
		return nil, &PolicyError{Reason: fmt.Sprintf("order notional %s below exchange minimum %s", notional, prec.MinNotional)}
	}

	reduced, floor := posB, agent.Tokens[1].MinAllocationPercent
	if !buyingA {
		reduced, floor = posA, agent.Tokens[0].MinAllocationPercent
	}
	moved := quantity.Mul(base.Price)
	after := reduced.Value.Sub(moved).Div(total).Mul(hundred)
	if after.LessThan(decimal.NewFromFloat(floor)) {
		return nil, &PolicyError{Reason: fmt.Sprintf("%s allocation after trade %s%% below its %v%% floor", reduced.Token, after.StringFixed(2), floor)}
	}

	return &Plan{
		Symbol:   pair.Symbol,
		Side:     side,
		Quantity: quantity,
		Price:    price,
	}, nil
}
