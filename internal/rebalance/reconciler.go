package rebalance

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"promptswap/internal/exchange"
	"promptswap/internal/models"
	"promptswap/internal/repository"
)

// Reconciler settles an agent's open orders before its next review: filled
// orders are marked filled and everything else is cancelled. Partial fills
// stay filled with their executed quantity.
type Reconciler struct {
	Orders exchange.OrderTracker
	Repo   repository.OrderRepository
	Logger *zap.Logger
}

func (r *Reconciler) Reconcile(ctx context.Context, agent *models.Agent) error {
	if r == nil || r.Orders == nil || r.Repo == nil || agent == nil {
		return nil
	}
	agentID := agent.ID
	open, err := r.Repo.ListLimitOrders(ctx, repository.ListLimitOrdersParams{
		AgentID:  &agentID,
		Statuses: []string{models.LimitOrderStatusOpen},
	})
	if err != nil {
		return err
	}
	for _, order := range open {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := r.settle(ctx, agent.UserID, order); err != nil && r.Logger != nil {
			r.Logger.Warn("reconcile limit order failed",
				zap.Uint64("agent_id", agentID),
				zap.Uint64("limit_order_id", order.ID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (r *Reconciler) settle(ctx context.Context, userID uint64, order models.LimitOrder) error {
	state, err := r.Orders.OrderStatus(ctx, userID, order.Symbol, order.ExchangeOrderID)
	if err != nil {
		return err
	}
	status := strings.ToUpper(state.Status)
	switch status {
	case "FILLED":
		executed := state.ExecutedQty
		if !executed.IsPositive() {
			executed = order.Quantity
		}
		return r.Repo.UpdateLimitOrderStatus(ctx, order.ID, models.LimitOrderStatusFilled, map[string]any{
			"executed_quantity": executed,
		})
	case "CANCELED", "EXPIRED", "REJECTED", "EXPIRED_IN_MATCH":
		return r.close(ctx, order, state.ExecutedQty, "closed on exchange: "+strings.ToLower(status))
	}

	final, err := r.Orders.CancelOrder(ctx, userID, order.Symbol, order.ExchangeOrderID)
	if err != nil {
		return err
	}
	executed := state.ExecutedQty
	if final != nil && final.ExecutedQty.GreaterThan(executed) {
		executed = final.ExecutedQty
	}
	return r.close(ctx, order, executed, "not filled before next review")
}

// close records an order that will not fill any further. Any executed part
// keeps it filled so the trade stays visible to performance analysis.
func (r *Reconciler) close(ctx context.Context, order models.LimitOrder, executed decimal.Decimal, reason string) error {
	if executed.IsPositive() {
		return r.Repo.UpdateLimitOrderStatus(ctx, order.ID, models.LimitOrderStatusFilled, map[string]any{
			"executed_quantity":   executed,
			"cancellation_reason": "partially filled, remainder " + reason,
		})
	}
	return r.Repo.UpdateLimitOrderStatus(ctx, order.ID, models.LimitOrderStatusCanceled, map[string]any{
		"executed_quantity":   decimal.Zero,
		"cancellation_reason": reason,
	})
}
