package rebalance

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"promptswap/internal/exchange"
	"promptswap/internal/models"
	memrepository "promptswap/internal/repository/memory"
)

type fakeTracker struct {
	status    map[string]string
	executed  map[string]string
	cancelled []string
}

func (f *fakeTracker) state(orderID string) *exchange.OrderState {
	st := &exchange.OrderState{Status: f.status[orderID]}
	if q, ok := f.executed[orderID]; ok {
		st.ExecutedQty = decimal.RequireFromString(q)
	}
	return st
}

func (f *fakeTracker) OrderStatus(ctx context.Context, userID uint64, symbol, orderID string) (*exchange.OrderState, error) {
	return f.state(orderID), nil
}

func (f *fakeTracker) CancelOrder(ctx context.Context, userID uint64, symbol, orderID string) (*exchange.OrderState, error) {
	f.cancelled = append(f.cancelled, orderID)
	st := f.state(orderID)
	st.Status = "CANCELED"
	return st, nil
}

func TestReconciler_SettlesOpenOrders(t *testing.T) {
	store := memrepository.New()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_ = store.InsertLimitOrder(ctx, &models.LimitOrder{AgentID: 7, Symbol: "ETHBTC", Side: "BUY", ExchangeOrderID: id})
	}
	_ = store.InsertLimitOrder(ctx, &models.LimitOrder{AgentID: 8, Symbol: "ETHBTC", Side: "BUY", ExchangeOrderID: "other"})

	tracker := &fakeTracker{status: map[string]string{"a": "FILLED", "b": "NEW", "c": "EXPIRED", "other": "NEW"}}
	r := &Reconciler{Orders: tracker, Repo: store}
	if err := r.Reconcile(ctx, &models.Agent{ID: 7, UserID: 3}); err != nil {
		t.Fatalf("Reconcile err=%v", err)
	}

	got := map[string]models.LimitOrder{}
	for _, o := range store.Orders() {
		got[o.ExchangeOrderID] = o
	}
	if got["a"].Status != models.LimitOrderStatusFilled {
		t.Fatalf("a status=%s want filled", got["a"].Status)
	}
	if got["b"].Status != models.LimitOrderStatusCanceled || got["b"].CancellationReason == "" {
		t.Fatalf("b=%+v want canceled with reason", got["b"])
	}
	if got["c"].Status != models.LimitOrderStatusCanceled {
		t.Fatalf("c status=%s want canceled", got["c"].Status)
	}
	if got["other"].Status != models.LimitOrderStatusOpen {
		t.Fatalf("other agent's order touched: %+v", got["other"])
	}
	if len(tracker.cancelled) != 1 || tracker.cancelled[0] != "b" {
		t.Fatalf("cancelled=%v want [b]", tracker.cancelled)
	}
}

func TestReconciler_PartialFillKeepsExecutedQuantity(t *testing.T) {
	store := memrepository.New()
	ctx := context.Background()
	for _, id := range []string{"p", "x"} {
		_ = store.InsertLimitOrder(ctx, &models.LimitOrder{
			AgentID: 7, Symbol: "ETHBTC", Side: "SELL", ExchangeOrderID: id,
			Quantity: decimal.RequireFromString("1"), Price: decimal.RequireFromString("0.05"),
		})
	}

	tracker := &fakeTracker{
		status:   map[string]string{"p": "PARTIALLY_FILLED", "x": "CANCELED"},
		executed: map[string]string{"p": "0.4", "x": "0.25"},
	}
	r := &Reconciler{Orders: tracker, Repo: store}
	if err := r.Reconcile(ctx, &models.Agent{ID: 7, UserID: 3}); err != nil {
		t.Fatalf("Reconcile err=%v", err)
	}

	got := map[string]models.LimitOrder{}
	for _, o := range store.Orders() {
		got[o.ExchangeOrderID] = o
	}
	cases := map[string]string{"p": "0.4", "x": "0.25"}
	for id, want := range cases {
		o := got[id]
		if o.Status != models.LimitOrderStatusFilled {
			t.Fatalf("%s status=%s want filled", id, o.Status)
		}
		if o.ExecutedQuantity == nil || !o.ExecutedQuantity.Equal(decimal.RequireFromString(want)) {
			t.Fatalf("%s executed=%v want=%s", id, o.ExecutedQuantity, want)
		}
	}
	if got["p"].CancellationReason != "partially filled, remainder not filled before next review" {
		t.Fatalf("p reason=%q", got["p"].CancellationReason)
	}
	if len(tracker.cancelled) != 1 || tracker.cancelled[0] != "p" {
		t.Fatalf("cancelled=%v want [p]", tracker.cancelled)
	}
}
