// Package review runs agent reviews: shared per-token analysis, portfolio
// snapshot, AI decision and optional rebalance, one Review Result per run.
package review

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"promptswap/internal/analyst"
	"promptswap/internal/workcache"
)

// Batch is the state shared by the agents reviewed in one tick. It is created
// when the tick starts and dropped when it ends.
type Batch struct {
	RunID string
	cache *workcache.Cache

	mu     sync.Mutex
	failed map[string]error
}

func NewBatch(logger *zap.Logger) *Batch {
	return &Batch{
		RunID: uuid.NewString(),
		cache:  workcache.New(logger),
		failed: map[string]error{},
	}
}

func newsKey(token, runID string) string {
	return fmt.Sprintf("news:%s:%s", token, runID)
}

func techKey(token, timeframe, runID string) string {
	return fmt.Sprintf("tech:%s:%s:%s", token, timeframe, runID)
}

func orderBookKey(pair, runID string) string {
	return fmt.Sprintf("orderbook:%s:%s", pair, runID)
}

func performanceKey(agentID uint64, runID string) string {
	return fmt.Sprintf("performance:%d:%s", agentID, runID)
}

// Lookup reads key through the batch cache. A key being computed by another
// goroutine comes back absent. A key whose computation failed earlier in the
// batch returns that failure without running compute again.
func (b *Batch) Lookup(ctx context.Context, key string, compute func(context.Context) (*analyst.Output, error)) analyst.Outcome {
	if err := b.failure(key); err != nil {
		return analyst.Failed(err)
	}
	res := workcache.GetOrCompute(ctx, b.cache, key, compute)
	switch res.Status {
	case workcache.StatusHit, workcache.StatusComputed:
		return analyst.Ok(res.Value)
	case workcache.StatusFailed:
		b.recordFailure(key, res.Err)
		return analyst.Failed(res.Err)
	default:
		return analyst.Outcome{}
	}
}

func (b *Batch) failure(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failed[key]
}

func (b *Batch) recordFailure(key string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failed == nil {
		b.failed = map[string]error{}
	}
	b.failed[key] = err
}
