package workcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestGetOrCompute_HitSkipsCompute(t *testing.T) {
	c := New(nil)
	ctx := context.Background()
	calls := 0
	fn := func(context.Context) (string, error) {
		calls++
		return "v", nil
	}
	first := GetOrCompute(ctx, c, "news:BTC:r1", fn)
	second := GetOrCompute(ctx, c, "news:BTC:r1", fn)
	if first.Status != StatusComputed || second.Status != StatusHit {
		t.Fatalf("status=%v,%v want computed,hit", first.Status, second.Status)
	}
	if calls != 1 {
		t.Fatalf("calls=%d want=1", calls)
	}
	if second.Value != "v" {
		t.Fatalf("value=%q want=v", second.Value)
	}
}

func TestGetOrCompute_FailureNotCached(t *testing.T) {
	c := New(nil)
	ctx := context.Background()
	boom := errors.New("boom")
	res := GetOrCompute(ctx, c, "k", func(context.Context) (int, error) { return 0, boom })
	if res.Status != StatusFailed || !errors.Is(res.Err, boom) || res.Ok() {
		t.Fatalf("res=%+v want failed with boom", res)
	}
	if c.Len() != 0 {
		t.Fatalf("len=%d want=0", c.Len())
	}
	retry := GetOrCompute(ctx, c, "k", func(context.Context) (int, error) { return 7, nil })
	if retry.Status != StatusComputed || retry.Value != 7 {
		t.Fatalf("retry=%+v want computed 7", retry)
	}
	if c.locks.Len() != 0 {
		t.Fatalf("locks held=%d want=0", c.locks.Len())
	}
}

func TestGetOrCompute_BusyKeySkipsWithoutWaiting(t *testing.T) {
	c := New(nil)
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan Result[int])
	go func() {
		done <- GetOrCompute(ctx, c, "k", func(context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		})
	}()
	<-started

	loser := GetOrCompute(ctx, c, "k", func(context.Context) (int, error) {
		t.Errorf("loser compute must not run")
		return 2, nil
	})
	if loser.Status != StatusSkipped || loser.Ok() {
		t.Fatalf("loser=%+v want skipped", loser)
	}
	close(release)
	winner := <-done
	if winner.Status != StatusComputed || winner.Value != 1 {
		t.Fatalf("winner=%+v want computed 1", winner)
	}
	after := GetOrCompute(ctx, c, "k", func(context.Context) (int, error) { return 3, nil })
	if after.Status != StatusHit || after.Value != 1 {
		t.Fatalf("after=%+v want hit 1", after)
	}
}

func TestGetOrCompute_NilPointerNotStored(t *testing.T) {
	c := New(nil)
	type payload struct{}
	res := GetOrCompute(context.Background(), c, "k", func(context.Context) (*payload, error) { return nil, nil })
	if res.Status != StatusComputed || res.Value != nil {
		t.Fatalf("res=%+v want computed nil", res)
	}
	if c.Len() != 0 {
		t.Fatalf("len=%d want=0", c.Len())
	}
}

func TestGetOrCompute_ConcurrentCallersComputeOnce(t *testing.T) {
	c := New(nil)
	var calls int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			GetOrCompute(context.Background(), c, "k", func(context.Context) (int, error) {
				atomic.AddInt32(&calls, 1)
				return 1, nil
			})
		}()
	}
	wg.Wait()
	if calls != 1 {
		t.Fatalf("calls=%d want=1", calls)
	}
}
