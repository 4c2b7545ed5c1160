//go:build integration

package redis_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	sr "github.com/ineyio/searchrouter"
	quotaredis "github.com/ineyio/searchrouter/quota/redis"
)

func newTestClient(t *testing.T) *goredis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("redis not available at %s: %v", addr, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestLedger(t *testing.T, client *goredis.Client, opts ...quotaredis.Option) *quotaredis.Ledger {
	t.Helper()
	// Use a unique prefix per test to avoid collisions.
	prefix := "test:" + t.Name() + ":"
	l := quotaredis.New(client, append([]quotaredis.Option{quotaredis.WithKeyPrefix(prefix)}, opts...)...)
	t.Cleanup(func() {
		ctx := context.Background()
		iter := client.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
	})
	return l
}

func TestChargeAndRemaining(t *testing.T) {
	client := newTestClient(t)
	ledger := newTestLedger(t, client)
	ctx := context.Background()

	if err := ledger.EnsureLimits(ctx, map[string]int64{"serpapi": 250}); err != nil {
		t.Fatalf("ensure limits: %v", err)
	}
	for range 3 {
		if err := ledger.Charge(ctx, "serpapi", 1); err != nil {
			t.Fatalf("charge: %v", err)
		}
	}

	remaining, err := ledger.Remaining(ctx, "serpapi")
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining != 247 {
		t.Fatalf("expected remaining=247, got %d", remaining)
	}
}

func TestHasBudgetExhausted(t *testing.T) {
	client := newTestClient(t)
	ledger := newTestLedger(t, client)
	ctx := context.Background()

	if err := ledger.SetLimit(ctx, "serpapi", 2); err != nil {
		t.Fatalf("set limit: %v", err)
	}
	for range 2 {
		if err := ledger.Charge(ctx, "serpapi", 1); err != nil {
			t.Fatalf("charge: %v", err)
		}
	}

	ok, err := ledger.HasBudget(ctx, "serpapi")
	if err != nil {
		t.Fatalf("has budget: %v", err)
	}
	if ok {
		t.Fatal("expected exhausted backend to have no budget")
	}
}

func TestUnlimitedBackend(t *testing.T) {
	client := newTestClient(t)
	ledger := newTestLedger(t, client)
	ctx := context.Background()

	if err := ledger.EnsureLimits(ctx, map[string]int64{"duckduckgo": sr.Unlimited}); err != nil {
		t.Fatalf("ensure limits: %v", err)
	}
	for range 5 {
		if err := ledger.Charge(ctx, "duckduckgo", 1); err != nil {
			t.Fatalf("charge: %v", err)
		}
	}

	ok, _ := ledger.HasBudget(ctx, "duckduckgo")
	if !ok {
		t.Fatal("expected unlimited backend to have budget")
	}
	remaining, _ := ledger.Remaining(ctx, "duckduckgo")
	if remaining != sr.Unlimited {
		t.Fatalf("expected unlimited remaining, got %d", remaining)
	}
	status, err := ledger.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if got := status["duckduckgo"]; got.Used != 5 || got.Percentage != 100 {
		t.Fatalf("unexpected status: %+v", got)
	}
}

func TestUnknownBackend(t *testing.T) {
	client := newTestClient(t)
	ledger := newTestLedger(t, client)
	ctx := context.Background()

	ok, err := ledger.HasBudget(ctx, "nope")
	if err != nil || ok {
		t.Fatalf("expected no budget for unknown backend, got ok=%v err=%v", ok, err)
	}
	if err := ledger.Charge(ctx, "nope", 1); err != nil {
		t.Fatalf("charge of unknown backend should be a no-op, got %v", err)
	}
	remaining, _ := ledger.Remaining(ctx, "nope")
	if remaining != 0 {
		t.Fatalf("expected remaining=0, got %d", remaining)
	}
	status, _ := ledger.Status(ctx)
	if _, ok := status["nope"]; ok {
		t.Fatal("unknown backend must not appear in status")
	}
}

func TestMonthlyRollover(t *testing.T) {
	client := newTestClient(t)
	clk := &clock{now: time.Date(2025, 1, 31, 23, 0, 0, 0, time.UTC)}
	ledger := newTestLedger(t, client, quotaredis.WithClock(clk.Now))
	ctx := context.Background()

	if err := ledger.SetLimit(ctx, "tavily", 10); err != nil {
		t.Fatalf("set limit: %v", err)
	}
	for range 10 {
		if err := ledger.Charge(ctx, "tavily", 1); err != nil {
			t.Fatalf("charge: %v", err)
		}
	}
	if ok, _ := ledger.HasBudget(ctx, "tavily"); ok {
		t.Fatal("expected exhausted backend in January")
	}

	clk.Set(time.Date(2025, 2, 1, 0, 0, 1, 0, time.UTC))
	if ok, _ := ledger.HasBudget(ctx, "tavily"); !ok {
		t.Fatal("expected budget after month change")
	}
	if err := ledger.Charge(ctx, "tavily", 1); err != nil {
		t.Fatalf("charge: %v", err)
	}
	remaining, _ := ledger.Remaining(ctx, "tavily")
	if remaining != 9 {
		t.Fatalf("expected remaining=9 after rollover, got %d", remaining)
	}
}

func TestReset(t *testing.T) {
	client := newTestClient(t)
	ledger := newTestLedger(t, client)
	ctx := context.Background()

	if err := ledger.EnsureLimits(ctx, map[string]int64{"serpapi": 250, "tavily": 1000}); err != nil {
		t.Fatalf("ensure limits: %v", err)
	}
	ledger.Charge(ctx, "serpapi", 3)
	ledger.Charge(ctx, "tavily", 4)

	if err := ledger.Reset(ctx, "serpapi"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	status, _ := ledger.Status(ctx)
	if status["serpapi"].Used != 0 || status["tavily"].Used != 4 {
		t.Fatalf("unexpected status after single reset: %+v", status)
	}

	if err := ledger.Reset(ctx, ""); err != nil {
		t.Fatalf("reset all: %v", err)
	}
	status, _ = ledger.Status(ctx)
	if status["tavily"].Used != 0 {
		t.Fatalf("expected tavily reset, got %+v", status["tavily"])
	}
}

func TestEnsureLimitsKeepsExisting(t *testing.T) {
	client := newTestClient(t)
	ledger := newTestLedger(t, client)
	ctx := context.Background()

	ledger.SetLimit(ctx, "serpapi", 500)
	ledger.EnsureLimits(ctx, map[string]int64{"serpapi": 250})

	remaining, _ := ledger.Remaining(ctx, "serpapi")
	if remaining != 500 {
		t.Fatalf("expected stored limit to be kept, got remaining=%d", remaining)
	}
}

func TestConcurrentCharges(t *testing.T) {
	client := newTestClient(t)
	ledger := newTestLedger(t, client)
	ctx := context.Background()

	ledger.SetLimit(ctx, "serper", 2500)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ledger.Charge(ctx, "serper", 1)
		}()
	}
	wg.Wait()

	status, _ := ledger.Status(ctx)
	if status["serper"].Used != 50 {
		t.Fatalf("expected used=50, got %d", status["serper"].Used)
	}
}

func TestKeyPrefixIsolation(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	a := newTestLedger(t, client)
	b := quotaredis.New(client, quotaredis.WithKeyPrefix("test:"+t.Name()+":other:"))
	t.Cleanup(func() {
		iter := client.Scan(ctx, 0, "test:"+t.Name()+":other:*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
	})

	a.SetLimit(ctx, "serpapi", 10)
	b.SetLimit(ctx, "serpapi", 10)
	a.Charge(ctx, "serpapi", 7)

	remaining, _ := b.Remaining(ctx, "serpapi")
	if remaining != 10 {
		t.Fatalf("expected isolated ledger untouched, got remaining=%d", remaining)
	}
}
