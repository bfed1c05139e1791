package store

import (
	"context"
	"testing"
	"time"

	"qrpos-order-services/internal/order"

	"github.com/redis/go-redis/v9"
)

type countingRepo struct {
	Repository
	outletCalls int
}

func (r *countingRepo) GetOutlet(ctx context.Context, outletID int64) (order.Outlet, error) {
	r.outletCalls++
	return r.Repository.GetOutlet(ctx, outletID)
}

func TestCachedRepositoryFallsBackWhenRedisIsDown(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	inner := &countingRepo{Repository: NewSeededMemory()}
	cached := NewCachedRepository(inner, rdb, time.Minute, nil)

	for i := 0; i < 2; i++ {
		outlet, err := cached.GetOutlet(context.Background(), 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if outlet.Code != "DEMO" {
			t.Fatalf("unexpected outlet: %+v", outlet)
		}
	}
	if inner.outletCalls != 2 {
		t.Fatalf("expected every read to reach the store, got %d", inner.outletCalls)
	}

	if _, err := cached.GetOutlet(context.Background(), 99); err == nil {
		t.Fatalf("expected not found for unknown outlet")
	}
}

func TestOutletCacheKey(t *testing.T) {
	if got := outletCacheKey(42); got != "qrpos:outlet:42:settings" {
		t.Fatalf("unexpected key %s", got)
	}
}
