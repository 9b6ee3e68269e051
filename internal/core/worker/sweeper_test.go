package worker

import (
	"context"
	"testing"
	"time"

	"github.com/chainmint/issuer/internal/infra/storage"
	"github.com/chainmint/issuer/internal/infra/storage/memory"
)

func TestSweepDropsExpiredRecords(t *testing.T) {
	store := memory.NewIdempotencyStore()
	ctx := context.Background()

	ok, _, err := store.PutIfAbsent(ctx, "export", "short", &storage.IdempotencyRecord{Key: "short"}, time.Millisecond)
	if !ok || err != nil {
		t.Fatalf("put short: ok=%v err=%v", ok, err)
	}
	ok, _, err = store.PutIfAbsent(ctx, "export", "long", &storage.IdempotencyRecord{Key: "long"}, time.Hour)
	if !ok || err != nil {
		t.Fatalf("put long: ok=%v err=%v", ok, err)
	}

	time.Sleep(5 * time.Millisecond)

	s := NewSweeper([]ExpiringStore{store}, time.Minute, nil)
	s.sweep(ctx)

	if rec, _ := store.Get(ctx, "export", "short"); rec != nil {
		t.Fatal("expired record survived sweep")
	}
	if rec, _ := store.Get(ctx, "export", "long"); rec == nil {
		t.Fatal("live record was swept")
	}
}
