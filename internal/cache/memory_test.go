package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/latchpay/server/internal/errors"
	"github.com/latchpay/server/pkg/x402"
)

func TestMemoryStorePutGet(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	verdict := Success(x402.Verification{
		Payer:       "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
		AmountMicro: 290_000,
		Signature:   "sig-1",
	})
	if err := store.Put(ctx, "sig-1", verdict, time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := store.Get(ctx, "sig-1")
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v, %v", got, ok, err)
	}
	if !got.OK || got.Verification == nil || got.Verification.AmountMicro != 290_000 {
		t.Errorf("unexpected verdict %+v", got)
	}

	if _, ok, _ := store.Get(ctx, "missing"); ok {
		t.Error("expected miss for unknown signature")
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	if err := store.Put(ctx, "sig", Failure(errors.ErrCodeTxFailed, "failed"), 10*time.Millisecond); err != nil {
		t.Fatalf("Put: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if _, ok, _ := store.Get(ctx, "sig"); ok {
		t.Error("expected expired entry to miss")
	}
	if has, _ := store.Has(ctx, "sig"); has {
		t.Error("Has should report false after expiry")
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	_ = store.Put(ctx, "sig", Failure(errors.ErrCodeTxFailed, "failed"), time.Minute)
	if err := store.Delete(ctx, "sig"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if has, _ := store.Has(ctx, "sig"); has {
		t.Error("entry survived delete")
	}
}

func TestMemoryStoreEviction(t *testing.T) {
	store := NewMemoryStore(WithMaxEntries(3))
	defer store.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		sig := fmt.Sprintf("sig-%d", i)
		_ = store.Put(ctx, sig, Failure(errors.ErrCodeTxFailed, "failed"), time.Minute)
		time.Sleep(time.Millisecond)
	}

	if n := store.Len(); n > 3 {
		t.Errorf("Len = %d, want <= 3", n)
	}
	// The most recent entry must survive.
	if has, _ := store.Has(ctx, "sig-4"); !has {
		t.Error("newest entry was evicted")
	}
}
