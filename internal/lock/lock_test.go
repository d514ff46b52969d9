package lock

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestLocal_ObtainRelease(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	release, err := l.Obtain(ctx, "user:1")
	if err != nil {
		t.Fatalf("Obtain() error = %v", err)
	}

	if _, err := l.Obtain(ctx, "user:1"); !errors.Is(err, ErrNotObtained) {
		t.Fatalf("second Obtain() error = %v, want ErrNotObtained", err)
	}
	if r2, err := l.Obtain(ctx, "user:2"); err != nil {
		t.Fatalf("Obtain(other key) error = %v", err)
	} else {
		r2(ctx)
	}

	if err := release(ctx); err != nil {
		t.Fatalf("release() error = %v", err)
	}
	// releasing twice must not free a lock taken by somebody else
	again, err := l.Obtain(ctx, "user:1")
	if err != nil {
		t.Fatalf("Obtain() after release error = %v", err)
	}
	release(ctx)
	if _, err := l.Obtain(ctx, "user:1"); !errors.Is(err, ErrNotObtained) {
		t.Fatalf("stale release freed a live lock: %v", err)
	}
	again(ctx)
}

func TestKeepAlive_RefreshesUntilStopped(t *testing.T) {
	var calls atomic.Int32
	stop := keepAlive(5*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("refresh called %d times, want at least 3", calls.Load())
		}
		time.Sleep(time.Millisecond)
	}

	stop()
	stop()
	after := calls.Load()
	time.Sleep(30 * time.Millisecond)
	if got := calls.Load(); got != after {
		t.Errorf("refresh called %d times after stop, want %d", got, after)
	}
}

func TestKeepAlive_StopsAfterFailedRefresh(t *testing.T) {
	var calls atomic.Int32
	stop := keepAlive(5*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return errors.New("lock not held")
	})
	defer stop()

	time.Sleep(50 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("refresh called %d times, want 1", got)
	}
}

// Requires a running Redis; set REDIS_ADDRESS to enable.
func TestRedis_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDRESS")
	if addr == "" {
		t.Skip("REDIS_ADDRESS not set")
	}
	ctx := context.Background()
	rdb, err := ConnectRedis(ctx, addr, "", 0)
	if err != nil {
		t.Fatalf("ConnectRedis() error = %v", err)
	}
	defer rdb.Close()

	l := NewRedis(rdb, time.Second)
	key := "fintrack:test:" + uuid.NewString()

	release, err := l.Obtain(ctx, key)
	if err != nil {
		t.Fatalf("Obtain() error = %v", err)
	}
	if _, err := l.Obtain(ctx, key); !errors.Is(err, ErrNotObtained) {
		t.Fatalf("second Obtain() error = %v, want ErrNotObtained", err)
	}
	// outlives the ttl only because it is refreshed
	time.Sleep(1500 * time.Millisecond)
	if _, err := l.Obtain(ctx, key); !errors.Is(err, ErrNotObtained) {
		t.Fatalf("Obtain() after ttl error = %v, want ErrNotObtained", err)
	}
	if err := release(ctx); err != nil {
		t.Fatalf("release() error = %v", err)
	}
	if err := release(ctx); err != nil {
		t.Fatalf("second release() error = %v", err)
	}
}
