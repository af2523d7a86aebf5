package lock

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	var inside int32
	var maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(ctx, BlockKey("b1"))
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Fatalf("expected at most one holder at a time, saw %d", maxInside)
	}
	if m.Len() != 0 {
		t.Fatalf("expected entries to be dropped, got %d", m.Len())
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	unlockA, err := m.Lock(ctx, BlockKey("a"))
	if err != nil {
		t.Fatalf("lock a: %v", err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlockB, err := m.Lock(ctx, BlockKey("b"))
	if err != nil {
		t.Fatalf("lock b should not wait on a: %v", err)
	}
	unlockB()
}

func TestKeyedMutexHonoursContext(t *testing.T) {
	m := NewKeyedMutex()

	unlock, err := m.Lock(context.Background(), OwnerKey("o1"))
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := m.Lock(ctx, OwnerKey("o1")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	unlock()
	unlock() // second call is a no-op

	if m.Len() != 0 {
		t.Fatalf("expected no entries after release, got %d", m.Len())
	}
}

func TestRowLockOnly(t *testing.T) {
	unlock, err := RowLockOnly{}.Lock(context.Background(), BlockKey("x"))
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (RowLockOnly{}).Lock(ctx, BlockKey("x")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("KEYBOOK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("KEYBOOK_TEST_REDIS_ADDR not set")
	}

	l, err := NewRedisLocker(RedisConfig{Addr: addr, KeyPrefix: "keybook:test:lock:"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer l.Close()

	key := BlockKey(time.Now().Format(time.RFC3339Nano))
	unlock, err := l.Lock(context.Background(), key)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, key); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected second lock to wait, got %v", err)
	}

	unlock()

	unlock2, err := l.Lock(context.Background(), key)
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	unlock2()
}
