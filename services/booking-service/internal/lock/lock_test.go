package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLocalLocker_Exclusive(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	var mu sync.Mutex
	inside := 0
	maxInside := 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "k")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	if maxInside != 1 {
		t.Fatalf("expected exclusive access, saw %d holders", maxInside)
	}
}

func TestLocalLocker_ContextCancel(t *testing.T) {
	l := NewLocalLocker()
	unlock, err := l.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if _, err := l.Lock(context.Background(), "other"); err != nil {
		t.Fatalf("different key must not block: %v", err)
	}
}

func TestLockAll_DedupesAndReleases(t *testing.T) {
	l := NewLocalLocker()
	release, err := LockAll(context.Background(), l, []string{"b", "a", "b"})
	if err != nil {
		t.Fatalf("lock all: %v", err)
	}
	release()
	release2, err := LockAll(context.Background(), l, []string{"a", "b"})
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	release2()
}

func TestStaffDayKey(t *testing.T) {
	if got := StaffDayKey("c1", "s1", "2025-01-06"); got != "booking:lock:c1:s1:2025-01-06" {
		t.Fatalf("unexpected key %s", got)
	}
}
