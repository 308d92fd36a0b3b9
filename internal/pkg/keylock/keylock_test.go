package keylock

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLocalSerialisesSameKey(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	var mu sync.Mutex
	inside, maxInside := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Lock(ctx, "doc:1")
			if err != nil {
				t.Errorf("Lock: %v", err)
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
			release()
		}()
	}
	wg.Wait()
	if maxInside != 1 {
		t.Fatalf("max concurrent holders: want=1 got=%d", maxInside)
	}
	if l.Held() != 0 {
		t.Fatalf("Held after release: want=0 got=%d", l.Held())
	}
}

func TestLocalHonoursContext(t *testing.T) {
	l := NewLocal()
	release, err := l.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "k"); err == nil {
		t.Fatalf("second Lock: want context error")
	}
	if _, err := l.Lock(context.Background(), "other"); err != nil {
		t.Fatalf("other key: %v", err)
	}
}
