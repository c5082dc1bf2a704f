package downloads

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestBandwidthUnlimited(t *testing.T) {
	b := NewBandwidth(0)
	if b.BytesPerSecond() != 0 {
		t.Fatalf("expected unlimited, got %d", b.BytesPerSecond())
	}
	start := time.Now()
	if err := b.WaitN(context.Background(), 1<<30); err != nil {
		t.Fatalf("WaitN: %v", err)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Fatal("unlimited WaitN blocked")
	}
}

func TestBandwidthLimitsRate(t *testing.T) {
	b := NewBandwidth(10_000)
	if b.BytesPerSecond() != 10_000 {
		t.Fatalf("expected 10000 B/s, got %d", b.BytesPerSecond())
	}
	start := time.Now()
	// The first 10000 bytes come from the initial burst, the next 5000 take ~0.5s.
	if err := b.WaitN(context.Background(), 15_000); err != nil {
		t.Fatalf("WaitN: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 400*time.Millisecond {
		t.Fatalf("expected throttling, finished in %s", elapsed)
	}
}

func TestBandwidthWaitCancelled(t *testing.T) {
	b := NewBandwidth(1_000)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.WaitN(ctx, 5_000); err == nil {
		t.Fatal("expected error from cancelled context")
	}

	var nilBandwidth *Bandwidth
	if err := nilBandwidth.WaitN(ctx, 1); err == nil {
		t.Fatal("expected nil bandwidth to report the cancelled context")
	}
}

func TestBandwidthSetLimit(t *testing.T) {
	b := NewBandwidth(5_000)
	b.SetLimit(0)
	if b.BytesPerSecond() != 0 {
		t.Fatalf("expected unlimited after SetLimit(0), got %d", b.BytesPerSecond())
	}
	b.SetLimit(2_048)
	if b.BytesPerSecond() != 2_048 || b.Burst() != 2_048 {
		t.Fatalf("unexpected limit %d burst %d", b.BytesPerSecond(), b.Burst())
	}
}

func TestBandwidthLiftingLimitReleasesWaiters(t *testing.T) {
	b := NewBandwidth(1_000)
	if err := b.WaitN(context.Background(), 1_000); err != nil {
		t.Fatalf("drain burst: %v", err)
	}

	done := make(chan error, 1)
	start := time.Now()
	go func() {
		done <- b.WaitN(context.Background(), 10_000)
	}()

	time.Sleep(100 * time.Millisecond)
	b.SetLimit(0)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WaitN: %v", err)
		}
		if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
			t.Fatalf("waiter released after %s", elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter still blocked after the limit was lifted")
	}
}

func TestBandwidthRaisingLimitShortensWait(t *testing.T) {
	b := NewBandwidth(1_000)
	if err := b.WaitN(context.Background(), 1_000); err != nil {
		t.Fatalf("drain burst: %v", err)
	}

	done := make(chan error, 1)
	start := time.Now()
	go func() {
		// About five seconds at the original limit.
		done <- b.WaitN(context.Background(), 5_000)
	}()

	time.Sleep(100 * time.Millisecond)
	b.SetLimit(1 << 20)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WaitN: %v", err)
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Fatalf("raised limit not applied, waited %s", elapsed)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("waiter kept the old limit")
	}
}

func TestBandwidthConcurrentLimitChanges(t *testing.T) {
	b := NewBandwidth(4_096)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				if err := b.WaitN(ctx, 3_000); err != nil {
					errs <- err
					return
				}
			}
		}()
	}

	limits := []int64{4_096, 1_024, 0, 2_048, 512}
	for i := 0; ctx.Err() == nil; i++ {
		b.SetLimit(limits[i%len(limits)])
		time.Sleep(time.Millisecond)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			t.Fatalf("WaitN returned a non-context error: %v", err)
		}
	}
}
