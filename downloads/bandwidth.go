package downloads

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Bandwidth is a manager-wide byte budget shared by all tasks.
// A limit of 0 means unlimited. Limit changes apply to tasks already
// waiting for tokens.
type Bandwidth struct {
	limiter *rate.Limiter

	mu      sync.Mutex
	changed chan struct{} // closed and replaced by SetLimit
}

func NewBandwidth(bytesPerSec int64) *Bandwidth {
	b := &Bandwidth{changed: make(chan struct{})}
	if bytesPerSec <= 0 {
		b.limiter = rate.NewLimiter(rate.Inf, 0)
	} else {
		b.limiter = rate.NewLimiter(rate.Limit(bytesPerSec), int(bytesPerSec))
	}
	return b
}

func (b *Bandwidth) SetLimit(bytesPerSec int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bytesPerSec <= 0 {
		b.limiter.SetLimit(rate.Inf)
		b.limiter.SetBurst(0)
	} else {
		b.limiter.SetLimit(rate.Limit(bytesPerSec))
		b.limiter.SetBurst(int(bytesPerSec))
	}
	close(b.changed)
	b.changed = make(chan struct{})
}

func (b *Bandwidth) BytesPerSecond() int64 {
	if b.limiter.Limit() == rate.Inf {
		return 0
	}
	return int64(b.limiter.Limit())
}

func (b *Bandwidth) Burst() int {
	return b.limiter.Burst()
}

func (b *Bandwidth) watch() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.changed
}

// WaitN blocks until n bytes may be transferred. Requests larger than the
// burst are split. A limit change releases the pending reservation and the
// remainder is booked again under the new limit. Only ctx ends the wait
// early.
func (b *Bandwidth) WaitN(ctx context.Context, n int64) error {
	if b == nil {
		return ctx.Err()
	}
	for n > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Watch before reading the limit so a concurrent SetLimit is never missed.
		changed := b.watch()
		if b.limiter.Limit() == rate.Inf {
			return nil
		}
		step := n
		if burst := int64(b.limiter.Burst()); burst > 0 && step > burst {
			step = burst
		}
		r := b.limiter.ReserveN(time.Now(), int(step))
		if !r.OK() {
			// The burst shrank after it was read; split again.
			continue
		}
		delay := r.Delay()
		if delay <= 0 {
			n -= step
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.Cancel()
			return ctx.Err()
		case <-changed:
			timer.Stop()
			r.Cancel()
		case <-timer.C:
			n -= step
		}
	}
	return nil
}
