package downloads

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// AdmissionController bounds how many tasks may transfer at once.
//
// Capacity is fixed for the lifetime of an instance. Resizing is done with
// WithCapacity, which returns a fresh controller; permits held against the
// old instance stay valid and must be released against it.
//
// No fairness is promised between blocked acquirers.
type AdmissionController struct {
	capacity int64
	sema     *semaphore.Weighted
	inUse    atomic.Int64
}

func NewAdmissionController(capacity int) *AdmissionController {
	c := int64(max(1, capacity))
	return &AdmissionController{
		capacity: c,
		sema:     semaphore.NewWeighted(c),
	}
}

// Acquire blocks until a permit is available or ctx is done.
func (a *AdmissionController) Acquire(ctx context.Context) error {
	if err := a.sema.Acquire(ctx, 1); err != nil {
		return err
	}
	a.inUse.Add(1)
	return nil
}

// TryAcquire takes a permit only if one is free right now.
func (a *AdmissionController) TryAcquire() bool {
	if !a.sema.TryAcquire(1) {
		return false
	}
	a.inUse.Add(1)
	return true
}

// Release returns one permit. Callers must release exactly once per
// successful Acquire; a release with nothing held is ignored so that the
// available count never exceeds capacity.
func (a *AdmissionController) Release() {
	for {
		n := a.inUse.Load()
		if n <= 0 {
			return
		}
		if a.inUse.CompareAndSwap(n, n-1) {
			a.sema.Release(1)
			return
		}
	}
}

// WithCapacity returns a new controller with all permits free. The receiver
// is left untouched.
func (a *AdmissionController) WithCapacity(n int) *AdmissionController {
	return NewAdmissionController(n)
}

func (a *AdmissionController) Capacity() int {
	return int(a.capacity)
}

func (a *AdmissionController) InUse() int {
	return int(a.inUse.Load())
}

func (a *AdmissionController) Available() int {
	return int(a.capacity - a.inUse.Load())
}
