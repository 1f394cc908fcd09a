package aggregate

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/smartfi/internal/domain"
)

func (c *fakeCaller) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

func TestRefreshWorkerFetchesWhileActive(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	caller := newFakeCaller()
	o := New(caller, nil)
	StartRefreshWorker(ctx, o, 10*time.Millisecond, func() bool { return true })

	deadline := time.Now().Add(2 * time.Second)
	for o.Record().Len() < len(domain.AllSources) {
		if time.Now().After(deadline) {
			t.Fatalf("refresh worker did not populate the record, have %d sources", o.Record().Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRefreshWorkerSkipsWhileInactive(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var checks atomic.Int32
	caller := newFakeCaller()
	StartRefreshWorker(ctx, New(caller, nil), 5*time.Millisecond, func() bool {
		checks.Add(1)
		return false
	})

	deadline := time.Now().Add(2 * time.Second)
	for checks.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("refresh worker never ticked")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if n := caller.total(); n != 0 {
		t.Errorf("expected no fetches while inactive, got %d", n)
	}
}

func TestRefreshWorkerDisabled(t *testing.T) {
	caller := newFakeCaller()
	StartRefreshWorker(context.Background(), New(caller, nil), 0, nil)

	time.Sleep(20 * time.Millisecond)
	if n := caller.total(); n != 0 {
		t.Errorf("expected a disabled worker to never fetch, got %d calls", n)
	}
}
