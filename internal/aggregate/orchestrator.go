// Package aggregate keeps the aggregate record of all financial sources and
// the per-source fetch state, and coordinates fetching them.
package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/smartfi/internal/domain"
	"github.com/ashureev/smartfi/internal/fimcp"
	"golang.org/x/sync/errgroup"
)

// Caller invokes one remote tool and returns its result document.
type Caller interface {
	Call(ctx context.Context, tool string) (json.RawMessage, error)
}

// Orchestrator owns the aggregate record. Each key is mutated atomically
// under mu; the remote call itself runs outside the lock.
type Orchestrator struct {
	caller Caller
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	payloads map[domain.SourceKey]domain.Payload
	states   map[domain.SourceKey]domain.FetchState
	tokens   map[domain.SourceKey]uint64
	epoch    uint64
	subs     map[int]chan domain.Snapshot
	nextSub  int
}

// New creates an orchestrator fetching through caller.
func New(caller Caller, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		caller:   caller,
		logger:   logger,
		now:      time.Now,
		payloads: make(map[domain.SourceKey]domain.Payload),
		states:   make(map[domain.SourceKey]domain.FetchState),
		tokens:   make(map[domain.SourceKey]uint64),
		subs:     make(map[int]chan domain.Snapshot),
	}
}

// FetchOne fetches a single source. Failures are recorded in the source's
// FetchState and never returned; the previous value for key is kept.
// A call superseded by a newer FetchOne or Reset for the same key is
// discarded when it completes.
func (o *Orchestrator) FetchOne(ctx context.Context, key domain.SourceKey) {
	o.fetchOne(ctx, key, 0, false)
}

// fetchOne is FetchOne, optionally pinned to an epoch: a pinned fetch whose
// epoch has been ended by Reset is not issued.
func (o *Orchestrator) fetchOne(ctx context.Context, key domain.SourceKey, epoch uint64, pinned bool) {
	tool := key.ToolName()
	if tool == "" {
		o.logger.Warn("Ignoring fetch for unknown source", "source", int(key))
		return
	}

	o.mu.Lock()
	if pinned && o.epoch != epoch {
		o.mu.Unlock()
		o.logger.Debug("Skipping fetch from a cleared epoch", "source", key, "epoch", epoch)
		return
	}
	o.tokens[key]++
	token := o.tokens[key]
	st := o.states[key]
	st.Loading = true
	st.Error = ""
	st.LoginURL = ""
	o.states[key] = st
	o.publishLocked()
	o.mu.Unlock()

	raw, err := o.caller.Call(ctx, tool)
	var payload domain.Payload
	if err == nil {
		payload, err = domain.DecodePayload(key, raw)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.tokens[key] != token {
		o.logger.Debug("Discarding stale fetch result", "source", key, "token", token, "latest", o.tokens[key])
		return
	}

	st = o.states[key]
	st.Loading = false
	if err != nil {
		st.Error = err.Error()
		var loginErr *fimcp.LoginRequiredError
		if errors.As(err, &loginErr) {
			st.LoginURL = loginErr.LoginURL
		}
		o.logger.Warn("Source fetch failed", "source", key, "error", err)
	} else {
		o.payloads[key] = payload
		st.UpdatedAt = o.now()
		o.logger.Debug("Source fetch succeeded", "source", key)
	}
	o.states[key] = st
	o.publishLocked()
}

// FetchAll fetches every source concurrently and returns once all of them
// have settled, whatever their outcome.
func (o *Orchestrator) FetchAll(ctx context.Context) {
	o.fetchAll(ctx, 0, false)
}

// FetchAllAt is FetchAll for the record as it was at epoch. If Reset has run
// since epoch was read, nothing is fetched; a Reset while the fetch is in
// flight discards its results as usual.
func (o *Orchestrator) FetchAllAt(ctx context.Context, epoch uint64) {
	o.fetchAll(ctx, epoch, true)
}

func (o *Orchestrator) fetchAll(ctx context.Context, epoch uint64, pinned bool) {
	start := time.Now()
	var g errgroup.Group
	for _, key := range domain.AllSources {
		g.Go(func() error {
			o.fetchOne(ctx, key, epoch, pinned)
			return nil
		})
	}
	_ = g.Wait()

	snap := o.Snapshot()
	failed := 0
	for _, st := range snap.States {
		if st.Error != "" {
			failed++
		}
	}
	o.logger.Info("Fetched all sources",
		"present", snap.Record.Len(),
		"failed", failed,
		"duration_ms", time.Since(start).Milliseconds())
}

// Reset clears the record and all fetch state. In-flight fetches started
// before Reset are discarded when they complete.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.epoch++
	for _, key := range domain.AllSources {
		o.tokens[key]++
	}
	o.payloads = make(map[domain.SourceKey]domain.Payload)
	o.states = make(map[domain.SourceKey]domain.FetchState)
	o.publishLocked()
	o.logger.Info("Aggregate record cleared")
}

// Epoch returns the number of Resets so far.
func (o *Orchestrator) Epoch() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.epoch
}

// Record returns the current aggregate record.
func (o *Orchestrator) Record() domain.Record {
	o.mu.Lock()
	defer o.mu.Unlock()
	return domain.NewRecord(o.payloads)
}

// State returns the fetch state for key.
func (o *Orchestrator) State(key domain.SourceKey) domain.FetchState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.states[key]
}

// Snapshot returns the record together with the state of every source.
func (o *Orchestrator) Snapshot() domain.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Subscribe returns a channel receiving a snapshot after every state change,
// starting with the current one. Slow readers only see the latest snapshot.
// The returned func unsubscribes and closes the channel.
func (o *Orchestrator) Subscribe() (<-chan domain.Snapshot, func()) {
	ch := make(chan domain.Snapshot, 1)

	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	ch <- o.snapshotLocked()
	o.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, id)
			o.mu.Unlock()
			close(ch)
		})
	}
}

func (o *Orchestrator) snapshotLocked() domain.Snapshot {
	states := make(map[domain.SourceKey]domain.FetchState, len(domain.AllSources))
	for _, key := range domain.AllSources {
		states[key] = o.states[key]
	}
	return domain.Snapshot{
		Record: domain.NewRecord(o.payloads),
		States: states,
	}
}

// publishLocked pushes the current snapshot to subscribers, replacing any
// snapshot they have not read yet. Caller must hold o.mu.
func (o *Orchestrator) publishLocked() {
	if len(o.subs) == 0 {
		return
	}
	snap := o.snapshotLocked()
	for _, ch := range o.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
