package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/ashureev/smartfi/internal/domain"
	"github.com/ashureev/smartfi/internal/fimcp"
)

type fakeCaller struct {
	mu      sync.Mutex
	results map[string]json.RawMessage
	errs    map[string]error
	calls   map[string]int
}

func newFakeCaller() *fakeCaller {
	c := &fakeCaller{
		results: make(map[string]json.RawMessage),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
	for _, key := range domain.AllSources {
		c.results[key.ToolName()] = json.RawMessage(`{"source":"` + key.String() + `"}`)
	}
	return c
}

func (c *fakeCaller) Call(_ context.Context, tool string) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[tool]++
	if err := c.errs[tool]; err != nil {
		return nil, err
	}
	return c.results[tool], nil
}

func (c *fakeCaller) fail(key domain.SourceKey, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[key.ToolName()] = err
}

type reply struct {
	raw json.RawMessage
	err error
}

type pendingCall struct {
	tool  string
	reply chan reply
}

// scriptedCaller hands each call to the test, which decides when and how it
// resolves.
type scriptedCaller struct {
	pending chan pendingCall
}

func (c *scriptedCaller) Call(_ context.Context, tool string) (json.RawMessage, error) {
	p := pendingCall{tool: tool, reply: make(chan reply)}
	c.pending <- p
	r := <-p.reply
	return r.raw, r.err
}

func TestFetchAllPopulatesRecord(t *testing.T) {
	o := New(newFakeCaller(), nil)
	o.FetchAll(context.Background())

	snap := o.Snapshot()
	if snap.Record.Len() != len(domain.AllSources) {
		t.Fatalf("expected %d sources, got %d", len(domain.AllSources), snap.Record.Len())
	}
	for _, key := range domain.AllSources {
		st := snap.States[key]
		if st.Loading || st.Error != "" || st.UpdatedAt.IsZero() {
			t.Errorf("%s: unexpected state %+v", key, st)
		}
	}
}

func TestFetchFailureIsIsolated(t *testing.T) {
	type failCase struct {
		name    string
		failing []domain.SourceKey
	}
	var tests []failCase
	for _, key := range domain.AllSources {
		tests = append(tests, failCase{name: "only " + key.Slug(), failing: []domain.SourceKey{key}})
	}
	for _, keep := range domain.AllSources {
		var failing []domain.SourceKey
		for _, key := range domain.AllSources {
			if key != keep {
				failing = append(failing, key)
			}
		}
		tests = append(tests, failCase{name: "all but " + keep.Slug(), failing: failing})
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := newFakeCaller()
			o := New(caller, nil)
			o.FetchAll(context.Background())

			failed := make(map[domain.SourceKey]bool, len(tt.failing))
			for _, key := range tt.failing {
				failed[key] = true
				caller.fail(key, errors.New("boom"))
			}
			o.FetchAll(context.Background())

			snap := o.Snapshot()
			for _, key := range domain.AllSources {
				st := snap.States[key]
				if st.Loading {
					t.Errorf("%s still loading", key)
				}
				want := `{"source":"` + key.String() + `"}`
				if got := string(snap.Record.Raw(key)); got != want {
					t.Errorf("%s: expected cached value %s, got %s", key, want, got)
				}
				if failed[key] && st.Error == "" {
					t.Errorf("expected error for %s", key)
				}
				if !failed[key] && st.Error != "" {
					t.Errorf("%s: unexpected error %q", key, st.Error)
				}
			}
		})
	}
}

func TestFetchAllSettlesWhenEverythingFails(t *testing.T) {
	caller := newFakeCaller()
	for _, key := range domain.AllSources {
		caller.fail(key, &fimcp.NetworkError{Op: key.ToolName(), Err: errors.New("connection refused")})
	}
	o := New(caller, nil)
	o.FetchAll(context.Background())

	snap := o.Snapshot()
	if snap.Record.Len() != 0 {
		t.Fatalf("expected empty record, got %d entries", snap.Record.Len())
	}
	for _, key := range domain.AllSources {
		st := snap.States[key]
		if st.Loading || st.Error == "" {
			t.Errorf("%s: unexpected state %+v", key, st)
		}
	}
}

func TestLoginRequiredRecordsURL(t *testing.T) {
	caller := newFakeCaller()
	caller.fail(domain.NetWorthSource, &fimcp.LoginRequiredError{Tool: "fetch_net_worth", LoginURL: "https://x/login"})
	o := New(caller, nil)

	o.FetchOne(context.Background(), domain.NetWorthSource)

	st := o.State(domain.NetWorthSource)
	if st.LoginURL != "https://x/login" || st.Error == "" {
		t.Fatalf("unexpected state %+v", st)
	}
	if o.Record().Has(domain.NetWorthSource) {
		t.Error("login redirect must not be stored as data")
	}
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	caller := &scriptedCaller{pending: make(chan pendingCall)}
	o := New(caller, nil)
	ctx := context.Background()

	firstDone := make(chan struct{})
	go func() {
		o.FetchOne(ctx, domain.NetWorthSource)
		close(firstDone)
	}()
	first := <-caller.pending

	secondDone := make(chan struct{})
	go func() {
		o.FetchOne(ctx, domain.NetWorthSource)
		close(secondDone)
	}()
	second := <-caller.pending

	second.reply <- reply{raw: json.RawMessage(`{"v":"new"}`)}
	<-secondDone
	first.reply <- reply{raw: json.RawMessage(`{"v":"old"}`)}
	<-firstDone

	if got := string(o.Record().Raw(domain.NetWorthSource)); got != `{"v":"new"}` {
		t.Fatalf("expected newer payload to win, got %s", got)
	}
	if st := o.State(domain.NetWorthSource); st.Loading {
		t.Error("expected loading to be cleared")
	}
}

func TestStaleErrorDoesNotOverrideNewerResult(t *testing.T) {
	caller := &scriptedCaller{pending: make(chan pendingCall)}
	o := New(caller, nil)
	ctx := context.Background()

	firstDone := make(chan struct{})
	go func() {
		o.FetchOne(ctx, domain.BankTransactionsSource)
		close(firstDone)
	}()
	first := <-caller.pending

	secondDone := make(chan struct{})
	go func() {
		o.FetchOne(ctx, domain.BankTransactionsSource)
		close(secondDone)
	}()
	second := <-caller.pending

	second.reply <- reply{raw: json.RawMessage(`{}`)}
	<-secondDone
	first.reply <- reply{err: errors.New("late failure")}
	<-firstDone

	if st := o.State(domain.BankTransactionsSource); st.Error != "" {
		t.Fatalf("stale failure leaked into state: %+v", st)
	}
}

func TestResetDiscardsInFlight(t *testing.T) {
	caller := &scriptedCaller{pending: make(chan pendingCall)}
	o := New(caller, nil)

	done := make(chan struct{})
	go func() {
		o.FetchOne(context.Background(), domain.MutualFundsSource)
		close(done)
	}()
	p := <-caller.pending

	if st := o.State(domain.MutualFundsSource); !st.Loading {
		t.Fatal("expected loading while call is pending")
	}

	o.Reset()
	p.reply <- reply{raw: json.RawMessage(`{"funds":[]}`)}
	<-done

	snap := o.Snapshot()
	if snap.Record.Len() != 0 {
		t.Fatalf("expected empty record after reset, got %d entries", snap.Record.Len())
	}
	if st := snap.States[domain.MutualFundsSource]; st.Loading || st.Error != "" {
		t.Errorf("unexpected state after reset %+v", st)
	}
}

func TestSubscribeReceivesLatestSnapshot(t *testing.T) {
	o := New(newFakeCaller(), nil)
	ch, cancel := o.Subscribe()
	defer cancel()

	initial := <-ch
	if initial.Record.Len() != 0 {
		t.Fatalf("expected empty initial snapshot")
	}

	o.FetchOne(context.Background(), domain.EPFDetailsSource)

	latest := <-ch
	if !latest.Record.Has(domain.EPFDetailsSource) || latest.States[domain.EPFDetailsSource].Loading {
		t.Fatalf("expected final snapshot, got %+v", latest.States[domain.EPFDetailsSource])
	}

	cancel()
	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after cancel")
	}
}

func TestFetchAllAtSkipsClearedEpoch(t *testing.T) {
	caller := newFakeCaller()
	o := New(caller, nil)

	epoch := o.Epoch()
	o.Reset()
	o.FetchAllAt(context.Background(), epoch)

	if n := o.Record().Len(); n != 0 {
		t.Fatalf("expected no data from a cleared epoch, got %d sources", n)
	}
	for _, key := range domain.AllSources {
		if n := caller.calls[key.ToolName()]; n != 0 {
			t.Errorf("%s: expected no call, got %d", key, n)
		}
	}

	o.FetchAllAt(context.Background(), o.Epoch())
	if n := o.Record().Len(); n != len(domain.AllSources) {
		t.Errorf("expected current epoch to fetch every source, got %d", n)
	}
}

func TestResetDuringFetchAllAtDiscardsResults(t *testing.T) {
	caller := &scriptedCaller{pending: make(chan pendingCall)}
	o := New(caller, nil)

	done := make(chan struct{})
	go func() {
		o.FetchAllAt(context.Background(), o.Epoch())
		close(done)
	}()

	var calls []pendingCall
	for range domain.AllSources {
		calls = append(calls, <-caller.pending)
	}
	o.Reset()
	for _, p := range calls {
		p.reply <- reply{raw: json.RawMessage(`{}`)}
	}
	<-done

	if n := o.Record().Len(); n != 0 {
		t.Fatalf("expected results to be discarded after reset, got %d sources", n)
	}
}
