package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"ledger/internal/backend"
	"ledger/internal/core"
	applog "ledger/internal/log"
	"ledger/internal/session"
)

// fakeBackend is a recording backend. Calls can be held on named gates to
// control the order in which responses arrive.
type fakeBackend struct {
	mu         sync.Mutex
	calls      []string
	pages      map[string]core.PageResult
	gates      map[string]chan struct{}
	once       map[string]bool
	taken      map[string]chan struct{}
	listErr    error
	uploadErr  error
	processErr error

	// snapshot makes list calls answer with the page as it was when the
	// call arrived rather than when its gate opened.
	snapshot bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		pages: make(map[string]core.PageResult),
		gates: make(map[string]chan struct{}),
		once:  make(map[string]bool),
		taken: make(map[string]chan struct{}),
	}
}

func pageKey(category string, offset int) string {
	return fmt.Sprintf("%s:%d", category, offset)
}

// setPage registers the response for a category ("" for all) and offset.
func (f *fakeBackend) setPage(category string, offset int, res core.PageResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[pageKey(category, offset)] = res
}

// hold makes calls to name block until release(name).
func (f *fakeBackend) hold(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gates[name] = make(chan struct{})
}

// holdOnce is hold for the next call to name only.
func (f *fakeBackend) holdOnce(name string) {
	f.hold(name)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.once[name] = true
}

func (f *fakeBackend) release(name string) {
	f.mu.Lock()
	gate := f.gates[name]
	if gate == nil {
		gate = f.taken[name]
	}
	delete(f.gates, name)
	delete(f.taken, name)
	f.mu.Unlock()
	if gate != nil {
		close(gate)
	}
}

func (f *fakeBackend) wait(ctx context.Context, name string) {
	f.mu.Lock()
	gate := f.gates[name]
	if f.once[name] {
		delete(f.gates, name)
		delete(f.once, name)
		f.taken[name] = gate
	}
	f.mu.Unlock()
	if gate == nil {
		return
	}
	select {
	case <-gate:
	case <-ctx.Done():
	}
}

func (f *fakeBackend) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) count(prefix string) int {
	n := 0
	for _, c := range f.Calls() {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (f *fakeBackend) setErrors(list, upload, process error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr, f.uploadErr, f.processErr = list, upload, process
}

func (f *fakeBackend) ListExpenses(ctx context.Context, _ int64, limit, offset int) (core.PageResult, error) {
	return f.list(ctx, "", limit, offset)
}

func (f *fakeBackend) ListExpensesByCategory(ctx context.Context, _ int64, category core.Category, limit, offset int) (core.PageResult, error) {
	return f.list(ctx, string(category), limit, offset)
}

func (f *fakeBackend) list(ctx context.Context, category string, limit, offset int) (core.PageResult, error) {
	key := pageKey(category, offset)
	f.record(fmt.Sprintf("list:%s:limit=%d", key, limit))
	f.mu.Lock()
	arrived, seen := f.pages[key]
	f.mu.Unlock()
	f.wait(ctx, "list:"+key)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return core.PageResult{}, f.listErr
	}
	if f.snapshot {
		if seen {
			return arrived, nil
		}
	} else if res, ok := f.pages[key]; ok {
		return res, nil
	}
	return core.PageResult{Items: []core.Expense{}, GrandTotal: core.Zero()}, nil
}

func (f *fakeBackend) UploadReceipt(ctx context.Context, r backend.Receipt) error {
	f.record("upload:" + r.Name)
	f.wait(ctx, "upload")
	f.mu.Lock()
	err := f.uploadErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.record("upload-ok")
	return nil
}

func (f *fakeBackend) ProcessReceipt(ctx context.Context, userID int64) error {
	f.record(fmt.Sprintf("process:%d", userID))
	f.wait(ctx, "process")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processErr
}

// makePage builds n expenses of category cat numbered from firstID down.
func makePage(cat core.Category, n, total int, firstID int64, grand float64) core.PageResult {
	items := make([]core.Expense, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, core.Expense{
			ID:       firstID - int64(i),
			Category: cat,
			Amount:   core.NewMoney(1.5),
			UserID:   7,
		})
	}
	return core.PageResult{Items: items, TotalCount: total, GrandTotal: core.NewMoney(grand)}
}

// fakeClock schedules timers that only fire through Fire.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, delay: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Pending returns the delays of timers not yet stopped or fired.
func (c *fakeClock) Pending() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t.delay)
		}
	}
	return out
}

// Fire runs every pending timer and returns how many ran.
func (c *fakeClock) Fire() int {
	c.mu.Lock()
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
	return len(due)
}

// recordingObserver keeps every event kind it sees.
type recordingObserver struct {
	mu     sync.Mutex
	events []Event
}

func (o *recordingObserver) Observe(_ context.Context, e Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
}

func (o *recordingObserver) Kinds() []EventKind {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]EventKind, 0, len(o.events))
	for _, e := range o.events {
		out = append(out, e.Kind)
	}
	return out
}

func (o *recordingObserver) Events() []Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Event(nil), o.events...)
}

const testUserID int64 = 7

type fixture struct {
	be       *fakeBackend
	clock    *fakeClock
	observer *recordingObserver
	ctrl     *Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		be:       newFakeBackend(),
		clock:    &fakeClock{},
		observer: &recordingObserver{},
	}
	ctrl, err := NewController(session.LoggedIn(testUserID), fx.be, Options{
		DismissDelay: 1200 * time.Millisecond,
		Observer:     fx.observer,
		AfterFunc:    fx.clock.AfterFunc,
		Logger:       applog.Discard(),
	})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	t.Cleanup(func() {
		ctrl.Close()
	})
	fx.ctrl = ctrl
	return fx
}

func jpeg(name string) backend.Receipt {
	return backend.Receipt{Name: name, ContentType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff}}
}
