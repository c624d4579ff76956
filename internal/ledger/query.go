package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"ledger/internal/core"
	applog "ledger/internal/log"
)

// FetchErrorMessage is shown in place of the table when a fetch fails.
const FetchErrorMessage = "Failed to fetch expenses"

// ErrSuperseded is returned by Request.Do when a newer request was issued
// before this one resolved. Its result was discarded.
var ErrSuperseded = errors.New("fetch superseded by a newer request")

// Lister is the read side of the backend.
type Lister interface {
	ListExpenses(ctx context.Context, userID int64, limit, offset int) (core.PageResult, error)
	ListExpensesByCategory(ctx context.Context, userID int64, category core.Category, limit, offset int) (core.PageResult, error)
}

// QueryState is a consistent snapshot of the engine.
type QueryState struct {
	Result  core.PageResult
	Loading bool
	Error   string
	// Seq is the sequence number of the latest issued request.
	Seq uint64
}

// QueryEngine fetches ledger pages. Every request is tagged with a
// monotonically increasing sequence number and only the latest issued
// request may change the state, so late responses for stale filters are
// dropped.
type QueryEngine struct {
	lister Lister
	group  singleflight.Group
	logger *applog.Logger

	mu      sync.Mutex
	seq     uint64
	result  core.PageResult
	loading bool
	errMsg  string
}

// NewQueryEngine creates an engine reading from lister.
func NewQueryEngine(lister Lister, logger *applog.Logger) *QueryEngine {
	if logger == nil {
		logger = applog.Default(applog.ComponentQuery)
	}
	return &QueryEngine{
		lister: lister,
		logger: logger,
		result: core.PageResult{GrandTotal: core.Zero()},
	}
}

// Request is one issued fetch.
type Request struct {
	engine *QueryEngine
	seq    uint64
	userID int64
	filter core.FilterState
	fresh  bool
}

// Seq returns the request's sequence number.
func (r *Request) Seq() uint64 { return r.seq }

// Filter returns the filter the request was issued for.
func (r *Request) Filter() core.FilterState { return r.filter }

// Issue registers a fetch for filter as the current one and raises loading.
// The round-trip happens in Do. Splitting the two lets callers fix the
// request order synchronously and run the network call elsewhere.
func (e *QueryEngine) Issue(userID int64, filter core.FilterState) *Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	e.loading = true
	e.errMsg = ""
	return &Request{engine: e, seq: e.seq, userID: userID, filter: filter}
}

// IssueFresh is Issue for a request that must not join an identical fetch
// already in flight, because that fetch may predate a backend write.
func (e *QueryEngine) IssueFresh(userID int64, filter core.FilterState) *Request {
	r := e.Issue(userID, filter)
	r.fresh = true
	return r
}

// Do performs the round-trip and applies the outcome if r is still the
// latest request. It returns ErrSuperseded when it is not.
func (r *Request) Do(ctx context.Context) error {
	e := r.engine
	res, err := e.roundTrip(ctx, r.userID, r.filter, r.fresh)

	e.mu.Lock()
	defer e.mu.Unlock()

	if r.seq != e.seq {
		e.logger.Debug("Discarding stale ledger page",
			applog.FieldSequence, r.seq,
			applog.FieldPage, r.filter.Page,
			applog.FieldCategory, r.filter.CategoryLabel())
		return ErrSuperseded
	}
	e.loading = false
	if err != nil {
		e.errMsg = FetchErrorMessage
		e.logger.Warn("Ledger fetch failed",
			applog.NewFields().
				WithFilter(r.userID, r.filter.Page, r.filter.CategoryLabel()).
				WithError(err).
				ToSlice()...)
		return err
	}
	e.result = res
	e.errMsg = ""
	return nil
}

// Fetch issues a request for filter and waits for it.
func (e *QueryEngine) Fetch(ctx context.Context, userID int64, filter core.FilterState) error {
	return e.Issue(userID, filter).Do(ctx)
}

// State returns a snapshot of the engine.
func (e *QueryEngine) State() QueryState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return QueryState{
		Result:  e.result,
		Loading: e.loading,
		Error:   e.errMsg,
		Seq:     e.seq,
	}
}

func (e *QueryEngine) roundTrip(ctx context.Context, userID int64, f core.FilterState, fresh bool) (core.PageResult, error) {
	var category string
	if f.Category != nil {
		category = string(*f.Category)
	}
	key := fmt.Sprintf("%d|%d|%s", userID, f.Page, category)
	if fresh {
		e.group.Forget(key)
	}
	v, err, shared := e.group.Do(key, func() (any, error) {
		if f.Category == nil {
			return e.lister.ListExpenses(ctx, userID, f.Limit(), f.Offset())
		}
		return e.lister.ListExpensesByCategory(ctx, userID, *f.Category, f.Limit(), f.Offset())
	})
	if shared {
		e.logger.Debug("Shared in-flight ledger fetch", applog.FieldPage, f.Page, applog.FieldCategory, f.CategoryLabel())
	}
	if err != nil {
		return core.PageResult{}, err
	}
	return v.(core.PageResult), nil
}
