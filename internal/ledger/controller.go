// Package ledger holds the ledger view controller: the paginated, filtered
// expense list and the receipt ingestion workflow that feeds it.
package ledger

import (
	"context"
	"sync"
	"time"

	"ledger/internal/core"
	applog "ledger/internal/log"
	"ledger/internal/session"
)

// ErrNotAuthenticated is returned when a controller is requested for a
// session without a user.
var ErrNotAuthenticated = session.ErrNotAuthenticated

// Backend is everything the controller needs from the receipt backend.
type Backend interface {
	Lister
	Uploader
}

// Options tunes a Controller. The zero value is usable.
type Options struct {
	DismissDelay time.Duration
	Previews     PreviewStore
	Observer     Observer
	AfterFunc    AfterFunc
	Logger       *applog.Logger
}

// View is the read model handed to the rendering layer.
type View struct {
	Items      []core.Expense
	GrandTotal core.Money
	PageTotal  core.Money
	Page       int
	TotalPages int
	Loading    bool
	Error      string
	Filter     core.FilterState
	Workflow   WorkflowState
}

// ShowPagination reports whether the pager is rendered.
func (v View) ShowPagination() bool { return v.TotalPages > 1 }

func (v View) HasPrev() bool { return v.Page > 1 }

func (v View) HasNext() bool { return v.Page < v.TotalPages }

// Empty reports whether the "no expenses" state is shown.
func (v View) Empty() bool { return len(v.Items) == 0 }

// Controller composes the query engine and the ingestion workflow for one
// authenticated user. It is safe for concurrent use.
type Controller struct {
	userID   int64
	query    *QueryEngine
	workflow *Workflow
	logger   *applog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	filter core.FilterState
	closed bool
}

// NewController builds a controller for sess. It fails when sess carries no
// user, so no fetch can be issued for an anonymous session.
func NewController(sess session.Context, be Backend, opts Options) (*Controller, error) {
	userID, ok := sess.Authenticated()
	if !ok {
		return nil, ErrNotAuthenticated
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.Default(applog.ComponentLedger)
	}
	logger = logger.With(applog.FieldUserID, userID)

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		userID: userID,
		query:  NewQueryEngine(be, logger.WithComponent(applog.ComponentQuery)),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		filter: core.DefaultFilter(),
	}
	c.workflow = NewWorkflow(WorkflowConfig{
		UserID:       userID,
		Uploader:     be,
		Previews:     opts.Previews,
		Observer:     opts.Observer,
		DismissDelay: opts.DismissDelay,
		AfterFunc:    opts.AfterFunc,
		Refresh:      c.refreshAfterIngestion,
		Logger:       logger.WithComponent(applog.ComponentIngestion),
	})
	return c, nil
}

// UserID returns the user the controller serves.
func (c *Controller) UserID() int64 { return c.userID }

// Mount fetches the current filter. It is called whenever the ledger page
// is rendered from scratch.
func (c *Controller) Mount() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchLocked(c.filter, false)
}

// Refresh re-fetches the current filter, e.g. after an error. It never
// shares a round-trip already in flight.
func (c *Controller) Refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchLocked(c.filter, true)
}

// SelectCategory switches the filter to category, nil meaning all, and
// resets the page to 1. Selecting the filter already on display does
// nothing.
func (c *Controller) SelectCategory(category *core.Category) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.filter.WithCategory(category)
	if err := next.Validate(); err != nil {
		return err
	}
	if next.Equal(c.filter) {
		return nil
	}
	c.filter = next
	c.fetchLocked(next, false)
	return nil
}

// SetPage moves to page n of the current filter.
func (c *Controller) SetPage(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.filter.WithPage(n)
	if err := next.Validate(); err != nil {
		return err
	}
	if n > c.query.State().Result.TotalPages() {
		return core.ErrInvalidPage
	}
	if next.Equal(c.filter) {
		return nil
	}
	c.filter = next
	c.fetchLocked(next, false)
	return nil
}

// NextPage moves one page forward.
func (c *Controller) NextPage() error {
	return c.SetPage(c.currentPage() + 1)
}

// PrevPage moves one page back.
func (c *Controller) PrevPage() error {
	return c.SetPage(c.currentPage() - 1)
}

func (c *Controller) OpenUpload() error { return c.workflow.Open() }

func (c *Controller) SelectFile(r Receipt) error { return c.workflow.SelectFile(r) }

func (c *Controller) SubmitUpload() error { return c.workflow.Submit() }

func (c *Controller) CancelUpload() error { return c.workflow.Cancel() }

func (c *Controller) RetryProcessing() error { return c.workflow.RetryProcessing() }

// Snapshot returns the current read model.
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	filter := c.filter
	c.mu.Unlock()

	q := c.query.State()
	return View{
		Items:      q.Result.Items,
		GrandTotal: q.Result.GrandTotal,
		PageTotal:  q.Result.PageTotal(),
		Page:       filter.Page,
		TotalPages: q.Result.TotalPages(),
		Loading:    q.Loading,
		Error:      q.Error,
		Filter:     filter,
		Workflow:   c.workflow.State(),
	}
}

// Wait blocks until every background fetch and ingestion attempt started so
// far has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
	c.workflow.Wait()
}

// Close stops the controller. Background requests are cancelled and later
// ingestion resolutions are ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.workflow.Close()
	c.cancel()
}

func (c *Controller) currentPage() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter.Page
}

// fetchLocked issues a request for f and runs it in the background. The
// request is issued under c.mu so sequence order follows filter order. A
// fresh request does not join an identical fetch already in flight.
func (c *Controller) fetchLocked(f core.FilterState, fresh bool) {
	if c.closed {
		return
	}
	var req *Request
	if fresh {
		req = c.query.IssueFresh(c.userID, f)
	} else {
		req = c.query.Issue(c.userID, f)
	}
	c.logger.Debug("Fetching ledger page",
		applog.FieldSequence, req.Seq(),
		applog.FieldPage, f.Page,
		applog.FieldCategory, f.CategoryLabel(),
		"fresh", fresh)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := req.Do(c.ctx); err == nil {
			c.keepPageInRange(req)
		}
	}()
}

// keepPageInRange moves the filter back to the last page when the result
// applied for req reports fewer pages than the page on display, which
// happens when expenses go away behind the ledger's back.
func (c *Controller) keepPageInRange(req *Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.query.State()
	if c.closed || st.Seq != req.Seq() || !c.filter.Equal(req.Filter()) {
		return
	}
	page := core.ClampPage(c.filter.Page, st.Result.TotalPages())
	if page == c.filter.Page {
		return
	}
	c.logger.Info("Ledger page out of range, moving back",
		applog.FieldPage, c.filter.Page,
		"total_pages", st.Result.TotalPages())
	c.filter = c.filter.WithPage(page)
	c.fetchLocked(c.filter, false)
}

// refreshAfterIngestion reloads the ledger once a receipt became an
// expense. It always asks for the unfiltered first page while leaving the
// filter on display untouched, and never reuses a fetch that may have
// reached the backend before the expense existed.
func (c *Controller) refreshAfterIngestion(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	req := c.query.IssueFresh(c.userID, core.DefaultFilter())
	c.mu.Unlock()

	if err := req.Do(ctx); err != nil && err != ErrSuperseded {
		c.logger.Warn("Ledger refresh after ingestion failed", applog.FieldError, err)
	}
}
