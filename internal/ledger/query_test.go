package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
	applog "ledger/internal/log"
)

func TestQueryEngine_LateStaleResponseIsDiscarded(t *testing.T) {
	be := newFakeBackend()
	be.setPage("", 0, makePage(core.Gas, 10, 23, 23, 1))
	be.setPage("", 10, makePage(core.Dining, 10, 23, 13, 1))
	e := NewQueryEngine(be, applog.Discard())

	be.hold("list::0")
	a := e.Issue(testUserID, core.DefaultFilter())
	b := e.Issue(testUserID, core.DefaultFilter().WithPage(2))
	assert.Greater(t, b.Seq(), a.Seq())

	errA := make(chan error, 1)
	go func() { errA <- a.Do(context.Background()) }()

	require.NoError(t, b.Do(context.Background()))
	be.release("list::0")
	assert.ErrorIs(t, <-errA, ErrSuperseded)

	st := e.State()
	assert.False(t, st.Loading)
	assert.Equal(t, core.Dining, st.Result.Items[0].Category, "B's page is kept")
}

func TestQueryEngine_StaleErrorDoesNotSurface(t *testing.T) {
	be := newFakeBackend()
	e := NewQueryEngine(be, applog.Discard())

	a := e.Issue(testUserID, core.DefaultFilter())
	b := e.Issue(testUserID, core.DefaultFilter().WithPage(2))
	require.NoError(t, b.Do(context.Background()))

	be.setErrors(errors.New("boom"), nil, nil)
	assert.ErrorIs(t, a.Do(context.Background()), ErrSuperseded)
	assert.Empty(t, e.State().Error)
}

func TestQueryEngine_ErrorKeepsResult(t *testing.T) {
	be := newFakeBackend()
	be.setPage("", 0, makePage(core.Gas, 2, 2, 2, 3))
	e := NewQueryEngine(be, applog.Discard())
	require.NoError(t, e.Fetch(context.Background(), testUserID, core.DefaultFilter()))

	be.setErrors(errors.New("down"), nil, nil)
	require.Error(t, e.Fetch(context.Background(), testUserID, core.DefaultFilter()))

	st := e.State()
	assert.Equal(t, FetchErrorMessage, st.Error)
	assert.Len(t, st.Result.Items, 2)
	assert.False(t, st.Loading)
}

func TestQueryEngine_CategoryModeSelection(t *testing.T) {
	be := newFakeBackend()
	e := NewQueryEngine(be, applog.Discard())
	pharmacy := core.Pharmacy

	require.NoError(t, e.Fetch(context.Background(), testUserID, core.DefaultFilter().WithPage(4)))
	require.NoError(t, e.Fetch(context.Background(), testUserID, core.DefaultFilter().WithCategory(&pharmacy).WithPage(2)))

	assert.Equal(t, []string{"list::30:limit=10", "list:Pharmacy:10:limit=10"}, be.Calls())
}

func TestQueryEngine_CoalescesIdenticalInFlightFetches(t *testing.T) {
	be := newFakeBackend()
	be.setPage("", 0, makePage(core.Gas, 1, 1, 1, 1))
	e := NewQueryEngine(be, applog.Discard())
	be.hold("list::0")

	var wg sync.WaitGroup
	first := e.Issue(testUserID, core.DefaultFilter())
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = first.Do(context.Background())
	}()
	require.Eventually(t, func() bool { return be.count("list:") == 1 }, time.Second, time.Millisecond)

	second := e.Issue(testUserID, core.DefaultFilter())
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = second.Do(context.Background())
	}()
	time.Sleep(50 * time.Millisecond)
	be.release("list::0")
	wg.Wait()

	assert.Equal(t, 1, be.count("list:"), "one round-trip for both requests")
	assert.Len(t, e.State().Result.Items, 1)
}
