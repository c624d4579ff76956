package cache

import (
	"sync/atomic"
	"testing"
	"time"

	"ledger/internal/preview"
)

func TestManager_CleanAll(t *testing.T) {
	m := NewManager(nil)
	m.Register("sessions", CleanerFunc(func() int { return 2 }))
	m.Register("previews", CleanerFunc(func() int { return 0 }))

	got := m.CleanAll()
	if got["sessions"] != 2 || got["previews"] != 0 || len(got) != 2 {
		t.Fatalf("unexpected counts: %v", got)
	}
}

func TestManager_CleansPreviewStore(t *testing.T) {
	store := preview.NewStore(4, 1<<10, time.Nanosecond)
	if _, err := store.Put(preview.Image{ContentType: "image/png", Data: []byte("png")}); err != nil {
		t.Fatalf("put: %v", err)
	}
	time.Sleep(time.Millisecond)

	m := NewManager(nil)
	m.Register("previews", store)
	if got := m.CleanAll()["previews"]; got != 1 {
		t.Fatalf("expected 1 expired preview, got %d", got)
	}
	if store.Len() != 0 {
		t.Fatalf("store still holds %d images", store.Len())
	}
}

func TestManager_StartAndStop(t *testing.T) {
	var runs atomic.Int32
	m := NewManager(nil)
	m.Register("counter", CleanerFunc(func() int {
		runs.Add(1)
		return 0
	}))

	m.StartCleanup(time.Millisecond)
	m.StartCleanup(time.Millisecond)
	deadline := time.Now().Add(time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	m.Stop()
	m.Stop()

	if runs.Load() == 0 {
		t.Fatal("cleanup never ran")
	}
	after := runs.Load()
	time.Sleep(5 * time.Millisecond)
	if runs.Load() != after {
		t.Fatal("cleanup kept running after Stop")
	}
}

func TestManager_StopWithoutStart(t *testing.T) {
	m := NewManager(nil)
	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked without a running cleanup")
	}
}
