package todo

import (
	"sync"
	"testing"
	"time"

	"sharedtodo/internal/gateway/memory"
)

type fixture struct {
	gw         *memory.Gateway
	profiles   *ProfileStore
	categories *CategoryStore
	tasks      *TaskStore
}

// tickingClock returns a clock advancing one second per call, so creation
// times are distinct and ordered.
func tickingClock() func() time.Time {
	var (
		mu  sync.Mutex
		now = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gw := memory.New(nil)
	t.Cleanup(func() { _ = gw.Close() })

	opts := Options{Now: tickingClock()}
	profiles := NewProfileStore(gw, opts)
	categories := NewCategoryStore(gw, profiles, opts)
	return &fixture{
		gw:         gw,
		profiles:   profiles,
		categories: categories,
		tasks:      NewTaskStore(gw, categories, opts),
	}
}

// waitFor reads stream snapshots until one satisfies cond.
func waitFor[T any](t *testing.T, s *Stream[T], cond func(T) bool) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case v, ok := <-s.Updates():
			if !ok {
				t.Fatal("stream closed")
			}
			if cond(v) {
				return v
			}
		case <-deadline:
			t.Fatal("timed out waiting for snapshot")
			var zero T
			return zero
		}
	}
}

func must[T any](t *testing.T) func(T, error) T {
	return func(v T, err error) T {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return v
	}
}
