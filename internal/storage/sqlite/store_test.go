package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"sharedtodo/internal/gateway"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "todo.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("", nil)
	assert.NotEqual(t, err, nil)
}

func TestDocumentRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	doc, err := s.Create(ctx, gateway.Categories, "", gateway.Fields{
		"ownerId":  "u1",
		"name":     "Groceries",
		"order":    3,
		"isShared": true,
		"members":  []string{"u1"},
		"meta":     map[string]any{"ratio": 0.5},
	})
	assert.Equal(t, err, nil)

	got, err := s.Get(ctx, gateway.Categories, doc.ID)
	assert.Equal(t, err, nil)
	assert.Equal(t, got.Fields["order"], int64(3))
	assert.Equal(t, got.Fields["isShared"], true)
	assert.Equal(t, got.Fields["members"], []any{"u1"})
	assert.Equal(t, got.Fields["meta"], gateway.Fields{"ratio": 0.5})

	_, err = s.Get(ctx, gateway.Categories, "missing")
	assert.Equal(t, errors.Is(err, gateway.ErrNotFound), true)
}

func TestCreateDuplicateID(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	_, err := s.Create(ctx, gateway.Categories, "default-u1", gateway.Fields{"ownerId": "u1"})
	assert.Equal(t, err, nil)
	_, err = s.Create(ctx, gateway.Categories, "default-u1", gateway.Fields{"ownerId": "u1"})
	assert.Equal(t, errors.Is(err, gateway.ErrAlreadyExists), true)
}

func TestUniqueShareCode(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	_, err := s.Create(ctx, gateway.Categories, "", gateway.Fields{"isShared": true, "shareCode": "ABCD1234"})
	assert.Equal(t, err, nil)
	_, err = s.Create(ctx, gateway.Categories, "", gateway.Fields{"isShared": true, "shareCode": "ABCD1234"})
	assert.Equal(t, errors.Is(err, gateway.ErrAlreadyExists), true)

	// Personal categories carry no code and never collide.
	_, err = s.Create(ctx, gateway.Categories, "", gateway.Fields{"isShared": false})
	assert.Equal(t, err, nil)
	_, err = s.Create(ctx, gateway.Categories, "", gateway.Fields{"isShared": false})
	assert.Equal(t, err, nil)
}

func TestUpdateMergesAndTransforms(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	_, err := s.Create(ctx, gateway.Categories, "c1", gateway.Fields{"name": "Trip", "members": []string{"u1"}})
	assert.Equal(t, err, nil)

	assert.Equal(t, s.Update(ctx, gateway.Categories, "c1", gateway.Fields{"members": gateway.ArrayUnion("u2", "u1")}), nil)
	got, _ := s.Get(ctx, gateway.Categories, "c1")
	assert.Equal(t, got.Fields["members"], []any{"u1", "u2"})
	assert.Equal(t, got.Fields["name"], "Trip")

	assert.Equal(t, s.Update(ctx, gateway.Categories, "c1", gateway.Fields{"members": gateway.ArrayRemove("u1")}), nil)
	got, _ = s.Get(ctx, gateway.Categories, "c1")
	assert.Equal(t, got.Fields["members"], []any{"u2"})

	err = s.Update(ctx, gateway.Categories, "missing", gateway.Fields{"name": "x"})
	assert.Equal(t, errors.Is(err, gateway.ErrNotFound), true)
}

func TestUpsert(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	assert.Equal(t, s.Upsert(ctx, gateway.Users, "u1", gateway.Fields{"uid": "u1", "name": "Ann"}), nil)
	assert.Equal(t, s.Upsert(ctx, gateway.Users, "u1", gateway.Fields{"email": "ann@example.com"}), nil)

	got, err := s.Get(ctx, gateway.Users, "u1")
	assert.Equal(t, err, nil)
	assert.Equal(t, got.Fields["name"], "Ann")
	assert.Equal(t, got.Fields["email"], "ann@example.com")
}

func TestCommitRollsBack(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	_, err := s.Create(ctx, gateway.Tasks, "t1", gateway.Fields{"order": 0})
	assert.Equal(t, err, nil)

	b := gateway.NewBatch()
	b.Update(gateway.Tasks, "t1", gateway.Fields{"order": 9})
	b.Delete(gateway.Tasks, "t1")
	b.Update(gateway.Tasks, "missing", gateway.Fields{"order": 1})
	assert.Equal(t, errors.Is(s.Commit(ctx, b), gateway.ErrNotFound), true)

	got, err := s.Get(ctx, gateway.Tasks, "t1")
	assert.Equal(t, err, nil)
	assert.Equal(t, got.Fields["order"], int64(0))
}

func TestFindFilters(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	b := gateway.NewBatch()
	b.Create(gateway.Tasks, "a", gateway.Fields{"categoryId": "c1", "ownerId": "u1", "order": 1, "completed": false})
	b.Create(gateway.Tasks, "b", gateway.Fields{"categoryId": "c1", "ownerId": "u2", "order": 0, "completed": true})
	b.Create(gateway.Tasks, "c", gateway.Fields{"categoryId": "c2", "ownerId": "u1", "order": 0, "completed": false})
	b.Create(gateway.Categories, "c1", gateway.Fields{"members": []string{"u1", "u2"}, "createdAt": "2024-01-02T00:00:00.000000000Z"})
	b.Create(gateway.Categories, "c2", gateway.Fields{"members": []string{"u2"}, "createdAt": "2024-01-01T00:00:00.000000000Z"})
	assert.Equal(t, s.Commit(ctx, b), nil)

	ids := func(q gateway.Query) []string {
		t.Helper()
		docs, err := s.Find(ctx, q)
		assert.Equal(t, err, nil)
		out := []string{}
		for _, d := range docs {
			out = append(out, d.ID)
		}
		return out
	}

	tasks := gateway.From(gateway.Tasks)
	assert.Equal(t, ids(tasks.Where("categoryId", gateway.OpEqual, "c1").OrderBy("order")), []string{"b", "a"})
	assert.Equal(t, ids(tasks.Where("categoryId", gateway.OpEqual, "c1").Where("ownerId", gateway.OpEqual, "u1")), []string{"a"})
	assert.Equal(t, ids(tasks.Where("completed", gateway.OpEqual, true)), []string{"b"})
	assert.Equal(t, ids(tasks.Where("ownerId", gateway.OpIn, []any{"u2", "u9"})), []string{"b"})

	categories := gateway.From(gateway.Categories)
	assert.Equal(t, ids(categories.Where("members", gateway.OpArrayContains, "u2").OrderBy("createdAt")), []string{"c2", "c1"})
	assert.Equal(t, ids(categories.Where("members", gateway.OpArrayContains, "u1")), []string{"c1"})

	_, err := s.Find(ctx, tasks.Where("x'; DROP TABLE documents; --", gateway.OpEqual, 1))
	assert.Equal(t, errors.Is(err, gateway.ErrInvalidQuery), true)
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	sub, err := s.Subscribe(ctx, gateway.From(gateway.Tasks).Where("categoryId", gateway.OpEqual, "c1").OrderBy("order"))
	assert.Equal(t, err, nil)
	defer sub.Close()

	first := <-sub.Updates()
	assert.Equal(t, len(first), 0)

	_, err = s.Create(ctx, gateway.Tasks, "t1", gateway.Fields{"categoryId": "c1", "order": 0})
	assert.Equal(t, err, nil)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case docs := <-sub.Updates():
			if len(docs) == 1 {
				assert.Equal(t, docs[0].ID, "t1")
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for snapshot")
		}
	}
}

func TestDataSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "todo.db")

	s, err := Open(path, nil)
	assert.Equal(t, err, nil)
	_, err = s.Create(ctx, gateway.Tasks, "t1", gateway.Fields{"title": "persist"})
	assert.Equal(t, err, nil)
	assert.Equal(t, s.Close(), nil)

	s, err = Open(path, nil)
	assert.Equal(t, err, nil)
	defer s.Close()
	got, err := s.Get(ctx, gateway.Tasks, "t1")
	assert.Equal(t, err, nil)
	assert.Equal(t, got.Fields["title"], "persist")
}
