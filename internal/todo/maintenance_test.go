package todo

import (
	"context"
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"

	"sharedtodo/internal/gateway"
	"sharedtodo/internal/models"
)

func seedDocs(t *testing.T, gw gateway.Gateway, categories map[string]models.Category, tasks map[string]models.Task) {
	t.Helper()
	b := gateway.NewBatch()
	for id, c := range categories {
		b.Create(gateway.Categories, id, categoryFields(c))
	}
	for id, task := range tasks {
		b.Create(gateway.Tasks, id, taskFields(task))
	}
	if err := gw.Commit(context.Background(), b); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestSweepRepairsOrdersAndOrphans(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	seedDocs(t, f.gw,
		map[string]models.Category{
			"a": {OwnerID: "u1", Name: "A", Order: 0},
			"b": {OwnerID: "u1", Name: "B", Order: 3},
			"c": {OwnerID: "u1", Name: "C", Order: 3},
			"s": {OwnerID: "u1", Name: "Shared", Order: 9, IsShared: true, ShareCode: "SHARE123", Members: []string{"u1"}},
		},
		map[string]models.Task{
			"t1":     {OwnerID: "u1", CategoryID: "a", Title: "one", Order: 5},
			"t2":     {OwnerID: "u1", CategoryID: "a", Title: "two", Order: 5},
			"t3":     {OwnerID: "u1", CategoryID: "a", Title: "done", Order: 7, Completed: true},
			"orphan": {OwnerID: "u1", CategoryID: "gone", Title: "lost"},
		},
	)

	report, err := NewSweeper(f.gw, nil).Run(ctx)
	assert.Equal(t, err, nil)
	assert.Equal(t, report.OrphansDeleted, 1)
	assert.Equal(t, report.CategoriesFixed, 2)
	assert.Equal(t, report.TasksFixed, 2)

	list := must[[]models.Category](t)(f.categories.ListPersonal(ctx, "u1"))
	assert.Equal(t, names(list), []string{"A", "B", "C"})
	assert.Equal(t, orderValues(list), []int{0, 1, 2})

	shared := must[models.Category](t)(f.categories.Get(ctx, "s"))
	assert.Equal(t, shared.Order, 9)

	tasks := must[[]models.Task](t)(f.tasks.ListTasks(ctx, "u1", "a"))
	assert.Equal(t, titles(models.ActiveTasks(tasks)), []string{"one", "two"})
	assert.Equal(t, tasks[0].Order, 0)
	assert.Equal(t, tasks[1].Order, 1)

	_, err = f.tasks.Get(ctx, "orphan")
	assert.Equal(t, errors.Is(err, ErrNotFound), true)

	// A second pass has nothing left to do.
	report, err = NewSweeper(f.gw, nil).Run(ctx)
	assert.Equal(t, err, nil)
	assert.Equal(t, report, SweepReport{})
}

func TestSweepReportsPartialFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	seedDocs(t, f.gw,
		map[string]models.Category{
			"a": {OwnerID: "u1", Name: "A", Order: 4},
			"b": {OwnerID: "u2", Name: "B", Order: 4},
		},
		nil,
	)
	boom := errors.New("unavailable")
	f.gw.FailWrites(func(w gateway.Write) error {
		if w.ID == "a" {
			return boom
		}
		return nil
	})

	report, err := NewSweeper(f.gw, nil).Run(ctx)
	var partial *PartialFailureError
	assert.Equal(t, errors.As(err, &partial), true)
	assert.Equal(t, partial.Failed, 1)
	assert.Equal(t, partial.Total, 2)
	assert.Equal(t, errors.Is(err, boom), true)
	assert.Equal(t, report.CategoriesFixed, 1)

	b := must[models.Category](t)(f.categories.Get(ctx, "b"))
	assert.Equal(t, b.Order, 0)
}

// interleavedGateway runs afterFind once the sweeper has listed a
// collection, standing in for a client writing mid-pass.
type interleavedGateway struct {
	gateway.Gateway
	afterFind func(q gateway.Query, docs []gateway.Document) []gateway.Document
}

func (g *interleavedGateway) Find(ctx context.Context, q gateway.Query) ([]gateway.Document, error) {
	docs, err := g.Gateway.Find(ctx, q)
	if err != nil || g.afterFind == nil || len(q.Filters) > 0 {
		return docs, err
	}
	return g.afterFind(q, docs), nil
}

func TestSweepKeepsTasksOfCategoryCreatedMidPass(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var added models.Task
	gw := &interleavedGateway{Gateway: f.gw}
	gw.afterFind = func(q gateway.Query, docs []gateway.Document) []gateway.Document {
		if q.Collection != gateway.Categories || added.ID != "" {
			return docs
		}
		c := must[models.Category](t)(f.categories.AppendCategory(ctx, "u1", "Fresh", false))
		added = must[models.Task](t)(f.tasks.AppendTask(ctx, "u1", c.ID, "first"))
		return docs
	}

	report, err := NewSweeper(gw, nil).Run(ctx)
	assert.Equal(t, err, nil)
	assert.Equal(t, report.OrphansDeleted, 0)

	got := must[models.Task](t)(f.tasks.Get(ctx, added.ID))
	assert.Equal(t, got.Title, "first")
}

func TestSweepRechecksCategoryBeforeDeleting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	seedDocs(t, f.gw,
		map[string]models.Category{"a": {OwnerID: "u1", Name: "A"}},
		map[string]models.Task{
			"kept":   {OwnerID: "u1", CategoryID: "a", Title: "kept"},
			"orphan": {OwnerID: "u1", CategoryID: "gone", Title: "lost"},
		},
	)

	// The category listing misses "a", as a listing taken before its
	// creation would.
	gw := &interleavedGateway{Gateway: f.gw}
	gw.afterFind = func(q gateway.Query, docs []gateway.Document) []gateway.Document {
		if q.Collection != gateway.Categories {
			return docs
		}
		return nil
	}

	report, err := NewSweeper(gw, nil).Run(ctx)
	assert.Equal(t, err, nil)
	assert.Equal(t, report.OrphansDeleted, 1)

	kept := must[models.Task](t)(f.tasks.Get(ctx, "kept"))
	assert.Equal(t, kept.CategoryID, "a")
	_, err = f.tasks.Get(ctx, "orphan")
	assert.Equal(t, errors.Is(err, ErrNotFound), true)
}
