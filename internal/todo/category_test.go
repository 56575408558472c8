package todo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/go-playground/assert/v2"

	"sharedtodo/internal/gateway"
	"sharedtodo/internal/models"
	"sharedtodo/internal/ordering"
)

func names(categories []models.Category) []string {
	out := make([]string, len(categories))
	for i, c := range categories {
		out[i] = c.Name
	}
	return out
}

func orderValues(categories []models.Category) []int {
	out := make([]int, len(categories))
	for i, c := range categories {
		out[i] = c.Order
	}
	return out
}

func TestCreateCategoryAppearsInPersonalStream(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	stream, err := f.categories.SubscribePersonal(ctx, "u1")
	assert.Equal(t, err, nil)
	defer stream.Close()

	created, err := f.categories.CreateCategory(ctx, "u1", "  Groceries ", 0, false)
	assert.Equal(t, err, nil)
	assert.Equal(t, created.Name, "Groceries")
	assert.Equal(t, created.IsShared, false)
	assert.Equal(t, created.ShareCode, "")

	got := waitFor(t, stream, func(cs []models.Category) bool { return len(cs) == 1 })
	assert.Equal(t, got[0].ID, created.ID)
	assert.Equal(t, got[0].OwnerID, "u1")
}

func TestCreateCategoryRejectsBlankName(t *testing.T) {
	f := newFixture(t)
	_, err := f.categories.CreateCategory(context.Background(), "u1", "   ", 0, false)
	var verr *ValidationError
	assert.Equal(t, errors.As(err, &verr), true)
	assert.Equal(t, verr.Field, "name")
}

func TestCreateSharedCategory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	c, err := f.categories.CreateCategory(ctx, "owner", "Trip", 0, true)
	assert.Equal(t, err, nil)
	assert.Equal(t, c.IsShared, true)
	assert.Equal(t, c.Members, []string{"owner"})
	assert.Equal(t, len(c.ShareCode), ShareCodeLength)

	personal, err := f.categories.ListPersonal(ctx, "owner")
	assert.Equal(t, err, nil)
	assert.Equal(t, len(personal), 0)

	shared, err := f.categories.ListShared(ctx, "owner")
	assert.Equal(t, err, nil)
	assert.Equal(t, len(shared), 1)
}

func TestShareCodeCollisionRegenerates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	codes := []string{"AAAAAAAA", "AAAAAAAA", "BBBBBBBB"}
	f.categories.newCode = func() (string, error) {
		code := codes[0]
		codes = codes[1:]
		return code, nil
	}

	first, err := f.categories.CreateCategory(ctx, "u1", "One", 0, true)
	assert.Equal(t, err, nil)
	second, err := f.categories.CreateCategory(ctx, "u1", "Two", 1, true)
	assert.Equal(t, err, nil)
	assert.Equal(t, first.ShareCode, "AAAAAAAA")
	assert.Equal(t, second.ShareCode, "BBBBBBBB")
}

func TestShareCodeAttemptsExhausted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.categories.newCode = func() (string, error) { return "SAMECODE", nil }

	_, err := f.categories.CreateCategory(ctx, "u1", "One", 0, true)
	assert.Equal(t, err, nil)
	_, err = f.categories.CreateCategory(ctx, "u1", "Two", 1, true)
	assert.NotEqual(t, err, nil)
}

func TestAppendCategory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, name := range []string{"A", "B", "C"} {
		_, err := f.categories.AppendCategory(ctx, "u1", name, false)
		assert.Equal(t, err, nil)
	}
	list, err := f.categories.ListPersonal(ctx, "u1")
	assert.Equal(t, err, nil)
	assert.Equal(t, names(list), []string{"A", "B", "C"})
	assert.Equal(t, orderValues(list), []int{0, 1, 2})
}

func TestRenameCategory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := must[models.Category](t)(f.categories.CreateCategory(ctx, "u1", "Old", 0, false))

	assert.Equal(t, f.categories.RenameCategory(ctx, "u1", c.ID, " New "), nil)
	got := must[models.Category](t)(f.categories.Get(ctx, c.ID))
	assert.Equal(t, got.Name, "New")
	assert.Equal(t, got.Order, 0)

	// Blank names leave the category untouched.
	assert.Equal(t, f.categories.RenameCategory(ctx, "u1", c.ID, "  "), nil)
	got = must[models.Category](t)(f.categories.Get(ctx, c.ID))
	assert.Equal(t, got.Name, "New")

	err := f.categories.RenameCategory(ctx, "u2", c.ID, "Hijack")
	assert.Equal(t, errors.Is(err, ErrForbidden), true)

	err = f.categories.RenameCategory(ctx, "u1", "missing", "x")
	assert.Equal(t, errors.Is(err, ErrNotFound), true)
}

func TestDeleteCategoryCascades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doomed := must[models.Category](t)(f.categories.CreateCategory(ctx, "u1", "Doomed", 0, false))
	kept := must[models.Category](t)(f.categories.CreateCategory(ctx, "u1", "Kept", 1, false))

	for i := 0; i < 3; i++ {
		_, err := f.tasks.AppendTask(ctx, "u1", doomed.ID, fmt.Sprintf("task %d", i))
		assert.Equal(t, err, nil)
	}
	survivor := must[models.Task](t)(f.tasks.AppendTask(ctx, "u1", kept.ID, "stay"))

	assert.Equal(t, f.categories.DeleteCategory(ctx, "u1", doomed.ID), nil)

	_, err := f.categories.Get(ctx, doomed.ID)
	assert.Equal(t, errors.Is(err, ErrNotFound), true)
	orphans, err := f.gw.Find(ctx, gateway.From(gateway.Tasks).Where(fieldCategoryID, gateway.OpEqual, doomed.ID))
	assert.Equal(t, err, nil)
	assert.Equal(t, len(orphans), 0)
	_, err = f.tasks.Get(ctx, survivor.ID)
	assert.Equal(t, err, nil)
}

func TestDeleteCategoryFailureLeavesEverything(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := must[models.Category](t)(f.categories.CreateCategory(ctx, "u1", "Doomed", 0, false))
	task := must[models.Task](t)(f.tasks.AppendTask(ctx, "u1", c.ID, "task"))

	f.gw.FailWrites(func(w gateway.Write) error {
		if w.Collection == gateway.Categories && w.Kind == gateway.WriteDelete {
			return errors.New("unavailable")
		}
		return nil
	})
	assert.NotEqual(t, f.categories.DeleteCategory(ctx, "u1", c.ID), nil)
	f.gw.FailWrites(nil)

	_, err := f.tasks.Get(ctx, task.ID)
	assert.Equal(t, err, nil)
}

func TestDeleteCategoryOwnerOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := must[models.Category](t)(f.categories.CreateCategory(ctx, "owner", "Trip", 0, true))
	_, err := f.categories.JoinByCode(ctx, "member", c.ShareCode)
	assert.Equal(t, err, nil)

	err = f.categories.DeleteCategory(ctx, "member", c.ID)
	assert.Equal(t, errors.Is(err, ErrForbidden), true)
}

func TestMoveCategory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, name := range []string{"A", "B", "C"} {
		_, err := f.categories.AppendCategory(ctx, "u1", name, false)
		assert.Equal(t, err, nil)
	}

	moved, err := f.categories.MoveCategory(ctx, "u1", 0, 2)
	assert.Equal(t, err, nil)
	assert.Equal(t, names(moved), []string{"B", "C", "A"})

	list := must[[]models.Category](t)(f.categories.ListPersonal(ctx, "u1"))
	assert.Equal(t, names(list), []string{"B", "C", "A"})
	assert.Equal(t, orderValues(list), []int{0, 1, 2})

	_, err = f.categories.MoveCategory(ctx, "u1", 0, 3)
	var verr *ValidationError
	assert.Equal(t, errors.As(err, &verr), true)
}

func TestMoveCategorySameIndexIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, name := range []string{"A", "B"} {
		_, err := f.categories.AppendCategory(ctx, "u1", name, false)
		assert.Equal(t, err, nil)
	}

	f.gw.FailWrites(func(gateway.Write) error { return errors.New("no writes expected") })
	moved, err := f.categories.MoveCategory(ctx, "u1", 1, 1)
	assert.Equal(t, err, nil)
	assert.Equal(t, names(moved), []string{"A", "B"})
}

func TestReorderCategoriesRejectsForeignCategory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mine := must[models.Category](t)(f.categories.CreateCategory(ctx, "u1", "Mine", 0, false))
	theirs := must[models.Category](t)(f.categories.CreateCategory(ctx, "u2", "Theirs", 0, false))

	err := f.categories.ReorderCategories(ctx, "u1", []models.Category{theirs, mine})
	assert.Equal(t, errors.Is(err, ErrForbidden), true)
}

func TestReorderCategories(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := must[models.Category](t)(f.categories.CreateCategory(ctx, "u1", "A", 0, false))
	b := must[models.Category](t)(f.categories.CreateCategory(ctx, "u1", "B", 1, false))
	c := must[models.Category](t)(f.categories.CreateCategory(ctx, "u1", "C", 2, false))

	err := f.categories.ReorderCategories(ctx, "u1", []models.Category{c, a, b})
	assert.Equal(t, err, nil)

	list := must[[]models.Category](t)(f.categories.ListPersonal(ctx, "u1"))
	assert.Equal(t, names(list), []string{"C", "A", "B"})
	assert.Equal(t, orderValues(list), []int{0, 1, 2})
}

func TestReorderCategoriesIgnoresClaimedOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	x := must[models.Category](t)(f.categories.CreateCategory(ctx, "u2", "X", 0, false))
	y := must[models.Category](t)(f.categories.CreateCategory(ctx, "u2", "Y", 1, false))

	forged := []models.Category{
		{ID: y.ID, OwnerID: "u1", Name: "Y"},
		{ID: x.ID, OwnerID: "u1", Name: "X"},
	}
	err := f.categories.ReorderCategories(ctx, "u1", forged)
	assert.Equal(t, errors.Is(err, ErrForbidden), true)

	list := must[[]models.Category](t)(f.categories.ListPersonal(ctx, "u2"))
	assert.Equal(t, names(list), []string{"X", "Y"})
	assert.Equal(t, orderValues(list), []int{0, 1})
}

func TestReorderCategoriesUnknownID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	err := f.categories.ReorderCategories(ctx, "u1", []models.Category{{ID: "missing", OwnerID: "u1"}})
	assert.Equal(t, errors.Is(err, ErrNotFound), true)
}

func TestConcurrentMovesKeepValidPermutation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i := 0; i < 6; i++ {
		_, err := f.categories.AppendCategory(ctx, "u1", fmt.Sprintf("c%d", i), false)
		assert.Equal(t, err, nil)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.categories.MoveCategory(ctx, "u1", i%6, (i*5)%6)
		}()
	}
	wg.Wait()

	list := must[[]models.Category](t)(f.categories.ListPersonal(ctx, "u1"))
	assert.Equal(t, len(list), 6)
	assert.Equal(t, ordering.Contiguous(orderValues(list)), true)
}

func TestEnsureDefaultCategory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.categories.EnsureDefaultCategory(ctx, "u1")
	assert.Equal(t, err, nil)
	assert.Equal(t, created, true)

	created, err = f.categories.EnsureDefaultCategory(ctx, "u1")
	assert.Equal(t, err, nil)
	assert.Equal(t, created, false)

	list := must[[]models.Category](t)(f.categories.ListPersonal(ctx, "u1"))
	assert.Equal(t, names(list), []string{DefaultCategoryName})
	assert.Equal(t, list[0].Order, 0)
}

func TestEnsureDefaultCategorySkipsExistingOwners(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.categories.CreateCategory(ctx, "u1", "Trip", 0, true)
	assert.Equal(t, err, nil)

	created, err := f.categories.EnsureDefaultCategory(ctx, "u1")
	assert.Equal(t, err, nil)
	assert.Equal(t, created, false)
}

func TestEnsureDefaultCategoryConcurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	const callers = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := f.categories.EnsureDefaultCategory(ctx, "u1")
			if err != nil {
				t.Errorf("ensure default: %v", err)
				return
			}
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, created, 1)
	list := must[[]models.Category](t)(f.categories.ListPersonal(ctx, "u1"))
	assert.Equal(t, len(list), 1)
}

func TestEnsureDefaultCategoryCustomName(t *testing.T) {
	ctx := context.Background()
	categories := NewCategoryStore(newFixture(t).gw, nil, Options{DefaultCategoryName: "Inbox"})

	_, err := categories.EnsureDefaultCategory(ctx, "u1")
	assert.Equal(t, err, nil)
	list := must[[]models.Category](t)(categories.ListPersonal(ctx, "u1"))
	assert.Equal(t, names(list), []string{"Inbox"})
}
