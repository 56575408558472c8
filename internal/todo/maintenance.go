package todo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"sharedtodo/internal/gateway"
	"sharedtodo/internal/ordering"
)

// SweepReport summarizes one maintenance pass.
type SweepReport struct {
	OrphansDeleted  int
	CategoriesFixed int
	TasksFixed      int
}

// Sweeper converges the data model after interrupted or racing writes: it
// deletes tasks whose category is gone and re-indexes lists whose orders
// have gaps or duplicates. Running it repeatedly is harmless.
type Sweeper struct {
	gw          gateway.Gateway
	categories  *ordering.Reconciler
	tasks       *ordering.Reconciler
	logger      *slog.Logger
	concurrency int
}

// NewSweeper returns a sweeper working on gw.
func NewSweeper(gw gateway.Gateway, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		gw:          gw,
		categories:  ordering.NewReconciler(gw, gateway.Categories, logger),
		tasks:       ordering.NewReconciler(gw, gateway.Tasks, logger),
		logger:      logger,
		concurrency: 4,
	}
}

type sweepGroup struct {
	reconciler *ordering.Reconciler
	docs       []gateway.Document
	tasks      bool
}

// Run performs one pass. Failed lists do not stop the others; they are
// reported together as a PartialFailureError.
func (s *Sweeper) Run(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	// Tasks are read first: a category created after this point cannot own
	// any of the tasks seen here.
	taskDocs, err := s.gw.Find(ctx, gateway.From(gateway.Tasks))
	if err != nil {
		return report, fmt.Errorf("sweep: list tasks: %w", err)
	}
	categoryDocs, err := s.gw.Find(ctx, gateway.From(gateway.Categories))
	if err != nil {
		return report, fmt.Errorf("sweep: list categories: %w", err)
	}

	exists := make(map[string]bool, len(categoryDocs))
	personal := make(map[string][]gateway.Document)
	for _, doc := range categoryDocs {
		exists[doc.ID] = true
		c := decodeCategory(doc)
		if !c.IsShared {
			personal[c.OwnerID] = append(personal[c.OwnerID], doc)
		}
	}

	orphans := gateway.NewBatch()
	active := make(map[string][]gateway.Document)
	for _, doc := range taskDocs {
		t := decodeTask(doc)
		if !exists[t.CategoryID] {
			orphaned, err := s.categoryGone(ctx, t.CategoryID)
			if err != nil {
				return report, err
			}
			if orphaned {
				orphans.Delete(gateway.Tasks, doc.ID)
			}
			continue
		}
		if !t.Completed {
			active[t.CategoryID] = append(active[t.CategoryID], doc)
		}
	}
	if orphans.Len() > 0 {
		if err := s.gw.Commit(ctx, orphans); err != nil {
			return report, fmt.Errorf("sweep: delete orphaned tasks: %w", err)
		}
		report.OrphansDeleted = orphans.Len()
	}

	groups := make([]sweepGroup, 0, len(personal)+len(active))
	for _, docs := range personal {
		groups = append(groups, sweepGroup{reconciler: s.categories, docs: docs})
	}
	for _, docs := range active {
		groups = append(groups, sweepGroup{reconciler: s.tasks, docs: docs, tasks: true})
	}

	var (
		mu       sync.Mutex
		failures []error
		g        errgroup.Group
	)
	g.SetLimit(s.concurrency)
	for _, group := range groups {
		g.Go(func() error {
			sortForDisplay(group.docs)
			fixed, err := group.reconciler.Normalize(ctx, group.docs)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				failures = append(failures, err)
			case group.tasks:
				report.TasksFixed += fixed
			default:
				report.CategoriesFixed += fixed
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("sweep finished",
		slog.Int("orphans_deleted", report.OrphansDeleted),
		slog.Int("categories_fixed", report.CategoriesFixed),
		slog.Int("tasks_fixed", report.TasksFixed),
		slog.Int("failed_lists", len(failures)),
	)

	if len(failures) > 0 {
		return report, &PartialFailureError{Op: "sweep", Failed: len(failures), Total: len(groups), Err: errors.Join(failures...)}
	}
	return report, nil
}

// categoryGone confirms a category is missing right before its tasks are
// deleted.
func (s *Sweeper) categoryGone(ctx context.Context, id string) (bool, error) {
	_, err := s.gw.Get(ctx, gateway.Categories, id)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, gateway.ErrNotFound):
		return true, nil
	default:
		return false, fmt.Errorf("sweep: check category %s: %w", id, err)
	}
}

// sortForDisplay orders a list by stored order, breaking ties by creation
// time and then id, which is the order a user sees.
func sortForDisplay(docs []gateway.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		a, b := docs[i].Fields, docs[j].Fields
		if c := gateway.Compare(a[fieldOrder], b[fieldOrder]); c != 0 {
			return c < 0
		}
		if c := gateway.Compare(a[fieldCreatedAt], b[fieldCreatedAt]); c != 0 {
			return c < 0
		}
		return docs[i].ID < docs[j].ID
	})
}
