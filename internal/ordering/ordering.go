// Package ordering keeps drag-and-drop lists contiguously indexed.
//
// After every move each item of the list is assigned order = position
// (0..n-1). This costs one write per item but never drifts or collides, and
// the writes are committed as one gateway batch so a move applies fully or
// not at all.
package ordering

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"sharedtodo/internal/gateway"
)

// OrderField is the document field holding an item's position.
const OrderField = "order"

// ErrIndexOutOfRange is returned for moves outside the list.
var ErrIndexOutOfRange = errors.New("index out of range")

// Move returns a copy of items with the element at from relocated to to.
// Every other element keeps its relative order.
func Move[T any](items []T, from, to int) ([]T, error) {
	n := len(items)
	if from < 0 || from >= n || to < 0 || to >= n {
		return nil, fmt.Errorf("move %d -> %d in list of %d: %w", from, to, n, ErrIndexOutOfRange)
	}
	out := make([]T, 0, n)
	moved := items[from]
	for i, item := range items {
		if i == from {
			continue
		}
		if len(out) == to {
			out = append(out, moved)
		}
		out = append(out, item)
	}
	if len(out) < n {
		out = append(out, moved)
	}
	return out, nil
}

// Reconciler persists list orders for one collection.
type Reconciler struct {
	gw         gateway.Gateway
	collection string
	logger     *slog.Logger
}

// NewReconciler returns a reconciler writing to collection.
func NewReconciler(gw gateway.Gateway, collection string, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{gw: gw, collection: collection, logger: logger}
}

// Reorder applies a drag-and-drop move to ids, the current list in display
// order, and persists the result. A move onto the same index writes nothing.
func (r *Reconciler) Reorder(ctx context.Context, ids []string, from, to int) ([]string, error) {
	if from == to {
		if from < 0 || from >= len(ids) {
			return nil, fmt.Errorf("move %d -> %d in list of %d: %w", from, to, len(ids), ErrIndexOutOfRange)
		}
		return ids, nil
	}
	moved, err := Move(ids, from, to)
	if err != nil {
		return nil, err
	}
	if err := r.Assign(ctx, moved); err != nil {
		return nil, err
	}
	return moved, nil
}

// Assign writes order = index for every id, whether or not it changed.
func (r *Reconciler) Assign(ctx context.Context, ids []string) error {
	b := gateway.NewBatch()
	for i, id := range ids {
		b.Update(r.collection, id, gateway.Fields{OrderField: i})
	}
	if err := r.gw.Commit(ctx, b); err != nil {
		return fmt.Errorf("assign %s order: %w", r.collection, err)
	}
	r.logger.Debug("order assigned", slog.String("collection", r.collection), slog.Int("items", len(ids)))
	return nil
}

// Normalize rewrites only the documents of docs, already in display order,
// whose stored order differs from their index. It returns the number of
// documents it fixed.
func (r *Reconciler) Normalize(ctx context.Context, docs []gateway.Document) (int, error) {
	b := gateway.NewBatch()
	for i, doc := range docs {
		if v, ok := doc.Fields[OrderField]; ok && gateway.Equal(v, i) {
			continue
		}
		b.Update(r.collection, doc.ID, gateway.Fields{OrderField: i})
	}
	if b.Len() == 0 {
		return 0, nil
	}
	if err := r.gw.Commit(ctx, b); err != nil {
		return 0, fmt.Errorf("normalize %s order: %w", r.collection, err)
	}
	return b.Len(), nil
}

// Contiguous reports whether orders is exactly 0..n-1 in sequence.
func Contiguous(orders []int) bool {
	for i, o := range orders {
		if o != i {
			return false
		}
	}
	return true
}
