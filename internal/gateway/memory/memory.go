// Package memory implements an in-process gateway. It backs tests and the
// ":memory:" database setting.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"sharedtodo/internal/gateway"
)

// Gateway keeps documents in maps guarded by a single lock, so every write
// and batch is atomic.
type Gateway struct {
	mu          sync.RWMutex
	collections map[string]map[string]gateway.Fields
	hub         *gateway.Hub

	// failWrite, when set, is consulted before every write.
	failWrite func(w gateway.Write) error
}

// New returns an empty gateway.
func New(logger *slog.Logger) *Gateway {
	g := &Gateway{collections: make(map[string]map[string]gateway.Fields)}
	g.hub = gateway.NewHub(g.Find, logger)
	return g
}

// FailWrites installs a hook that can reject individual writes. Tests use it
// to simulate gateway failures.
func (g *Gateway) FailWrites(fn func(w gateway.Write) error) {
	g.mu.Lock()
	g.failWrite = fn
	g.mu.Unlock()
}

// Close tears down open subscriptions.
func (g *Gateway) Close() error {
	g.hub.Close()
	return nil
}

// Subscriptions reports the number of open subscriptions.
func (g *Gateway) Subscriptions() int {
	return g.hub.Len()
}

func (g *Gateway) Get(_ context.Context, collection, id string) (gateway.Document, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	fields, ok := g.collections[collection][id]
	if !ok {
		return gateway.Document{}, fmt.Errorf("%s/%s: %w", collection, id, gateway.ErrNotFound)
	}
	return gateway.Document{ID: id, Fields: gateway.Clone(fields)}, nil
}

func (g *Gateway) Create(ctx context.Context, collection, id string, fields gateway.Fields) (gateway.Document, error) {
	b := gateway.NewBatch()
	id = b.Create(collection, id, fields)
	if err := g.Commit(ctx, b); err != nil {
		return gateway.Document{}, err
	}
	return g.Get(ctx, collection, id)
}

func (g *Gateway) Update(ctx context.Context, collection, id string, fields gateway.Fields) error {
	return g.Commit(ctx, gateway.NewBatch().Update(collection, id, fields))
}

func (g *Gateway) Upsert(_ context.Context, collection, id string, fields gateway.Fields) error {
	g.mu.Lock()
	docs := g.ensure(collection)
	var before *gateway.Document
	current, ok := docs[id]
	w := gateway.Write{Kind: gateway.WriteCreate, Collection: collection, ID: id, Fields: fields}
	if ok {
		before = &gateway.Document{ID: id, Fields: current}
		w.Kind = gateway.WriteUpdate
	}
	if g.failWrite != nil {
		if err := g.failWrite(w); err != nil {
			g.mu.Unlock()
			return fmt.Errorf("upsert %s/%s: %w", collection, id, err)
		}
	}
	merged := gateway.Merge(current, fields)
	docs[id] = merged
	change := gateway.Change{Collection: collection, Before: before, After: &gateway.Document{ID: id, Fields: merged}}
	g.mu.Unlock()

	g.hub.Publish(change)
	return nil
}

func (g *Gateway) Delete(ctx context.Context, collection, id string) error {
	return g.Commit(ctx, gateway.NewBatch().Delete(collection, id))
}

func (g *Gateway) Find(_ context.Context, q gateway.Query) ([]gateway.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []gateway.Document
	for id, fields := range g.collections[q.Collection] {
		doc := gateway.Document{ID: id, Fields: fields}
		if q.Matches(q.Collection, &doc) {
			out = append(out, gateway.Document{ID: id, Fields: gateway.Clone(fields)})
		}
	}
	q.SortDocuments(out)
	return out, nil
}

// Commit validates every write against a staged copy of the touched
// documents and only then applies them, so a failing write leaves no trace.
func (g *Gateway) Commit(_ context.Context, b *gateway.Batch) error {
	if b.Len() == 0 {
		return nil
	}

	g.mu.Lock()
	type key struct{ collection, id string }
	staged := make(map[key]gateway.Fields)
	present := make(map[key]bool)
	lookup := func(k key) (gateway.Fields, bool) {
		if ok, seen := present[k]; seen {
			return staged[k], ok
		}
		f, ok := g.collections[k.collection][k.id]
		return f, ok
	}

	changes := make([]gateway.Change, 0, b.Len())
	for _, w := range b.Writes() {
		if g.failWrite != nil {
			if err := g.failWrite(w); err != nil {
				g.mu.Unlock()
				return fmt.Errorf("%s %s/%s: %w", w.Kind, w.Collection, w.ID, err)
			}
		}
		k := key{w.Collection, w.ID}
		current, exists := lookup(k)
		var before *gateway.Document
		if exists {
			before = &gateway.Document{ID: w.ID, Fields: current}
		}

		switch w.Kind {
		case gateway.WriteCreate:
			if exists {
				g.mu.Unlock()
				return fmt.Errorf("%s/%s: %w", w.Collection, w.ID, gateway.ErrAlreadyExists)
			}
			fields := gateway.Merge(nil, w.Fields)
			staged[k], present[k] = fields, true
			changes = append(changes, gateway.Change{Collection: w.Collection, After: &gateway.Document{ID: w.ID, Fields: fields}})
		case gateway.WriteUpdate:
			if !exists {
				g.mu.Unlock()
				return fmt.Errorf("%s/%s: %w", w.Collection, w.ID, gateway.ErrNotFound)
			}
			fields := gateway.Merge(current, w.Fields)
			staged[k], present[k] = fields, true
			changes = append(changes, gateway.Change{Collection: w.Collection, Before: before, After: &gateway.Document{ID: w.ID, Fields: fields}})
		case gateway.WriteDelete:
			staged[k], present[k] = nil, false
			if exists {
				changes = append(changes, gateway.Change{Collection: w.Collection, Before: before})
			}
		}
	}

	for k, ok := range present {
		if ok {
			g.ensure(k.collection)[k.id] = staged[k]
		} else {
			delete(g.collections[k.collection], k.id)
		}
	}
	g.mu.Unlock()

	g.hub.Publish(changes...)
	return nil
}

func (g *Gateway) Subscribe(ctx context.Context, q gateway.Query) (*gateway.Subscription, error) {
	return g.hub.Subscribe(ctx, q)
}

func (g *Gateway) ensure(collection string) map[string]gateway.Fields {
	docs, ok := g.collections[collection]
	if !ok {
		docs = make(map[string]gateway.Fields)
		g.collections[collection] = docs
	}
	return docs
}

var _ gateway.Gateway = (*Gateway)(nil)
