package gateway

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Fetcher runs a query against the backing store.
type Fetcher func(ctx context.Context, q Query) ([]Document, error)

// Subscription is a live view of a query. Every relevant change re-delivers
// the complete result set. Delivery is latest-wins: a reader that falls
// behind only sees the newest snapshot.
type Subscription struct {
	hub     *Hub
	id      uint64
	query   Query
	updates chan []Document

	mu      sync.Mutex
	closed  bool
	pending atomic.Bool
}

// Updates returns the snapshot channel. It is closed by Close.
func (s *Subscription) Updates() <-chan []Document {
	return s.updates
}

// Query returns the subscribed query.
func (s *Subscription) Query() Query {
	return s.query
}

// Close tears the subscription down. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s.id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.updates)
}

// refresh re-runs the query and delivers the result. Holding s.mu across the
// fetch keeps deliveries in fetch order.
func (s *Subscription) refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.Store(false)
	if s.closed {
		return nil
	}
	docs, err := s.hub.fetch(ctx, s.query)
	if err != nil {
		return err
	}
	select {
	case s.updates <- docs:
	default:
		select {
		case <-s.updates:
		default:
		}
		s.updates <- docs
	}
	return nil
}

// Hub fans committed changes out to subscriptions. Gateways embed one and
// call Publish after every successful write.
type Hub struct {
	fetch   Fetcher
	logger  *slog.Logger
	timeout time.Duration

	mu   sync.RWMutex
	next uint64
	subs map[uint64]*Subscription
}

// NewHub builds a hub that refreshes subscriptions through fetch.
func NewHub(fetch Fetcher, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		fetch:   fetch,
		logger:  logger,
		timeout: 10 * time.Second,
		subs:    make(map[uint64]*Subscription),
	}
}

// Subscribe registers q and delivers its initial result set before returning.
func (h *Hub) Subscribe(ctx context.Context, q Query) (*Subscription, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.next++
	sub := &Subscription{
		hub:     h,
		id:      h.next,
		query:   q,
		updates: make(chan []Document, 1),
	}
	h.subs[sub.id] = sub
	h.mu.Unlock()

	if err := sub.refresh(ctx); err != nil {
		sub.Close()
		return nil, err
	}
	return sub, nil
}

// Publish schedules a refresh of every subscription the changes touch. A
// change is relevant when the document matched the query before or after it.
func (h *Hub) Publish(changes ...Change) {
	h.mu.RLock()
	var touched []*Subscription
	for _, sub := range h.subs {
		for _, c := range changes {
			if sub.query.Matches(c.Collection, c.Before) || sub.query.Matches(c.Collection, c.After) {
				touched = append(touched, sub)
				break
			}
		}
	}
	h.mu.RUnlock()

	for _, sub := range touched {
		if !sub.pending.CompareAndSwap(false, true) {
			continue
		}
		go func(sub *Subscription) {
			ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
			defer cancel()
			if err := sub.refresh(ctx); err != nil {
				h.logger.Warn("subscription refresh failed", slog.String("query", sub.query.String()), slog.String("error", err.Error()))
			}
		}(sub)
	}
}

// Len reports the number of open subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close tears down every open subscription.
func (h *Hub) Close() {
	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()
	for _, sub := range subs {
		sub.Close()
	}
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}
