package todo

import (
	"sync"

	"sharedtodo/internal/gateway"
)

// Stream is a typed, cancellable view over a gateway subscription. Each value
// is the complete current result set. Close is the only way to stop it.
type Stream[T any] struct {
	sub  *gateway.Subscription
	out  chan T
	once sync.Once
}

func newStream[T any](sub *gateway.Subscription, convert func([]gateway.Document) T) *Stream[T] {
	s := &Stream[T]{sub: sub, out: make(chan T, 1)}
	go s.run(convert)
	return s
}

func (s *Stream[T]) run(convert func([]gateway.Document) T) {
	defer close(s.out)
	for docs := range s.sub.Updates() {
		v := convert(docs)
		select {
		case s.out <- v:
		default:
			select {
			case <-s.out:
			default:
			}
			s.out <- v
		}
	}
}

// Updates delivers snapshots until the stream is closed.
func (s *Stream[T]) Updates() <-chan T {
	return s.out
}

// Close stops the stream and its subscription.
func (s *Stream[T]) Close() {
	s.once.Do(s.sub.Close)
}
