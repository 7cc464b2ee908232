package stream

import (
	"errors"
	"sync"
)

// Broadcast fans values out from one producer to every subscribed sink.
// Submit delivers in subscription order; a sink that errors does not
// block delivery to the others.
type Broadcast[T any] struct {
	mu     sync.Mutex
	next   int
	sinks  map[int]Sink[T]
	order  []int
	closed bool
}

func NewBroadcast[T any]() *Broadcast[T] {
	return &Broadcast[T]{
		sinks: make(map[int]Sink[T]),
	}
}

func (b *Broadcast[T]) Subscribe(sink Sink[T]) CancelFunc {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sink.Close()
		return func() {}
	}

	key := b.next
	b.next++
	b.sinks[key] = sink
	b.order = append(b.order, key)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		sink, found := b.sinks[key]
		if !found {
			return
		}
		delete(b.sinks, key)
		sink.Close()
	}
}

func (b *Broadcast[T]) Submit(v T) error {
	b.mu.Lock()
	sinks := make([]Sink[T], 0, len(b.order))
	for _, key := range b.order {
		if sink, found := b.sinks[key]; found {
			sinks = append(sinks, sink)
		}
	}
	b.mu.Unlock()

	var errs error
	for _, sink := range sinks {
		if err := sink.Submit(v); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

// Close closes every subscribed sink. Further submits are delivered to
// nobody and further subscriptions are closed immediately.
func (b *Broadcast[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for key, sink := range b.sinks {
		delete(b.sinks, key)
		sink.Close()
	}
	b.order = nil
}
