// Package stream carries hotplug events from the single producer driving
// the monitor to any number of subscribers.
package stream

import (
	"fmt"
	"sync"
	"time"
)

type Sink[T any] interface {
	Submit(T) error
	Close()
}

type CancelFunc func()

// defaultTimeout bounds how long a submit may wait on a slow subscriber
// before the event is dropped for that subscriber only.
const defaultTimeout = 1 * time.Second

// chanSink serializes Submit and Close on one mutex: a close racing a
// parked submit waits the submit out instead of pulling the channel from
// under it, and submits arriving after the close fail instead of
// panicking.
type chanSink[T any] struct {
	mu      sync.Mutex
	ch      chan<- T
	closed  bool
	timeout time.Duration
}

func (s *chanSink[T]) Submit(v T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream: submit on closed sink")
	}
	select {
	case s.ch <- v:
		return nil
	case <-time.After(s.timeout):
		return fmt.Errorf("stream: timed out submitting value after %s", s.timeout)
	}
}

func (s *chanSink[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

func SinkFromChan[T any](ch chan<- T) Sink[T] {
	return &chanSink[T]{ch: ch, timeout: defaultTimeout}
}

type filterSink[T any] struct {
	sink Sink[T]
	keep FilterFunc[T]
}

func (s *filterSink[T]) Submit(v T) error {
	if s.keep(v) {
		return s.sink.Submit(v)
	}
	return nil
}

func (s *filterSink[T]) Close() {
	s.sink.Close()
}

// FilterSink forwards only values the filter accepts.
func FilterSink[T any](sink Sink[T], keep FilterFunc[T]) Sink[T] {
	return &filterSink[T]{sink: sink, keep: keep}
}
