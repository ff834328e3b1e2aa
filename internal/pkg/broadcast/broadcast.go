// Package broadcast provides a single-writer, many-reader event channel scoped
// to one run. Publishing never blocks: each subscriber owns a bounded queue and
// overflowing events are dropped and counted. The terminal event passed to
// Close is retained until Ack so observers that reconnect still see it.
package broadcast

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// DefaultBufferSize bounds each subscriber queue when none is configured.
const DefaultBufferSize = 256

var (
	// ErrAcknowledged is returned by Subscribe once the terminal event was acknowledged.
	ErrAcknowledged = errors.New("broadcast: terminal event already acknowledged")
)

// Option configures a Channel.
type Option[T any] func(*Channel[T])

// WithKeep marks events that must reach every subscriber. They bypass the
// queue bound, so keep should match a small, bounded subset of events.
func WithKeep[T any](keep func(T) bool) Option[T] {
	return func(c *Channel[T]) {
		c.keep = keep
	}
}

// Channel fans events out to subscribers.
type Channel[T any] struct {
	mu       sync.Mutex
	buffer   int
	keep     func(T) bool
	subs     map[*Subscription[T]]struct{}
	closed   bool
	acked    bool
	terminal T
	dropped  atomic.Uint64
}

// New creates a channel whose subscribers buffer up to bufferSize events.
func New[T any](bufferSize int, opts ...Option[T]) *Channel[T] {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	c := &Channel[T]{
		buffer: bufferSize,
		subs:   make(map[*Subscription[T]]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Publish enqueues ev for every current subscriber. It reports false when the
// channel is already closed.
func (c *Channel[T]) Publish(ev T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	keep := c.keep != nil && c.keep(ev)
	for sub := range c.subs {
		if !sub.push(ev, keep) {
			c.dropped.Add(1)
		}
	}
	return true
}

// Close ends the run with a terminal event. Subsequent calls are no-ops.
func (c *Channel[T]) Close(terminal T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.terminal = terminal
	for sub := range c.subs {
		sub.finish(terminal)
	}
}

// Subscribe attaches a new observer. Late subscribers only see events
// published from now on, plus the terminal event.
func (c *Channel[T]) Subscribe() (*Subscription[T], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.acked {
		return nil, ErrAcknowledged
	}
	sub := &Subscription[T]{
		ch:     c,
		limit:  c.buffer,
		notify: make(chan struct{}, 1),
	}
	if c.closed {
		sub.finish(c.terminal)
	} else {
		c.subs[sub] = struct{}{}
	}
	return sub, nil
}

// Ack releases the retained terminal event. Existing subscriptions keep
// delivering what they already hold; later Subscribe calls fail with
// ErrAcknowledged.
func (c *Channel[T]) Ack() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acked = true
	var zero T
	c.terminal = zero
}

// Terminal returns the retained terminal event, if the run is closed and not
// yet acknowledged.
func (c *Channel[T]) Terminal() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed || c.acked {
		var zero T
		return zero, false
	}
	return c.terminal, true
}

// Closed reports whether Close was called.
func (c *Channel[T]) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Dropped is the total number of events dropped across subscribers.
func (c *Channel[T]) Dropped() uint64 {
	return c.dropped.Load()
}

func (c *Channel[T]) detach(sub *Subscription[T]) {
	c.mu.Lock()
	delete(c.subs, sub)
	c.mu.Unlock()
}

// Subscription is one observer's ordered view of the channel.
type Subscription[T any] struct {
	ch     *Channel[T]
	limit  int
	notify chan struct{}

	mu          sync.Mutex
	queue       []T
	terminal    T
	hasTerminal bool
	delivered   bool
	cancelled   bool
	dropped     uint64
}

func (s *Subscription[T]) push(ev T, keep bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return true
	}
	if !keep && len(s.queue) >= s.limit {
		s.dropped++
		return false
	}
	s.queue = append(s.queue, ev)
	s.signal()
	return true
}

func (s *Subscription[T]) finish(terminal T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminal = terminal
	s.hasTerminal = true
	s.signal()
}

func (s *Subscription[T]) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next blocks until the next event. Queued events come first, then the
// terminal event once, then io.EOF.
func (s *Subscription[T]) Next(ctx context.Context) (T, error) {
	var zero T
	for {
		s.mu.Lock()
		switch {
		case s.cancelled:
			s.mu.Unlock()
			return zero, io.EOF
		case len(s.queue) > 0:
			ev := s.queue[0]
			s.queue[0] = zero
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return ev, nil
		case s.hasTerminal && !s.delivered:
			s.delivered = true
			ev := s.terminal
			s.mu.Unlock()
			return ev, nil
		case s.delivered:
			s.mu.Unlock()
			return zero, io.EOF
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// C adapts the subscription to a channel that is closed after the terminal
// event or when ctx ends.
func (s *Subscription[T]) C(ctx context.Context) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for {
			ev, err := s.Next(ctx)
			if err != nil {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Dropped is how many events this subscriber lost to overflow.
func (s *Subscription[T]) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Cancel detaches the subscription; pending Next calls return io.EOF.
func (s *Subscription[T]) Cancel() {
	s.ch.detach(s)
	s.mu.Lock()
	s.cancelled = true
	s.queue = nil
	s.signal()
	s.mu.Unlock()
}
