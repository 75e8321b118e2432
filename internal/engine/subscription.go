package engine

import (
	"context"
	"sync"
)

// #region subscription

// Subscription delivers posterior updates from a live session.
// The producer side calls Send and Close; the consumer reads Updates and
// may call Stop at any time, any number of times.
type Subscription struct {
	ctx    context.Context
	cancel context.CancelFunc

	updates   chan Update
	closeOnce sync.Once
	done      chan struct{}

	mu      sync.Mutex
	err     error
	stopped bool
	closed  bool
}

// NewSubscription creates a subscription bound to parent. The returned
// context is cancelled when the consumer stops the subscription; producers
// should watch it.
func NewSubscription(parent context.Context, buffer int) (*Subscription, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s := &Subscription{
		ctx:     ctx,
		cancel:  cancel,
		updates: make(chan Update, buffer),
		done:    make(chan struct{}),
	}
	return s, ctx
}

// Updates returns the update channel. It is closed when the session ends.
func (s *Subscription) Updates() <-chan Update {
	return s.updates
}

// Done is closed once the producer has finished.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Send delivers u unless the subscription was stopped. It reports whether
// the update was delivered.
func (s *Subscription) Send(u Update) bool {
	select {
	case <-s.ctx.Done():
		return false
	default:
	}
	select {
	case s.updates <- u:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// Close ends the session from the producer side. Only the first call has
// an effect; err may be nil.
func (s *Subscription) Close(err error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		if s.err == nil {
			s.err = err
		}
		s.closed = true
		s.mu.Unlock()
		close(s.updates)
		close(s.done)
		s.cancel()
	})
}

// Stop ends the session from the consumer side. Safe to call repeatedly
// and after the session has already ended.
func (s *Subscription) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.err == nil && !s.closed {
			s.err = ErrStopped
		}
	}
	s.mu.Unlock()
	s.cancel()
}

// Err returns the terminal error, ErrStopped after Stop, or nil.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// #endregion subscription
