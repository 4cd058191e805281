// Package lock provides a FIFO mutex with token-validated release. Each
// agent's portfolio mutates under its own Lock so a stuck or misbehaving
// caller can be cleared without freezing the rest of the system.
package lock

import (
	"errors"
	"sync"
	"time"
)

// DefaultTimeout is how long callers should be willing to queue for a lock
// unless they have a reason to wait less.
const DefaultTimeout = 30 * time.Second

var (
	// ErrTimeout means the waiter gave up before reaching the front of
	// the queue.
	ErrTimeout = errors.New("lock: acquire timed out")
	// ErrNotHeld means Release was called on a free lock.
	ErrNotHeld = errors.New("lock: not held")
	// ErrWrongToken means the release token does not match the current
	// holder, typically after a force release invalidated it.
	ErrWrongToken = errors.New("lock: token mismatch")
	// ErrReset is delivered to queued waiters when the lock is force
	// released; waiting further would be waiting on cleared state.
	ErrReset = errors.New("lock: reset while waiting")
)

// Token proves an acquisition. The zero Token is never issued.
type Token uint64

type grant struct {
	tok Token
	err error
}

type waiter struct {
	ch chan grant // buffered, sender never blocks
}

// Lock is a mutual exclusion lock with strict FIFO handoff.
type Lock struct {
	mu      sync.Mutex
	held    bool
	current Token
	seq     uint64
	queue   []*waiter
}

func New() *Lock {
	return &Lock{}
}

func (l *Lock) mint() Token {
	l.seq++
	return Token(l.seq)
}

// TryAcquire takes the lock immediately or reports that it could not.
// Queued waiters keep their priority: a try never jumps the queue.
func (l *Lock) TryAcquire() (Token, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held || len(l.queue) > 0 {
		return 0, false
	}
	l.held = true
	l.current = l.mint()
	return l.current, true
}

// Acquire blocks until the lock is handed over in FIFO order or timeout
// elapses. On timeout the waiter withdraws from the queue; a handoff that
// raced with the timeout is passed straight to the next waiter.
func (l *Lock) Acquire(timeout time.Duration) (Token, error) {
	l.mu.Lock()
	if !l.held && len(l.queue) == 0 {
		l.held = true
		l.current = l.mint()
		tok := l.current
		l.mu.Unlock()
		return tok, nil
	}

	w := &waiter{ch: make(chan grant, 1)}
	l.queue = append(l.queue, w)
	l.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case g := <-w.ch:
		if g.err != nil {
			return 0, g.err
		}
		return g.tok, nil
	case <-timer.C:
	}

	l.mu.Lock()
	for i, q := range l.queue {
		if q == w {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			l.mu.Unlock()
			return 0, ErrTimeout
		}
	}
	l.mu.Unlock()

	// no longer queued: a grant or reset raced the timer
	g := <-w.ch
	if g.err == nil {
		_ = l.Release(g.tok)
	}
	return 0, ErrTimeout
}

// Release hands the lock to the oldest waiter, or frees it when nobody is
// queued. The token must be the one issued for the current hold.
func (l *Lock) Release(tok Token) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return ErrNotHeld
	}
	if tok != l.current {
		return ErrWrongToken
	}
	l.handoffLocked()
	return nil
}

func (l *Lock) handoffLocked() {
	if len(l.queue) == 0 {
		l.held = false
		l.current = 0
		return
	}
	w := l.queue[0]
	l.queue = l.queue[1:]
	l.current = l.mint()
	w.ch <- grant{tok: l.current}
}

// ForceRelease clears the lock regardless of holder: the current token is
// invalidated and every queued waiter fails immediately with ErrReset.
// Returns how many waiters were failed.
func (l *Lock) ForceRelease() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.queue)
	for _, w := range l.queue {
		w.ch <- grant{err: ErrReset}
	}
	l.queue = nil
	l.held = false
	l.current = 0
	return n
}

// With runs fn while holding the lock, releasing it on every exit path
// including panics.
func (l *Lock) With(timeout time.Duration, fn func() error) error {
	tok, err := l.Acquire(timeout)
	if err != nil {
		return err
	}
	defer func() {
		_ = l.Release(tok)
	}()
	return fn()
}

// Held reports whether the lock is currently taken.
func (l *Lock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// Waiters reports the current queue depth.
func (l *Lock) Waiters() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}
