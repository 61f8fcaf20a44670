// Package reactor multiplexes readiness waits for non-blocking sockets onto
// a single background poll loop, following the self-pipe wake pattern the
// host's own poll_oneoff implementation uses to interrupt a pending poll
// call when new work arrives.
package reactor

import (
	"context"
	"errors"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"
)

var ErrClosed = errors.New("reactor: closed")

type waiter struct {
	fd     int
	write  bool
	done   chan error
}

// Reactor owns one background goroutine that waits on every fd currently
// registered via WaitReadable/WaitWritable and wakes callers as they become
// ready.
type Reactor struct {
	mu      sync.Mutex
	waiters []*waiter
	closed  bool

	wakeR *os.File
	wakeW *os.File

	group  *errgroup.Group
	cancel context.CancelFunc
}

// New starts a Reactor's background poll loop.
func New() (*Reactor, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	group, _ := errgroup.WithContext(ctx)
	re := &Reactor{wakeR: r, wakeW: w, group: group, cancel: cancel}
	group.Go(re.loop)
	return re, nil
}

// WaitReadable blocks until fd is readable, ctx is cancelled, or the
// reactor is closed.
func (r *Reactor) WaitReadable(ctx context.Context, fd int) error {
	return r.wait(ctx, fd, false)
}

// WaitWritable blocks until fd is writable, ctx is cancelled, or the
// reactor is closed.
func (r *Reactor) WaitWritable(ctx context.Context, fd int) error {
	return r.wait(ctx, fd, true)
}

func (r *Reactor) wait(ctx context.Context, fd int, write bool) error {
	w := &waiter{fd: fd, write: write, done: make(chan error, 1)}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.waiters = append(r.waiters, w)
	r.mu.Unlock()

	r.wake()

	select {
	case err := <-w.done:
		return err
	case <-ctx.Done():
		r.removeWaiter(w)
		return ctx.Err()
	}
}

func (r *Reactor) removeWaiter(target *waiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, w := range r.waiters {
		if w == target {
			r.waiters = append(r.waiters[:i], r.waiters[i+1:]...)
			return
		}
	}
}

func (r *Reactor) wake() {
	var b [1]byte
	_, _ = r.wakeW.Write(b[:])
}

// Close stops the poll loop and fails every pending wait with ErrClosed.
func (r *Reactor) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	pending := r.waiters
	r.waiters = nil
	r.mu.Unlock()

	for _, w := range pending {
		w.done <- ErrClosed
	}

	r.wake()
	r.cancel()
	err := r.group.Wait()
	r.wakeR.Close()
	r.wakeW.Close()
	return err
}

func (r *Reactor) snapshot() (active []*waiter, closed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, true
	}
	active = make([]*waiter, len(r.waiters))
	copy(active, r.waiters)
	return active, false
}

func (r *Reactor) complete(w *waiter, err error) {
	r.mu.Lock()
	for i, x := range r.waiters {
		if x == w {
			r.waiters = append(r.waiters[:i], r.waiters[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
	w.done <- err
}
