package tcp

import (
	"context"
	"errors"
	"sync"

	"github.com/capnsock/tcp/internal/reactor"
)

// sharedHandle is the reference-counted container backing a connected
// socket: the SocketResource, its Reader and its Writer each hold a share,
// and the underlying file descriptor is closed only when the last of them
// is dropped, never earlier.
type sharedHandle struct {
	mu     sync.Mutex
	socket *SystemSocket
	refs   int
}

func newSharedHandle(s *SystemSocket) *sharedHandle {
	return &sharedHandle{socket: s, refs: 1}
}

func (h *sharedHandle) retain() {
	h.mu.Lock()
	h.refs++
	h.mu.Unlock()
}

// release drops one share. The underlying socket is closed only once refs
// reaches zero; closing is otherwise a no-op from the caller's point of
// view, matching the invariant that dropping a reader or writer has no
// effect on its peer.
func (h *sharedHandle) release() error {
	h.mu.Lock()
	h.refs--
	last := h.refs == 0
	h.mu.Unlock()
	if last {
		return h.socket.Close()
	}
	return nil
}

// Reader is the read half of a connected socket (C5). It may be dropped
// independently of the Writer and the owning SocketResource; doing so
// neither closes the socket (unless it is the last share) nor performs any
// half-close.
type Reader struct {
	handle  *sharedHandle
	reactor *reactor.Reactor
	closed  bool
	mu      sync.Mutex
}

func newReader(h *sharedHandle, r *reactor.Reactor) *Reader {
	h.retain()
	return &Reader{handle: h, reactor: r}
}

// Read consumes bytes non-blockingly, waiting on the reactor whenever the
// socket reports WouldBlock, and returning only once data is available, the
// peer has closed, or ctx is cancelled.
func (r *Reader) Read(ctx context.Context, p []byte) (int, error) {
	for {
		n, err := r.handle.socket.Read(p)
		if err == nil {
			return n, nil
		}
		if !isWouldBlock(err) {
			return n, err
		}
		if err := r.reactor.WaitReadable(ctx, r.handle.socket.Fd()); err != nil {
			return 0, err
		}
	}
}

// Close releases this Reader's share of the handle. It never shuts down the
// socket on behalf of the writer or the parent resource.
func (r *Reader) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()
	return r.handle.release()
}

// Writer is the write half of a connected socket (C5).
type Writer struct {
	handle  *sharedHandle
	reactor *reactor.Reactor
	closed  bool
	mu      sync.Mutex
}

func newWriter(h *sharedHandle, r *reactor.Reactor) *Writer {
	h.retain()
	return &Writer{handle: h, reactor: r}
}

// Write sends bytes non-blockingly, waiting on the reactor whenever the
// socket reports WouldBlock.
func (w *Writer) Write(ctx context.Context, p []byte) (int, error) {
	for {
		n, err := w.handle.socket.Write(p)
		if err == nil {
			return n, nil
		}
		if !isWouldBlock(err) {
			return n, err
		}
		if err := w.reactor.WaitWritable(ctx, w.handle.socket.Fd()); err != nil {
			return 0, err
		}
	}
}

// Shutdown is deliberately a no-op: the writer never performs a half-close
// on its own. Half-close is reachable only through the parent
// SocketResource's explicit Shutdown operation.
func (w *Writer) Shutdown() error { return nil }

// Close releases this Writer's share of the handle without shutting down
// the socket.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()
	return w.handle.release()
}

func isWouldBlock(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == WouldBlock
}
