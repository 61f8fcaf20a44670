package tcp

import (
	"sync"
	"time"
)

const defaultBacklogSize = 128

// SystemSocket is the raw, ambient-authority socket backend (C3): a single
// OS file descriptor plus the bookkeeping needed to normalize option and
// error behavior across platforms. It has no notion of the guest-facing
// state machine - that lives in SocketResource - and performs no address
// capability checks of its own; callers (SocketResource) are responsible
// for consulting a Network first.
type SystemSocket struct {
	mu       sync.Mutex
	fd       int
	family   AddressFamily
	listening bool
	closed   bool

	// shadow mirrors option values that were explicitly set by the caller.
	// It exists purely to support platforms (macOS) that don't inherit
	// socket options from a listening socket to the sockets accept()
	// returns; on platforms that do inherit, it is maintained but never
	// consulted.
	shadow shadowOptions
}

type shadowOptions struct {
	recvBufferSize *int32
	sendBufferSize *int32
	hopLimit       *int32
	keepAliveIdle  *time.Duration
}

func (s *SystemSocket) Fd() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fd
}

func (s *SystemSocket) Family() AddressFamily { return s.family }

func (s *SystemSocket) IsListening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

// Bind binds the socket to addr. SO_REUSEADDR is re-applied unconditionally
// on every call (even when the computed value is false) so that state left
// behind by a previous failed bind attempt can never leak into this one.
func (s *SystemSocket) Bind(addr IPSocketAddress) error {
	if err := validateAddressFamily(s.family, addr.Address); err != nil {
		return err
	}
	reuse := addr.Port > 0
	if err := s.setReuseAddr(reuse); err != nil {
		return err
	}
	return s.bind(addr)
}

// Listen transitions the socket into the listening state. It is safe to
// call only once; SocketResource's state machine is the primary guard
// against a second call, but SystemSocket checks too so it remains correct
// when used directly.
func (s *SystemSocket) Listen(backlog int) error {
	s.mu.Lock()
	if s.listening {
		s.mu.Unlock()
		return NewError(InvalidState)
	}
	s.mu.Unlock()
	if backlog <= 0 {
		backlog = defaultBacklogSize
	}
	if err := s.listen(backlog); err != nil {
		return err
	}
	s.mu.Lock()
	s.listening = true
	s.mu.Unlock()
	return nil
}

// Close releases the underlying file descriptor. It is safe to call more
// than once.
func (s *SystemSocket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	fd := s.fd
	s.mu.Unlock()
	return closeFD(fd)
}
