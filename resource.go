package tcp

import (
	"context"
	"fmt"
	"sync"

	"github.com/capnsock/tcp/internal/reactor"
)

// State is a node in the socket resource's lifecycle DAG (C4, spec §4.2).
// No transition ever skips a state.
type State uint8

const (
	Default State = iota
	BindStarted
	Bound
	ListenStarted
	Listening
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Default:
		return "default"
	case BindStarted:
		return "bind-started"
	case Bound:
		return "bound"
	case ListenStarted:
		return "listen-started"
	case Listening:
		return "listening"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// SocketResource is the guest-facing TCP socket handle (C4): it owns one
// SystemSocket for its entire lifetime, enforces the state machine in
// spec §4.2, and - once Connected - shares the underlying handle with the
// Reader/Writer pair it produced.
type SocketResource struct {
	mu      sync.Mutex
	state   State
	socket  *SystemSocket
	handle  *sharedHandle
	network Network
	reactor *reactor.Reactor
	family  AddressFamily
	backlog int32
	reader  *Reader
	writer  *Writer
}

// CreateSocket allocates a new, unbound socket in the given family. network
// is consulted before every bind/connect; a nil network defaults to
// AllowAllNetwork.
func CreateSocket(family AddressFamily, network Network, rtr *reactor.Reactor) (*SocketResource, error) {
	if network == nil {
		network = AllowAllNetwork{}
	}
	sys, err := newSystemSocket(family)
	if err != nil {
		return nil, err
	}
	return &SocketResource{
		state:   Default,
		socket:  sys,
		network: network,
		reactor: rtr,
		family:  family,
		backlog: defaultBacklogSize,
	}, nil
}

// currentSocket returns the socket backing this resource, routed through
// the shared handle once one exists (post-connect/accept) so that every
// accessor observes the same descriptor the Reader/Writer pair uses.
func (r *SocketResource) currentSocket() *SystemSocket {
	if r.handle != nil {
		return r.handle.socket
	}
	return r.socket
}

// StartBind issues the actual bind(2) call - bind never blocks, so there is
// no asynchronous work left for FinishBind beyond the state transition, but
// the split is kept to match the guest-facing two-call protocol uniformly
// across every "start_*" operation.
func (r *SocketResource) StartBind(addr IPSocketAddress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case Default:
	case BindStarted:
		return NewError(ConcurrencyConflict)
	default:
		return NewError(InvalidState)
	}
	if err := r.network.CheckSocketAddr(addr, UseBind); err != nil {
		return err
	}
	if err := r.socket.Bind(addr); err != nil {
		return err
	}
	r.state = BindStarted
	return nil
}

func (r *SocketResource) FinishBind() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != BindStarted {
		return NewError(NotInProgress)
	}
	r.state = Bound
	return nil
}

// StartListen applies the socket's current backlog and performs the actual
// listen(2) call immediately, for the same reason StartBind does: listen
// never blocks.
func (r *SocketResource) StartListen() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case Bound:
	case BindStarted, Connecting:
		return NewError(ConcurrencyConflict)
	default:
		return NewError(InvalidState)
	}
	if err := r.socket.Listen(int(r.backlog)); err != nil {
		return err
	}
	r.state = ListenStarted
	return nil
}

func (r *SocketResource) FinishListen() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != ListenStarted {
		return NewError(NotInProgress)
	}
	r.state = Listening
	return nil
}

// StartConnect validates the target address and issues a non-blocking
// connect(2). A connection that completes synchronously (observed on some
// platforms for loopback targets) and one that reports EINPROGRESS are
// treated identically here: both move to Connecting, and FinishConnect
// resolves either case uniformly by reading SO_ERROR once readiness has
// been observed.
func (r *SocketResource) StartConnect(addr IPSocketAddress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case Default:
	case Connecting:
		return NewError(ConcurrencyConflict)
	default:
		return NewError(InvalidState)
	}
	if err := r.network.CheckSocketAddr(addr, UseConnect); err != nil {
		return err
	}
	err := r.socket.StartConnect(addr)
	if err != nil && !isWouldBlock(err) {
		return err
	}
	r.state = Connecting
	return nil
}

// FinishConnect checks writability with a single non-blocking poll before
// touching SO_ERROR, so that calling it before the guest has actually
// waited on Subscribe().Ready() reports WouldBlock instead of a false
// success - the getsockopt read itself is cheap to issue at any time, but
// its result is only meaningful once the connect attempt has resolved one
// way or the other.
func (r *SocketResource) FinishConnect() (*Reader, *Writer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Connecting {
		return nil, nil, NewError(NotInProgress)
	}

	ready, err := reactor.PollNow(r.socket.Fd(), true)
	if err != nil {
		return nil, nil, errorFromIOError(err)
	}
	if !ready {
		return nil, nil, NewError(WouldBlock)
	}

	if err := r.socket.FinishConnect(); err != nil {
		r.state = Default
		return nil, nil, err
	}

	r.handle = newSharedHandle(r.socket)
	r.reader = newReader(r.handle, r.reactor)
	r.writer = newWriter(r.handle, r.reactor)
	r.state = Connected
	return r.reader, r.writer, nil
}

// Accept opportunistically returns the next pending connection. A listening
// socket with nothing queued reports WouldBlock without changing state;
// spec §9's pending_result pre-fetch optimization is not implemented, since
// SystemSocket.Accept is already a cheap non-blocking syscall and nothing
// in this module calls Accept from a hot path that would benefit from
// caching one connection ahead.
func (r *SocketResource) Accept() (child *SocketResource, reader *Reader, writer *Writer, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Listening {
		return nil, nil, nil, NewError(InvalidState)
	}
	childSocket, _, err := r.socket.Accept()
	if err != nil {
		return nil, nil, nil, err
	}
	childRes := &SocketResource{
		state:   Connected,
		socket:  childSocket,
		network: r.network,
		reactor: r.reactor,
		family:  childSocket.Family(),
		backlog: defaultBacklogSize,
	}
	childRes.handle = newSharedHandle(childSocket)
	childRes.reader = newReader(childRes.handle, r.reactor)
	childRes.writer = newWriter(childRes.handle, r.reactor)
	return childRes, childRes.reader, childRes.writer, nil
}

func (r *SocketResource) LocalAddress() (IPSocketAddress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentSocket().LocalAddress()
}

func (r *SocketResource) RemoteAddress() (IPSocketAddress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentSocket().RemoteAddress()
}

func (r *SocketResource) IsListening() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == Listening
}

func (r *SocketResource) AddressFamily() AddressFamily {
	return r.family
}

// ListenBacklogSize returns the stored backlog value.
func (r *SocketResource) ListenBacklogSize() int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backlog
}

// SetListenBacklogSize rejects zero and negative sizes (InvalidArgument, per
// §8's testable property) and otherwise always stores the requested value,
// even if the socket is already listening and the attempt to re-apply it
// below fails. This mirrors the original's documented-if-surprising
// behavior: the error from a failed re-listen is reported as NotSupported,
// but the stored backlog is not rolled back, so a later ListenBacklogSize
// call observes the new value regardless.
func (r *SocketResource) SetListenBacklogSize(size int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if size <= 0 {
		return NewError(InvalidArgument)
	}
	r.backlog = size
	if r.state == Listening {
		if err := r.currentSocket().listen(int(size)); err != nil {
			return NewError(NotSupported)
		}
	}
	return nil
}

func (r *SocketResource) KeepAliveEnabled() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentSocket().KeepAliveEnabled()
}

func (r *SocketResource) SetKeepAliveEnabled(enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentSocket().SetKeepAliveEnabled(enabled)
}

func (r *SocketResource) KeepAliveIdleTime() (Nanoseconds, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, err := r.currentSocket().KeepAliveIdleTime()
	return durationToNanoseconds(d), err
}

func (r *SocketResource) SetKeepAliveIdleTime(ns Nanoseconds) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ns == 0 {
		return NewError(InvalidArgument)
	}
	return r.currentSocket().SetKeepAliveIdleTime(nanosecondsToDuration(ns))
}

func (r *SocketResource) KeepAliveInterval() (Nanoseconds, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, err := r.currentSocket().KeepAliveInterval()
	return durationToNanoseconds(d), err
}

func (r *SocketResource) SetKeepAliveInterval(ns Nanoseconds) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ns == 0 {
		return NewError(InvalidArgument)
	}
	return r.currentSocket().SetKeepAliveInterval(nanosecondsToDuration(ns))
}

func (r *SocketResource) KeepAliveCount() (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentSocket().KeepAliveCount()
}

func (r *SocketResource) SetKeepAliveCount(count uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if count == 0 {
		return NewError(InvalidArgument)
	}
	return r.currentSocket().SetKeepAliveCount(count)
}

func (r *SocketResource) HopLimit() (uint8, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentSocket().HopLimit()
}

func (r *SocketResource) SetHopLimit(hops uint8) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentSocket().SetHopLimit(hops)
}

func (r *SocketResource) ReceiveBufferSize() (int32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentSocket().ReceiveBufferSize()
}

func (r *SocketResource) SetReceiveBufferSize(size int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentSocket().SetReceiveBufferSize(size)
}

func (r *SocketResource) SendBufferSize() (int32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentSocket().SendBufferSize()
}

func (r *SocketResource) SetSendBufferSize(size int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentSocket().SetSendBufferSize(size)
}

// Shutdown is only valid from Connected; it leaves the resource in
// Connected afterward since shutdown is a one-way restriction on the
// socket's directions, not a resource-level transition.
func (r *SocketResource) Shutdown(how ShutdownType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case Connected:
	case Connecting:
		return NewError(ConcurrencyConflict)
	default:
		return NewError(InvalidState)
	}
	return r.currentSocket().Shutdown(how)
}

// Subscribe returns a Pollable that suspends while Connecting (until the
// connect attempt resolves) or while Listening (until a connection is
// queued); every other state is immediately ready, matching spec §5's
// suspension-point description exactly.
func (r *SocketResource) Subscribe() Pollable {
	return &subscription{resource: r}
}

type subscription struct {
	resource *SocketResource
}

func (s *subscription) Ready(ctx context.Context) error {
	r := s.resource
	r.mu.Lock()
	state := r.state
	var fd int
	if state == Connecting || state == Listening {
		fd = r.currentSocket().Fd()
	}
	r.mu.Unlock()

	switch state {
	case Connecting:
		return r.reactor.WaitWritable(ctx, fd)
	case Listening:
		return r.reactor.WaitReadable(ctx, fd)
	default:
		return nil
	}
}

// Drop releases the resource's share of the underlying handle. Before a
// successful connect/accept this is the resource's only share and Drop
// closes the descriptor outright; afterward it releases one of three
// shares and the descriptor survives until the Reader and Writer are also
// dropped.
func (r *SocketResource) Drop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handle != nil {
		return r.handle.release()
	}
	return r.socket.Close()
}
