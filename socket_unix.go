//go:build !windows

package tcp

import (
	"time"

	"golang.org/x/sys/unix"
)

func newSystemSocket(family AddressFamily) (*SystemSocket, error) {
	domain := unix.AF_INET
	if family == IPv6 {
		domain = unix.AF_INET6
	}
	fd, err := ignoreEINTR2(func() (int, error) {
		return unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	})
	if err != nil {
		return nil, errorFromIOError(err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, errorFromIOError(err)
	}
	unix.CloseOnExec(fd)
	if family == IPv6 {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 1); err != nil {
			unix.Close(fd)
			return nil, errorFromIOError(err)
		}
	}
	return &SystemSocket{fd: fd, family: family}, nil
}

func closeFD(fd int) error {
	if fd < 0 {
		return nil
	}
	return unix.Close(fd)
}

func toSockaddr(addr IPSocketAddress) unix.Sockaddr {
	if addr.Address.Family == IPv4 {
		return &unix.SockaddrInet4{Port: int(addr.Port), Addr: addr.Address.Octets()}
	}
	var a16 [16]byte
	copy(a16[:], addr.Address.AsNetIP().To16())
	return &unix.SockaddrInet6{Port: int(addr.Port), Addr: a16}
}

func fromSockaddr(sa unix.Sockaddr) (IPSocketAddress, bool) {
	switch t := sa.(type) {
	case *unix.SockaddrInet4:
		return IPSocketAddress{Address: IPv4Address(t.Addr[0], t.Addr[1], t.Addr[2], t.Addr[3]), Port: uint16(t.Port)}, true
	case *unix.SockaddrInet6:
		ip, _ := IPAddressFromNetIP(t.Addr[:])
		return IPSocketAddress{Address: ip, Port: uint16(t.Port)}, true
	default:
		return IPSocketAddress{}, false
	}
}

func ignoreEINTR(f func() error) error {
	for {
		if err := f(); err != unix.EINTR {
			return err
		}
	}
}

func ignoreEINTR2[T any](f func() (T, error)) (T, error) {
	for {
		v, err := f()
		if err != unix.EINTR {
			return v, err
		}
	}
}

func (s *SystemSocket) setReuseAddr(enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	err := ignoreEINTR(func() error {
		return unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, v)
	})
	if err != nil {
		return errorFromIOError(err)
	}
	return nil
}

func (s *SystemSocket) bind(addr IPSocketAddress) error {
	err := ignoreEINTR(func() error { return unix.Bind(s.fd, toSockaddr(addr)) })
	if err != nil {
		return errorFromIOError(platformBindError(err))
	}
	return nil
}

func (s *SystemSocket) listen(backlog int) error {
	err := ignoreEINTR(func() error { return unix.Listen(s.fd, backlog) })
	if err != nil {
		return errorFromIOError(platformListenError(err))
	}
	return nil
}

// StartConnect issues a non-blocking connect. A nil return means the
// connection completed synchronously (rare, but possible for loopback);
// a WouldBlock error means the connect is in progress and the caller must
// wait for the socket to become writable before calling FinishConnect.
func (s *SystemSocket) StartConnect(addr IPSocketAddress) error {
	if err := validateAddressFamily(s.family, addr.Address); err != nil {
		return err
	}
	err := ignoreEINTR(func() error { return unix.Connect(s.fd, toSockaddr(addr)) })
	if err == nil {
		return nil
	}
	if err == unix.EINPROGRESS {
		return NewError(WouldBlock)
	}
	return errorFromIOError(platformConnectError(err))
}

// FinishConnect reads SO_ERROR once to resolve a connect that StartConnect
// reported as in progress, exactly as the original resolves EINPROGRESS: a
// single getsockopt call after the writability wait, never a retried loop.
func (s *SystemSocket) FinishConnect() error {
	val, err := ignoreEINTR2(func() (int, error) {
		return unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	})
	if err != nil {
		return errorFromIOError(err)
	}
	if val != 0 {
		return errorFromIOError(unix.Errno(val))
	}
	return nil
}

// Accept returns the next pending connection, or a WouldBlock error if none
// is queued yet.
func (s *SystemSocket) Accept() (*SystemSocket, IPSocketAddress, error) {
	connfd, sa, err := accept(s.fd, unix.O_NONBLOCK)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil, IPSocketAddress{}, NewError(WouldBlock)
		}
		return nil, IPSocketAddress{}, errorFromIOError(platformAcceptError(err))
	}
	peer, ok := fromSockaddr(sa)
	if !ok {
		closeFD(connfd)
		return nil, IPSocketAddress{}, NewError(NotSupported)
	}
	child := &SystemSocket{fd: connfd, family: s.family}
	replayShadowOptions(s, child)
	return child, peer, nil
}

func (s *SystemSocket) Shutdown(how ShutdownType) error {
	var sysHow int
	switch how {
	case ShutdownBoth:
		sysHow = unix.SHUT_RDWR
	case ShutdownReceive:
		sysHow = unix.SHUT_RD
	case ShutdownSend:
		sysHow = unix.SHUT_WR
	default:
		return NewError(InvalidArgument)
	}
	err := ignoreEINTR(func() error { return unix.Shutdown(s.fd, sysHow) })
	if err != nil {
		return errorFromIOError(err)
	}
	return nil
}

func (s *SystemSocket) LocalAddress() (IPSocketAddress, error) {
	sa, err := ignoreEINTR2(func() (unix.Sockaddr, error) { return unix.Getsockname(s.fd) })
	if err != nil {
		return IPSocketAddress{}, errorFromIOError(err)
	}
	addr, ok := fromSockaddr(sa)
	if !ok {
		return IPSocketAddress{}, NewError(NotSupported)
	}
	return addr, nil
}

func (s *SystemSocket) RemoteAddress() (IPSocketAddress, error) {
	sa, err := ignoreEINTR2(func() (unix.Sockaddr, error) { return unix.Getpeername(s.fd) })
	if err != nil {
		return IPSocketAddress{}, errorFromIOError(err)
	}
	addr, ok := fromSockaddr(sa)
	if !ok {
		return IPSocketAddress{}, NewError(NotSupported)
	}
	return addr, nil
}

func (s *SystemSocket) Read(b []byte) (int, error) {
	n, err := unix.Read(s.fd, b)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, NewError(WouldBlock)
		}
		return n, errorFromIOError(err)
	}
	return n, nil
}

func (s *SystemSocket) Write(b []byte) (int, error) {
	n, err := unix.Write(s.fd, b)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, NewError(WouldBlock)
		}
		return n, errorFromIOError(err)
	}
	return n, nil
}

// KeepAliveEnabled / SetKeepAliveEnabled

func (s *SystemSocket) KeepAliveEnabled() (bool, error) {
	v, err := s.getIntOpt(unix.SOL_SOCKET, unix.SO_KEEPALIVE)
	return v != 0, err
}

func (s *SystemSocket) SetKeepAliveEnabled(enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	return s.setIntOpt(unix.SOL_SOCKET, unix.SO_KEEPALIVE, v)
}

// SetKeepAliveIdleTime rejects durations <= 0 and clamps to the platform's
// representable range, matching the original's [1s, i16::MAX seconds] clamp.
func (s *SystemSocket) SetKeepAliveIdleTime(d time.Duration) error {
	if d <= 0 {
		return NewError(InvalidArgument)
	}
	d = clampKeepAliveDuration(d)
	if err := s.setIntOpt(unix.IPPROTO_TCP, tcpKeepIdleOption(), int(d.Seconds())); err != nil {
		return err
	}
	s.shadow.keepAliveIdle = &d
	return nil
}

func (s *SystemSocket) KeepAliveIdleTime() (time.Duration, error) {
	v, err := s.getIntOpt(unix.IPPROTO_TCP, tcpKeepIdleOption())
	return time.Duration(v) * time.Second, err
}

func (s *SystemSocket) SetKeepAliveInterval(d time.Duration) error {
	if d <= 0 {
		return NewError(InvalidArgument)
	}
	d = clampKeepAliveDuration(d)
	return s.setIntOpt(unix.IPPROTO_TCP, tcpKeepIntvlOption(), int(d.Seconds()))
}

func (s *SystemSocket) KeepAliveInterval() (time.Duration, error) {
	v, err := s.getIntOpt(unix.IPPROTO_TCP, tcpKeepIntvlOption())
	return time.Duration(v) * time.Second, err
}

// SetKeepAliveCount rejects 0 and clamps to [1, 127] (i8::MAX in the
// original).
func (s *SystemSocket) SetKeepAliveCount(count uint32) error {
	if count == 0 {
		return NewError(InvalidArgument)
	}
	if count > 127 {
		count = 127
	}
	return s.setIntOpt(unix.IPPROTO_TCP, tcpKeepCntOption(), int(count))
}

func (s *SystemSocket) KeepAliveCount() (uint32, error) {
	v, err := s.getIntOpt(unix.IPPROTO_TCP, tcpKeepCntOption())
	return uint32(v), err
}

// HopLimit/SetHopLimit map to IP_TTL for IPv4 sockets and IPV6_UNICAST_HOPS
// for IPv6 sockets; both reject 0, matching the Non-goal that excludes
// zero-length TTL/hops.
func (s *SystemSocket) SetHopLimit(hops uint8) error {
	if hops == 0 {
		return NewError(InvalidArgument)
	}
	var err error
	if s.family == IPv4 {
		err = s.setIntOpt(unix.IPPROTO_IP, unix.IP_TTL, int(hops))
	} else {
		err = s.setIntOpt(unix.IPPROTO_IPV6, unix.IPV6_UNICAST_HOPS, int(hops))
		if err == nil {
			v := int32(hops)
			s.shadow.hopLimit = &v
		}
	}
	return err
}

func (s *SystemSocket) HopLimit() (uint8, error) {
	var v int
	var err error
	if s.family == IPv4 {
		v, err = s.getIntOpt(unix.IPPROTO_IP, unix.IP_TTL)
	} else {
		v, err = s.getIntOpt(unix.IPPROTO_IPV6, unix.IPV6_UNICAST_HOPS)
	}
	return uint8(v), err
}

// SetReceiveBufferSize/SetSendBufferSize reject negative and zero sizes and
// clamp to int32 range; on platforms where the kernel treats the request as
// a hard requirement rather than a hint, ENOBUFS is swallowed as success.
func (s *SystemSocket) SetReceiveBufferSize(size int32) error {
	if size <= 0 {
		return NewError(InvalidArgument)
	}
	size = clampBufferSizeForSet(size)
	err := s.setIntOpt(unix.SOL_SOCKET, unix.SO_RCVBUF, int(size))
	if err != nil && isBufferSizeHint(err) {
		err = nil
	}
	if err == nil {
		s.shadow.recvBufferSize = &size
	}
	return err
}

func (s *SystemSocket) ReceiveBufferSize() (int32, error) {
	v, err := s.getIntOpt(unix.SOL_SOCKET, unix.SO_RCVBUF)
	return int32(normalizeGetBufferSize(v)), err
}

func (s *SystemSocket) SetSendBufferSize(size int32) error {
	if size <= 0 {
		return NewError(InvalidArgument)
	}
	size = clampBufferSizeForSet(size)
	err := s.setIntOpt(unix.SOL_SOCKET, unix.SO_SNDBUF, int(size))
	if err != nil && isBufferSizeHint(err) {
		err = nil
	}
	if err == nil {
		s.shadow.sendBufferSize = &size
	}
	return err
}

func (s *SystemSocket) SendBufferSize() (int32, error) {
	v, err := s.getIntOpt(unix.SOL_SOCKET, unix.SO_SNDBUF)
	return int32(normalizeGetBufferSize(v)), err
}

func (s *SystemSocket) getIntOpt(level, opt int) (int, error) {
	v, err := ignoreEINTR2(func() (int, error) { return unix.GetsockoptInt(s.fd, level, opt) })
	if err != nil {
		return 0, errorFromIOError(err)
	}
	return v, nil
}

func (s *SystemSocket) setIntOpt(level, opt, value int) error {
	err := ignoreEINTR(func() error { return unix.SetsockoptInt(s.fd, level, opt, value) })
	if err != nil {
		return errorFromIOError(err)
	}
	return nil
}

func clampKeepAliveDuration(d time.Duration) time.Duration {
	const max = time.Duration(1<<15-1) * time.Second
	if d < time.Second {
		return time.Second
	}
	if d > max {
		return max
	}
	return d
}

func isBufferSizeHint(err error) bool {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Code == OutOfMemory
	}
	return false
}
