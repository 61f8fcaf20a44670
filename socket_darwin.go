//go:build darwin

package tcp

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// accept has no accept4(2) equivalent on Darwin, so CLOEXEC and
// non-blocking are applied as separate steps under the fork lock, the same
// sequence the host's own Darwin accept() helper uses to avoid leaking the
// descriptor across a concurrent fork.
func accept(fd, flags int) (int, unix.Sockaddr, error) {
	conn, sa, err := acceptCloseOnExec(fd)
	if err != nil {
		return -1, sa, err
	}
	if flags&unix.O_NONBLOCK != 0 {
		if err := unix.SetNonblock(conn, true); err != nil {
			unix.Close(conn)
			return -1, sa, err
		}
	}
	return conn, sa, nil
}

func acceptCloseOnExec(fd int) (int, unix.Sockaddr, error) {
	syscall.ForkLock.Lock()
	defer syscall.ForkLock.Unlock()
	conn, sa, err := unix.Accept(fd)
	if err != nil {
		return -1, sa, err
	}
	unix.CloseOnExec(conn)
	return conn, sa, nil
}

func platformAcceptError(err error) error { return err }

func platformConnectError(err error) error { return err }

func platformBindError(err error) error   { return err }
func platformListenError(err error) error { return err }

// replayShadowOptions re-applies the options the parent socket had
// explicitly set, since accepted connections on Darwin do not inherit
// socket options from the listening socket the way Linux and Windows do.
// Only explicitly-set values are replayed (never defaults), and hop limit
// is only replayed for IPv6 (IP_TTL is inherited even on Darwin;
// IPV6_UNICAST_HOPS is not).
func replayShadowOptions(parent, child *SystemSocket) {
	parent.mu.Lock()
	recv := parent.shadow.recvBufferSize
	send := parent.shadow.sendBufferSize
	hop := parent.shadow.hopLimit
	idle := parent.shadow.keepAliveIdle
	parent.mu.Unlock()

	if recv != nil {
		_ = child.SetReceiveBufferSize(*recv)
	}
	if send != nil {
		_ = child.SetSendBufferSize(*send)
	}
	if hop != nil && child.family == IPv6 {
		_ = child.SetHopLimit(uint8(*hop))
	}
	if idle != nil {
		_ = child.SetKeepAliveIdleTime(*idle)
	}
}

// normalizeGetBufferSize is the identity on Darwin: the kernel reports
// exactly the value it stores, unlike Linux which doubles it internally.
func normalizeGetBufferSize(v int) int { return v }

// clampBufferSizeForSet is the identity on Darwin too: buffer sizes are
// clamped to [1, i32::MAX] uniformly across platforms (the size<=0 rejection
// happens in SetReceiveBufferSize/SetSendBufferSize), and ENOBUFS is
// swallowed as success by isBufferSizeHint on every unix platform.
func clampBufferSizeForSet(size int32) int32 { return size }

func tcpKeepIdleOption() int  { return unix.TCP_KEEPALIVE }
func tcpKeepIntvlOption() int { return unix.TCP_KEEPINTVL }
func tcpKeepCntOption() int   { return unix.TCP_KEEPCNT }
