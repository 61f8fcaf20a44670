//go:build linux

package tcp

import "golang.org/x/sys/unix"

// accept uses accept4(2) to obtain CLOEXEC and O_NONBLOCK atomically,
// avoiding the fork/exec race a plain accept()+fcntl pair would have.
func accept(fd, flags int) (int, unix.Sockaddr, error) {
	return unix.Accept4(fd, flags|unix.O_CLOEXEC)
}

// linuxAcceptErrnoNormalize maps the connection-level errors Linux can
// surface from accept(2) for a connection that failed before the handshake
// completed onto the single ECONNABORTED BSD/Darwin report in that
// situation, so callers see one error regardless of platform.
func linuxAcceptErrnoNormalize(err error) error {
	switch err {
	case unix.ECONNRESET, unix.ENETRESET, unix.EHOSTUNREACH, unix.EHOSTDOWN,
		unix.ENETDOWN, unix.ENETUNREACH, unix.EPROTO, unix.ENOPROTOOPT,
		unix.ENONET, unix.EOPNOTSUPP:
		return unix.ECONNABORTED
	default:
		return err
	}
}

func platformAcceptError(err error) error { return linuxAcceptErrnoNormalize(err) }

func platformConnectError(err error) error { return err }

func platformBindError(err error) error  { return err }
func platformListenError(err error) error { return err }

// replayShadowOptions is a no-op on Linux: accept(2) inherits every socket
// option from the listening socket, so there is nothing to replay.
func replayShadowOptions(parent, child *SystemSocket) {}

// normalizeGetBufferSize halves the value the kernel reports, since Linux
// internally doubles SO_RCVBUF/SO_SNDBUF to make room for bookkeeping; this
// keeps the get/set round trip portable with BSD/Windows semantics where the
// kernel stores exactly the requested value.
func normalizeGetBufferSize(v int) int { return v / 2 }

func clampBufferSizeForSet(size int32) int32 { return size }

func tcpKeepIdleOption() int  { return unix.TCP_KEEPIDLE }
func tcpKeepIntvlOption() int { return unix.TCP_KEEPINTVL }
func tcpKeepCntOption() int   { return unix.TCP_KEEPCNT }
