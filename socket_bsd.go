//go:build freebsd || netbsd || openbsd

package tcp

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// accept follows the same fork-lock-guarded Accept+CloseOnExec sequence as
// Darwin; these BSDs have no accept4(2) portable wrapper in x/sys/unix
// either.
func accept(fd, flags int) (int, unix.Sockaddr, error) {
	syscall.ForkLock.Lock()
	conn, sa, err := unix.Accept(fd)
	syscall.ForkLock.Unlock()
	if err != nil {
		return -1, sa, err
	}
	unix.CloseOnExec(conn)
	if flags&unix.O_NONBLOCK != 0 {
		if err := unix.SetNonblock(conn, true); err != nil {
			unix.Close(conn)
			return -1, sa, err
		}
	}
	return conn, sa, nil
}

func platformAcceptError(err error) error  { return err }
func platformConnectError(err error) error { return err }
func platformBindError(err error) error    { return err }
func platformListenError(err error) error  { return err }

// replayShadowOptions is a no-op: unlike Darwin, the BSDs inherit socket
// options from the listening socket to accepted connections.
func replayShadowOptions(parent, child *SystemSocket) {}

func normalizeGetBufferSize(v int) int       { return v }
func clampBufferSizeForSet(size int32) int32 { return size }

func tcpKeepIdleOption() int  { return unix.TCP_KEEPIDLE }
func tcpKeepIntvlOption() int { return unix.TCP_KEEPINTVL }
func tcpKeepCntOption() int   { return unix.TCP_KEEPCNT }
