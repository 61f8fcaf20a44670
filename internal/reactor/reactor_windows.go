//go:build windows

package reactor

import "golang.org/x/sys/windows"

// PollNow performs a single zero-timeout readiness check for fd, mirroring
// reactor_unix.go's PollNow via WSAPoll instead of poll(2).
func PollNow(fd int, write bool) (bool, error) {
	events := int16(windows.POLLRDNORM)
	if write {
		events = windows.POLLWRNORM
	}
	pollfds := []windows.WSAPollFd{{Fd: windows.Handle(fd), Events: events}}
	_, err := windows.WSAPoll(pollfds, 0)
	if err != nil && err != windows.WSAEINTR {
		return false, err
	}
	return pollfds[0].REvents != 0, nil
}

// loop mirrors reactor_unix.go's shape using WSAPoll, WinSock's equivalent
// of poll(2). The wake pipe participates as an ordinary readable handle;
// WSAPoll accepts arbitrary HANDLE-backed descriptors for this purpose on
// recent Windows versions the same way poll(2) does on unix.
func (r *Reactor) loop() error {
	wakeBuf := make([]byte, 64)
	for {
		active, closed := r.snapshot()
		if closed {
			return nil
		}

		pollfds := make([]windows.WSAPollFd, 0, len(active)+1)
		pollfds = append(pollfds, windows.WSAPollFd{Fd: windows.Handle(r.wakeR.Fd()), Events: windows.POLLRDNORM})
		for _, w := range active {
			events := int16(windows.POLLRDNORM)
			if w.write {
				events = windows.POLLWRNORM
			}
			pollfds = append(pollfds, windows.WSAPollFd{Fd: windows.Handle(w.fd), Events: events})
		}

		_, err := windows.WSAPoll(pollfds, -1)
		if err != nil && err != windows.WSAEINTR {
			return err
		}

		if pollfds[0].REvents != 0 {
			_, _ = r.wakeR.Read(wakeBuf)
		}

		for i, w := range active {
			if pollfds[i+1].REvents != 0 {
				r.complete(w, nil)
			}
		}
	}
}
