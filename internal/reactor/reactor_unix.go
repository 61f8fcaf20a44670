//go:build !windows

package reactor

import "golang.org/x/sys/unix"

// PollNow performs a single zero-timeout readiness check for fd without
// registering a waiter on the background loop - used by finish_connect to
// distinguish "still in progress" from "resolved" without blocking, the
// same one-shot poll the host's connect_non_blocking helper issues before
// reading SO_ERROR.
func PollNow(fd int, write bool) (bool, error) {
	events := int16(unix.POLLIN)
	if write {
		events = unix.POLLOUT
	}
	pollfds := []unix.PollFd{{Fd: int32(fd), Events: events}}
	_, err := unix.Poll(pollfds, 0)
	if err != nil && err != unix.EINTR {
		return false, err
	}
	return pollfds[0].Revents != 0, nil
}

// loop runs on its own goroutine (managed by the errgroup started in New)
// for the lifetime of the Reactor, rebuilding the pollfd set from the
// currently registered waiters on every iteration - the same
// iterate-then-poll-then-iterate-results shape the host's own poll_oneoff
// loop uses, just with a dynamic rather than fixed subscription set.
func (r *Reactor) loop() error {
	wakeBuf := make([]byte, 64)
	for {
		active, closed := r.snapshot()
		if closed {
			return nil
		}

		pollfds := make([]unix.PollFd, 0, len(active)+1)
		pollfds = append(pollfds, unix.PollFd{Fd: int32(r.wakeR.Fd()), Events: unix.POLLIN})
		for _, w := range active {
			events := int16(unix.POLLIN)
			if w.write {
				events = unix.POLLOUT
			}
			pollfds = append(pollfds, unix.PollFd{Fd: int32(w.fd), Events: events})
		}

		_, err := unix.Poll(pollfds, -1)
		if err != nil && err != unix.EINTR {
			return err
		}

		if pollfds[0].Revents != 0 {
			_, _ = r.wakeR.Read(wakeBuf)
		}

		for i, w := range active {
			if pollfds[i+1].Revents != 0 {
				r.complete(w, nil)
			}
		}
	}
}
