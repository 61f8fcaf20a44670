//go:build windows

package tcp

import "syscall"

// platformErrnoToErrorCode has nothing to add beyond the common table: Go's
// windows syscall package already aliases the WinSock error codes to the
// POSIX-style names errnoToErrorCode switches on. The bind/listen/accept
// rewrites the original documents for Windows (ENOBUFS on bind, EMFILE on
// listen, EINPROGRESS after accept) are call-site specific and are applied
// in socket_windows.go before the error ever reaches this table.
func platformErrnoToErrorCode(errno syscall.Errno) (ErrorCode, bool) {
	return Unknown, false
}
