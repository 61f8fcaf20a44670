package tcp

import (
	"context"
	"errors"
	"syscall"
	"testing"
)

func TestErrorCodeString(t *testing.T) {
	for code := Unknown; code <= DatagramTooLarge; code++ {
		if s := code.String(); s == "" {
			t.Errorf("ErrorCode(%d) has no string representation", code)
		}
	}
}

func TestErrorFromIOError(t *testing.T) {
	tests := []struct {
		err  error
		code ErrorCode
	}{
		{nil, Unknown}, // only code checked when err != nil below
		{syscall.ECONNREFUSED, ConnectionRefused},
		{syscall.ECONNRESET, ConnectionReset},
		{syscall.EADDRINUSE, AddressInUse},
		{syscall.EADDRNOTAVAIL, AddressNotBindable},
		{syscall.EAGAIN, WouldBlock},
		{syscall.EINVAL, InvalidArgument},
		{syscall.EMFILE, NewSocketLimit},
		{context.Canceled, Timeout},
		{context.DeadlineExceeded, Timeout},
	}
	for _, test := range tests {
		if test.err == nil {
			continue
		}
		got := errorFromIOError(test.err)
		if got.Code != test.code {
			t.Errorf("errorFromIOError(%v) = %v, want %v", test.err, got.Code, test.code)
		}
	}
}

func TestErrorFromIOErrorUnknownFallsThrough(t *testing.T) {
	err := errorFromIOError(errors.New("some unrecognized condition"))
	if err.Code != Unknown {
		t.Errorf("expected Unknown, got %v", err.Code)
	}
}

func TestErrorIs(t *testing.T) {
	err := NewError(WouldBlock)
	if !errors.Is(err, WouldBlock) {
		t.Errorf("expected errors.Is(err, WouldBlock) to hold")
	}
	if errors.Is(err, Timeout) {
		t.Errorf("expected errors.Is(err, Timeout) to be false")
	}
}
