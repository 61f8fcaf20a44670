package tcp

import (
	"context"
	"testing"
	"time"

	"github.com/capnsock/tcp/internal/reactor"
)

func newTestResource(t *testing.T, family AddressFamily) (*SocketResource, *reactor.Reactor) {
	t.Helper()
	rtr, err := reactor.New()
	if err != nil {
		t.Fatalf("reactor.New: %v", err)
	}
	t.Cleanup(func() { rtr.Close() })
	res, err := CreateSocket(family, AllowAllNetwork{}, rtr)
	if err != nil {
		t.Fatalf("CreateSocket: %v", err)
	}
	return res, rtr
}

func TestStartBindConcurrencyConflict(t *testing.T) {
	res, _ := newTestResource(t, IPv4)
	addr := IPSocketAddress{Address: IPv4Address(127, 0, 0, 1), Port: 0}
	if err := res.StartBind(addr); err != nil {
		t.Fatalf("first start_bind: %v", err)
	}
	err := res.StartBind(addr)
	if !isCode(err, ConcurrencyConflict) {
		t.Fatalf("second start_bind = %v, want ConcurrencyConflict", err)
	}
}

func TestFinishBindWithoutStartIsNotInProgress(t *testing.T) {
	res, _ := newTestResource(t, IPv4)
	err := res.FinishBind()
	if !isCode(err, NotInProgress) {
		t.Fatalf("finish_bind = %v, want NotInProgress", err)
	}
}

func TestDoubleFinishBindSecondIsNotInProgress(t *testing.T) {
	res, _ := newTestResource(t, IPv4)
	addr := IPSocketAddress{Address: IPv4Address(127, 0, 0, 1), Port: 0}
	if err := res.StartBind(addr); err != nil {
		t.Fatalf("start_bind: %v", err)
	}
	if err := res.FinishBind(); err != nil {
		t.Fatalf("first finish_bind: %v", err)
	}
	err := res.FinishBind()
	if !isCode(err, NotInProgress) {
		t.Fatalf("second finish_bind = %v, want NotInProgress", err)
	}
}

func TestStartConnectZeroPortRejected(t *testing.T) {
	res, _ := newTestResource(t, IPv4)
	addr := IPSocketAddress{Address: IPv4Address(10, 0, 0, 1), Port: 0}
	err := res.StartConnect(addr)
	if !isCode(err, InvalidArgument) {
		t.Fatalf("start_connect port 0 = %v, want InvalidArgument", err)
	}
	res.mu.Lock()
	state := res.state
	res.mu.Unlock()
	if state != Default {
		t.Fatalf("state mutated on rejected start_connect: %v", state)
	}
}

func TestStartBindFamilyMismatch(t *testing.T) {
	res, _ := newTestResource(t, IPv4)
	addr := IPSocketAddress{Address: IPv6Unspecified, Port: 80}
	err := res.StartBind(addr)
	if !isCode(err, InvalidArgument) {
		t.Fatalf("start_bind family mismatch = %v, want InvalidArgument", err)
	}
}

func TestFinishConnectNotInProgress(t *testing.T) {
	res, _ := newTestResource(t, IPv4)
	_, _, err := res.FinishConnect()
	if !isCode(err, NotInProgress) {
		t.Fatalf("finish_connect in Default = %v, want NotInProgress", err)
	}
}

func TestSetHopLimitZeroRejected(t *testing.T) {
	res, _ := newTestResource(t, IPv4)
	if err := res.SetHopLimit(64); err != nil {
		t.Fatalf("set_hop_limit(64): %v", err)
	}
	if err := res.SetHopLimit(0); !isCode(err, InvalidArgument) {
		t.Fatalf("set_hop_limit(0) = %v, want InvalidArgument", err)
	}
	got, err := res.HopLimit()
	if err != nil {
		t.Fatalf("hop_limit: %v", err)
	}
	if got != 64 {
		t.Fatalf("hop_limit = %d, want 64 (rejected setter must not mutate)", got)
	}
}

func TestSetListenBacklogSizeZeroRejected(t *testing.T) {
	res, _ := newTestResource(t, IPv4)
	if err := res.SetListenBacklogSize(0); !isCode(err, InvalidArgument) {
		t.Fatalf("set_listen_backlog_size(0) = %v, want InvalidArgument", err)
	}
}

// TestLoopbackEcho exercises the full state machine end to end against real
// loopback sockets, following spec §8 scenario 1.
func TestLoopbackEcho(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	listener, rtr := newTestResource(t, IPv4)
	bindAddr := IPSocketAddress{Address: IPv4Address(127, 0, 0, 1), Port: 0}
	if err := listener.StartBind(bindAddr); err != nil {
		t.Fatalf("listener start_bind: %v", err)
	}
	if err := listener.FinishBind(); err != nil {
		t.Fatalf("listener finish_bind: %v", err)
	}
	if err := listener.StartListen(); err != nil {
		t.Fatalf("listener start_listen: %v", err)
	}
	if err := listener.FinishListen(); err != nil {
		t.Fatalf("listener finish_listen: %v", err)
	}

	local, err := listener.LocalAddress()
	if err != nil {
		t.Fatalf("local_address: %v", err)
	}

	client, err := CreateSocket(IPv4, AllowAllNetwork{}, rtr)
	if err != nil {
		t.Fatalf("CreateSocket client: %v", err)
	}
	if err := client.StartConnect(local); err != nil {
		t.Fatalf("client start_connect: %v", err)
	}
	if err := client.Subscribe().Ready(ctx); err != nil {
		t.Fatalf("client subscribe ready: %v", err)
	}
	clientReader, clientWriter, err := client.FinishConnect()
	if err != nil {
		t.Fatalf("client finish_connect: %v", err)
	}

	if err := listener.Subscribe().Ready(ctx); err != nil {
		t.Fatalf("listener subscribe ready: %v", err)
	}
	_, serverReader, serverWriter, err := listener.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}

	if _, err := clientWriter.Write(ctx, []byte("ping")); err != nil {
		t.Fatalf("client write: %v", err)
	}
	buf := make([]byte, 4)
	if _, err := serverReader.Read(ctx, buf); err != nil {
		t.Fatalf("server read: %v", err)
	}
	if string(buf) != "ping" {
		t.Fatalf("server read = %q, want ping", buf)
	}

	if _, err := serverWriter.Write(ctx, []byte("pong")); err != nil {
		t.Fatalf("server write: %v", err)
	}
	pongBuf := make([]byte, 4)
	if _, err := clientReader.Read(ctx, pongBuf); err != nil {
		t.Fatalf("client read: %v", err)
	}
	if string(pongBuf) != "pong" {
		t.Fatalf("client read = %q, want pong", pongBuf)
	}
}

func isCode(err error, code ErrorCode) bool {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Code == code
	}
	return false
}
