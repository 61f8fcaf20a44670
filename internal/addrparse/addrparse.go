// Package addrparse parses the "tcp://host:port?opt=val" address strings
// the tcpecho demo accepts on its command line into the value types
// tcp.SocketResource operations expect, following the same URL-based address shape the host's
// own socket-creation helper accepts.
package addrparse

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/capnsock/tcp"
)

// Parsed is a fully resolved address plus the query-string options the raw
// address carried (e.g. "?backlog=16").
type Parsed struct {
	Family  tcp.AddressFamily
	Address tcp.IPSocketAddress
	Options url.Values
}

// Parse accepts "host:port", "tcp://host:port", or "tcp6://host:port", with
// an optional "?key=value" query string. A missing scheme defaults to
// "tcp", which takes the first IPv4 address net.LookupIP returns for the
// host and falls back to an IPv6 address only when there is no IPv4 one.
func Parse(raw string) (Parsed, error) {
	if !strings.Contains(raw, "://") {
		raw = "tcp://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Parsed{}, fmt.Errorf("bad address %q: %w", raw, err)
	}

	switch u.Scheme {
	case "tcp", "tcp4", "tcp6":
	default:
		return Parsed{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		return Parsed{}, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Parsed{}, fmt.Errorf("bad port %q: %w", portStr, err)
	}

	ip, family, err := resolveHost(u.Scheme, host)
	if err != nil {
		return Parsed{}, err
	}

	return Parsed{
		Family:  family,
		Address: tcp.IPSocketAddress{Address: ip, Port: uint16(port)},
		Options: u.Query(),
	}, nil
}

func resolveHost(scheme, host string) (tcp.IPAddress, tcp.AddressFamily, error) {
	if host == "" {
		if scheme == "tcp6" {
			return tcp.IPv6Unspecified, tcp.IPv6, nil
		}
		return tcp.IPv4Unspecified, tcp.IPv4, nil
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return tcp.IPAddress{}, 0, err
	}

	wantV6 := scheme == "tcp6"
	for _, candidate := range ips {
		if v4 := candidate.To4(); v4 != nil && !wantV6 {
			addr, _ := tcp.IPAddressFromNetIP(v4)
			return addr, tcp.IPv4, nil
		}
	}
	for _, candidate := range ips {
		if v6 := candidate.To16(); v6 != nil {
			addr, _ := tcp.IPAddressFromNetIP(v6)
			return addr, tcp.IPv6, nil
		}
	}
	return tcp.IPAddress{}, 0, fmt.Errorf("no usable address for host %q", host)
}

// IntOption reads an integer query parameter, falling back to defaultValue
// when absent or unparseable.
func IntOption(opt url.Values, key string, defaultValue int) int {
	values, ok := opt[key]
	if !ok || len(values) == 0 {
		return defaultValue
	}
	n, err := strconv.Atoi(values[0])
	if err != nil {
		return defaultValue
	}
	return n
}
