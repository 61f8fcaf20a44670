package tcp

import (
	"fmt"
	"net"
)

// AddressFamily identifies whether an address belongs to the IPv4 or IPv6
// address space. Sockets are created against exactly one family and never
// change family over their lifetime.
type AddressFamily uint8

const (
	IPv4 AddressFamily = iota
	IPv6
)

func (f AddressFamily) String() string {
	switch f {
	case IPv4:
		return "ipv4"
	case IPv6:
		return "ipv6"
	default:
		return fmt.Sprintf("AddressFamily(%d)", uint8(f))
	}
}

// IPAddress is a family-tagged IP address. V4 addresses store their four
// bytes in the low end of bytes; V6 addresses use all sixteen.
type IPAddress struct {
	Family AddressFamily
	bytes  [16]byte
}

// IPv4Address constructs an IPv4 address from its four octets.
func IPv4Address(a, b, c, d byte) IPAddress {
	addr := IPAddress{Family: IPv4}
	addr.bytes[0], addr.bytes[1], addr.bytes[2], addr.bytes[3] = a, b, c, d
	return addr
}

// IPv6Address constructs an IPv6 address from its eight 16 bit segments,
// mirroring the wire representation used by the guest-facing API.
func IPv6Address(segments [8]uint16) IPAddress {
	addr := IPAddress{Family: IPv6}
	for i, seg := range segments {
		addr.bytes[i*2] = byte(seg >> 8)
		addr.bytes[i*2+1] = byte(seg)
	}
	return addr
}

// IPAddressFromNetIP converts a net.IP into an IPAddress, preserving whether
// the original value was a 4-byte or 16-byte representation.
func IPAddressFromNetIP(ip net.IP) (IPAddress, bool) {
	if v4 := ip.To4(); v4 != nil && len(ip) == net.IPv4len {
		return IPv4Address(v4[0], v4[1], v4[2], v4[3]), true
	}
	if v6 := ip.To16(); v6 != nil {
		addr := IPAddress{Family: IPv6}
		copy(addr.bytes[:], v6)
		return addr, true
	}
	return IPAddress{}, false
}

var (
	IPv4Unspecified = IPv4Address(0, 0, 0, 0)
	IPv6Unspecified = IPAddress{Family: IPv6}
)

func (a IPAddress) Segments() [8]uint16 {
	var segs [8]uint16
	for i := range segs {
		segs[i] = uint16(a.bytes[i*2])<<8 | uint16(a.bytes[i*2+1])
	}
	return segs
}

func (a IPAddress) Octets() [4]byte {
	return [4]byte{a.bytes[0], a.bytes[1], a.bytes[2], a.bytes[3]}
}

// AsNetIP returns the net.IP representation used to interoperate with the
// standard library and with golang.org/x/sys/unix sockaddr conversions.
func (a IPAddress) AsNetIP() net.IP {
	if a.Family == IPv4 {
		o := a.Octets()
		return net.IPv4(o[0], o[1], o[2], o[3])
	}
	ip := make(net.IP, 16)
	copy(ip, a.bytes[:])
	return ip
}

func (a IPAddress) String() string {
	return a.AsNetIP().String()
}

func (a IPAddress) IsUnspecified() bool {
	return a.AsNetIP().IsUnspecified()
}

func (a IPAddress) IsLoopback() bool {
	return a.AsNetIP().IsLoopback()
}

func (a IPAddress) IsMulticast() bool {
	return a.AsNetIP().IsMulticast()
}

// IsBroadcast reports whether a is the IPv4 limited-broadcast address
// (255.255.255.255); IPv6 has no equivalent concept.
func (a IPAddress) IsBroadcast() bool {
	if a.Family != IPv4 {
		return false
	}
	o := a.Octets()
	return o == [4]byte{255, 255, 255, 255}
}

// IsIPv4Mapped reports whether a is an IPv6 address of the form
// ::ffff:a.b.c.d.
func (a IPAddress) IsIPv4Mapped() bool {
	if a.Family != IPv6 {
		return false
	}
	segs := a.Segments()
	return segs[0] == 0 && segs[1] == 0 && segs[2] == 0 && segs[3] == 0 &&
		segs[4] == 0 && segs[5] == 0xffff
}

// IsDeprecatedIPv4Compatible reports whether a is an IPv6 address of the
// deprecated ::a.b.c.d form (segments 0-5 zero), excluding the unspecified
// and loopback addresses which share that bit pattern.
func (a IPAddress) IsDeprecatedIPv4Compatible() bool {
	if a.Family != IPv6 {
		return false
	}
	segs := a.Segments()
	allZero := segs[0] == 0 && segs[1] == 0 && segs[2] == 0 && segs[3] == 0 && segs[4] == 0 && segs[5] == 0
	if !allZero {
		return false
	}
	if a.IsUnspecified() || a.IsLoopback() {
		return false
	}
	return true
}

// ToCanonical converts an IPv4-mapped IPv6 address to its plain IPv4 form;
// every other address is returned unchanged. Go's net.IP.To4/To16 already
// collapse the representation, but this method makes the conversion
// explicit at the family-tag level the rest of this package relies on.
func (a IPAddress) ToCanonical() IPAddress {
	if a.Family == IPv6 && a.IsIPv4Mapped() {
		return IPv4Address(a.bytes[12], a.bytes[13], a.bytes[14], a.bytes[15])
	}
	return a
}

// IPSocketAddress pairs an IP address with a port number.
type IPSocketAddress struct {
	Address IPAddress
	Port    uint16
}

func (a IPSocketAddress) Family() AddressFamily { return a.Address.Family }

func (a IPSocketAddress) String() string {
	return net.JoinHostPort(a.Address.String(), fmt.Sprint(a.Port))
}
