package tcp

// SocketAddrUse names the operation an address is being validated for, since
// bind and connect apply different rules to the same address shape (a
// connect target may never be the unspecified address or port zero; a bind
// address may).
type SocketAddrUse uint8

const (
	UseBind SocketAddrUse = iota
	UseConnect
)

// Network is the ambient-authority capability consulted before every bind
// and connect. It is the single place a host embedding this package can
// restrict which addresses a guest is permitted to reach; the default
// AllowAllNetwork performs only the address-shape validation every Network
// must perform and otherwise grants everything.
type Network interface {
	CheckSocketAddr(addr IPSocketAddress, use SocketAddrUse) error
}

// AllowAllNetwork is a Network that places no restriction on reachable
// addresses beyond the mandatory unicast/shape validation.
type AllowAllNetwork struct{}

func (AllowAllNetwork) CheckSocketAddr(addr IPSocketAddress, use SocketAddrUse) error {
	if err := validateUnicast(addr.Address); err != nil {
		return err
	}
	if use == UseConnect {
		if err := validateRemoteAddress(addr); err != nil {
			return err
		}
	}
	return nil
}

// validateUnicast rejects multicast and IPv4 limited-broadcast addresses;
// raw and multicast sockets are out of scope for this package entirely.
func validateUnicast(addr IPAddress) error {
	if addr.IsMulticast() {
		return NewError(InvalidArgument)
	}
	if addr.IsBroadcast() {
		return NewError(InvalidArgument)
	}
	return nil
}

// validateRemoteAddress rejects the two shapes that can never be a
// meaningful connect target: the unspecified address (once canonicalized,
// so an IPv4-mapped ::ffff:0.0.0.0 is caught too) and port zero.
func validateRemoteAddress(addr IPSocketAddress) error {
	if addr.Address.ToCanonical().IsUnspecified() {
		return NewError(InvalidArgument)
	}
	if addr.Port == 0 {
		return NewError(InvalidArgument)
	}
	return nil
}

// validateAddressFamily rejects addresses whose family doesn't match the
// socket's, including the two IPv6-only edge cases this package explicitly
// disallows: the deprecated IPv4-compatible form and IPv4-mapped addresses
// (callers operating on an IPv6 socket must use the IPv4 socket instead).
func validateAddressFamily(socketFamily AddressFamily, addr IPAddress) error {
	switch socketFamily {
	case IPv4:
		if addr.Family != IPv4 {
			return NewError(InvalidArgument)
		}
	case IPv6:
		if addr.Family != IPv6 {
			return NewError(InvalidArgument)
		}
		if addr.IsDeprecatedIPv4Compatible() || addr.IsIPv4Mapped() {
			return NewError(InvalidArgument)
		}
	}
	return nil
}
