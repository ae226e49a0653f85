// Package inet contains the address types and packet carriers shared by all
// layers of the service, plus the internet checksum.
package inet

import (
	"errors"
	"fmt"
	"net/netip"
)

// Error kinds used across the service. Ingress decode failures are logged
// and dropped; egress failures are returned to the caller.
var (
	ErrInvalid      = errors.New("malformed input")
	ErrOverflow     = errors.New("value exceeds representable range")
	ErrNoRoute      = errors.New("no route to destination")
	ErrNotFound     = errors.New("not found")
	ErrDuplicate    = errors.New("duplicate name")
	ErrNotSupported = errors.New("not supported")
	ErrNoMemory     = errors.New("out of resources")
	ErrLinkFailure  = errors.New("link failure")
)

// AddrAny is the cleared address value. It is also the IPv4 "any" sentinel.
var AddrAny = netip.AddrFrom4([4]byte{0, 0, 0, 0})

// ParseAddr parses an IPv4 or IPv6 address in the standard textual form.
func ParseAddr(s string) (netip.Addr, error) {
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if a.Is4In6() {
		a = a.Unmap()
	}
	return a, nil
}

// ParseNAddr parses a network address (address/prefix-length). Prefix
// lengths outside 0..32 for IPv4 or 0..128 for IPv6 are rejected.
func ParseNAddr(s string) (netip.Prefix, error) {
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return p, nil
}

// CompareMask reports whether the high prefix-length bits of addr equal the
// corresponding bits of the network address, with matching versions.
func CompareMask(naddr netip.Prefix, addr netip.Addr) bool {
	return naddr.Contains(addr)
}

// MAC is a 48-bit link-layer address. The zero value marks links without
// one (loopback and other virtual links).
type MAC [6]byte

// IsZero reports whether the address is all zeroes.
func (m MAC) IsZero() bool {
	return m == MAC{}
}

func (m MAC) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		m[0], m[1], m[2], m[3], m[4], m[5])
}

// Datagram is the IP-layer payload unit handed across component
// boundaries. Ownership of Data transfers with the datagram.
type Datagram struct {
	// LinkID, when non-zero, pins the datagram to one IP link.
	LinkID uint64
	Src    netip.Addr
	Dest   netip.Addr
	TOS    uint8
	Data   []byte
}

// Packet is a datagram together with its protocol-layer fields, as seen
// between the codec, the router and the reassembler.
type Packet struct {
	LinkID uint64
	Src    netip.Addr
	Dest   netip.Addr
	TOS    uint8
	Proto  uint8
	TTL    uint8
	Ident  uint16
	DF     bool
	MF     bool
	// FragOffs is the fragment offset in bytes, always a multiple of 8.
	FragOffs int
	Data     []byte
}

// Complete reports whether the packet carries a whole datagram, i.e. it is
// not one fragment of a larger one.
func (p *Packet) Complete() bool {
	return p.FragOffs == 0 && !p.MF
}
