package pdu

import (
	"encoding/binary"
	"net/netip"

	"github.com/usrnet/inetd/inet"
)

// IP protocol numbers handled internally by the service.
const (
	ProtoICMP   = 1
	ProtoICMPv6 = 58
)

// ICMP message types (RFC 792).
const (
	ICMPEchoReply   = 0
	ICMPEchoRequest = 8
)

// ICMPv6 message types (RFC 4443 / RFC 4861).
const (
	ICMPv6EchoRequest         = 128
	ICMPv6EchoReply           = 129
	ICMPv6RouterSolicitation  = 133
	ICMPv6RouterAdvertisement = 134
	ICMPv6NeighbourSolicit    = 135
	ICMPv6NeighbourAdvert     = 136
)

// EchoHeaderSize is the size of the ICMP/ICMPv6 echo message header, which
// have identical layouts apart from the type values.
const EchoHeaderSize = 8

// PseudoHeaderChecksum folds the ICMPv6 pseudo-header (RFC 8200 §8.1) for
// a body of the given length into a fresh checksum state. The body is then
// chained onto the returned state.
func PseudoHeaderChecksum(src, dest netip.Addr, length int) uint16 {
	var phdr [40]byte
	copy(phdr[0:16], src.AsSlice())
	copy(phdr[16:32], dest.AsSlice())
	binary.BigEndian.PutUint32(phdr[32:36], uint32(length))
	phdr[39] = ProtoICMPv6
	return inet.Checksum(inet.ChecksumInit, phdr[:])
}
