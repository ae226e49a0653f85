package pdu

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/usrnet/inetd/inet"
)

// Neighbour advertisement flag bits.
const (
	NDPFlagRouter    = 0x80
	NDPFlagOverride  = 0x40
	NDPFlagSolicited = 0x20
)

// NDP link-layer address option types (RFC 4861 §4.6.1).
const (
	ndpOptSourceLinkLayer = 1
	ndpOptTargetLinkLayer = 2
)

// ndpBodySize is the ICMPv6 header plus the neighbour body: target
// address and one link-layer address option (one eight-octet unit).
const ndpBodySize = EchoHeaderSize + 16 + 8

// NDPPacket is the decoded form of a neighbour solicitation or
// advertisement.
type NDPPacket struct {
	// Op is the ICMPv6 message type.
	Op uint8
	// SenderProto and SenderHW identify the sending node.
	SenderProto netip.Addr
	SenderHW    inet.MAC
	// TargetProto and TargetHW identify the node the message is directed
	// at. When encoding a solicitation, TargetProto is the solicited-node
	// multicast group. DecodeNDP instead sets TargetProto to the target
	// address embedded in the body.
	TargetProto netip.Addr
	TargetHW    inet.MAC
	// SolicitedIP is the address being resolved, read by EncodeNDP for
	// solicitations only. DecodeNDP leaves it unset.
	SolicitedIP netip.Addr
}

// EncodeNDP builds the ICMPv6 datagram for a solicitation or
// advertisement, including the pseudo-header checksum. The returned
// datagram carries the sender and target addresses of the NDP exchange.
func EncodeNDP(ndp *NDPPacket) (*inet.Datagram, error) {
	if !ndp.SenderProto.Is6() || !ndp.TargetProto.Is6() {
		return nil, inet.ErrInvalid
	}

	data := make([]byte, ndpBodySize)
	data[0] = ndp.Op
	// code, checksum and reserved bytes stay zero for now.

	switch ndp.Op {
	case ICMPv6NeighbourSolicit:
		copy(data[8:24], ndp.SolicitedIP.AsSlice())
		data[24] = ndpOptSourceLinkLayer
	case ICMPv6NeighbourAdvert:
		data[4] = NDPFlagOverride | NDPFlagSolicited
		copy(data[8:24], ndp.SenderProto.AsSlice())
		data[24] = ndpOptTargetLinkLayer
	default:
		return nil, fmt.Errorf("%w: NDP opcode %d", inet.ErrInvalid, ndp.Op)
	}
	data[25] = 1 // option length in eight-octet units
	copy(data[26:32], ndp.SenderHW[:])

	cks := PseudoHeaderChecksum(ndp.SenderProto, ndp.TargetProto, len(data))
	binary.BigEndian.PutUint16(data[2:4], inet.Checksum(cks, data))

	return &inet.Datagram{
		Src:  ndp.SenderProto,
		Dest: ndp.TargetProto,
		Data: data,
	}, nil
}

// DecodeNDP parses the NDP body of an ICMPv6 datagram. The sender is
// taken from the datagram source address; the embedded target address and
// link-layer option fill in the rest.
func DecodeNDP(dgram *inet.Datagram) (*NDPPacket, error) {
	if !dgram.Src.Is6() {
		return nil, inet.ErrInvalid
	}
	if len(dgram.Data) < ndpBodySize {
		return nil, fmt.Errorf("%w: short NDP body (%d)", inet.ErrInvalid, len(dgram.Data))
	}

	ndp := &NDPPacket{
		Op:          dgram.Data[0],
		SenderProto: dgram.Src,
		TargetProto: netip.AddrFrom16([16]byte(dgram.Data[8:24])),
	}
	copy(ndp.SenderHW[:], dgram.Data[26:32])

	return ndp, nil
}

// SolicitedNodeIP returns the solicited-node multicast group for an
// address: ff02::1:ff00:0/104 with the low 24 bits of the target.
func SolicitedNodeIP(addr netip.Addr) netip.Addr {
	group := [16]byte{0xff, 0x02, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x01, 0xff, 0, 0, 0}
	a := addr.As16()
	copy(group[13:], a[13:])
	return netip.AddrFrom16(group)
}

// SolicitedNodeMAC returns the ethernet multicast address corresponding
// to a solicited-node group: 33:33 followed by the low 32 bits.
func SolicitedNodeMAC(addr netip.Addr) inet.MAC {
	a := addr.As16()
	return inet.MAC{0x33, 0x33, 0xff, a[13], a[14], a[15]}
}
