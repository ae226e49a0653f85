// Package pdu encodes and decodes the wire form of IPv4 and IPv6 datagrams
// (including per-fragment framing) and the NDP neighbour discovery bodies.
// The codec copies payload bytes but never interprets them.
package pdu

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/usrnet/inetd/inet"
)

// Fragment offsets are expressed in units of 8 bytes in a 13-bit field.
const (
	FragOffsUnit  = 8
	fragOffsLimit = 1 << 13
)

// HeaderSizeV4 is the size of the fixed IPv4 header. No options are
// produced or interpreted.
const HeaderSizeV4 = 20

const (
	flagDF = 1 << 14
	flagMF = 1 << 13
)

// EncodeV4 serializes one IPv4 PDU carrying the fragment of the packet
// payload that starts at byte offset offs and fits within mtu. It returns
// the PDU and the offset of the first payload byte not yet sent; the MF
// flag is set whenever that offset is short of the payload size. The
// packet's Ident must already be allocated by the caller.
func EncodeV4(p *inet.Packet, src, dest netip.Addr, offs, mtu int) ([]byte, int, error) {
	if len(p.Data) > FragOffsUnit*fragOffsLimit || offs >= FragOffsUnit*fragOffsLimit {
		return nil, 0, inet.ErrOverflow
	}
	if offs%FragOffsUnit != 0 {
		return nil, 0, fmt.Errorf("%w: fragment offset %d", inet.ErrInvalid, offs)
	}
	if mtu <= HeaderSizeV4 {
		return nil, 0, inet.ErrInvalid
	}
	if !src.Is4() || !dest.Is4() {
		return nil, 0, inet.ErrInvalid
	}

	// Payload room within the MTU, rounded down to a fragment unit.
	avail := mtu - HeaderSizeV4
	avail -= avail % FragOffsUnit

	xfer := len(p.Data) - offs
	if xfer > avail {
		xfer = avail
	}
	remOffs := offs + xfer

	// Refusing to fragment must not silently truncate the datagram.
	if p.DF && remOffs < len(p.Data) {
		return nil, 0, inet.ErrOverflow
	}

	var flagsFoff uint16 = uint16(offs / FragOffsUnit)
	if p.DF {
		flagsFoff |= flagDF
	}
	if remOffs < len(p.Data) {
		flagsFoff |= flagMF
	}

	data := make([]byte, HeaderSizeV4+xfer)
	data[0] = 4<<4 | HeaderSizeV4/4
	data[1] = p.TOS
	binary.BigEndian.PutUint16(data[2:4], uint16(HeaderSizeV4+xfer))
	binary.BigEndian.PutUint16(data[4:6], p.Ident)
	binary.BigEndian.PutUint16(data[6:8], flagsFoff)
	data[8] = p.TTL
	data[9] = p.Proto
	// data[10:12] is the checksum, computed over the header with the
	// field still zero.
	copy(data[12:16], src.AsSlice())
	copy(data[16:20], dest.AsSlice())

	cks := inet.Checksum(inet.ChecksumInit, data[:HeaderSizeV4])
	binary.BigEndian.PutUint16(data[10:12], cks)

	copy(data[HeaderSizeV4:], p.Data[offs:remOffs])

	return data, remOffs, nil
}

// DecodeV4 parses an IPv4 PDU into a packet. The payload is copied into a
// freshly owned buffer. The link of arrival is recorded in the packet.
func DecodeV4(data []byte, linkID uint64) (*inet.Packet, error) {
	if len(data) < HeaderSizeV4 {
		return nil, fmt.Errorf("%w: short PDU (%d)", inet.ErrInvalid, len(data))
	}
	if data[0]>>4 != 4 {
		return nil, fmt.Errorf("%w: version %d", inet.ErrInvalid, data[0]>>4)
	}

	totLen := int(binary.BigEndian.Uint16(data[2:4]))
	if totLen < HeaderSizeV4 || totLen > len(data) {
		return nil, fmt.Errorf("%w: total length %d", inet.ErrInvalid, totLen)
	}

	hdrSize := int(data[0]&0x0f) * 4
	if hdrSize < HeaderSizeV4 || hdrSize > totLen {
		return nil, fmt.Errorf("%w: header length %d", inet.ErrInvalid, hdrSize)
	}

	flagsFoff := binary.BigEndian.Uint16(data[6:8])

	p := &inet.Packet{
		LinkID:   linkID,
		Src:      netip.AddrFrom4([4]byte(data[12:16])),
		Dest:     netip.AddrFrom4([4]byte(data[16:20])),
		TOS:      data[1],
		Proto:    data[9],
		TTL:      data[8],
		Ident:    binary.BigEndian.Uint16(data[4:6]),
		DF:       flagsFoff&flagDF != 0,
		MF:       flagsFoff&flagMF != 0,
		FragOffs: int(flagsFoff&(fragOffsLimit-1)) * FragOffsUnit,
	}

	p.Data = make([]byte, totLen-hdrSize)
	copy(p.Data, data[hdrSize:totLen])

	return p, nil
}
