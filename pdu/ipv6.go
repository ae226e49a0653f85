package pdu

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/usrnet/inetd/inet"
)

// HeaderSizeV6 is the size of the fixed IPv6 header.
const HeaderSizeV6 = 40

// EncodeV6 serializes an IPv6 PDU. Fragment extension headers are not
// produced: the whole payload is emitted as a single datagram, and a
// payload that does not fit within the MTU fails with ErrOverflow.
func EncodeV6(p *inet.Packet, src, dest netip.Addr, offs, mtu int) ([]byte, int, error) {
	if mtu <= HeaderSizeV6 {
		return nil, 0, inet.ErrInvalid
	}
	if !src.Is6() || !dest.Is6() {
		return nil, 0, inet.ErrInvalid
	}
	if offs != 0 || len(p.Data) > mtu-HeaderSizeV6 {
		return nil, 0, inet.ErrOverflow
	}

	data := make([]byte, HeaderSizeV6+len(p.Data))
	data[0] = 6 << 4
	// Traffic class and flow label stay zero.
	binary.BigEndian.PutUint16(data[4:6], uint16(len(p.Data)))
	data[6] = p.Proto
	data[7] = p.TTL
	copy(data[8:24], src.AsSlice())
	copy(data[24:40], dest.AsSlice())
	copy(data[HeaderSizeV6:], p.Data)

	return data, len(p.Data), nil
}

// DecodeV6 parses an IPv6 PDU into a packet. Extension headers are not
// interpreted; the result is always reported as a complete datagram.
func DecodeV6(data []byte, linkID uint64) (*inet.Packet, error) {
	if len(data) < HeaderSizeV6 {
		return nil, fmt.Errorf("%w: short PDU (%d)", inet.ErrInvalid, len(data))
	}
	if data[0]>>4 != 6 {
		return nil, fmt.Errorf("%w: version %d", inet.ErrInvalid, data[0]>>4)
	}

	payloadLen := int(binary.BigEndian.Uint16(data[4:6]))
	if HeaderSizeV6+payloadLen > len(data) {
		return nil, fmt.Errorf("%w: payload length %d", inet.ErrInvalid, payloadLen)
	}

	p := &inet.Packet{
		LinkID: linkID,
		Src:    netip.AddrFrom16([16]byte(data[8:24])),
		Dest:   netip.AddrFrom16([16]byte(data[24:40])),
		Proto:  data[6],
		TTL:    data[7],
	}

	p.Data = make([]byte, payloadLen)
	copy(p.Data, data[HeaderSizeV6:HeaderSizeV6+payloadLen])

	return p, nil
}
