package inetsrv

import (
	"encoding/binary"

	"github.com/usrnet/inetd/inet"
	"github.com/usrnet/inetd/metrics"
	"github.com/usrnet/inetd/pdu"
)

// icmpv6Recv handles an incoming ICMPv6 datagram. Echo traffic is served
// here; neighbour discovery types hand off to the NDP handler.
func (s *Service) icmpv6Recv(dgram *inet.Datagram) error {
	if len(dgram.Data) < 1 {
		return inet.ErrInvalid
	}

	switch dgram.Data[0] {
	case pdu.ICMPv6EchoRequest:
		return s.icmpv6RecvEchoRequest(dgram)
	case pdu.ICMPv6EchoReply:
		return s.icmpv6RecvEchoReply(dgram)
	case pdu.ICMPv6NeighbourSolicit,
		pdu.ICMPv6NeighbourAdvert,
		pdu.ICMPv6RouterAdvertisement:
		return s.ndpReceived(dgram)
	}
	return inet.ErrInvalid
}

func (s *Service) icmpv6RecvEchoRequest(dgram *inet.Datagram) error {
	if len(dgram.Data) < pdu.EchoHeaderSize {
		return inet.ErrInvalid
	}
	if !dgram.Src.Is6() || !dgram.Dest.Is6() {
		return inet.ErrInvalid
	}
	metrics.EchoRequests.WithLabelValues("6").Inc()

	src, err := s.GetSrcAddr(dgram.Src, 0)
	if err != nil {
		return err
	}

	reply := make([]byte, len(dgram.Data))
	copy(reply, dgram.Data)
	reply[0] = pdu.ICMPv6EchoReply
	reply[1] = 0
	reply[2] = 0
	reply[3] = 0
	cks := pdu.PseudoHeaderChecksum(src, dgram.Src, len(reply))
	binary.BigEndian.PutUint16(reply[2:4], inet.Checksum(cks, reply))

	rdgram := &inet.Datagram{
		Src:  src,
		Dest: dgram.Src,
		Data: reply,
	}
	return s.Route(rdgram, pdu.ProtoICMPv6, icmpTTL, false)
}

func (s *Service) icmpv6RecvEchoReply(dgram *inet.Datagram) error {
	if len(dgram.Data) < pdu.EchoHeaderSize {
		return inet.ErrInvalid
	}

	ident := binary.BigEndian.Uint16(dgram.Data[4:6])
	sdu := &PingSDU{
		SeqNo: binary.BigEndian.Uint16(dgram.Data[6:8]),
		Src:   dgram.Src,
		Dest:  dgram.Dest,
		Data:  dgram.Data[pdu.EchoHeaderSize:],
	}
	return s.pingRecv(ident, sdu)
}

// icmpv6PingSend builds and routes one echo request for a ping session.
func (s *Service) icmpv6PingSend(ident uint16, sdu *PingSDU) error {
	if !sdu.Src.Is6() || !sdu.Dest.Is6() {
		return inet.ErrInvalid
	}

	data := make([]byte, pdu.EchoHeaderSize+len(sdu.Data))
	data[0] = pdu.ICMPv6EchoRequest
	binary.BigEndian.PutUint16(data[4:6], ident)
	binary.BigEndian.PutUint16(data[6:8], sdu.SeqNo)
	copy(data[pdu.EchoHeaderSize:], sdu.Data)
	cks := pdu.PseudoHeaderChecksum(sdu.Src, sdu.Dest, len(data))
	binary.BigEndian.PutUint16(data[2:4], inet.Checksum(cks, data))

	dgram := &inet.Datagram{
		Src:  sdu.Src,
		Dest: sdu.Dest,
		Data: data,
	}
	return s.Route(dgram, pdu.ProtoICMPv6, icmpTTL, false)
}
