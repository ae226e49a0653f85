package inetsrv

import (
	"encoding/binary"
	"fmt"

	"github.com/usrnet/inetd/inet"
	"github.com/usrnet/inetd/metrics"
	"github.com/usrnet/inetd/pdu"
)

const icmpTTL = 255

// icmpRecv handles an incoming ICMP datagram: echo requests turn into
// replies, echo replies go to the owning ping session, anything else is
// rejected.
func (s *Service) icmpRecv(dgram *inet.Datagram) error {
	if len(dgram.Data) < 1 {
		return inet.ErrInvalid
	}

	switch dgram.Data[0] {
	case pdu.ICMPEchoRequest:
		return s.icmpRecvEchoRequest(dgram)
	case pdu.ICMPEchoReply:
		return s.icmpRecvEchoReply(dgram)
	}
	return inet.ErrInvalid
}

func (s *Service) icmpRecvEchoRequest(dgram *inet.Datagram) error {
	if len(dgram.Data) < pdu.EchoHeaderSize {
		return inet.ErrInvalid
	}
	metrics.EchoRequests.WithLabelValues("4").Inc()

	reply := make([]byte, len(dgram.Data))
	copy(reply, dgram.Data)
	reply[0] = pdu.ICMPEchoReply
	reply[1] = 0
	reply[2] = 0
	reply[3] = 0
	binary.BigEndian.PutUint16(reply[2:4], inet.Checksum(inet.ChecksumInit, reply))

	rdgram := &inet.Datagram{
		Src:  dgram.Dest,
		Dest: dgram.Src,
		Data: reply,
	}
	return s.Route(rdgram, pdu.ProtoICMP, icmpTTL, false)
}

func (s *Service) icmpRecvEchoReply(dgram *inet.Datagram) error {
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

// icmpPingSend builds and routes one echo request for a ping session.
func (s *Service) icmpPingSend(ident uint16, sdu *PingSDU) error {
	data := make([]byte, pdu.EchoHeaderSize+len(sdu.Data))
	data[0] = pdu.ICMPEchoRequest
	binary.BigEndian.PutUint16(data[4:6], ident)
	binary.BigEndian.PutUint16(data[6:8], sdu.SeqNo)
	copy(data[pdu.EchoHeaderSize:], sdu.Data)
	binary.BigEndian.PutUint16(data[2:4], inet.Checksum(inet.ChecksumInit, data))

	dgram := &inet.Datagram{
		Src:  sdu.Src,
		Dest: sdu.Dest,
		Data: data,
	}
	if err := s.Route(dgram, pdu.ProtoICMP, icmpTTL, false); err != nil {
		return fmt.Errorf("sending echo request: %w", err)
	}
	return nil
}
