package inetsrv

import (
	"net/netip"
	"time"

	"github.com/usrnet/inetd/addrobj"
	"github.com/usrnet/inetd/inet"
	"github.com/usrnet/inetd/metrics"
	"github.com/usrnet/inetd/pdu"
)

// ndpRequestTimeout is how long a translation waits for a neighbour
// advertisement after soliciting.
const ndpRequestTimeout = 3 * time.Second

// ndpSend encodes and transmits one NDP packet over a link.
func (s *Service) ndpSend(l *Link, ndp *pdu.NDPPacket, ldest inet.MAC) error {
	dgram, err := pdu.EncodeNDP(ndp)
	if err != nil {
		return err
	}
	return s.sendDgram6(l, ldest, dgram, pdu.ProtoICMPv6, 255)
}

// translate resolves the MAC address for an on-link IPv6 destination.
// Links without a MAC are loopback or virtual; they get a zero MAC
// immediately. Otherwise a cache miss solicits the neighbour and waits
// up to ndpRequestTimeout for the advertisement.
func (s *Service) translate(src, dest netip.Addr, l *Link) (inet.MAC, error) {
	mac, valid := s.linkMAC(l)
	if !valid {
		return inet.MAC{}, nil
	}

	if found, ok := s.Neighbours.Lookup(dest); ok {
		return found, nil
	}

	sol := &pdu.NDPPacket{
		Op:          pdu.ICMPv6NeighbourSolicit,
		SenderHW:    mac,
		SenderProto: src,
		SolicitedIP: dest,
		TargetProto: pdu.SolicitedNodeIP(dest),
	}
	if err := s.ndpSend(l, sol, pdu.SolicitedNodeMAC(dest)); err != nil {
		return inet.MAC{}, err
	}
	metrics.NDPSolicitations.Inc()

	s.Neighbours.WaitTimeout(ndpRequestTimeout)

	if found, ok := s.Neighbours.Lookup(dest); ok {
		return found, nil
	}
	metrics.NDPTimeouts.Inc()
	return inet.MAC{}, inet.ErrNotFound
}

// ndpReceived handles an incoming neighbour solicitation, advertisement
// or router advertisement.
func (s *Service) ndpReceived(dgram *inet.Datagram) error {
	ndp, err := pdu.DecodeNDP(dgram)
	if err != nil {
		return err
	}

	switch ndp.Op {
	case pdu.ICMPv6NeighbourSolicit:
		laddr, ok := s.Addrs.Find(ndp.TargetProto, addrobj.FindExact)
		if !ok {
			return nil
		}
		s.Neighbours.Add(ndp.SenderProto, ndp.SenderHW)

		l, ok := s.LinkByID(laddr.LinkID)
		if !ok {
			return inet.ErrNotFound
		}
		mac, _ := s.linkMAC(l)
		adv := &pdu.NDPPacket{
			Op:          pdu.ICMPv6NeighbourAdvert,
			SenderHW:    mac,
			SenderProto: ndp.TargetProto,
			TargetHW:    ndp.SenderHW,
			TargetProto: ndp.SenderProto,
		}
		return s.ndpSend(l, adv, ndp.SenderHW)

	case pdu.ICMPv6NeighbourAdvert:
		if _, ok := s.Addrs.Find(dgram.Dest, addrobj.FindExact); !ok {
			return nil
		}
		s.Neighbours.Add(ndp.SenderProto, ndp.SenderHW)
		return nil

	case pdu.ICMPv6RouterAdvertisement:
		// Router discovery is not implemented in this revision.
		return inet.ErrNotSupported
	}
	return inet.ErrNotSupported
}
