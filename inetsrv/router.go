package inetsrv

import (
	"log"
	"net/netip"

	"github.com/usrnet/inetd/addrobj"
	"github.com/usrnet/inetd/inet"
	"github.com/usrnet/inetd/metrics"
)

var (
	broadcast4AllHosts = netip.AddrFrom4([4]byte{255, 255, 255, 255})
	multicastAllNodes  = netip.MustParseAddr("ff02::1")
	solicitedNodeMask  = netip.MustParsePrefix("ff02::1:ff00:0/104")
)

// direction is the result of routing a destination: either a directly
// reachable address object, or one reached via a static route's router.
type direction struct {
	aobj addrobj.AddrObj
	// ldest is the local next hop: the destination itself when direct,
	// the router's address otherwise.
	ldest netip.Addr
}

func (s *Service) findDir(dest netip.Addr) (direction, error) {
	if aobj, ok := s.Addrs.Find(dest, addrobj.FindNet); ok {
		return direction{aobj: aobj, ldest: dest}, nil
	}

	// No direct path; try a static route.
	if sr, ok := s.Routes.Find(dest); ok {
		if aobj, ok := s.Addrs.Find(sr.Router, addrobj.FindNet); ok {
			return direction{aobj: aobj, ldest: sr.Router}, nil
		}
	}

	log.Println("no route to", dest)
	return direction{}, inet.ErrNoRoute
}

// Route resolves the egress link for a datagram and sends it, fragmenting
// as needed. A non-zero LinkID in the datagram bypasses routing and
// requires IPv4 addresses.
func (s *Service) Route(dgram *inet.Datagram, proto, ttl uint8, df bool) error {
	if dgram.LinkID != 0 {
		l, ok := s.LinkByID(dgram.LinkID)
		if !ok {
			return inet.ErrNotFound
		}
		if !dgram.Src.Is4() || !dgram.Dest.Is4() {
			return inet.ErrInvalid
		}
		return s.sendDgram(l, dgram.Src, dgram.Dest, dgram, proto, ttl, df)
	}

	d, err := s.findDir(dgram.Dest)
	if err != nil {
		metrics.ErrorCount.WithLabelValues("route").Inc()
		return err
	}

	l, ok := s.LinkByID(d.aobj.LinkID)
	if !ok {
		return inet.ErrNotFound
	}

	lsrc := d.aobj.Addr()
	switch {
	case d.ldest.Is4():
		return s.sendDgram(l, lsrc, d.ldest, dgram, proto, ttl, df)
	case d.ldest.Is6():
		mac, err := s.translate(lsrc, d.ldest, l)
		if err != nil {
			return err
		}
		return s.sendDgram6(l, mac, dgram, proto, ttl)
	}
	return inet.ErrInvalid
}

// localDest reports whether a destination is owned by this host: an
// exact address-object match, the IPv4 limited broadcast, the all-nodes
// multicast, or any solicited-node group.
func (s *Service) localDest(dest netip.Addr) bool {
	if _, ok := s.Addrs.Find(dest, addrobj.FindExact); ok {
		return true
	}
	return dest == broadcast4AllHosts ||
		dest == multicastAllNodes ||
		inet.CompareMask(solicitedNodeMask, dest)
}

// recvPacket dispatches one decoded ingress packet: deliver complete
// datagrams immediately, queue fragments for reassembly, drop everything
// not addressed to us.
func (s *Service) recvPacket(p *inet.Packet) error {
	if !s.localDest(p.Dest) {
		metrics.NotForUs.Inc()
		return inet.ErrNotFound
	}

	if p.Complete() {
		dgram := &inet.Datagram{
			LinkID: p.LinkID,
			Src:    p.Src,
			Dest:   p.Dest,
			TOS:    p.TOS,
			Data:   p.Data,
		}
		return s.deliverLocal(dgram, p.Proto)
	}

	return s.reassQ.Add(p)
}
