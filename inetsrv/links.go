package inetsrv

import (
	"fmt"
	"log"
	"net/netip"
	"strconv"
	"strings"

	"github.com/usrnet/inetd/addrobj"
	"github.com/usrnet/inetd/inet"
	"github.com/usrnet/inetd/iplink"
	"github.com/usrnet/inetd/metrics"
	"github.com/usrnet/inetd/pdu"
)

// ethServicePrefix marks ethernet-class link services, the ones DHCP
// autoconfiguration applies to.
const ethServicePrefix = "net/eth"

// Link is one registry entry for an open IP link. Entries are created by
// discovery and live until process shutdown.
type Link struct {
	SvcID      uint64
	SvcName    string
	DefaultMTU uint32

	drv      iplink.Link
	mac      inet.MAC
	macValid bool
}

// linkMAC returns the link's MAC address and whether the driver
// reported one. IPv6 neighbour translation is gated on the second
// result.
func (s *Service) linkMAC(l *Link) (inet.MAC, bool) {
	s.linkMu.Lock()
	defer s.linkMu.Unlock()
	return l.mac, l.macValid
}

// LinkByID returns the registry entry for a link service ID.
func (s *Service) LinkByID(id uint64) (*Link, bool) {
	s.linkMu.Lock()
	defer s.linkMu.Unlock()
	l, ok := s.links[id]
	return l, ok
}

// LinkBySvcName returns the registry entry with the given service name.
func (s *Service) LinkBySvcName(name string) (*Link, bool) {
	s.linkMu.Lock()
	defer s.linkMu.Unlock()
	for _, l := range s.links {
		if l.SvcName == name {
			return l, true
		}
	}
	return nil, false
}

// LinkIDs returns the service IDs of all open links.
func (s *Service) LinkIDs() []uint64 {
	s.linkMu.Lock()
	defer s.linkMu.Unlock()
	ids := make([]uint64, 0, len(s.links))
	for id := range s.links {
		ids = append(ids, id)
	}
	return ids
}

// LinkInfo is the externally visible state of one link.
type LinkInfo struct {
	ID         uint64
	Name       string
	MAC        inet.MAC
	DefaultMTU uint32
}

// LinkGet returns the externally visible state of a link.
func (s *Service) LinkGet(id uint64) (LinkInfo, error) {
	s.linkMu.Lock()
	defer s.linkMu.Unlock()
	l, ok := s.links[id]
	if !ok {
		return LinkInfo{}, inet.ErrNotFound
	}
	return LinkInfo{ID: l.SvcID, Name: l.SvcName, MAC: l.mac, DefaultMTU: l.DefaultMTU}, nil
}

// linkEvents adapts one link's upward events into the ingress path.
type linkEvents struct {
	s  *Service
	id uint64
}

func (e *linkEvents) Recv(data []byte, ver uint8) error {
	metrics.PDUsReceived.WithLabelValues(strconv.Itoa(int(ver))).Inc()

	var p *inet.Packet
	var err error
	switch ver {
	case 4:
		p, err = pdu.DecodeV4(data, e.id)
	case 6:
		p, err = pdu.DecodeV6(data, e.id)
	default:
		err = fmt.Errorf("%w: IP version %d", inet.ErrInvalid, ver)
	}
	if err != nil {
		// Corrupt PDUs are dropped; they must never take the service
		// down.
		metrics.DecodeErrors.WithLabelValues(strconv.Itoa(int(ver))).Inc()
		log.Println("ingress decode:", err)
		return nil
	}

	return e.s.recvPacket(p)
}

func (e *linkEvents) ChangeAddr(mac inet.MAC) {
	e.s.linkMu.Lock()
	if l, ok := e.s.links[e.id]; ok {
		l.mac = mac
		l.macValid = true
	}
	e.s.linkMu.Unlock()
	log.Printf("link %d: new MAC %v", e.id, mac)
}

// checkNewLinks runs one discovery pass, opening every link service not
// seen before. Failures to open one link are logged and do not abort the
// pass. With autoconf set, newly opened ethernet-class links are offered
// to DHCP; the initial pass defers that until the saved configuration
// has been loaded.
func (s *Service) checkNewLinks(autoconf bool) error {
	svcs, err := s.disc.Services()
	if err != nil {
		return fmt.Errorf("listing link services: %w", err)
	}

	var fresh []iplink.Service
	for _, svc := range svcs {
		if _, ok := s.LinkByID(svc.ID); ok {
			continue
		}
		if err := s.openLink(svc); err != nil {
			log.Printf("could not open link %q: %v", svc.Name, err)
			continue
		}
		fresh = append(fresh, svc)
	}

	if autoconf {
		for _, svc := range fresh {
			s.autoconfLink(svc.ID, svc.Name)
		}
	}
	return nil
}

// AutoconfLinks offers every open ethernet-class link without a
// user-configured address to the DHCP service. Called once at startup,
// after the saved configuration has populated the tables.
func (s *Service) AutoconfLinks() {
	s.linkMu.Lock()
	links := make([]*Link, 0, len(s.links))
	for _, l := range s.links {
		links = append(links, l)
	}
	s.linkMu.Unlock()

	for _, l := range links {
		s.autoconfLink(l.SvcID, l.SvcName)
	}
}

// openLink connects a link service, queries its parameters and installs
// the auto-configured address objects.
func (s *Service) openLink(svc iplink.Service) error {
	drv, err := s.disc.Connect(svc.ID)
	if err != nil {
		return err
	}

	l := &Link{SvcID: svc.ID, SvcName: svc.Name, drv: drv}
	if err := drv.Open(&linkEvents{s: s, id: svc.ID}); err != nil {
		return err
	}
	if l.DefaultMTU, err = drv.MTU(); err != nil {
		drv.Close()
		return err
	}
	// A link with a MAC address is assumed to support NDP.
	if l.mac, err = drv.MAC48(); err == nil {
		l.macValid = true
	}

	s.linkMu.Lock()
	if _, ok := s.links[svc.ID]; ok {
		s.linkMu.Unlock()
		drv.Close()
		return inet.ErrDuplicate
	}
	s.links[svc.ID] = l
	first := s.firstLink
	s.firstLink = false
	first6 := s.firstLink6
	if first6 {
		s.firstLink6 = false
	}
	s.linkMu.Unlock()

	log.Printf("opened IP link %q (mtu %d, mac %v)", svc.Name, l.DefaultMTU, l.mac)

	if first {
		naddr := netip.PrefixFrom(netip.AddrFrom4([4]byte{127, 0, 0, 1}), 24)
		if _, err := s.AddrCreate("v4a", naddr, svc.ID, true); err != nil {
			log.Println("could not add IPv4 loopback address:", err)
		}
	}

	var naddr6 netip.Prefix
	switch {
	case first6:
		naddr6 = netip.PrefixFrom(netip.IPv6Loopback(), 128)
	case l.macValid:
		naddr6 = netip.PrefixFrom(LinkLocalAddr(l.mac), 64)
	default:
		return nil
	}
	if _, err := s.AddrCreate("v6a", naddr6, svc.ID, true); err != nil {
		log.Println("could not add IPv6 address:", err)
	}
	return nil
}

// LinkAdd opens the link service with the given ID. It fails with
// ErrDuplicate when the link is already open and ErrNotFound when no
// such service is visible.
func (s *Service) LinkAdd(id uint64) error {
	if _, ok := s.LinkByID(id); ok {
		return inet.ErrDuplicate
	}
	svcs, err := s.disc.Services()
	if err != nil {
		return fmt.Errorf("listing link services: %w", err)
	}
	for _, svc := range svcs {
		if svc.ID == id {
			return s.openLink(svc)
		}
	}
	return inet.ErrNotFound
}

// autoconfLink starts DHCP on an ethernet-class link that has no
// user-configured address object.
func (s *Service) autoconfLink(id uint64, name string) {
	if !strings.HasPrefix(name, ethServicePrefix) {
		return
	}
	if s.Addrs.CountNonTempByLink(id) != 0 {
		return
	}
	if err := s.dhcpc.LinkAdd(id); err != nil {
		log.Printf("could not start DHCP on link %q: %v", name, err)
	}
}

// LinkLocalAddr derives the fe80::/64 link-local address from a MAC by
// the modified-EUI-64 procedure: the U/L bit flips and ff:fe splices
// into the middle of the interface identifier.
func LinkLocalAddr(mac inet.MAC) netip.Addr {
	a := [16]byte{0xfe, 0x80}
	a[8] = mac[0] ^ 0x02
	a[9] = mac[1]
	a[10] = mac[2]
	a[11] = 0xff
	a[12] = 0xfe
	a[13] = mac[3]
	a[14] = mac[4]
	a[15] = mac[5]
	return netip.AddrFrom16(a)
}

// AddrCreate adds an address object and installs the address into the
// link driver. The table entry is rolled back if the driver refuses it.
func (s *Service) AddrCreate(name string, naddr netip.Prefix, linkID uint64, temp bool) (uint64, error) {
	l, ok := s.LinkByID(linkID)
	if !ok {
		return 0, inet.ErrNotFound
	}

	a := &addrobj.AddrObj{NAddr: naddr, LinkID: linkID, Name: name, Temp: temp}
	if err := s.Addrs.Add(a); err != nil {
		return 0, err
	}

	if err := l.drv.AddrAdd(naddr); err != nil {
		s.Addrs.Remove(a.ID)
		return 0, fmt.Errorf("%w: %v", inet.ErrLinkFailure, err)
	}
	return a.ID, nil
}

// AddrDelete removes an address object. Deleting the last
// user-configured address on an ethernet-class link re-offers the link
// to DHCP.
func (s *Service) AddrDelete(id uint64) error {
	a, ok := s.Addrs.Get(id)
	if !ok {
		return inet.ErrNotFound
	}
	if err := s.Addrs.Remove(id); err != nil {
		return err
	}

	if l, ok := s.LinkByID(a.LinkID); ok {
		if err := l.drv.AddrRemove(a.Addr()); err != nil {
			log.Printf("could not remove %v from link %q: %v", a.Addr(), l.SvcName, err)
		}
		if !a.Temp {
			s.autoconfLink(l.SvcID, l.SvcName)
		}
	}
	return nil
}

// sendDgram encodes an IPv4 datagram into one or more PDUs and hands
// them to the link in ascending fragment order. lsrc and ldest are the
// local hop addresses given to the driver; the PDU headers carry the
// datagram's own addresses.
func (s *Service) sendDgram(l *Link, lsrc, ldest netip.Addr, dgram *inet.Datagram, proto, ttl uint8, df bool) error {
	if !dgram.Src.Is4() || !dgram.Dest.Is4() {
		return inet.ErrInvalid
	}

	packet := inet.Packet{
		Src:   dgram.Src,
		Dest:  dgram.Dest,
		TOS:   dgram.TOS,
		Proto: proto,
		TTL:   ttl,
		Ident: s.allocIdent(),
		DF:    df,
		Data:  dgram.Data,
	}
	metrics.DatagramSizeHistogram.Observe(float64(len(dgram.Data)))

	offs := 0
	for {
		data, roffs, err := pdu.EncodeV4(&packet, dgram.Src, dgram.Dest, offs, int(l.DefaultMTU))
		if err != nil {
			return err
		}
		if err := l.drv.Send(&iplink.SDU{Src: lsrc, Dest: ldest, Data: data}); err != nil {
			return fmt.Errorf("%w: %v", inet.ErrLinkFailure, err)
		}
		metrics.PDUsSent.WithLabelValues("4").Inc()
		offs = roffs
		if offs >= len(packet.Data) {
			return nil
		}
	}
}

// sendDgram6 encodes an IPv6 datagram and hands it to the link,
// addressed at the resolved link-layer destination.
func (s *Service) sendDgram6(l *Link, ldest inet.MAC, dgram *inet.Datagram, proto, ttl uint8) error {
	if !dgram.Src.Is6() || !dgram.Dest.Is6() {
		return inet.ErrInvalid
	}

	packet := inet.Packet{
		Src:   dgram.Src,
		Dest:  dgram.Dest,
		TOS:   dgram.TOS,
		Proto: proto,
		TTL:   ttl,
		Data:  dgram.Data,
	}
	metrics.DatagramSizeHistogram.Observe(float64(len(dgram.Data)))

	data, _, err := pdu.EncodeV6(&packet, dgram.Src, dgram.Dest, 0, int(l.DefaultMTU))
	if err != nil {
		return err
	}
	if err := l.drv.Send6(&iplink.SDU6{Dest: ldest, Data: data}); err != nil {
		return fmt.Errorf("%w: %v", inet.ErrLinkFailure, err)
	}
	metrics.PDUsSent.WithLabelValues("6").Inc()
	return nil
}
