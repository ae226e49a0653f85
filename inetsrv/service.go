// Package inetsrv implements the core of the Internet-Protocol service:
// the link registry, the router and dispatcher, neighbour discovery,
// ICMP/ICMPv6 and the client and ping registries, all owned by a single
// Service value.
package inetsrv

import (
	"log"
	"net/netip"
	"reflect"
	"sync"

	"github.com/usrnet/inetd/addrobj"
	"github.com/usrnet/inetd/dhcp"
	"github.com/usrnet/inetd/inet"
	"github.com/usrnet/inetd/iplink"
	"github.com/usrnet/inetd/ntrans"
	"github.com/usrnet/inetd/pdu"
	"github.com/usrnet/inetd/reass"
	"github.com/usrnet/inetd/sroute"
)

// EventSink receives datagrams on behalf of one protocol client.
type EventSink interface {
	RecvEvent(dgram *inet.Datagram) error
}

// PingSDU is one echo exchange as seen by a ping session.
type PingSDU struct {
	SeqNo uint16
	Src   netip.Addr
	Dest  netip.Addr
	Data  []byte
}

// PingSink receives echo replies on behalf of one ping session.
type PingSink interface {
	RecvPing(sdu *PingSDU) error
}

// Service is the Internet-Protocol service. One Service value owns every
// table for the lifetime of the process.
//
// Lock order, top-down: links, address objects, static routes,
// neighbours, reassembly, clients, pings, ident. Link-driver calls are
// made with no lock held.
type Service struct {
	disc  iplink.Discoverer
	dhcpc dhcp.Client

	linkMu     sync.Mutex
	links      map[uint64]*Link
	firstLink  bool
	firstLink6 bool

	Addrs      *addrobj.Table
	Routes     *sroute.Table
	Neighbours *ntrans.Cache
	reassQ     *reass.Queue

	clientMu sync.Mutex
	clients  map[uint8]EventSink

	pingMu    sync.Mutex
	pings     map[uint16]PingSink
	pingIdent uint16

	identMu sync.Mutex
	ident   uint16
}

// New creates a service wired to the given link discoverer and DHCP
// client. Call Start to run discovery and begin serving traffic.
func New(disc iplink.Discoverer, dhcpc dhcp.Client) *Service {
	s := &Service{
		disc:       disc,
		dhcpc:      dhcpc,
		links:      make(map[uint64]*Link),
		firstLink:  true,
		firstLink6: true,
		Addrs:      addrobj.NewTable(),
		Routes:     sroute.NewTable(),
		Neighbours: ntrans.NewCache(),
		clients:    make(map[uint8]EventSink),
		pings:      make(map[uint16]PingSink),
	}
	s.reassQ = reass.NewQueue(s.deliverLocal)
	return s
}

// Start registers for link-service change events and runs the initial
// discovery pass. DHCP autoconfiguration of the initially discovered
// links is deferred to AutoconfLinks so that a loaded configuration can
// claim its links first; links appearing later are offered right away.
func (s *Service) Start() error {
	s.disc.Notify(func() {
		if err := s.checkNewLinks(true); err != nil {
			log.Println("link discovery:", err)
		}
	})
	return s.checkNewLinks(false)
}

// allocIdent returns the next IPv4 identifier. Identifiers are unique
// within the process modulo 2^16.
func (s *Service) allocIdent() uint16 {
	s.identMu.Lock()
	s.ident++
	v := s.ident
	s.identMu.Unlock()
	return v
}

// ClientRegister binds a protocol number to a callback sink. A later
// registration for the same protocol displaces the earlier one.
func (s *Service) ClientRegister(proto uint8, sink EventSink) {
	s.clientMu.Lock()
	s.clients[proto] = sink
	s.clientMu.Unlock()
}

// ClientUnregister removes a registration, but only if it still refers
// to the given sink. A sink whose dynamic type is not comparable (a
// function type, for instance) never matches, so such a registration is
// only displaced by a later ClientRegister.
func (s *Service) ClientUnregister(proto uint8, sink EventSink) {
	s.clientMu.Lock()
	cur, ok := s.clients[proto]
	// Comparing two interface values of the same non-comparable dynamic
	// type with == panics, so the types are checked first.
	t := reflect.TypeOf(cur)
	if ok && t == reflect.TypeOf(sink) && (t == nil || t.Comparable()) && cur == sink {
		delete(s.clients, proto)
	}
	s.clientMu.Unlock()
}

func (s *Service) clientFind(proto uint8) (EventSink, bool) {
	s.clientMu.Lock()
	sink, ok := s.clients[proto]
	s.clientMu.Unlock()
	return sink, ok
}

// deliverLocal hands a datagram to its local consumer: ICMP and ICMPv6
// are handled internally, everything else goes to the client registered
// for the protocol.
func (s *Service) deliverLocal(dgram *inet.Datagram, proto uint8) error {
	switch proto {
	case pdu.ProtoICMP:
		return s.icmpRecv(dgram)
	case pdu.ProtoICMPv6:
		return s.icmpv6Recv(dgram)
	}

	sink, ok := s.clientFind(proto)
	if !ok {
		log.Printf("no client for protocol %d, dropping", proto)
		return inet.ErrNotFound
	}
	return sink.RecvEvent(dgram)
}

// GetSrcAddr selects the local source address for traffic towards
// remote.
func (s *Service) GetSrcAddr(remote netip.Addr, tos uint8) (netip.Addr, error) {
	d, err := s.findDir(remote)
	if err != nil {
		return netip.Addr{}, err
	}

	// The limited broadcast has no meaningful source; return the
	// unspecified address.
	if remote == broadcast4AllHosts {
		return inet.AddrAny, nil
	}

	return d.aobj.Addr(), nil
}

// PingRegister creates a ping session and returns its identifier.
// Identifiers allocate from a 16-bit counter, skipping values still in
// use.
func (s *Service) PingRegister(sink PingSink) (uint16, error) {
	s.pingMu.Lock()
	defer s.pingMu.Unlock()

	for tries := 0; tries <= 0xffff; tries++ {
		s.pingIdent++
		if _, busy := s.pings[s.pingIdent]; !busy {
			s.pings[s.pingIdent] = sink
			return s.pingIdent, nil
		}
	}
	return 0, inet.ErrNoMemory
}

// PingUnregister ends a ping session.
func (s *Service) PingUnregister(ident uint16) {
	s.pingMu.Lock()
	delete(s.pings, ident)
	s.pingMu.Unlock()
}

// PingSend transmits one echo request on behalf of a session.
func (s *Service) PingSend(ident uint16, sdu *PingSDU) error {
	if sdu.Src.Is4() != sdu.Dest.Is4() {
		return inet.ErrInvalid
	}
	if sdu.Src.Is4() {
		return s.icmpPingSend(ident, sdu)
	}
	return s.icmpv6PingSend(ident, sdu)
}

// pingRecv dispatches an incoming echo reply to the session that owns
// the identifier.
func (s *Service) pingRecv(ident uint16, sdu *PingSDU) error {
	s.pingMu.Lock()
	sink, ok := s.pings[ident]
	s.pingMu.Unlock()

	if !ok {
		log.Println("unknown echo identifier, dropping")
		return inet.ErrNotFound
	}
	return sink.RecvPing(sdu)
}

