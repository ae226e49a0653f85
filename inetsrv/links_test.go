package inetsrv_test

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/go-test/deep"

	"github.com/usrnet/inetd/dhcp"
	"github.com/usrnet/inetd/inet"
	"github.com/usrnet/inetd/inetsrv"
	"github.com/usrnet/inetd/iplink"
)

func TestLinkLocalAddr(t *testing.T) {
	// Modified EUI-64: flip the U/L bit, splice ff:fe into the middle.
	got := inetsrv.LinkLocalAddr(inet.MAC{0x02, 0x00, 0x00, 0x00, 0x00, 0x01})
	if got != netip.MustParseAddr("fe80::ff:fe00:1") {
		t.Errorf("LinkLocalAddr = %v, want fe80::ff:fe00:1", got)
	}

	got = inetsrv.LinkLocalAddr(inet.MAC{0x52, 0x54, 0x00, 0x12, 0x34, 0x56})
	if got != netip.MustParseAddr("fe80::5054:ff:fe12:3456") {
		t.Errorf("LinkLocalAddr = %v, want fe80::5054:ff:fe12:3456", got)
	}
}

func TestDiscoveryAutoAddresses(t *testing.T) {
	disc := iplink.NewStaticDiscoverer()
	first := disc.AddLink("net/loopback", &testLink{mtu: 65535})
	second := disc.AddLink("net/test1", &testLink{mtu: 1500, mac: inet.MAC{2, 0, 0, 0, 0, 1}, macValid: true})

	svc := inetsrv.New(disc, dhcp.NullClient())
	if err := svc.Start(); err != nil {
		t.Fatal(err)
	}

	// The first link carries the loopback objects.
	a, ok := svc.Addrs.FindByName("v4a", first)
	if !ok || a.NAddr != netip.MustParsePrefix("127.0.0.1/24") || !a.Temp {
		t.Errorf("first-link v4a = %+v, %v", a, ok)
	}
	a, ok = svc.Addrs.FindByName("v6a", first)
	if !ok || a.NAddr != netip.MustParsePrefix("::1/128") || !a.Temp {
		t.Errorf("first-link v6a = %+v, %v", a, ok)
	}

	// A later link with a MAC gets the derived link-local address.
	a, ok = svc.Addrs.FindByName("v6a", second)
	if !ok || a.NAddr != netip.MustParsePrefix("fe80::ff:fe00:1/64") || !a.Temp {
		t.Errorf("second-link v6a = %+v, %v", a, ok)
	}
	if _, ok := svc.Addrs.FindByName("v4a", second); ok {
		t.Error("only the first link carries the IPv4 loopback")
	}
}

func TestDiscoveryOnNotify(t *testing.T) {
	disc := iplink.NewStaticDiscoverer()
	svc := inetsrv.New(disc, dhcp.NullClient())
	if err := svc.Start(); err != nil {
		t.Fatal(err)
	}
	if got := len(svc.LinkIDs()); got != 0 {
		t.Fatalf("started with %d links", got)
	}

	// AddLink fires the change notification; the link appears without
	// another explicit discovery call.
	id := disc.AddLink("net/test0", &testLink{mtu: 1500})
	if _, ok := svc.LinkByID(id); !ok {
		t.Error("link discovered via notification is missing")
	}
}

func TestLinkAddDuplicate(t *testing.T) {
	disc := iplink.NewStaticDiscoverer()
	id := disc.AddLink("net/test0", &testLink{mtu: 1500})
	svc := inetsrv.New(disc, dhcp.NullClient())
	if err := svc.Start(); err != nil {
		t.Fatal(err)
	}

	if err := svc.LinkAdd(id); !errors.Is(err, inet.ErrDuplicate) {
		t.Errorf("re-adding an open link: err = %v, want ErrDuplicate", err)
	}
	if err := svc.LinkAdd(9999); !errors.Is(err, inet.ErrNotFound) {
		t.Errorf("adding an unknown link: err = %v, want ErrNotFound", err)
	}
}

func TestLinkGet(t *testing.T) {
	mac := inet.MAC{2, 0, 0, 0, 0, 7}
	disc := iplink.NewStaticDiscoverer()
	id := disc.AddLink("net/test0", &testLink{mtu: 9000, mac: mac, macValid: true})
	svc := inetsrv.New(disc, dhcp.NullClient())
	if err := svc.Start(); err != nil {
		t.Fatal(err)
	}

	info, err := svc.LinkGet(id)
	if err != nil {
		t.Fatal(err)
	}
	want := inetsrv.LinkInfo{ID: id, Name: "net/test0", MAC: mac, DefaultMTU: 9000}
	if diff := deep.Equal(info, want); diff != nil {
		t.Error(diff)
	}

	if _, err := svc.LinkGet(12345); !errors.Is(err, inet.ErrNotFound) {
		t.Errorf("LinkGet unknown: err = %v, want ErrNotFound", err)
	}
}

func TestAddrCreateRollsBackOnDriverFailure(t *testing.T) {
	link := &failLink{testLink{mtu: 1500}}
	disc := iplink.NewStaticDiscoverer()
	id := disc.AddLink("net/test0", link)
	svc := inetsrv.New(disc, dhcp.NullClient())
	if err := svc.Start(); err != nil {
		t.Fatal(err)
	}

	_, err := svc.AddrCreate("a", netip.MustParsePrefix("10.0.0.1/24"), id, false)
	if !errors.Is(err, inet.ErrLinkFailure) {
		t.Fatalf("AddrCreate on refusing driver: err = %v, want ErrLinkFailure", err)
	}
	if _, ok := svc.Addrs.FindByName("a", id); ok {
		t.Error("failed create left an entry in the table")
	}
}

func TestAddrCreateErrors(t *testing.T) {
	link := &testLink{mtu: 1500}
	svc, linkID := newTestService(t, link)

	if _, err := svc.AddrCreate("a", netip.MustParsePrefix("10.0.0.1/24"), linkID, false); err != nil {
		t.Fatal(err)
	}
	_, err := svc.AddrCreate("a", netip.MustParsePrefix("10.0.1.1/24"), linkID, false)
	if !errors.Is(err, inet.ErrDuplicate) {
		t.Errorf("duplicate name: err = %v, want ErrDuplicate", err)
	}
	_, err = svc.AddrCreate("b", netip.MustParsePrefix("10.0.1.1/24"), 777, false)
	if !errors.Is(err, inet.ErrNotFound) {
		t.Errorf("unknown link: err = %v, want ErrNotFound", err)
	}
}

func TestDHCPBootstrap(t *testing.T) {
	rec := &recordDHCP{}
	disc := iplink.NewStaticDiscoverer()
	eth := disc.AddLink("net/eth0", &testLink{mtu: 1500, mac: inet.MAC{2, 0, 0, 0, 0, 1}, macValid: true})
	other := disc.AddLink("net/tun0", &testLink{mtu: 1500})

	svc := inetsrv.New(disc, rec)
	if err := svc.Start(); err != nil {
		t.Fatal(err)
	}

	// Nothing is offered before the configuration had its chance.
	if got := rec.calls(); len(got) != 0 {
		t.Fatalf("DHCP offered links before the startup sweep: %v", got)
	}

	// Only the ethernet-class link is offered to DHCP.
	svc.AutoconfLinks()
	if diff := deep.Equal(rec.calls(), []uint64{eth}); diff != nil {
		t.Fatalf("DHCP calls after startup sweep: %v", diff)
	}
	_ = other

	// Deleting the last non-temp address on the link re-triggers DHCP.
	id, err := svc.AddrCreate("static", netip.MustParsePrefix("10.0.0.1/24"), eth, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.AddrDelete(id); err != nil {
		t.Fatal(err)
	}
	if diff := deep.Equal(rec.calls(), []uint64{eth, eth}); diff != nil {
		t.Errorf("DHCP calls after delete: %v", diff)
	}
}

func TestAddrDeleteUnknown(t *testing.T) {
	link := &testLink{mtu: 1500}
	svc, _ := newTestService(t, link)
	if err := svc.AddrDelete(424242); !errors.Is(err, inet.ErrNotFound) {
		t.Errorf("AddrDelete unknown: err = %v, want ErrNotFound", err)
	}
}
