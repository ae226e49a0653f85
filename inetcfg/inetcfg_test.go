package inetcfg_test

import (
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/usrnet/inetd/dhcp"
	"github.com/usrnet/inetd/inet"
	"github.com/usrnet/inetd/inetcfg"
	"github.com/usrnet/inetd/inetsrv"
	"github.com/usrnet/inetd/iplink"
)

// memLink is a minimal link driver for configuration tests.
type memLink struct {
	mtu uint32
	mu  sync.Mutex
	ev  iplink.Events
}

func (l *memLink) Open(ev iplink.Events) error {
	l.mu.Lock()
	l.ev = ev
	l.mu.Unlock()
	return nil
}
func (l *memLink) Close() error                      { return nil }
func (l *memLink) MTU() (uint32, error)              { return l.mtu, nil }
func (l *memLink) MAC48() (inet.MAC, error)          { return inet.MAC{}, inet.ErrNotSupported }
func (l *memLink) AddrAdd(addr netip.Prefix) error   { return nil }
func (l *memLink) AddrRemove(addr netip.Addr) error  { return nil }
func (l *memLink) Send(sdu *iplink.SDU) error        { return nil }
func (l *memLink) Send6(sdu *iplink.SDU6) error      { return nil }

func newService(t *testing.T) (*inetsrv.Service, uint64) {
	t.Helper()
	disc := iplink.NewStaticDiscoverer()
	id := disc.AddLink("net/test0", &memLink{mtu: 1500})
	svc := inetsrv.New(disc, dhcp.NullClient())
	if err := svc.Start(); err != nil {
		t.Fatal(err)
	}
	return svc, id
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inetsrv.sif")

	svc, linkID := newService(t)
	cfg, err := inetcfg.Open(svc, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	addrID, err := cfg.AddrCreateStatic("lo6", netip.MustParsePrefix("::1/128"), linkID)
	if err != nil {
		t.Fatalf("AddrCreateStatic: %v", err)
	}
	routeID, err := cfg.SrouteCreate("default", netip.MustParsePrefix("0.0.0.0/0"), netip.MustParseAddr("10.0.0.1"))
	if err != nil {
		t.Fatalf("SrouteCreate: %v", err)
	}
	if addrID == 0 || routeID == 0 {
		t.Fatal("mutations did not allocate identifiers")
	}

	// Restart: a fresh service instance loads the same file.
	svc2, linkID2 := newService(t)
	cfg2, err := inetcfg.Open(svc2, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	gotAddr, err := cfg2.AddrGetID("lo6", linkID2)
	if err != nil {
		t.Fatalf("address name does not resolve after restart: %v", err)
	}
	info, err := cfg2.AddrGet(gotAddr)
	if err != nil {
		t.Fatal(err)
	}
	if info.NAddr != netip.MustParsePrefix("::1/128") || info.LinkID != linkID2 {
		t.Errorf("loaded address = %+v", info)
	}

	gotRoute, err := cfg2.SrouteGetID("default")
	if err != nil {
		t.Fatalf("route name does not resolve after restart: %v", err)
	}
	rinfo, err := cfg2.SrouteGet(gotRoute)
	if err != nil {
		t.Fatal(err)
	}
	if rinfo.Dest != netip.MustParsePrefix("0.0.0.0/0") || rinfo.Router != netip.MustParseAddr("10.0.0.1") {
		t.Errorf("loaded route = %+v", rinfo)
	}
}

func TestTempObjectsNeverPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inetsrv.sif")

	svc, linkID := newService(t)
	cfg, err := inetcfg.Open(svc, path)
	if err != nil {
		t.Fatal(err)
	}

	// The discovery pass created the temp loopback objects; force a save
	// and check they stay out of the file.
	if _, err := cfg.AddrCreateStatic("keep", netip.MustParsePrefix("10.0.0.1/24"), linkID); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(raw)
	if strings.Contains(content, "v4a") || strings.Contains(content, "v6a") {
		t.Error("temporary auto-configured objects leaked into the saved configuration")
	}
	if !strings.Contains(content, "keep") {
		t.Error("static object missing from the saved configuration")
	}
}

func TestDeleteUpdatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inetsrv.sif")

	svc, linkID := newService(t)
	cfg, err := inetcfg.Open(svc, path)
	if err != nil {
		t.Fatal(err)
	}

	id, err := cfg.AddrCreateStatic("gone", netip.MustParsePrefix("10.0.0.1/24"), linkID)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.AddrDelete(id); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "gone") {
		t.Error("deleted object still present in the saved configuration")
	}

	if err := cfg.AddrDelete(id); !errors.Is(err, inet.ErrNotFound) {
		t.Errorf("double delete: err = %v, want ErrNotFound", err)
	}
}

func TestLinkRemoveNotSupported(t *testing.T) {
	svc, linkID := newService(t)
	cfg, err := inetcfg.Open(svc, filepath.Join(t.TempDir(), "cfg.sif"))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.LinkRemove(linkID); !errors.Is(err, inet.ErrNotSupported) {
		t.Errorf("LinkRemove: err = %v, want ErrNotSupported", err)
	}
}

func TestLoadSkipsAddressesOfMissingLinks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inetsrv.sif")

	svc, linkID := newService(t)
	cfg, err := inetcfg.Open(svc, path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cfg.AddrCreateStatic("a", netip.MustParsePrefix("10.0.0.1/24"), linkID); err != nil {
		t.Fatal(err)
	}

	// A service without any link cannot resolve the stored link name;
	// the address is dropped but the load succeeds.
	disc := iplink.NewStaticDiscoverer()
	bare := inetsrv.New(disc, dhcp.NullClient())
	if err := bare.Start(); err != nil {
		t.Fatal(err)
	}
	cfg2, err := inetcfg.Open(bare, path)
	if err != nil {
		t.Fatalf("load with missing link: %v", err)
	}
	if _, err := cfg2.AddrGetID("a", 1); !errors.Is(err, inet.ErrNotFound) {
		t.Errorf("orphan address resolved: err = %v", err)
	}
}
