package iplink_test

import (
	"bytes"
	"errors"
	"net/netip"
	"sync"
	"testing"

	"github.com/usrnet/inetd/inet"
	"github.com/usrnet/inetd/iplink"
)

type recvRecorder struct {
	mu   sync.Mutex
	data [][]byte
	vers []uint8
}

func (r *recvRecorder) Recv(data []byte, ver uint8) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = append(r.data, data)
	r.vers = append(r.vers, ver)
	return nil
}

func (r *recvRecorder) ChangeAddr(mac inet.MAC) {}

func TestLoopbackReflects(t *testing.T) {
	l := iplink.NewLoopback(65535)
	rec := &recvRecorder{}
	if err := l.Open(rec); err != nil {
		t.Fatal(err)
	}

	if mtu, err := l.MTU(); err != nil || mtu != 65535 {
		t.Errorf("MTU = %d, %v", mtu, err)
	}
	if _, err := l.MAC48(); !errors.Is(err, inet.ErrNotSupported) {
		t.Errorf("MAC48: err = %v, want ErrNotSupported", err)
	}

	payload := []byte{0x45, 1, 2, 3}
	err := l.Send(&iplink.SDU{
		Src:  netip.MustParseAddr("127.0.0.1"),
		Dest: netip.MustParseAddr("127.0.0.1"),
		Data: payload,
	})
	if err != nil {
		t.Fatal(err)
	}
	err = l.Send6(&iplink.SDU6{Data: []byte{0x60, 9}})
	if err != nil {
		t.Fatal(err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.data) != 2 {
		t.Fatalf("received %d PDUs, want 2", len(rec.data))
	}
	if !bytes.Equal(rec.data[0], payload) || rec.vers[0] != 4 {
		t.Errorf("first PDU = %v ver %d", rec.data[0], rec.vers[0])
	}
	if rec.vers[1] != 6 {
		t.Errorf("second PDU version = %d, want 6", rec.vers[1])
	}

	// The reflected buffer is a copy; mutating the original is safe.
	payload[1] = 0xff
	if rec.data[0][1] == 0xff {
		t.Error("loopback aliased the sender's buffer")
	}
}

func TestLoopbackClosedDrops(t *testing.T) {
	l := iplink.NewLoopback(1500)
	err := l.Send(&iplink.SDU{Data: []byte{0x45}})
	if !errors.Is(err, inet.ErrLinkFailure) {
		t.Errorf("send on unopened link: err = %v, want ErrLinkFailure", err)
	}
}

func TestStaticDiscoverer(t *testing.T) {
	d := iplink.NewStaticDiscoverer()

	var notified int
	d.Notify(func() { notified++ })

	id := d.AddLink("net/loopback", iplink.NewLoopback(1500))
	if notified != 1 {
		t.Errorf("notified %d times, want 1", notified)
	}

	svcs, err := d.Services()
	if err != nil || len(svcs) != 1 {
		t.Fatalf("Services = %v, %v", svcs, err)
	}
	if svcs[0].ID != id || svcs[0].Name != "net/loopback" {
		t.Errorf("service = %+v", svcs[0])
	}

	if _, err := d.Connect(id); err != nil {
		t.Errorf("Connect: %v", err)
	}
	if _, err := d.Connect(999); !errors.Is(err, inet.ErrNotFound) {
		t.Errorf("Connect unknown: err = %v, want ErrNotFound", err)
	}
}
