//go:build linux

package iplink

import (
	"fmt"
	"log"
	"net"
	"net/netip"
	"os"
	"sync"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/usrnet/inetd/inet"
)

// TUN is a link backed by a Linux TUN device. The device is a layer-3
// interface, so it reports no MAC; address and MTU management go through
// rtnetlink on the kernel side of the device.
type TUN struct {
	name string
	file *os.File

	mu sync.Mutex
	ev Events
	wg sync.WaitGroup
}

// OpenTUN creates (or attaches to) the named TUN device.
func OpenTUN(name string) (*TUN, error) {
	fd, err := unix.Open("/dev/net/tun", unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open /dev/net/tun: %v", inet.ErrLinkFailure, err)
	}

	ifr, err := unix.NewIfreq(name)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: %v", inet.ErrInvalid, err)
	}
	ifr.SetUint16(unix.IFF_TUN | unix.IFF_NO_PI)
	if err := unix.IoctlIfreq(fd, unix.TUNSETIFF, ifr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: TUNSETIFF %s: %v", inet.ErrLinkFailure, name, err)
	}

	return &TUN{
		name: ifr.Name(),
		file: os.NewFile(uintptr(fd), "/dev/net/tun"),
	}, nil
}

// Name returns the kernel interface name.
func (t *TUN) Name() string { return t.name }

func (t *TUN) Open(ev Events) error {
	t.mu.Lock()
	t.ev = ev
	t.mu.Unlock()

	link, err := netlink.LinkByName(t.name)
	if err != nil {
		return fmt.Errorf("%w: %v", inet.ErrLinkFailure, err)
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("%w: set %s up: %v", inet.ErrLinkFailure, t.name, err)
	}

	t.wg.Add(1)
	go t.readLoop()
	return nil
}

func (t *TUN) readLoop() {
	defer t.wg.Done()
	buf := make([]byte, 65536)
	for {
		n, err := t.file.Read(buf)
		if err != nil {
			// Closed device ends the loop.
			return
		}
		if n == 0 {
			continue
		}
		var ver uint8
		switch buf[0] >> 4 {
		case 4:
			ver = 4
		case 6:
			ver = 6
		default:
			continue
		}
		t.mu.Lock()
		ev := t.ev
		t.mu.Unlock()
		if ev == nil {
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		if err := ev.Recv(data, ver); err != nil {
			log.Println("tun", t.name, "recv dropped:", err)
		}
	}
}

func (t *TUN) Close() error {
	err := t.file.Close()
	t.wg.Wait()
	t.mu.Lock()
	t.ev = nil
	t.mu.Unlock()
	return err
}

func (t *TUN) MTU() (uint32, error) {
	link, err := netlink.LinkByName(t.name)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", inet.ErrLinkFailure, err)
	}
	return uint32(link.Attrs().MTU), nil
}

func (t *TUN) MAC48() (inet.MAC, error) {
	// TUN is point-to-point layer 3; there is no hardware address.
	return inet.MAC{}, inet.ErrNotSupported
}

func (t *TUN) AddrAdd(addr netip.Prefix) error {
	link, err := netlink.LinkByName(t.name)
	if err != nil {
		return fmt.Errorf("%w: %v", inet.ErrLinkFailure, err)
	}
	nladdr, err := netlink.ParseAddr(addr.String())
	if err != nil {
		return fmt.Errorf("%w: %v", inet.ErrInvalid, err)
	}
	if err := netlink.AddrAdd(link, nladdr); err != nil {
		return fmt.Errorf("%w: addr add %s: %v", inet.ErrLinkFailure, addr, err)
	}
	return nil
}

func (t *TUN) AddrRemove(addr netip.Addr) error {
	link, err := netlink.LinkByName(t.name)
	if err != nil {
		return fmt.Errorf("%w: %v", inet.ErrLinkFailure, err)
	}
	addrs, err := netlink.AddrList(link, unix.AF_UNSPEC)
	if err != nil {
		return fmt.Errorf("%w: %v", inet.ErrLinkFailure, err)
	}
	want := net.IP(addr.AsSlice())
	for i := range addrs {
		if addrs[i].IP.Equal(want) {
			if err := netlink.AddrDel(link, &addrs[i]); err != nil {
				return fmt.Errorf("%w: addr del %s: %v", inet.ErrLinkFailure, addr, err)
			}
			return nil
		}
	}
	return inet.ErrNotFound
}

func (t *TUN) write(data []byte) error {
	if _, err := t.file.Write(data); err != nil {
		return fmt.Errorf("%w: %v", inet.ErrLinkFailure, err)
	}
	return nil
}

func (t *TUN) Send(sdu *SDU) error   { return t.write(sdu.Data) }
func (t *TUN) Send6(sdu *SDU6) error { return t.write(sdu.Data) }
