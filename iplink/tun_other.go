//go:build !linux

package iplink

import (
	"net/netip"

	"github.com/usrnet/inetd/inet"
)

// TUN devices are only available on Linux.
type TUN struct{}

// OpenTUN fails on platforms without TUN support.
func OpenTUN(name string) (*TUN, error) {
	return nil, inet.ErrNotSupported
}

func (t *TUN) Name() string                       { return "" }
func (t *TUN) Open(ev Events) error               { return inet.ErrNotSupported }
func (t *TUN) Close() error                       { return nil }
func (t *TUN) MTU() (uint32, error)               { return 0, inet.ErrNotSupported }
func (t *TUN) MAC48() (inet.MAC, error)           { return inet.MAC{}, inet.ErrNotSupported }
func (t *TUN) AddrAdd(addr netip.Prefix) error    { return inet.ErrNotSupported }
func (t *TUN) AddrRemove(addr netip.Addr) error   { return inet.ErrNotSupported }
func (t *TUN) Send(sdu *SDU) error                { return inet.ErrNotSupported }
func (t *TUN) Send6(sdu *SDU6) error              { return inet.ErrNotSupported }
