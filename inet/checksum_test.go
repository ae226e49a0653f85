package inet_test

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/usrnet/inetd/inet"
)

func TestChecksumKnownHeader(t *testing.T) {
	// Example header from RFC 1071 discussions: the checksum field of a
	// valid IPv4 header verifies to zero when summed over the whole header.
	hdr := []byte{
		0x45, 0x00, 0x00, 0x73, 0x00, 0x00, 0x40, 0x00,
		0x40, 0x11, 0xb8, 0x61, 0xc0, 0xa8, 0x00, 0x01,
		0xc0, 0xa8, 0x00, 0xc7,
	}
	if got := inet.Checksum(inet.ChecksumInit, hdr); got != 0 {
		t.Errorf("checksum over valid header = %#x, want 0", got)
	}

	// Zero the checksum field and recompute; it must come out as stored.
	want := binary.BigEndian.Uint16(hdr[10:12])
	hdr[10] = 0
	hdr[11] = 0
	if got := inet.Checksum(inet.ChecksumInit, hdr); got != want {
		t.Errorf("recomputed checksum = %#x, want %#x", got, want)
	}
}

func TestChecksumOddLength(t *testing.T) {
	// An odd trailing byte counts as the high byte of a final word.
	odd := inet.Checksum(inet.ChecksumInit, []byte{0x12})
	padded := inet.Checksum(inet.ChecksumInit, []byte{0x12, 0x00})
	if odd != padded {
		t.Errorf("odd-length checksum %#x != zero-padded %#x", odd, padded)
	}
}

func TestChecksumChaining(t *testing.T) {
	buf := make([]byte, 64)
	rand.New(rand.NewSource(1)).Read(buf)

	whole := inet.Checksum(inet.ChecksumInit, buf)
	half := inet.Checksum(inet.Checksum(inet.ChecksumInit, buf[:32]), buf[32:])
	if whole != half {
		t.Errorf("chained checksum %#x != one-shot %#x", half, whole)
	}
}

func TestChecksumWordPermutation(t *testing.T) {
	// One's-complement addition commutes, so permuting 16-bit words must
	// not change the sum.
	buf := make([]byte, 32)
	rand.New(rand.NewSource(2)).Read(buf)
	perm := make([]byte, 0, len(buf))
	for _, i := range []int{7, 3, 0, 5, 1, 6, 2, 4, 15, 11, 8, 13, 9, 14, 10, 12} {
		perm = append(perm, buf[2*i], buf[2*i+1])
	}
	if a, b := inet.Checksum(inet.ChecksumInit, buf), inet.Checksum(inet.ChecksumInit, perm); a != b {
		t.Errorf("checksum changed under word permutation: %#x != %#x", a, b)
	}
}

func TestCompareMask(t *testing.T) {
	tests := []struct {
		naddr string
		addr  string
		want  bool
	}{
		{"192.0.2.1/24", "192.0.2.200", true},
		{"192.0.2.1/24", "192.0.3.1", false},
		{"0.0.0.0/0", "8.8.8.8", true},
		{"10.0.0.0/8", "10.255.1.2", true},
		{"fe80::1/64", "fe80::ff:fe00:2", true},
		{"fe80::1/64", "fe81::1", false},
		{"ff02::1:ff00:0/104", "ff02::1:ff12:3456", true},
		{"ff02::1:ff00:0/104", "ff02::1", false},
		// Version mismatch never matches.
		{"0.0.0.0/0", "::1", false},
		{"::/0", "127.0.0.1", false},
	}
	for _, tc := range tests {
		naddr, err := inet.ParseNAddr(tc.naddr)
		if err != nil {
			t.Fatalf("ParseNAddr(%q): %v", tc.naddr, err)
		}
		addr, err := inet.ParseAddr(tc.addr)
		if err != nil {
			t.Fatalf("ParseAddr(%q): %v", tc.addr, err)
		}
		if got := inet.CompareMask(naddr, addr); got != tc.want {
			t.Errorf("CompareMask(%s, %s) = %v, want %v", tc.naddr, tc.addr, got, tc.want)
		}
	}
}

func TestParseNAddrRejectsBadPrefix(t *testing.T) {
	for _, s := range []string{"192.0.2.1/33", "::1/129", "192.0.2.1/-1", "bogus/8"} {
		if _, err := inet.ParseNAddr(s); err == nil {
			t.Errorf("ParseNAddr(%q) accepted invalid input", s)
		}
	}
}
