package wire

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// NetAddrSize is the serialized size of a network address without the
// timestamp field (the form used inside version payloads).
const NetAddrSize = 26

// AppendNetAddr appends the 26-byte serialization of a network address:
// services (u64 LE), IPv6 address (16 bytes, IPv4 embedded as ::ffff:a.b.c.d),
// port (u16 big-endian).
func AppendNetAddr(dst []byte, services uint64, addr netip.Addr, port uint16) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, services)

	v6 := addr.As16() // maps IPv4 into the ::ffff: prefix
	dst = append(dst, v6[:]...)

	return binary.BigEndian.AppendUint16(dst, port)
}

// ReadNetAddr decodes a 26-byte network address from the front of buf.
func ReadNetAddr(buf []byte) (services uint64, addr netip.Addr, port uint16, err error) {
	if len(buf) < NetAddrSize {
		return 0, netip.Addr{}, 0, fmt.Errorf("netaddr: need %d bytes, have %d", NetAddrSize, len(buf))
	}

	services = binary.LittleEndian.Uint64(buf[0:8])

	var v6 [16]byte
	copy(v6[:], buf[8:24])
	addr = netip.AddrFrom16(v6)
	if addr.Is4In6() {
		addr = addr.Unmap()
	}

	port = binary.BigEndian.Uint16(buf[24:26])
	return services, addr, port, nil
}
