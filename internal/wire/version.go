package wire

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/quackstro/openclaw-doge/pkg/helpers"
)

// VersionPayload holds the fields of a version message.
type VersionPayload struct {
	ProtocolVersion int32
	Services        uint64
	Timestamp       int64 // unix seconds
	AddrRecv        netip.AddrPort
	AddrFrom        netip.AddrPort
	Nonce           uint64
	UserAgent       string
	StartHeight     int32
	Relay           bool
}

// NewVersionPayload builds a version payload for the given remote peer with
// a fresh random nonce.
func NewVersionPayload(protocolVersion uint32, services uint64, userAgent string, remote netip.AddrPort, now int64) (*VersionPayload, error) {
	nonceBytes, err := helpers.GenerateSecureRandom(8)
	if err != nil {
		return nil, fmt.Errorf("version: %w", err)
	}

	return &VersionPayload{
		ProtocolVersion: int32(protocolVersion),
		Services:        services,
		Timestamp:       now,
		AddrRecv:        remote,
		AddrFrom:        netip.AddrPortFrom(netip.IPv4Unspecified(), 0),
		Nonce:           binary.LittleEndian.Uint64(nonceBytes),
		UserAgent:       userAgent,
		StartHeight:     0,
		Relay:           true,
	}, nil
}

// Encode serializes the version payload.
func (v *VersionPayload) Encode() []byte {
	buf := make([]byte, 0, 86+len(v.UserAgent))

	buf = binary.LittleEndian.AppendUint32(buf, uint32(v.ProtocolVersion))
	buf = binary.LittleEndian.AppendUint64(buf, v.Services)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(v.Timestamp))
	buf = AppendNetAddr(buf, v.Services, v.AddrRecv.Addr(), v.AddrRecv.Port())
	buf = AppendNetAddr(buf, v.Services, v.AddrFrom.Addr(), v.AddrFrom.Port())
	buf = binary.LittleEndian.AppendUint64(buf, v.Nonce)
	buf = AppendVarString(buf, v.UserAgent)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(v.StartHeight))
	if v.Relay {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

// DecodeVersionPayload parses a version payload. Trailing fields absent from
// very old peers are tolerated: user agent, start height, and relay default
// to zero values when the payload ends early.
func DecodeVersionPayload(buf []byte) (*VersionPayload, error) {
	const fixedLen = 4 + 8 + 8 + NetAddrSize + NetAddrSize + 8
	if len(buf) < fixedLen {
		return nil, fmt.Errorf("version: payload too short (%d bytes)", len(buf))
	}

	v := &VersionPayload{}
	off := 0

	v.ProtocolVersion = int32(binary.LittleEndian.Uint32(buf[off : off+4]))
	off += 4
	v.Services = binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8
	v.Timestamp = int64(binary.LittleEndian.Uint64(buf[off : off+8]))
	off += 8

	_, recvAddr, recvPort, err := ReadNetAddr(buf[off:])
	if err != nil {
		return nil, err
	}
	v.AddrRecv = netip.AddrPortFrom(recvAddr, recvPort)
	off += NetAddrSize

	_, fromAddr, fromPort, err := ReadNetAddr(buf[off:])
	if err != nil {
		return nil, err
	}
	v.AddrFrom = netip.AddrPortFrom(fromAddr, fromPort)
	off += NetAddrSize

	v.Nonce = binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8

	if off >= len(buf) {
		return v, nil
	}
	ua, n, err := ReadVarString(buf[off:])
	if err != nil {
		return nil, fmt.Errorf("version: bad user agent: %w", err)
	}
	v.UserAgent = ua
	off += n

	if off+4 <= len(buf) {
		v.StartHeight = int32(binary.LittleEndian.Uint32(buf[off : off+4]))
		off += 4
	}
	if off < len(buf) {
		v.Relay = buf[off] != 0
	}
	return v, nil
}

// DecodeReject parses a reject payload: varstring message, u8 code,
// varstring reason. Used only for logging; parse failures degrade to an
// empty reason.
func DecodeReject(buf []byte) (message string, code byte, reason string) {
	msg, n, err := ReadVarString(buf)
	if err != nil {
		return "", 0, ""
	}
	buf = buf[n:]
	if len(buf) == 0 {
		return msg, 0, ""
	}
	code = buf[0]
	buf = buf[1:]
	if r, _, err := ReadVarString(buf); err == nil {
		reason = r
	}
	return msg, code, reason
}
