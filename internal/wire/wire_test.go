package wire

import (
	"bytes"
	"encoding/binary"
	"net/netip"
	"testing"

	"github.com/quackstro/openclaw-doge/internal/chain"
)

func TestEncodeVarintBoundaries(t *testing.T) {
	tests := []struct {
		n    uint64
		want []byte
	}{
		{0, []byte{0x00}},
		{252, []byte{0xFC}},
		{253, []byte{0xFD, 0xFD, 0x00}},
		{65535, []byte{0xFD, 0xFF, 0xFF}},
		{65536, []byte{0xFE, 0x00, 0x00, 0x01, 0x00}},
		{0xFFFFFFFF, []byte{0xFE, 0xFF, 0xFF, 0xFF, 0xFF}},
		{0x100000000, []byte{0xFF, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00}},
	}

	for _, tt := range tests {
		got := EncodeVarint(tt.n)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("EncodeVarint(%d) = %x, want %x", tt.n, got, tt.want)
		}

		back, consumed, err := ReadVarint(got)
		if err != nil {
			t.Fatalf("ReadVarint(%x): %v", got, err)
		}
		if back != tt.n || consumed != len(got) {
			t.Errorf("ReadVarint(%x) = (%d, %d), want (%d, %d)", got, back, consumed, tt.n, len(got))
		}
	}
}

func TestReadVarintRejectsNonMinimal(t *testing.T) {
	nonMinimal := [][]byte{
		{0xFD, 0x01, 0x00},                                     // 1 as u16 form
		{0xFE, 0xFF, 0xFF, 0x00, 0x00},                         // 65535 as u32 form
		{0xFF, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, // 1 as u64 form
	}
	for _, buf := range nonMinimal {
		if _, _, err := ReadVarint(buf); err == nil {
			t.Errorf("ReadVarint(%x) accepted non-minimal encoding", buf)
		}
	}
}

func TestVarStringRoundTrip(t *testing.T) {
	for _, s := range []string{"", "/OpenClawDoge:0.1.0/", "x"} {
		buf := AppendVarString(nil, s)
		got, n, err := ReadVarString(buf)
		if err != nil {
			t.Fatalf("ReadVarString(%x): %v", buf, err)
		}
		if got != s || n != len(buf) {
			t.Errorf("round trip %q -> %q (consumed %d of %d)", s, got, n, len(buf))
		}
	}
}

func TestNetAddrIPv4Embedding(t *testing.T) {
	addr := netip.MustParseAddr("1.2.3.4")
	buf := AppendNetAddr(nil, 0, addr, 22556)

	if len(buf) != NetAddrSize {
		t.Fatalf("netaddr size = %d, want %d", len(buf), NetAddrSize)
	}

	// services
	if binary.LittleEndian.Uint64(buf[0:8]) != 0 {
		t.Error("services should be zero")
	}
	// ::ffff: prefix at bytes 10..11 of the IPv6 field, IPv4 at 12..15
	wantV6 := []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xFF, 0xFF, 1, 2, 3, 4}
	if !bytes.Equal(buf[8:24], wantV6) {
		t.Errorf("ipv6 field = %x, want %x", buf[8:24], wantV6)
	}
	// port big-endian
	if binary.BigEndian.Uint16(buf[24:26]) != 22556 {
		t.Error("port mismatch")
	}

	_, back, port, err := ReadNetAddr(buf)
	if err != nil {
		t.Fatal(err)
	}
	if back != addr || port != 22556 {
		t.Errorf("round trip = %s:%d, want %s:22556", back, port, addr)
	}
}

// S1: version message framing for peer 1.2.3.4:22556 on mainnet.
func TestVersionMessageFraming(t *testing.T) {
	params := chain.MustGet(chain.Mainnet)

	remote := netip.AddrPortFrom(netip.MustParseAddr("1.2.3.4"), 22556)
	vp, err := NewVersionPayload(chain.ProtocolVersion, params.Services, chain.UserAgent("0.1.0"), remote, 1700000000)
	if err != nil {
		t.Fatal(err)
	}
	payload := vp.Encode()

	msg, err := EncodeMessage(params.Magic, CmdVersion, payload)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(msg[0:4], []byte{0xC0, 0xC0, 0xC0, 0xC0}) {
		t.Errorf("magic bytes = %x", msg[0:4])
	}
	wantCmd := append([]byte("version"), 0, 0, 0, 0, 0)
	if !bytes.Equal(msg[4:16], wantCmd) {
		t.Errorf("command field = %x, want %x", msg[4:16], wantCmd)
	}
	if binary.LittleEndian.Uint32(msg[16:20]) != uint32(len(payload)) {
		t.Error("payload length mismatch")
	}
	sum := Checksum(payload)
	if !bytes.Equal(msg[20:24], sum[:]) {
		t.Error("checksum mismatch")
	}

	// Header parse inverts the framing.
	h := ParseHeader(msg, params.Magic)
	if h == nil {
		t.Fatal("ParseHeader returned nil")
	}
	if h.Command != CmdVersion || h.PayloadLen != uint32(len(payload)) {
		t.Errorf("header = %+v", h)
	}

	// Payload decode inverts the encode.
	back, err := DecodeVersionPayload(payload)
	if err != nil {
		t.Fatal(err)
	}
	if back.ProtocolVersion != vp.ProtocolVersion ||
		back.Services != vp.Services ||
		back.Timestamp != vp.Timestamp ||
		back.AddrRecv != vp.AddrRecv ||
		back.Nonce != vp.Nonce ||
		back.UserAgent != vp.UserAgent ||
		back.StartHeight != vp.StartHeight ||
		back.Relay != vp.Relay {
		t.Errorf("decode(encode) mismatch:\n got  %+v\n want %+v", back, vp)
	}
}

func TestParseHeaderRejects(t *testing.T) {
	params := chain.MustGet(chain.Mainnet)

	// Short buffer.
	if h := ParseHeader(make([]byte, 23), params.Magic); h != nil {
		t.Error("short buffer should return nil")
	}

	// Wrong magic.
	msg, err := EncodeMessage(chain.MustGet(chain.Testnet).Magic, CmdVerack, nil)
	if err != nil {
		t.Fatal(err)
	}
	if h := ParseHeader(msg, params.Magic); h != nil {
		t.Error("magic mismatch should return nil")
	}
}

func TestVerackRoundTrip(t *testing.T) {
	params := chain.MustGet(chain.Testnet)

	msg, err := EncodeMessage(params.Magic, CmdVerack, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(msg) != HeaderSize {
		t.Fatalf("verack should be header-only, got %d bytes", len(msg))
	}

	h := ParseHeader(msg, params.Magic)
	if h == nil || h.Command != CmdVerack || h.PayloadLen != 0 {
		t.Errorf("header = %+v", h)
	}
}

func TestDecodeReject(t *testing.T) {
	var payload []byte
	payload = AppendVarString(payload, "tx")
	payload = append(payload, 0x10)
	payload = AppendVarString(payload, "insufficient fee")

	msg, code, reason := DecodeReject(payload)
	if msg != "tx" || code != 0x10 || reason != "insufficient fee" {
		t.Errorf("DecodeReject = (%q, %#x, %q)", msg, code, reason)
	}
}
