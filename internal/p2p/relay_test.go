package p2p

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/quackstro/openclaw-doge/internal/chain"
	"github.com/quackstro/openclaw-doge/internal/wire"
	"github.com/quackstro/openclaw-doge/pkg/logging"
)

// fakePeer runs a minimal Dogecoin peer on a loopback listener for relay
// tests. Behavior knobs select the failure mode under test.
type fakePeer struct {
	listener net.Listener
	params   *chain.Params

	silent  bool   // never respond (timeout path)
	reject  bool   // answer the handshake with a reject
	garbage []byte // bytes prepended before the first real message (resync path)
	gotTx   chan []byte
}

func newFakePeer(t *testing.T, params *chain.Params) *fakePeer {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	p := &fakePeer{listener: l, params: params, gotTx: make(chan []byte, 1)}
	go p.serve()
	t.Cleanup(func() { l.Close() })
	return p
}

func (p *fakePeer) peerInfo(t *testing.T) PeerInfo {
	t.Helper()
	ap, err := netip.ParseAddrPort(p.listener.Addr().String())
	if err != nil {
		t.Fatalf("parse listener addr: %v", err)
	}
	return PeerInfo{Addr: ap.Addr(), Port: ap.Port()}
}

func (p *fakePeer) serve() {
	conn, err := p.listener.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	if p.silent {
		io.Copy(io.Discard, conn)
		return
	}

	var recv []byte
	chunk := make([]byte, 4096)
	var sentHandshake bool

	for {
		n, err := conn.Read(chunk)
		if err != nil {
			return
		}
		recv = append(recv, chunk[:n]...)

		for len(recv) >= wire.HeaderSize {
			h := wire.ParseHeader(recv, p.params.Magic)
			if h == nil {
				recv = recv[1:]
				continue
			}
			total := wire.HeaderSize + int(h.PayloadLen)
			if len(recv) < total {
				break
			}
			payload := append([]byte(nil), recv[wire.HeaderSize:total]...)
			recv = recv[total:]

			switch h.Command {
			case wire.CmdVersion:
				if sentHandshake {
					continue
				}
				sentHandshake = true

				if p.reject {
					var rp []byte
					rp = wire.AppendVarString(rp, "version")
					rp = append(rp, 0x11)
					rp = wire.AppendVarString(rp, "obsolete")
					msg, _ := wire.EncodeMessage(p.params.Magic, wire.CmdReject, rp)
					conn.Write(msg)
					return
				}

				var out []byte
				out = append(out, p.garbage...)

				remote := netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), 0)
				vp, _ := wire.NewVersionPayload(chain.ProtocolVersion, 1, "/Shibetoshi:1.14.6/", remote, time.Now().Unix())
				versionMsg, _ := wire.EncodeMessage(p.params.Magic, wire.CmdVersion, vp.Encode())
				out = append(out, versionMsg...)

				verackMsg, _ := wire.EncodeMessage(p.params.Magic, wire.CmdVerack, nil)
				out = append(out, verackMsg...)

				conn.Write(out)
			case wire.CmdTx:
				select {
				case p.gotTx <- payload:
				default:
				}
				return
			}
		}
	}
}

func testBroadcaster(params *chain.Params) *Broadcaster {
	log := logging.New(&logging.Config{Level: "error", Output: io.Discard})
	b := NewBroadcaster(params, NewDiscoverer(params, nil, log), "0.1.0", log)
	b.DialTimeout = 2 * time.Second
	b.HandshakeTimeout = 2 * time.Second
	b.DrainDelay = 10 * time.Millisecond
	return b
}

const testTxHex = "01000000000000000000"

func TestBroadcastSinglePeerSuccess(t *testing.T) {
	params := chain.MustGet(chain.Mainnet)
	peer := newFakePeer(t, params)
	b := testBroadcaster(params)

	result, err := b.BroadcastToPeers(context.Background(), testTxHex, []PeerInfo{peer.peerInfo(t)})
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if !result.Success || result.PeersReached != 1 {
		t.Fatalf("result = %+v", result)
	}

	select {
	case got := <-peer.gotTx:
		want, _ := hex.DecodeString(testTxHex)
		if fmt.Sprintf("%x", got) != fmt.Sprintf("%x", want) {
			t.Errorf("peer received %x, want %x", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("peer never received tx message")
	}
}

// The relay must resync by discarding bytes until a valid magic appears.
func TestBroadcastResyncsOnGarbage(t *testing.T) {
	params := chain.MustGet(chain.Mainnet)
	peer := newFakePeer(t, params)
	peer.garbage = []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x42}
	b := testBroadcaster(params)

	result, err := b.BroadcastToPeers(context.Background(), testTxHex, []PeerInfo{peer.peerInfo(t)})
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
}

func TestBroadcastPeerReject(t *testing.T) {
	params := chain.MustGet(chain.Mainnet)
	peer := newFakePeer(t, params)
	peer.reject = true
	b := testBroadcaster(params)

	result, err := b.BroadcastToPeers(context.Background(), testTxHex, []PeerInfo{peer.peerInfo(t)})
	if !errors.Is(err, ErrBroadcastBelowThreshold) {
		t.Fatalf("err = %v, want ErrBroadcastBelowThreshold", err)
	}
	if result.Success || result.PeersReached != 0 {
		t.Fatalf("result = %+v", result)
	}
}

func TestBroadcastPeerTimeout(t *testing.T) {
	params := chain.MustGet(chain.Mainnet)
	peer := newFakePeer(t, params)
	peer.silent = true
	b := testBroadcaster(params)
	b.HandshakeTimeout = 200 * time.Millisecond

	_, err := b.BroadcastToPeers(context.Background(), testTxHex, []PeerInfo{peer.peerInfo(t)})
	if !errors.Is(err, ErrBroadcastBelowThreshold) {
		t.Fatalf("err = %v, want ErrBroadcastBelowThreshold", err)
	}
}

// One good peer is enough even when others fail.
func TestBroadcastPartialSuccess(t *testing.T) {
	params := chain.MustGet(chain.Mainnet)
	good := newFakePeer(t, params)
	bad := newFakePeer(t, params)
	bad.reject = true
	b := testBroadcaster(params)

	result, err := b.BroadcastToPeers(context.Background(), testTxHex, []PeerInfo{bad.peerInfo(t), good.peerInfo(t)})
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if !result.Success || result.PeersReached != 1 {
		t.Fatalf("result = %+v", result)
	}
}

func TestBroadcastInvalidHex(t *testing.T) {
	params := chain.MustGet(chain.Mainnet)
	b := testBroadcaster(params)

	_, err := b.BroadcastToPeers(context.Background(), "not-hex", nil)
	if err == nil {
		t.Fatal("expected error for invalid hex")
	}
}

func TestBroadcastNoPeers(t *testing.T) {
	params := chain.MustGet(chain.Mainnet)
	b := testBroadcaster(params)

	_, err := b.BroadcastToPeers(context.Background(), testTxHex, nil)
	if !errors.Is(err, ErrBroadcastBelowThreshold) {
		t.Fatalf("err = %v, want ErrBroadcastBelowThreshold", err)
	}
}

// stubResolver returns fixed answers per seed.
type stubResolver struct {
	answers map[string][]netip.Addr
	err     error
}

func (s *stubResolver) LookupNetIP(_ context.Context, _, host string) ([]netip.Addr, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.answers[host], nil
}

func TestDiscoverDedupesAndCaps(t *testing.T) {
	params := chain.MustGet(chain.Mainnet)
	log := logging.New(&logging.Config{Level: "error", Output: io.Discard})

	a := netip.MustParseAddr("10.0.0.1")
	bAddr := netip.MustParseAddr("10.0.0.2")
	c := netip.MustParseAddr("10.0.0.3")

	resolver := &stubResolver{answers: map[string][]netip.Addr{
		params.DNSSeeds[0]: {a, bAddr, a},
		params.DNSSeeds[1]: {bAddr, c},
	}}

	d := NewDiscoverer(params, resolver, log)

	peers := d.Discover(context.Background(), 0)
	if len(peers) != 3 {
		t.Fatalf("got %d peers, want 3 (deduped)", len(peers))
	}
	if peers[0].Addr != a || peers[1].Addr != bAddr || peers[2].Addr != c {
		t.Errorf("order not preserved: %v", peers)
	}
	for _, p := range peers {
		if p.Port != params.DefaultPort {
			t.Errorf("peer port = %d, want %d", p.Port, params.DefaultPort)
		}
	}

	capped := d.Discover(context.Background(), 2)
	if len(capped) != 2 {
		t.Errorf("limit not applied: got %d", len(capped))
	}
}

func TestDiscoverFailsOpen(t *testing.T) {
	params := chain.MustGet(chain.Testnet)
	log := logging.New(&logging.Config{Level: "error", Output: io.Discard})
	resolver := &stubResolver{err: errors.New("dns unreachable")}

	d := NewDiscoverer(params, resolver, log)
	peers := d.Discover(context.Background(), 8)
	if peers != nil && len(peers) != 0 {
		t.Errorf("expected empty result, got %v", peers)
	}
}
