package p2p

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quackstro/openclaw-doge/internal/chain"
	"github.com/quackstro/openclaw-doge/internal/wire"
	"github.com/quackstro/openclaw-doge/pkg/logging"
)

// Relay errors. Per-peer errors are terminal for that peer only; the
// broadcast as a whole fails with ErrBroadcastBelowThreshold when no peer
// completed the dialog.
var (
	ErrPeerTimeout             = errors.New("peer timed out")
	ErrPeerRejected            = errors.New("peer rejected transaction")
	ErrPeerSocket              = errors.New("peer socket error")
	ErrBroadcastBelowThreshold = errors.New("no peer accepted the transaction")
)

// Relay timing defaults.
const (
	DefaultFanOut        = 8
	DefaultDialTimeout   = 5 * time.Second
	DefaultHandshakeTime = 10 * time.Second
	DefaultDrainDelay    = 500 * time.Millisecond

	recvChunkSize = 4096
)

// peerState tracks the per-peer relay dialog.
type peerState int

const (
	stateDialing peerState = iota
	stateOpened            // TCP open, version sent
	stateHalf              // one of version/verack observed
	stateReady             // handshake complete, tx written
	stateDone              // drained and closed
	stateDead              // terminal failure
)

// BroadcastResult reports the outcome of a fan-out broadcast.
type BroadcastResult struct {
	Success      bool
	PeersReached uint32
}

// Broadcaster relays signed transactions directly to Dogecoin peers.
type Broadcaster struct {
	params  *chain.Params
	disc    *Discoverer
	log     *logging.Logger
	version string

	FanOut           int
	DialTimeout      time.Duration
	HandshakeTimeout time.Duration
	DrainDelay       time.Duration
}

// NewBroadcaster creates a Broadcaster for the given network.
func NewBroadcaster(params *chain.Params, disc *Discoverer, version string, log *logging.Logger) *Broadcaster {
	if log == nil {
		log = logging.GetDefault()
	}
	return &Broadcaster{
		params:           params,
		disc:             disc,
		log:              log.Component("relay"),
		version:          version,
		FanOut:           DefaultFanOut,
		DialTimeout:      DefaultDialTimeout,
		HandshakeTimeout: DefaultHandshakeTime,
		DrainDelay:       DefaultDrainDelay,
	}
}

// Broadcast discovers peers and fans the transaction out to up to FanOut of
// them concurrently. It succeeds iff at least one peer completed the full
// dialog. Peers are drained to completion even when the context is
// cancelled, because the transaction may already be on the wire.
func (b *Broadcaster) Broadcast(ctx context.Context, signedTxHex string) (BroadcastResult, error) {
	peers := b.disc.Discover(ctx, b.FanOut)
	return b.BroadcastToPeers(ctx, signedTxHex, peers)
}

// BroadcastToPeers relays to an explicit peer list.
func (b *Broadcaster) BroadcastToPeers(ctx context.Context, signedTxHex string, peers []PeerInfo) (BroadcastResult, error) {
	txRaw, err := hex.DecodeString(signedTxHex)
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("invalid transaction hex: %w", err)
	}
	if len(peers) == 0 {
		return BroadcastResult{}, ErrBroadcastBelowThreshold
	}
	if len(peers) > b.FanOut {
		peers = peers[:b.FanOut]
	}

	var reached atomic.Uint32
	var wg sync.WaitGroup

	for _, peer := range peers {
		wg.Add(1)
		go func(peer PeerInfo) {
			defer wg.Done()
			if err := b.relayToPeer(ctx, peer, txRaw); err != nil {
				b.log.Debug("Peer relay failed", "peer", peer.String(), "error", err)
				return
			}
			reached.Add(1)
			b.log.Debug("Peer accepted tx", "peer", peer.String())
		}(peer)
	}
	wg.Wait()

	result := BroadcastResult{
		Success:      reached.Load() > 0,
		PeersReached: reached.Load(),
	}
	if !result.Success {
		return result, ErrBroadcastBelowThreshold
	}
	b.log.Info("Transaction relayed", "peers", result.PeersReached, "of", len(peers))
	return result, nil
}

// relayToPeer runs the full per-peer dialog:
//
//	DIALING -> OPENED -> HALF -> READY -> DONE
//
// with DEAD on timeout, socket error, reject, or premature close.
func (b *Broadcaster) relayToPeer(ctx context.Context, peer PeerInfo, txRaw []byte) error {
	state := stateDialing

	conn, err := net.DialTimeout("tcp", peer.String(), b.DialTimeout)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPeerSocket, err)
	}
	defer conn.Close()
	state = stateOpened

	remote := netip.AddrPortFrom(peer.Addr, peer.Port)
	vp, err := wire.NewVersionPayload(chain.ProtocolVersion, b.params.Services, chain.UserAgent(b.version), remote, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPeerSocket, err)
	}
	versionMsg, err := wire.EncodeMessage(b.params.Magic, wire.CmdVersion, vp.Encode())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPeerSocket, err)
	}
	if _, err := conn.Write(versionMsg); err != nil {
		return fmt.Errorf("%w: %v", ErrPeerSocket, err)
	}

	// Handshake must complete within the handshake timeout.
	if err := conn.SetDeadline(time.Now().Add(b.HandshakeTimeout)); err != nil {
		return fmt.Errorf("%w: %v", ErrPeerSocket, err)
	}

	var (
		recv       []byte
		chunk      = make([]byte, recvChunkSize)
		sawVersion bool
		sawVerack  bool
		sentVerack bool
	)

	for state != stateReady {
		n, err := conn.Read(chunk)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return ErrPeerTimeout
			}
			return fmt.Errorf("%w: %v", ErrPeerSocket, err)
		}
		recv = append(recv, chunk[:n]...)

		for len(recv) >= wire.HeaderSize {
			h := wire.ParseHeader(recv, b.params.Magic)
			if h == nil {
				// Magic mismatch: resync by discarding one byte.
				recv = recv[1:]
				continue
			}
			if h.PayloadLen > wire.MaxPayloadSize {
				return fmt.Errorf("%w: oversized payload %d", ErrPeerSocket, h.PayloadLen)
			}
			total := wire.HeaderSize + int(h.PayloadLen)
			if len(recv) < total {
				break // wait for the rest of the message
			}
			payload := recv[wire.HeaderSize:total]

			switch h.Command {
			case wire.CmdVersion:
				sawVersion = true
				if !sentVerack {
					verack, err := wire.EncodeMessage(b.params.Magic, wire.CmdVerack, nil)
					if err != nil {
						return fmt.Errorf("%w: %v", ErrPeerSocket, err)
					}
					if _, err := conn.Write(verack); err != nil {
						return fmt.Errorf("%w: %v", ErrPeerSocket, err)
					}
					sentVerack = true
				}
			case wire.CmdVerack:
				sawVerack = true
			case wire.CmdReject:
				msg, code, reason := wire.DecodeReject(payload)
				b.log.Debug("Peer reject", "peer", peer.String(), "msg", msg, "code", code, "reason", reason)
				return ErrPeerRejected
			default:
				// All other commands are ignored during the dialog.
			}

			recv = recv[total:]

			if sawVersion && sawVerack {
				state = stateReady
				break
			}
			if sawVersion || sawVerack {
				state = stateHalf
			}
		}
	}

	// Handshake complete: cancel the deadline and write the transaction.
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return fmt.Errorf("%w: %v", ErrPeerSocket, err)
	}
	txMsg, err := wire.EncodeMessage(b.params.Magic, wire.CmdTx, txRaw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPeerSocket, err)
	}
	if _, err := conn.Write(txMsg); err != nil {
		return fmt.Errorf("%w: %v", ErrPeerSocket, err)
	}

	// Give the peer a moment to read the tx before closing. Cancellation is
	// not honored here: the tx may already be on the wire.
	timer := time.NewTimer(b.DrainDelay)
	defer timer.Stop()
	<-timer.C

	return nil
}
