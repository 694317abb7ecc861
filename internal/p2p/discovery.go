// Package p2p implements peer discovery and direct transaction relay over
// the Dogecoin wire protocol.
package p2p

import (
	"context"
	"net"
	"net/netip"

	"github.com/quackstro/openclaw-doge/internal/chain"
	"github.com/quackstro/openclaw-doge/pkg/logging"
)

// PeerInfo identifies a candidate peer endpoint. Peers are ephemeral and
// never persisted.
type PeerInfo struct {
	Addr netip.Addr
	Port uint16
}

// String returns the dialable host:port form.
func (p PeerInfo) String() string {
	return netip.AddrPortFrom(p.Addr, p.Port).String()
}

// Resolver is the subset of net.Resolver used for seed lookups.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// Discoverer resolves DNS seeds into candidate peers.
type Discoverer struct {
	params   *chain.Params
	resolver Resolver
	log      *logging.Logger
}

// NewDiscoverer creates a Discoverer for the given network. A nil resolver
// uses the system default.
func NewDiscoverer(params *chain.Params, resolver Resolver, log *logging.Logger) *Discoverer {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if log == nil {
		log = logging.GetDefault()
	}
	return &Discoverer{params: params, resolver: resolver, log: log}
}

// Discover resolves the network's DNS seeds and returns up to limit peers,
// ordered by seed then answer order, deduplicated by IP. Discovery fails
// open: resolution failures are logged and an empty list is returned rather
// than an error.
func (d *Discoverer) Discover(ctx context.Context, limit int) []PeerInfo {
	seen := make(map[netip.Addr]struct{})
	var peers []PeerInfo

	for _, seed := range d.params.DNSSeeds {
		addrs, err := d.resolver.LookupNetIP(ctx, "ip", seed)
		if err != nil {
			d.log.Debug("Seed lookup failed", "seed", seed, "error", err)
			continue
		}

		for _, addr := range addrs {
			addr = addr.Unmap()
			if _, dup := seen[addr]; dup {
				continue
			}
			seen[addr] = struct{}{}
			peers = append(peers, PeerInfo{Addr: addr, Port: d.params.DefaultPort})
			if limit > 0 && len(peers) >= limit {
				return peers
			}
		}
	}

	if len(peers) == 0 {
		d.log.Warn("Peer discovery returned no peers", "seeds", len(d.params.DNSSeeds))
	}
	return peers
}
