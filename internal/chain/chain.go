// Package chain defines Dogecoin network parameters.
// All network-specific values are hardcoded here - no external configuration needed.
package chain

import "fmt"

// Network represents mainnet or testnet.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

// ProtocolVersion is the P2P protocol version advertised in version messages.
const ProtocolVersion uint32 = 70015

// UserAgentName is the name portion of the advertised user agent.
const UserAgentName = "OpenClawDoge"

// Params contains all parameters for a Dogecoin network.
type Params struct {
	// Identity
	Name string
	Net  Network

	// Wire protocol
	Magic       uint32 // network magic, written little-endian on the wire
	DefaultPort uint16
	Services    uint64 // service bits advertised in version messages

	// DNS seeds for peer discovery
	DNSSeeds []string

	// Address prefixes
	PubKeyHashAddrID byte // P2PKH version byte
	ScriptHashAddrID byte // P2SH version byte
	WIF              byte // private key prefix

	// BIP32 HD key prefixes (dgpv/dgub on mainnet)
	HDPrivateKeyID [4]byte
	HDPublicKeyID  [4]byte

	// BIP44 coin type
	CoinType uint32
}

// UserAgent returns the user agent string for the given semantic version,
// e.g. "/OpenClawDoge:0.1.0/".
func UserAgent(version string) string {
	return fmt.Sprintf("/%s:%s/", UserAgentName, version)
}

// Registry holds params indexed by network.
var registry = make(map[Network]*Params)

// Register adds network params to the registry.
func Register(network Network, params *Params) {
	registry[network] = params
}

// Get returns params for a network.
func Get(network Network) (*Params, bool) {
	params, ok := registry[network]
	return params, ok
}

// MustGet returns params for a network, panicking if unregistered.
// Only for use at startup with the two built-in networks.
func MustGet(network Network) *Params {
	params, ok := registry[network]
	if !ok {
		panic(fmt.Sprintf("chain: network %q not registered", network))
	}
	return params
}
