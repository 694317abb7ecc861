package keys

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip39"

	"github.com/quackstro/openclaw-doge/internal/chain"
)

// hardened is the BIP-32 hardened derivation offset.
const hardened = 0x80000000

// Signer holds one derived spending key. It is the only type in the module
// that sees raw key bytes; Close zeroizes them.
type Signer struct {
	priv   *btcec.PrivateKey
	params *chain.Params
}

// NewSignerFromMnemonic derives the BIP-44 spending key
// m/44'/coin'/account'/0/index for the network and wraps it in a Signer.
func NewSignerFromMnemonic(mnemonic string, params *chain.Params, account, index uint32) (*Signer, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}
	seed := bip39.NewSeed(mnemonic, "")

	master, err := hdkeychain.NewMaster(seed, hdParams(params))
	if err != nil {
		return nil, fmt.Errorf("failed to derive master key: %w", err)
	}

	path := []uint32{
		44 + hardened,              // purpose'
		params.CoinType + hardened, // coin_type'
		account + hardened,         // account'
		0,                          // external chain
		index,                      // address_index
	}

	key := master
	for _, step := range path {
		key, err = key.Derive(step)
		if err != nil {
			return nil, fmt.Errorf("failed to derive child key: %w", err)
		}
	}

	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("failed to extract private key: %w", err)
	}

	return &Signer{priv: priv, params: params}, nil
}

// NewSignerFromKey wraps an existing private key. Used by tests and by
// recovery paths that already hold a derived key.
func NewSignerFromKey(priv *btcec.PrivateKey, params *chain.Params) *Signer {
	return &Signer{priv: priv, params: params}
}

// Sign produces a DER-encoded ECDSA signature over the 32-byte digest.
func (s *Signer) Sign(hash []byte) ([]byte, error) {
	if s.priv == nil {
		return nil, fmt.Errorf("signer is closed")
	}
	return btcecdsa.Sign(s.priv, hash).Serialize(), nil
}

// PubKey returns the compressed public key.
func (s *Signer) PubKey() []byte {
	if s.priv == nil {
		return nil
	}
	return s.priv.PubKey().SerializeCompressed()
}

// Address returns the P2PKH address for the signer's key.
func (s *Signer) Address() string {
	if s.priv == nil {
		return ""
	}
	hash := btcutil.Hash160(s.PubKey())
	return base58.CheckEncode(hash, s.params.PubKeyHashAddrID)
}

// Close zeroizes the private key. The signer is unusable afterwards.
func (s *Signer) Close() {
	if s.priv != nil {
		s.priv.Zero()
		s.priv = nil
	}
}

// hdParams maps the wallet's chain params onto a chaincfg.Params carrying
// the Dogecoin BIP-32 version bytes for hdkeychain.
func hdParams(params *chain.Params) *chaincfg.Params {
	p := chaincfg.MainNetParams
	p.Name = params.Name
	p.PubKeyHashAddrID = params.PubKeyHashAddrID
	p.ScriptHashAddrID = params.ScriptHashAddrID
	p.PrivateKeyID = params.WIF
	p.HDPrivateKeyID = params.HDPrivateKeyID
	p.HDPublicKeyID = params.HDPublicKeyID
	p.HDCoinType = params.CoinType
	return &p
}
