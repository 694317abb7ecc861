// Package htlc builds, parses, and tracks Hash Time-Locked Contracts for the
// Quackstro payment escrow protocol on Dogecoin.
//
// The redeem script uses a hash-preimage claim branch for the provider and a
// CLTV refund branch for the consumer. Dogecoin has no SegWit, so spends use
// legacy P2SH scriptSigs rather than witnesses.
package htlc

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/txscript"
)

// Script errors.
var (
	ErrInvalidParam    = errors.New("invalid htlc param")
	ErrMalformedScript = errors.New("malformed htlc script")
)

// Field sizes.
const (
	SecretSize     = 32 // preimage length
	SecretHashSize = 20 // HASH160 output
	PubKeySize     = 33 // compressed secp256k1

	// RedeemScriptSize is the exact length of a well-formed redeem script.
	RedeemScriptSize = 103
)

// Byte offsets within the 103-byte redeem script.
const (
	offIf           = 0
	offHash160      = 1
	offHashPush     = 2
	offHash         = 3
	offEqualVerify  = 23
	offProviderPush = 24
	offProvider     = 25
	offChecksig1    = 58
	offElse         = 59
	offTimeoutPush  = 60
	offTimeout      = 61
	offCLTV         = 65
	offDrop         = 66
	offConsumerPush = 67
	offConsumer     = 68
	offChecksig2    = 101
	offEndif        = 102
)

// Params are the four values that define an HTLC.
type Params struct {
	SecretHash     []byte // 20 bytes, HASH160 of the secret
	ProviderPubKey []byte // 33 bytes, claims with the secret
	ConsumerPubKey []byte // 33 bytes, refunds after the timeout
	TimeoutBlock   uint32 // absolute block height for CLTV
}

// Validate checks field lengths and the timeout range.
func (p *Params) Validate() error {
	if len(p.SecretHash) != SecretHashSize {
		return fmt.Errorf("%w: secret hash must be %d bytes, got %d", ErrInvalidParam, SecretHashSize, len(p.SecretHash))
	}
	if len(p.ProviderPubKey) != PubKeySize {
		return fmt.Errorf("%w: provider pubkey must be %d bytes, got %d", ErrInvalidParam, PubKeySize, len(p.ProviderPubKey))
	}
	if len(p.ConsumerPubKey) != PubKeySize {
		return fmt.Errorf("%w: consumer pubkey must be %d bytes, got %d", ErrInvalidParam, PubKeySize, len(p.ConsumerPubKey))
	}
	if p.TimeoutBlock == 0 {
		return fmt.Errorf("%w: timeout block must be greater than 0", ErrInvalidParam)
	}
	return nil
}

// BuildRedeemScript creates the HTLC redeem script.
//
// Script structure:
//
//	OP_IF
//	    OP_HASH160 <secret_hash> OP_EQUALVERIFY
//	    <provider_pubkey> OP_CHECKSIG
//	OP_ELSE
//	    <timeout_block u32 LE> OP_CHECKLOCKTIMEVERIFY OP_DROP
//	    <consumer_pubkey> OP_CHECKSIG
//	OP_ENDIF
//
// The result is always exactly RedeemScriptSize bytes.
func BuildRedeemScript(p *Params) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var timeout [4]byte
	binary.LittleEndian.PutUint32(timeout[:], p.TimeoutBlock)

	builder := txscript.NewScriptBuilder()

	// Claim branch
	builder.AddOp(txscript.OP_IF)
	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(p.SecretHash)
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddData(p.ProviderPubKey)
	builder.AddOp(txscript.OP_CHECKSIG)

	// Refund branch
	builder.AddOp(txscript.OP_ELSE)
	builder.AddData(timeout[:])
	builder.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddData(p.ConsumerPubKey)
	builder.AddOp(txscript.OP_CHECKSIG)

	builder.AddOp(txscript.OP_ENDIF)

	script, err := builder.Script()
	if err != nil {
		return nil, fmt.Errorf("failed to build redeem script: %w", err)
	}
	if len(script) != RedeemScriptSize {
		return nil, fmt.Errorf("redeem script is %d bytes, expected %d", len(script), RedeemScriptSize)
	}
	return script, nil
}

// ParseRedeemScript validates every byte position of a redeem script and
// extracts its parameters. Any deviation is ErrMalformedScript.
func ParseRedeemScript(script []byte) (*Params, error) {
	if len(script) != RedeemScriptSize {
		return nil, fmt.Errorf("%w: length %d, expected %d", ErrMalformedScript, len(script), RedeemScriptSize)
	}

	expectOp := func(off int, op byte, name string) error {
		if script[off] != op {
			return fmt.Errorf("%w: expected %s at offset %d, got 0x%02X", ErrMalformedScript, name, off, script[off])
		}
		return nil
	}

	checks := []struct {
		off  int
		op   byte
		name string
	}{
		{offIf, txscript.OP_IF, "OP_IF"},
		{offHash160, txscript.OP_HASH160, "OP_HASH160"},
		{offHashPush, txscript.OP_DATA_20, "PUSH20"},
		{offEqualVerify, txscript.OP_EQUALVERIFY, "OP_EQUALVERIFY"},
		{offProviderPush, txscript.OP_DATA_33, "PUSH33"},
		{offChecksig1, txscript.OP_CHECKSIG, "OP_CHECKSIG"},
		{offElse, txscript.OP_ELSE, "OP_ELSE"},
		{offTimeoutPush, txscript.OP_DATA_4, "PUSH4"},
		{offCLTV, txscript.OP_CHECKLOCKTIMEVERIFY, "OP_CHECKLOCKTIMEVERIFY"},
		{offDrop, txscript.OP_DROP, "OP_DROP"},
		{offConsumerPush, txscript.OP_DATA_33, "PUSH33"},
		{offChecksig2, txscript.OP_CHECKSIG, "OP_CHECKSIG"},
		{offEndif, txscript.OP_ENDIF, "OP_ENDIF"},
	}
	for _, c := range checks {
		if err := expectOp(c.off, c.op, c.name); err != nil {
			return nil, err
		}
	}

	p := &Params{
		SecretHash:     append([]byte(nil), script[offHash:offHash+SecretHashSize]...),
		ProviderPubKey: append([]byte(nil), script[offProvider:offProvider+PubKeySize]...),
		ConsumerPubKey: append([]byte(nil), script[offConsumer:offConsumer+PubKeySize]...),
		TimeoutBlock:   binary.LittleEndian.Uint32(script[offTimeout : offTimeout+4]),
	}
	if p.TimeoutBlock == 0 {
		return nil, fmt.Errorf("%w: zero timeout block", ErrMalformedScript)
	}
	return p, nil
}

// ScriptHash returns HASH160 of the redeem script.
func ScriptHash(redeemScript []byte) []byte {
	return btcutil.Hash160(redeemScript)
}

// P2SHAddress returns the Base58Check P2SH address for a redeem script under
// the given script-hash version byte.
func P2SHAddress(redeemScript []byte, scriptHashAddrID byte) string {
	return base58.CheckEncode(ScriptHash(redeemScript), scriptHashAddrID)
}

// maxPushData1 is the largest payload representable with OP_PUSHDATA1.
const maxPushData1 = 255

// appendPush appends a data push: a direct length byte up to 75 bytes,
// OP_PUSHDATA1 up to 255. Larger pushes never occur for this script family
// and are rejected.
func appendPush(dst, data []byte) ([]byte, error) {
	switch {
	case len(data) <= txscript.OP_DATA_75:
		dst = append(dst, byte(len(data)))
	case len(data) <= maxPushData1:
		dst = append(dst, txscript.OP_PUSHDATA1, byte(len(data)))
	default:
		return nil, fmt.Errorf("%w: push of %d bytes exceeds limit", ErrMalformedScript, len(data))
	}
	return append(dst, data...), nil
}

// BuildClaimScriptSig assembles the scriptSig spending the HTLC through the
// claim branch: <sig+hashtype> <secret> OP_TRUE <redeem_script>.
func BuildClaimScriptSig(sigWithHashType, secret, redeemScript []byte) ([]byte, error) {
	if len(secret) != SecretSize {
		return nil, fmt.Errorf("%w: secret must be %d bytes, got %d", ErrInvalidParam, SecretSize, len(secret))
	}

	var out []byte
	var err error
	if out, err = appendPush(out, sigWithHashType); err != nil {
		return nil, err
	}
	if out, err = appendPush(out, secret); err != nil {
		return nil, err
	}
	out = append(out, txscript.OP_TRUE)
	return appendPush(out, redeemScript)
}

// BuildRefundScriptSig assembles the scriptSig spending the HTLC through the
// refund branch: <sig+hashtype> OP_FALSE <redeem_script>.
func BuildRefundScriptSig(sigWithHashType, redeemScript []byte) ([]byte, error) {
	var out []byte
	var err error
	if out, err = appendPush(out, sigWithHashType); err != nil {
		return nil, err
	}
	out = append(out, txscript.OP_FALSE)
	return appendPush(out, redeemScript)
}
