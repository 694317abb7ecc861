// Package txbuilder fabricates the wallet's Dogecoin transactions: plain
// spends, HTLC funding with the QP announcement output, and the HTLC claim
// and refund spends. All signatures are ECDSA over secp256k1 with
// SIGHASH_ALL appended to the DER encoding.
package txbuilder

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	btcwire "github.com/btcsuite/btcd/wire"

	"github.com/quackstro/openclaw-doge/internal/chain"
	"github.com/quackstro/openclaw-doge/internal/htlc"
)

// Builder errors.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrFeeExceedsValue   = errors.New("fee exceeds htlc value")
)

// txVersion is the Dogecoin transaction version.
const txVersion = 1

// cltvSequence enables OP_CHECKLOCKTIMEVERIFY evaluation on refund inputs.
const cltvSequence uint32 = 0xFFFFFFFE

// Signer produces DER-encoded ECDSA signatures over secp256k1. The keystore
// provides the implementation; raw key bytes never reach this package.
type Signer interface {
	Sign(hash []byte) ([]byte, error)
	PubKey() []byte // compressed, 33 bytes
}

// Input references a previous output to spend. TxID is display-order hex.
type Input struct {
	TxID        string
	Vout        uint32
	AmountKoinu uint64
}

// Result is a fully signed transaction ready for relay.
type Result struct {
	Tx       *btcwire.MsgTx
	Hex      string
	TxID     string // display order
	FeeKoinu uint64
}

// FundingRequest describes an HTLC funding transaction.
type FundingRequest struct {
	Params *chain.Params
	Signer Signer

	// Inputs all belong to SenderAddress, which also receives change.
	Inputs        []Input
	SenderAddress string

	RedeemScript []byte
	Offer        OfferPayload

	FeePerKB uint64 // 0 uses DefaultFeePerKB
}

// BuildFundingTx builds and signs the HTLC funding transaction. Output
// order is fixed: the P2SH escrow, the QP_HTLC_OFFER announcement, then
// change back to the sender when above the dust threshold.
func BuildFundingTx(req *FundingRequest) (*Result, error) {
	if len(req.Inputs) == 0 {
		return nil, fmt.Errorf("%w: no inputs provided", ErrInsufficientFunds)
	}

	escrowAmount := req.Offer.ToolPriceKoinu + req.Offer.FeeBufferKoinu
	fee := EstimateFee(FundingTxSize, req.FeePerKB)

	var totalIn uint64
	for _, in := range req.Inputs {
		totalIn += in.AmountKoinu
	}
	if totalIn < escrowAmount+fee {
		return nil, fmt.Errorf("%w: need %d koinu, have %d", ErrInsufficientFunds, escrowAmount+fee, totalIn)
	}

	tx := btcwire.NewMsgTx(txVersion)
	if err := addInputs(tx, req.Inputs, 0); err != nil {
		return nil, err
	}

	// Output 1: P2SH escrow.
	p2shScript, err := p2shOutputScript(req.RedeemScript)
	if err != nil {
		return nil, err
	}
	tx.AddTxOut(btcwire.NewTxOut(int64(escrowAmount), p2shScript))

	// Output 2: QP_HTLC_OFFER announcement.
	payload, err := req.Offer.Encode()
	if err != nil {
		return nil, err
	}
	nullData, err := nullDataScript(payload)
	if err != nil {
		return nil, err
	}
	tx.AddTxOut(btcwire.NewTxOut(0, nullData))

	// Output 3: change when above dust.
	change := totalIn - escrowAmount - fee
	if change > DustThresholdKoinu {
		changeScript, err := addressOutputScript(req.SenderAddress, req.Params)
		if err != nil {
			return nil, fmt.Errorf("invalid change address: %w", err)
		}
		tx.AddTxOut(btcwire.NewTxOut(int64(change), changeScript))
	}

	senderScript, err := addressOutputScript(req.SenderAddress, req.Params)
	if err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := signP2PKHInputs(tx, senderScript, req.Signer); err != nil {
		return nil, err
	}

	return finalize(tx, fee)
}

// ClaimRequest describes the provider's claim spend of an HTLC output.
type ClaimRequest struct {
	Params *chain.Params
	Signer Signer

	HTLCOutpoint    Input
	RedeemScript    []byte
	Secret          []byte
	ProviderAddress string

	FeePerKB uint64
}

// BuildClaimTx builds and signs the claim transaction: one input spending
// the HTLC output through the secret branch, one output to the provider.
func BuildClaimTx(req *ClaimRequest) (*Result, error) {
	fee := EstimateFee(ClaimTxSize, req.FeePerKB)
	if fee >= req.HTLCOutpoint.AmountKoinu {
		return nil, fmt.Errorf("%w: fee %d, htlc value %d", ErrFeeExceedsValue, fee, req.HTLCOutpoint.AmountKoinu)
	}

	tx := btcwire.NewMsgTx(txVersion)
	if err := addInputs(tx, []Input{req.HTLCOutpoint}, 0); err != nil {
		return nil, err
	}

	destScript, err := addressOutputScript(req.ProviderAddress, req.Params)
	if err != nil {
		return nil, fmt.Errorf("invalid provider address: %w", err)
	}
	tx.AddTxOut(btcwire.NewTxOut(int64(req.HTLCOutpoint.AmountKoinu-fee), destScript))

	sig, err := signInput(tx, 0, req.RedeemScript, req.Signer)
	if err != nil {
		return nil, err
	}
	scriptSig, err := htlc.BuildClaimScriptSig(sig, req.Secret, req.RedeemScript)
	if err != nil {
		return nil, err
	}
	tx.TxIn[0].SignatureScript = scriptSig

	return finalize(tx, fee)
}

// RefundRequest describes the consumer's refund spend after the timeout.
type RefundRequest struct {
	Params *chain.Params
	Signer Signer

	HTLCOutpoint    Input
	RedeemScript    []byte
	ConsumerAddress string

	FeePerKB uint64
}

// BuildRefundTx builds and signs the refund transaction. nLockTime is set
// to the script's timeout block and the input sequence enables CLTV.
func BuildRefundTx(req *RefundRequest) (*Result, error) {
	params, err := htlc.ParseRedeemScript(req.RedeemScript)
	if err != nil {
		return nil, err
	}

	fee := EstimateFee(RefundTxSize, req.FeePerKB)
	if fee >= req.HTLCOutpoint.AmountKoinu {
		return nil, fmt.Errorf("%w: fee %d, htlc value %d", ErrFeeExceedsValue, fee, req.HTLCOutpoint.AmountKoinu)
	}

	tx := btcwire.NewMsgTx(txVersion)
	tx.LockTime = params.TimeoutBlock
	if err := addInputs(tx, []Input{req.HTLCOutpoint}, cltvSequence); err != nil {
		return nil, err
	}

	destScript, err := addressOutputScript(req.ConsumerAddress, req.Params)
	if err != nil {
		return nil, fmt.Errorf("invalid consumer address: %w", err)
	}
	tx.AddTxOut(btcwire.NewTxOut(int64(req.HTLCOutpoint.AmountKoinu-fee), destScript))

	sig, err := signInput(tx, 0, req.RedeemScript, req.Signer)
	if err != nil {
		return nil, err
	}
	scriptSig, err := htlc.BuildRefundScriptSig(sig, req.RedeemScript)
	if err != nil {
		return nil, err
	}
	tx.TxIn[0].SignatureScript = scriptSig

	return finalize(tx, fee)
}

// SendRequest describes a plain P2PKH spend.
type SendRequest struct {
	Params *chain.Params
	Signer Signer

	Inputs        []Input
	SenderAddress string
	ToAddress     string
	AmountKoinu   uint64

	FeePerKB uint64
}

// BuildSendTx builds and signs a plain spend to a single destination with
// change back to the sender.
func BuildSendTx(req *SendRequest) (*Result, error) {
	if len(req.Inputs) == 0 {
		return nil, fmt.Errorf("%w: no inputs provided", ErrInsufficientFunds)
	}

	// Size estimate: overhead + P2PKH inputs + two P2PKH outputs.
	size := 10 + len(req.Inputs)*148 + 2*34
	fee := EstimateFee(size, req.FeePerKB)

	var totalIn uint64
	for _, in := range req.Inputs {
		totalIn += in.AmountKoinu
	}
	if totalIn < req.AmountKoinu+fee {
		return nil, fmt.Errorf("%w: need %d koinu, have %d", ErrInsufficientFunds, req.AmountKoinu+fee, totalIn)
	}

	tx := btcwire.NewMsgTx(txVersion)
	if err := addInputs(tx, req.Inputs, 0); err != nil {
		return nil, err
	}

	destScript, err := addressOutputScript(req.ToAddress, req.Params)
	if err != nil {
		return nil, fmt.Errorf("invalid destination address: %w", err)
	}
	tx.AddTxOut(btcwire.NewTxOut(int64(req.AmountKoinu), destScript))

	change := totalIn - req.AmountKoinu - fee
	if change > DustThresholdKoinu {
		changeScript, err := addressOutputScript(req.SenderAddress, req.Params)
		if err != nil {
			return nil, fmt.Errorf("invalid change address: %w", err)
		}
		tx.AddTxOut(btcwire.NewTxOut(int64(change), changeScript))
	}

	senderScript, err := addressOutputScript(req.SenderAddress, req.Params)
	if err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := signP2PKHInputs(tx, senderScript, req.Signer); err != nil {
		return nil, err
	}

	return finalize(tx, fee)
}

// addInputs appends unsigned inputs with the given sequence (0 means the
// wire default).
func addInputs(tx *btcwire.MsgTx, inputs []Input, sequence uint32) error {
	for _, in := range inputs {
		hash, err := chainhash.NewHashFromStr(in.TxID)
		if err != nil {
			return fmt.Errorf("invalid txid %s: %w", in.TxID, err)
		}
		txIn := btcwire.NewTxIn(btcwire.NewOutPoint(hash, in.Vout), nil, nil)
		if sequence != 0 {
			txIn.Sequence = sequence
		}
		tx.AddTxIn(txIn)
	}
	return nil
}

// signInput computes the legacy SIGHASH_ALL digest for input idx against
// script and returns the DER signature with the hash type byte appended.
func signInput(tx *btcwire.MsgTx, idx int, script []byte, signer Signer) ([]byte, error) {
	hash, err := txscript.CalcSignatureHash(script, txscript.SigHashAll, tx, idx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute sighash: %w", err)
	}
	sig, err := signer.Sign(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to sign input %d: %w", idx, err)
	}
	return append(sig, byte(txscript.SigHashAll)), nil
}

// signP2PKHInputs signs every input against the sender's P2PKH script.
func signP2PKHInputs(tx *btcwire.MsgTx, senderScript []byte, signer Signer) error {
	for i := range tx.TxIn {
		sig, err := signInput(tx, i, senderScript, signer)
		if err != nil {
			return err
		}
		builder := txscript.NewScriptBuilder()
		builder.AddData(sig)
		builder.AddData(signer.PubKey())
		scriptSig, err := builder.Script()
		if err != nil {
			return fmt.Errorf("failed to build scriptSig: %w", err)
		}
		tx.TxIn[i].SignatureScript = scriptSig
	}
	return nil
}

// finalize serializes the transaction.
func finalize(tx *btcwire.MsgTx, fee uint64) (*Result, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize transaction: %w", err)
	}
	return &Result{
		Tx:       tx,
		Hex:      hex.EncodeToString(buf.Bytes()),
		TxID:     tx.TxHash().String(),
		FeeKoinu: fee,
	}, nil
}

// p2shOutputScript builds the canonical 23-byte P2SH scriptPubKey
// OP_HASH160 <script_hash> OP_EQUAL for a redeem script.
func p2shOutputScript(redeemScript []byte) ([]byte, error) {
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(htlc.ScriptHash(redeemScript))
	builder.AddOp(txscript.OP_EQUAL)
	script, err := builder.Script()
	if err != nil {
		return nil, fmt.Errorf("failed to build p2sh script: %w", err)
	}
	return script, nil
}

// nullDataScript builds OP_RETURN <payload>. The QP payloads exceed the
// 80-byte standardness default used by txscript.NullDataScript, so the
// script is assembled directly.
func nullDataScript(payload []byte) ([]byte, error) {
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_RETURN)
	builder.AddData(payload)
	script, err := builder.Script()
	if err != nil {
		return nil, fmt.Errorf("failed to build op_return script: %w", err)
	}
	return script, nil
}

// addressOutputScript decodes a Base58Check address for the network and
// returns its standard output script.
func addressOutputScript(address string, params *chain.Params) ([]byte, error) {
	decoded, version, err := base58.CheckDecode(address)
	if err != nil {
		return nil, fmt.Errorf("bad address %q: %w", address, err)
	}
	if len(decoded) != 20 {
		return nil, fmt.Errorf("bad address %q: hash is %d bytes", address, len(decoded))
	}

	builder := txscript.NewScriptBuilder()
	switch version {
	case params.PubKeyHashAddrID:
		builder.AddOp(txscript.OP_DUP)
		builder.AddOp(txscript.OP_HASH160)
		builder.AddData(decoded)
		builder.AddOp(txscript.OP_EQUALVERIFY)
		builder.AddOp(txscript.OP_CHECKSIG)
	case params.ScriptHashAddrID:
		builder.AddOp(txscript.OP_HASH160)
		builder.AddData(decoded)
		builder.AddOp(txscript.OP_EQUAL)
	default:
		return nil, fmt.Errorf("address %q has version %#x, not valid for %s", address, version, params.Name)
	}
	return builder.Script()
}
