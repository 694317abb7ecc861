package txbuilder

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Quackstro OP_RETURN payload framing: QP_MAGIC(4) || version(1) || type(1) || body.
var QPMagic = [4]byte{'Q', 'S', 'T', 'P'}

// QPVersion is the current payload version.
const QPVersion byte = 0x01

// Payload types.
const (
	TypeHTLCOffer byte = 0x01
	TypeHTLCClaim byte = 0x02
)

// Payload sizes including the 6-byte frame.
const (
	skillCodeSize    = 4
	offerReserved    = 5
	claimReserved    = 32
	OfferPayloadSize = 6 + 8 + 20 + 4 + 8 + 8 + skillCodeSize + 33 + offerReserved
	ClaimPayloadSize = 6 + 8 + 32 + 8 + 4 + claimReserved
)

// OfferPayload is the QP_HTLC_OFFER body announcing a funded escrow.
type OfferPayload struct {
	SessionID      uint64
	SecretHash     []byte // 20 bytes
	TimeoutBlock   uint32
	ToolPriceKoinu uint64
	FeeBufferKoinu uint64
	SkillCode      string // up to 4 ASCII bytes, NUL padded on the wire
	ConsumerPubKey []byte // 33 bytes
}

// Encode serializes the offer payload.
func (o *OfferPayload) Encode() ([]byte, error) {
	if len(o.SecretHash) != 20 {
		return nil, fmt.Errorf("offer payload: secret hash must be 20 bytes, got %d", len(o.SecretHash))
	}
	if len(o.ConsumerPubKey) != 33 {
		return nil, fmt.Errorf("offer payload: consumer pubkey must be 33 bytes, got %d", len(o.ConsumerPubKey))
	}
	if len(o.SkillCode) > skillCodeSize {
		return nil, fmt.Errorf("offer payload: skill code %q exceeds %d bytes", o.SkillCode, skillCodeSize)
	}

	buf := make([]byte, 0, OfferPayloadSize)
	buf = append(buf, QPMagic[:]...)
	buf = append(buf, QPVersion, TypeHTLCOffer)
	buf = binary.LittleEndian.AppendUint64(buf, o.SessionID)
	buf = append(buf, o.SecretHash...)
	buf = binary.LittleEndian.AppendUint32(buf, o.TimeoutBlock)
	buf = binary.LittleEndian.AppendUint64(buf, o.ToolPriceKoinu)
	buf = binary.LittleEndian.AppendUint64(buf, o.FeeBufferKoinu)

	var skill [skillCodeSize]byte
	copy(skill[:], o.SkillCode)
	buf = append(buf, skill[:]...)

	buf = append(buf, o.ConsumerPubKey...)
	buf = append(buf, make([]byte, offerReserved)...)
	return buf, nil
}

// ParseOfferPayload decodes a QP_HTLC_OFFER payload.
func ParseOfferPayload(buf []byte) (*OfferPayload, error) {
	if len(buf) != OfferPayloadSize {
		return nil, fmt.Errorf("offer payload: length %d, expected %d", len(buf), OfferPayloadSize)
	}
	if !bytes.Equal(buf[0:4], QPMagic[:]) {
		return nil, fmt.Errorf("offer payload: bad magic %x", buf[0:4])
	}
	if buf[4] != QPVersion {
		return nil, fmt.Errorf("offer payload: unsupported version %d", buf[4])
	}
	if buf[5] != TypeHTLCOffer {
		return nil, fmt.Errorf("offer payload: wrong type %#x", buf[5])
	}

	o := &OfferPayload{}
	off := 6
	o.SessionID = binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8
	o.SecretHash = append([]byte(nil), buf[off:off+20]...)
	off += 20
	o.TimeoutBlock = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	o.ToolPriceKoinu = binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8
	o.FeeBufferKoinu = binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8
	o.SkillCode = string(bytes.TrimRight(buf[off:off+skillCodeSize], "\x00"))
	off += skillCodeSize
	o.ConsumerPubKey = append([]byte(nil), buf[off:off+33]...)
	return o, nil
}

// ClaimPayload is the QP_HTLC_CLAIM body announcing a settled escrow.
// FundingTxID is in display order; the wire carries internal byte order.
type ClaimPayload struct {
	SessionID    uint64
	FundingTxID  string // display-order hex
	ClaimedKoinu uint64
	Timestamp    uint32 // unix seconds, truncated
}

// Encode serializes the claim payload, reversing the funding txid into
// internal byte order.
func (c *ClaimPayload) Encode() ([]byte, error) {
	hash, err := chainhash.NewHashFromStr(c.FundingTxID)
	if err != nil {
		return nil, fmt.Errorf("claim payload: bad funding txid: %w", err)
	}

	buf := make([]byte, 0, ClaimPayloadSize)
	buf = append(buf, QPMagic[:]...)
	buf = append(buf, QPVersion, TypeHTLCClaim)
	buf = binary.LittleEndian.AppendUint64(buf, c.SessionID)
	buf = append(buf, hash[:]...) // internal byte order
	buf = binary.LittleEndian.AppendUint64(buf, c.ClaimedKoinu)
	buf = binary.LittleEndian.AppendUint32(buf, c.Timestamp)
	buf = append(buf, make([]byte, claimReserved)...)
	return buf, nil
}

// ParseClaimPayload decodes a QP_HTLC_CLAIM payload, reversing the funding
// txid back to display order.
func ParseClaimPayload(buf []byte) (*ClaimPayload, error) {
	if len(buf) != ClaimPayloadSize {
		return nil, fmt.Errorf("claim payload: length %d, expected %d", len(buf), ClaimPayloadSize)
	}
	if !bytes.Equal(buf[0:4], QPMagic[:]) {
		return nil, fmt.Errorf("claim payload: bad magic %x", buf[0:4])
	}
	if buf[4] != QPVersion {
		return nil, fmt.Errorf("claim payload: unsupported version %d", buf[4])
	}
	if buf[5] != TypeHTLCClaim {
		return nil, fmt.Errorf("claim payload: wrong type %#x", buf[5])
	}

	c := &ClaimPayload{}
	off := 6
	c.SessionID = binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8

	var hash chainhash.Hash
	copy(hash[:], buf[off:off+32])
	c.FundingTxID = hash.String()
	off += 32

	c.ClaimedKoinu = binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8
	c.Timestamp = binary.LittleEndian.Uint32(buf[off : off+4])
	return c, nil
}
