// Package provider defines the chain-data provider interface the wallet
// consumes for UTXO sets, confirmation counts, and block height. The wallet
// trusts the provider for historical data only; transaction relay goes
// through the P2P layer.
package provider

import (
	"context"
	"errors"
)

// ErrProvider wraps any provider transport or decoding failure. Callers
// retry; the UTXO cache is never collapsed on provider failure.
var ErrProvider = errors.New("chain data provider error")

// UTXO is an unspent output as reported by the provider.
type UTXO struct {
	TxID          string `json:"txid"`
	Vout          uint32 `json:"vout"`
	AmountKoinu   uint64 `json:"value"`
	Script        string `json:"script,omitempty"` // hex encoded
	Confirmations uint32 `json:"confirmations"`
}

// TxStatus reports confirmation state for a transaction.
type TxStatus struct {
	Confirmations uint32 `json:"confirmations"`
	BlockHeight   int64  `json:"block_height"`
}

// FeeEstimate is an optional fee hint in koinu per kilobyte.
type FeeEstimate struct {
	PerKB uint64 `json:"per_kb"`
}

// ChainDataProvider is the read-only view of the Dogecoin chain.
type ChainDataProvider interface {
	GetUTXOs(ctx context.Context, address string) ([]UTXO, error)
	GetTxStatus(ctx context.Context, txid string) (*TxStatus, error)
	GetBlockHeight(ctx context.Context) (int64, error)
}

// FeeEstimator is implemented by providers that can suggest a fee rate.
type FeeEstimator interface {
	EstimateFeePerKB(ctx context.Context) (*FeeEstimate, error)
}
