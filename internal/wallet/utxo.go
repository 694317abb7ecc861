// Package wallet maintains the UTXO cache: refresh-merge against the chain
// data provider, lock bookkeeping for funds in flight, coin selection, and
// balance views.
package wallet

import (
	"fmt"
	"time"
)

// Outpoint uniquely identifies a UTXO by (txid, vout).
type Outpoint struct {
	TxID string
	Vout uint32
}

// String formats the outpoint as txid:vout.
func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID, o.Vout)
}

// UTXO is a cached unspent output with local lock metadata. Lock state has
// no wire meaning; it only guards against double-selection while a spend is
// in flight.
type UTXO struct {
	TxID          string `json:"txid"`
	Vout          uint32 `json:"vout"`
	AmountKoinu   uint64 `json:"amount_koinu"`
	Script        string `json:"script,omitempty"`
	Confirmations uint32 `json:"confirmations"`

	Locked    bool       `json:"locked"`
	LockedAt  *time.Time `json:"locked_at,omitempty"`
	LockedFor string     `json:"locked_for,omitempty"`
}

// Outpoint returns the UTXO's key.
func (u *UTXO) Outpoint() Outpoint {
	return Outpoint{TxID: u.TxID, Vout: u.Vout}
}

// Balance is a koinu balance snapshot. Locked UTXOs are excluded from every
// field.
type Balance struct {
	ConfirmedKoinu   uint64 `json:"confirmed"`
	UnconfirmedKoinu uint64 `json:"unconfirmed"`
	TotalKoinu       uint64 `json:"total"`
}

// Selector chooses UTXOs summing to at least target from the supplied
// candidates. Candidates are all unlocked; the selector must not mutate
// them.
type Selector func(candidates []UTXO, targetKoinu uint64) ([]UTXO, error)

// LargestFirst is the default selector: greedy descending by amount.
func LargestFirst(candidates []UTXO, targetKoinu uint64) ([]UTXO, error) {
	sorted := make([]UTXO, len(candidates))
	copy(sorted, candidates)

	// Simple insertion sort, descending.
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].AmountKoinu > sorted[j-1].AmountKoinu; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	var selected []UTXO
	var total uint64
	for _, u := range sorted {
		selected = append(selected, u)
		total += u.AmountKoinu
		if total >= targetKoinu {
			return selected, nil
		}
	}
	return nil, fmt.Errorf("insufficient unlocked funds: need %d koinu, have %d", targetKoinu, total)
}
