package htlc

import (
	"time"
)

// State is the lifecycle state of an HTLC record.
type State string

const (
	StateCreated        State = "created"
	StateFundingPending State = "funding_pending"
	StateActive         State = "active"
	StateClaimed        State = "claimed"
	StateRefunded       State = "refunded"
	StateExpired        State = "expired"
)

// validTransitions encodes the lifecycle DAG. Transitions are monotonic;
// anything not listed here is refused.
var validTransitions = map[State][]State{
	StateCreated:        {StateFundingPending},
	StateFundingPending: {StateActive},
	StateActive:         {StateClaimed, StateExpired},
	StateExpired:        {StateRefunded},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to State) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Record is the persistent lifecycle state of one HTLC. Byte fields are
// stored hex-encoded. The secret preimage is never part of the record; the
// provider manager keeps it separately in zeroizable memory.
type Record struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	SkillCode string `json:"skill_code"`
	State     State  `json:"state"`

	SecretHash     string `json:"secret_hash"`
	ProviderPubKey string `json:"provider_pubkey"`
	ConsumerPubKey string `json:"consumer_pubkey"`
	TimeoutBlock   uint32 `json:"timeout_block"`

	RedeemScript string `json:"redeem_script"`
	P2SHAddress  string `json:"p2sh_address"`
	AmountKoinu  uint64 `json:"amount_koinu"`

	FundingTxID string `json:"funding_txid,omitempty"`
	ClaimTxID   string `json:"claim_txid,omitempty"`
	RefundTxID  string `json:"refund_txid,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a copy of the record safe to hand to callers.
func (r *Record) Clone() *Record {
	cp := *r
	return &cp
}
