package htlc

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quackstro/openclaw-doge/internal/chain"
	"github.com/quackstro/openclaw-doge/internal/provider"
	"github.com/quackstro/openclaw-doge/pkg/helpers"
	"github.com/quackstro/openclaw-doge/pkg/logging"
)

// Role distinguishes the two sides of an HTLC session.
type Role string

const (
	// RoleProvider generates and holds the secret and claims the HTLC.
	RoleProvider Role = "provider"
	// RoleConsumer funds the HTLC and refunds it after the timeout. It
	// never holds the secret until it is revealed on-chain.
	RoleConsumer Role = "consumer"
)

// Manager drives HTLC records through their lifecycle. State transitions
// follow the DAG in record.go; an out-of-order request is a benign no-op
// (the current record and ok=false are returned, never an error).
type Manager struct {
	mu     sync.Mutex
	role   Role
	store  RecordStore
	params *chain.Params
	log    *logging.Logger

	// secrets maps record id to preimage. Provider side only; zeroized on
	// Close and never written to the record store.
	secrets map[string][]byte
}

// NewProviderManager creates the provider-side manager.
func NewProviderManager(store RecordStore, params *chain.Params, log *logging.Logger) *Manager {
	return newManager(RoleProvider, store, params, log)
}

// NewConsumerManager creates the consumer-side manager.
func NewConsumerManager(store RecordStore, params *chain.Params, log *logging.Logger) *Manager {
	return newManager(RoleConsumer, store, params, log)
}

func newManager(role Role, store RecordStore, params *chain.Params, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.GetDefault()
	}
	return &Manager{
		role:    role,
		store:   store,
		params:  params,
		log:     log.Component("htlc"),
		secrets: make(map[string][]byte),
	}
}

// Role returns the manager's role.
func (m *Manager) Role() Role { return m.role }

// Create registers a new HTLC in state created. On the provider side a
// secret must be supplied and is retained in memory; on the consumer side
// secret must be nil.
func (m *Manager) Create(p *Params, sessionID, skillCode string, amountKoinu uint64, secret []byte) (*Record, error) {
	script, err := BuildRedeemScript(p)
	if err != nil {
		return nil, err
	}

	switch m.role {
	case RoleProvider:
		if !VerifySecret(secret, p.SecretHash) {
			return nil, fmt.Errorf("%w: secret does not match hash", ErrInvalidParam)
		}
	case RoleConsumer:
		if secret != nil {
			return nil, fmt.Errorf("%w: consumer must not hold the secret", ErrInvalidParam)
		}
	}

	now := time.Now().UTC()
	r := &Record{
		ID:             uuid.New().String(),
		SessionID:      sessionID,
		SkillCode:      skillCode,
		State:          StateCreated,
		SecretHash:     hex.EncodeToString(p.SecretHash),
		ProviderPubKey: hex.EncodeToString(p.ProviderPubKey),
		ConsumerPubKey: hex.EncodeToString(p.ConsumerPubKey),
		TimeoutBlock:   p.TimeoutBlock,
		RedeemScript:   hex.EncodeToString(script),
		P2SHAddress:    P2SHAddress(script, m.params.ScriptHashAddrID),
		AmountKoinu:    amountKoinu,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Put(r); err != nil {
		return nil, err
	}
	if m.role == RoleProvider {
		m.secrets[r.ID] = append([]byte(nil), secret...)
	}

	m.log.Info("HTLC created", "id", r.ID, "session", sessionID, "address", r.P2SHAddress, "timeout", p.TimeoutBlock)
	return r.Clone(), nil
}

// Secret returns the held preimage for a record. Provider side only.
func (m *Manager) Secret(id string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.secrets[id]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), s...), true
}

// MarkFundingBroadcast moves created -> funding_pending once the funding
// transaction is on the wire.
func (m *Manager) MarkFundingBroadcast(id, fundingTxID string) (*Record, bool, error) {
	return m.transition(id, StateFundingPending, func(r *Record) {
		r.FundingTxID = fundingTxID
	})
}

// MarkActive moves funding_pending -> active once the funding transaction
// has at least one confirmation.
func (m *Manager) MarkActive(id string) (*Record, bool, error) {
	return m.transition(id, StateActive, nil)
}

// ObserveClaim moves active -> claimed when a claim transaction spending
// this HTLC is observed. The revealed secret must match the record's hash.
func (m *Manager) ObserveClaim(id, claimTxID string, secret []byte) (*Record, bool, error) {
	m.mu.Lock()
	r, ok, err := m.store.Get(id)
	m.mu.Unlock()
	if err != nil || !ok {
		return nil, false, err
	}

	hash, err := hex.DecodeString(r.SecretHash)
	if err != nil {
		return nil, false, fmt.Errorf("corrupt secret hash on record %s: %w", id, err)
	}
	if !VerifySecret(secret, hash) {
		return nil, false, fmt.Errorf("%w: claim secret does not match hash", ErrInvalidParam)
	}

	return m.transition(id, StateClaimed, func(r *Record) {
		r.ClaimTxID = claimTxID
	})
}

// MarkExpired moves active -> expired once the chain height reaches the
// timeout block with no claim observed.
func (m *Manager) MarkExpired(id string) (*Record, bool, error) {
	return m.transition(id, StateExpired, nil)
}

// MarkRefunded moves expired -> refunded once the refund transaction is
// broadcast and confirmed.
func (m *Manager) MarkRefunded(id, refundTxID string) (*Record, bool, error) {
	return m.transition(id, StateRefunded, func(r *Record) {
		r.RefundTxID = refundTxID
	})
}

// Get returns a record by id.
func (m *Manager) Get(id string) (*Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Get(id)
}

// List returns all records ordered by creation time.
func (m *Manager) List() ([]*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.List()
}

// Tick advances time-driven transitions from chain data: funding
// confirmations activate pending HTLCs, and reaching the timeout height
// expires active ones. Provider failures abort the pass; records already
// updated stay updated.
func (m *Manager) Tick(ctx context.Context, chainData provider.ChainDataProvider) error {
	records, err := m.List()
	if err != nil {
		return err
	}

	height, err := chainData.GetBlockHeight(ctx)
	if err != nil {
		return fmt.Errorf("htlc tick: %w", err)
	}

	for _, r := range records {
		switch r.State {
		case StateFundingPending:
			if r.FundingTxID == "" {
				continue
			}
			status, err := chainData.GetTxStatus(ctx, r.FundingTxID)
			if err != nil {
				return fmt.Errorf("htlc tick: %w", err)
			}
			if status.Confirmations >= 1 {
				if _, ok, err := m.MarkActive(r.ID); err != nil {
					return err
				} else if ok {
					m.log.Info("HTLC active", "id", r.ID, "funding", r.FundingTxID)
				}
			}
		case StateActive:
			if height >= int64(r.TimeoutBlock) {
				if _, ok, err := m.MarkExpired(r.ID); err != nil {
					return err
				} else if ok {
					m.log.Info("HTLC expired", "id", r.ID, "height", height, "timeout", r.TimeoutBlock)
				}
			}
		}
	}
	return nil
}

// Close zeroizes any held secrets.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.secrets {
		helpers.SecureClear(s)
		delete(m.secrets, id)
	}
}

// transition applies a lifecycle step under the manager lock. Illegal
// transitions are benign no-ops: the stored record is returned with
// ok=false.
func (m *Manager) transition(id string, to State, mutate func(*Record)) (*Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok, err := m.store.Get(id)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	if !CanTransition(r.State, to) {
		m.log.Debug("Ignoring out-of-order transition", "id", id, "from", r.State, "to", to)
		return r, false, nil
	}

	r.State = to
	r.UpdatedAt = time.Now().UTC()
	if mutate != nil {
		mutate(r)
	}
	if err := m.store.Put(r); err != nil {
		return nil, false, err
	}
	return r.Clone(), true, nil
}
