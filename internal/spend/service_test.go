package spend

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/stretchr/testify/require"

	"github.com/quackstro/openclaw-doge/internal/approval"
	"github.com/quackstro/openclaw-doge/internal/audit"
	"github.com/quackstro/openclaw-doge/internal/chain"
	"github.com/quackstro/openclaw-doge/internal/p2p"
	"github.com/quackstro/openclaw-doge/internal/policy"
	"github.com/quackstro/openclaw-doge/internal/txbuilder"
	"github.com/quackstro/openclaw-doge/internal/wallet"
	"github.com/quackstro/openclaw-doge/pkg/helpers"
	"github.com/quackstro/openclaw-doge/pkg/logging"
)

// stubRelay records broadcasts and can be told to fail.
type stubRelay struct {
	fail      bool
	broadcast []string
}

func (r *stubRelay) Broadcast(_ context.Context, hex string) (p2p.BroadcastResult, error) {
	if r.fail {
		return p2p.BroadcastResult{}, p2p.ErrBroadcastBelowThreshold
	}
	r.broadcast = append(r.broadcast, hex)
	return p2p.BroadcastResult{Success: true, PeersReached: 3}, nil
}

type testSigner struct{ priv *btcec.PrivateKey }

func (s *testSigner) Sign(hash []byte) ([]byte, error) {
	return btcecdsa.Sign(s.priv, hash).Serialize(), nil
}

func (s *testSigner) PubKey() []byte { return s.priv.PubKey().SerializeCompressed() }

const (
	senderAddr = "DG7EBGqYFaWnaYeH9QQNEWeT6xY2DqVCzE"
	destAddr   = "DMiK6hDKciWj4NG9Pi7m9dtATduM46sdsT"
	seedTxID   = "b1fea52486ce0c62bb442b530a3f0132b826c74e473d1f2c220bfa78111c5082"
)

type fixture struct {
	svc   *Service
	utxos *wallet.Store
	queue *approval.Queue
	audit *audit.Log
	relay *stubRelay
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	log := logging.New(&logging.Config{Level: "fatal", Output: io.Discard})

	utxos, err := wallet.NewStore(dir, senderAddr, log)
	require.NoError(t, err)
	queue, err := approval.NewQueue(dir, log)
	require.NoError(t, err)
	auditLog, err := audit.NewLog(dir, log)
	require.NoError(t, err)

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	relay := &stubRelay{}

	svc := NewService(&Config{
		Params:  chain.MustGet(chain.Mainnet),
		Signer:  &testSigner{priv: priv},
		Address: senderAddr,
		Policy:  policy.MustDefault(),
		UTXOs:   utxos,
		Queue:   queue,
		Audit:   auditLog,
		Relay:   relay,
		Log:     log,
	})

	// Fund the wallet with 1000 DOGE across two outputs.
	utxos.Add(wallet.UTXO{TxID: seedTxID, Vout: 0, AmountKoinu: 500 * helpers.KoinuPerDoge, Confirmations: 10})
	utxos.Add(wallet.UTXO{TxID: seedTxID, Vout: 1, AmountKoinu: 500 * helpers.KoinuPerDoge, Confirmations: 10})

	return &fixture{svc: svc, utxos: utxos, queue: queue, audit: auditLog, relay: relay}
}

func findAudit(t *testing.T, log *audit.Log, action audit.Action) []audit.Entry {
	t.Helper()
	var out []audit.Entry
	for _, e := range log.Tail(0) {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

func TestSmallSpendBroadcastsDirectly(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.svc.Spend(context.Background(), Request{
		To:          destAddr,
		AmountKoinu: 5 * helpers.KoinuPerDoge,
		Reason:      "api call",
		Initiator:   audit.InitiatorAgent,
	})
	require.NoError(t, err)
	require.Equal(t, StatusBroadcast, outcome.Status)
	require.Equal(t, policy.ActionAutoApprove, outcome.Decision.Action)
	require.NotEmpty(t, outcome.TxID)
	require.Len(t, f.relay.broadcast, 1)

	// The send is audited under the new txid and its policy tier.
	sends := findAudit(t, f.audit, audit.ActionSend)
	require.Len(t, sends, 1)
	require.Equal(t, outcome.TxID, sends[0].TxID)
	require.Equal(t, "small", sends[0].Tier)
}

func TestLargeSpendQueuesForApproval(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.svc.Spend(context.Background(), Request{
		To:          destAddr,
		AmountKoinu: 150 * helpers.KoinuPerDoge,
		Reason:      "gpu rental",
		Initiator:   audit.InitiatorAgent,
	})
	require.NoError(t, err)
	require.Equal(t, StatusQueued, outcome.Status)
	require.NotNil(t, outcome.Approval)
	require.Equal(t, approval.StatusPending, outcome.Approval.Status)
	require.Empty(t, f.relay.broadcast)

	// Funds are untouched while queued.
	require.Equal(t, uint64(1000*helpers.KoinuPerDoge), f.utxos.Balance().TotalKoinu)
	require.Len(t, findAudit(t, f.audit, audit.ActionApprovalQueued), 1)
}

func TestApproveExecutesQueuedSpend(t *testing.T) {
	f := newFixture(t)

	queued, err := f.svc.Spend(context.Background(), Request{
		To:          destAddr,
		AmountKoinu: 150 * helpers.KoinuPerDoge,
		Initiator:   audit.InitiatorAgent,
	})
	require.NoError(t, err)

	outcome, err := f.svc.Approve(context.Background(), queued.Approval.ID, "owner")
	require.NoError(t, err)
	require.Equal(t, StatusBroadcast, outcome.Status)
	require.NotEmpty(t, outcome.TxID)
	require.Len(t, f.relay.broadcast, 1)

	// Entry reached executed.
	entry, ok := f.queue.Get(queued.Approval.ID)
	require.True(t, ok)
	require.Equal(t, approval.StatusExecuted, entry.Status)

	// Approving again is a no-op.
	again, err := f.svc.Approve(context.Background(), queued.Approval.ID, "owner")
	require.NoError(t, err)
	require.Equal(t, StatusNoOp, again.Status)
	require.Len(t, f.relay.broadcast, 1)
}

func TestDenyBlocksSpend(t *testing.T) {
	f := newFixture(t)

	queued, err := f.svc.Spend(context.Background(), Request{
		To:          destAddr,
		AmountKoinu: 150 * helpers.KoinuPerDoge,
		Initiator:   audit.InitiatorAgent,
	})
	require.NoError(t, err)

	outcome := f.svc.Deny(queued.Approval.ID, "owner")
	require.Equal(t, approval.StatusDenied, outcome.Approval.Status)
	require.Empty(t, f.relay.broadcast)

	// Denied entries cannot be executed.
	res, err := f.svc.ExecuteApproved(context.Background(), queued.Approval.ID)
	require.NoError(t, err)
	require.Equal(t, StatusNoOp, res.Status)
}

func TestBroadcastFailureReleasesLocks(t *testing.T) {
	f := newFixture(t)
	f.relay.fail = true

	_, err := f.svc.Spend(context.Background(), Request{
		To:          destAddr,
		AmountKoinu: 5 * helpers.KoinuPerDoge,
		Initiator:   audit.InitiatorAgent,
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, p2p.ErrBroadcastBelowThreshold))

	// Every selected input was unlocked again.
	require.Equal(t, uint64(1000*helpers.KoinuPerDoge), f.utxos.Balance().TotalKoinu)
}

func TestInsufficientFundsSurfaces(t *testing.T) {
	f := newFixture(t)

	// Each small spend locks one of the two 500 DOGE inputs; change only
	// returns to the cache on a later refresh. The third spend finds no
	// unlocked funds.
	for i := 0; i < 2; i++ {
		_, err := f.svc.Spend(context.Background(), Request{
			To:          destAddr,
			AmountKoinu: 5 * helpers.KoinuPerDoge,
			Initiator:   audit.InitiatorAgent,
		})
		require.NoError(t, err)
	}

	_, err := f.svc.Spend(context.Background(), Request{
		To:          destAddr,
		AmountKoinu: 5 * helpers.KoinuPerDoge,
		Initiator:   audit.InitiatorAgent,
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, txbuilder.ErrInsufficientFunds))
}
