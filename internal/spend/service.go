// Package spend orchestrates the wallet's outbound payment pipeline: every
// spend is classified by policy, then either broadcast directly or parked in
// the approval queue, with an audit entry either way.
package spend

import (
	"context"
	"fmt"

	"github.com/quackstro/openclaw-doge/internal/approval"
	"github.com/quackstro/openclaw-doge/internal/audit"
	"github.com/quackstro/openclaw-doge/internal/chain"
	"github.com/quackstro/openclaw-doge/internal/p2p"
	"github.com/quackstro/openclaw-doge/internal/policy"
	"github.com/quackstro/openclaw-doge/internal/txbuilder"
	"github.com/quackstro/openclaw-doge/internal/wallet"
	"github.com/quackstro/openclaw-doge/pkg/logging"
)

// Broadcaster relays a signed transaction to the network.
type Broadcaster interface {
	Broadcast(ctx context.Context, signedTxHex string) (p2p.BroadcastResult, error)
}

// Status summarizes what happened to a spend request.
type Status string

const (
	StatusBroadcast Status = "broadcast" // tx relayed
	StatusQueued    Status = "queued"    // parked for approval
	StatusDenied    Status = "denied"    // resolved negatively
	StatusNoOp      Status = "no-op"     // request referenced an unactionable entry
)

// Request is one proposed outbound spend.
type Request struct {
	To          string
	AmountKoinu uint64
	Reason      string
	Initiator   audit.Initiator
}

// Outcome reports the pipeline's result.
type Outcome struct {
	Status   Status
	Decision policy.Decision
	TxID     string
	Approval *approval.PendingApproval
}

// selectionHeadroomInputs sizes the fee reserve used during coin selection.
// Selection happens before the input count is known, so the target reserves
// fee for a worst-case input count rather than re-selecting in a loop.
const selectionHeadroomInputs = 8

// Service is the spend pipeline.
type Service struct {
	params *chain.Params
	signer txbuilder.Signer
	addr   string

	policy *policy.Engine
	utxos  *wallet.Store
	queue  *approval.Queue
	audit  *audit.Log
	relay  Broadcaster

	feePerKB uint64
	log      *logging.Logger
}

// Config wires the service's collaborators.
type Config struct {
	Params   *chain.Params
	Signer   txbuilder.Signer
	Address  string
	Policy   *policy.Engine
	UTXOs    *wallet.Store
	Queue    *approval.Queue
	Audit    *audit.Log
	Relay    Broadcaster
	FeePerKB uint64
	Log      *logging.Logger
}

// NewService creates the spend pipeline.
func NewService(cfg *Config) *Service {
	log := cfg.Log
	if log == nil {
		log = logging.GetDefault()
	}
	return &Service{
		params:   cfg.Params,
		signer:   cfg.Signer,
		addr:     cfg.Address,
		policy:   cfg.Policy,
		utxos:    cfg.UTXOs,
		queue:    cfg.Queue,
		audit:    cfg.Audit,
		relay:    cfg.Relay,
		feePerKB: cfg.FeePerKB,
		log:      log.Component("spend"),
	}
}

// Spend classifies and executes (or queues) one outbound payment.
func (s *Service) Spend(ctx context.Context, req Request) (*Outcome, error) {
	decision := s.policy.Classify(req.AmountKoinu)

	switch decision.Action {
	case policy.ActionAutoApprove, policy.ActionNotify:
		txid, err := s.execute(ctx, req, decision)
		if err != nil {
			return nil, err
		}
		if decision.Action == policy.ActionNotify {
			s.log.Info("Spend executed with notification", "to", req.To, "amount", req.AmountKoinu, "txid", txid)
		}
		return &Outcome{Status: StatusBroadcast, Decision: decision, TxID: txid}, nil

	case policy.ActionDelayApprove, policy.ActionRequireApproval:
		auto := approval.AutoDeny
		if decision.Action == policy.ActionDelayApprove {
			auto = approval.AutoApprove
		}
		entry, err := s.queue.Queue(approval.Request{
			To:           req.To,
			AmountKoinu:  req.AmountKoinu,
			Reason:       req.Reason,
			Tier:         decision.Tier,
			Action:       string(decision.Action),
			AutoAction:   auto,
			DelayMinutes: decision.DelayMinutes,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to queue approval: %w", err)
		}
		s.audit.Append(audit.Entry{
			Action:      audit.ActionApprovalQueued,
			AmountKoinu: req.AmountKoinu,
			Address:     req.To,
			Tier:        decision.Tier,
			Reason:      req.Reason,
			InitiatedBy: req.Initiator,
			Metadata:    map[string]string{"approval_id": entry.ID},
		})
		return &Outcome{Status: StatusQueued, Decision: decision, Approval: entry}, nil

	default:
		return nil, fmt.Errorf("unknown policy action %q", decision.Action)
	}
}

// Approve resolves a queued approval positively and executes it.
func (s *Service) Approve(ctx context.Context, id, by string) (*Outcome, error) {
	entry, ok := s.queue.Approve(id, by)
	if !ok {
		return &Outcome{Status: StatusNoOp, Approval: entry}, nil
	}
	s.auditResolution(entry, by)
	return s.ExecuteApproved(ctx, id)
}

// Deny resolves a queued approval negatively.
func (s *Service) Deny(id, by string) *Outcome {
	entry, ok := s.queue.Deny(id, by)
	if !ok {
		return &Outcome{Status: StatusNoOp, Approval: entry}
	}
	s.auditResolution(entry, by)
	return &Outcome{Status: StatusDenied, Approval: entry}
}

// ExecuteApproved broadcasts a previously approved entry and promotes it to
// executed. Anything not in approved state is a benign no-op.
func (s *Service) ExecuteApproved(ctx context.Context, id string) (*Outcome, error) {
	entry, ok := s.queue.Get(id)
	if !ok || entry.Status != approval.StatusApproved {
		return &Outcome{Status: StatusNoOp, Approval: entry}, nil
	}

	decision := policy.Decision{Tier: entry.Tier, Action: policy.Action(entry.Action)}
	txid, err := s.execute(ctx, Request{
		To:          entry.To,
		AmountKoinu: entry.AmountKoinu,
		Reason:      entry.Reason,
		Initiator:   audit.InitiatorOwner,
	}, decision)
	if err != nil {
		return nil, err
	}

	if _, ok := s.queue.MarkExecuted(id); !ok {
		s.log.Warn("Approval vanished before executed promotion", "id", id)
	}
	return &Outcome{Status: StatusBroadcast, Decision: decision, TxID: txid, Approval: entry}, nil
}

// ProcessExpiries runs queue expiry and executes any auto-approved entries.
func (s *Service) ProcessExpiries(ctx context.Context) {
	for _, entry := range s.queue.Expire() {
		s.auditResolution(entry, "system:auto-expiry")
		if _, err := s.ExecuteApproved(ctx, entry.ID); err != nil {
			s.log.Error("Auto-approved spend failed", "id", entry.ID, "error", err)
		}
	}
}

// execute runs the direct path: select and lock inputs, build, relay, then
// re-tag the inputs as spent. Locks are released explicitly on any failure.
func (s *Service) execute(ctx context.Context, req Request, decision policy.Decision) (string, error) {
	headroom := txbuilder.EstimateFee(10+selectionHeadroomInputs*148+2*34, s.feePerKB)
	selected, err := s.utxos.SelectAndLock(wallet.LargestFirst, req.AmountKoinu+headroom)
	if err != nil {
		return "", fmt.Errorf("%w: %v", txbuilder.ErrInsufficientFunds, err)
	}

	unlock := func() {
		for _, u := range selected {
			s.utxos.Unlock(u.TxID, u.Vout)
		}
	}

	inputs := make([]txbuilder.Input, len(selected))
	for i, u := range selected {
		inputs[i] = txbuilder.Input{TxID: u.TxID, Vout: u.Vout, AmountKoinu: u.AmountKoinu}
	}

	result, err := txbuilder.BuildSendTx(&txbuilder.SendRequest{
		Params:        s.params,
		Signer:        s.signer,
		Inputs:        inputs,
		SenderAddress: s.addr,
		ToAddress:     req.To,
		AmountKoinu:   req.AmountKoinu,
		FeePerKB:      s.feePerKB,
	})
	if err != nil {
		unlock()
		return "", err
	}

	broadcast, err := s.relay.Broadcast(ctx, result.Hex)
	if err != nil {
		unlock()
		s.audit.Append(audit.Entry{
			Action:      audit.ActionBroadcast,
			TxID:        result.TxID,
			Address:     req.To,
			InitiatedBy: req.Initiator,
			Metadata:    map[string]string{"status": "failed"},
		})
		return "", err
	}

	for _, u := range selected {
		s.utxos.MarkSpent(u.TxID, u.Vout, result.TxID)
	}

	s.audit.Append(audit.Entry{
		Action:      audit.ActionSend,
		AmountKoinu: req.AmountKoinu,
		FeeKoinu:    result.FeeKoinu,
		Address:     req.To,
		TxID:        result.TxID,
		Tier:        decision.Tier,
		Reason:      req.Reason,
		InitiatedBy: req.Initiator,
		Metadata:    map[string]string{"peers": fmt.Sprintf("%d", broadcast.PeersReached)},
	})
	s.log.Info("Spend broadcast", "txid", result.TxID, "to", req.To, "amount", req.AmountKoinu, "peers", broadcast.PeersReached)
	return result.TxID, nil
}

func (s *Service) auditResolution(entry *approval.PendingApproval, by string) {
	s.audit.Append(audit.Entry{
		Action:      audit.ActionApprovalResolved,
		AmountKoinu: entry.AmountKoinu,
		Address:     entry.To,
		Tier:        entry.Tier,
		Reason:      entry.Reason,
		InitiatedBy: audit.InitiatorOwner,
		Metadata:    map[string]string{"approval_id": entry.ID, "status": string(entry.Status), "resolved_by": by},
	})
}
