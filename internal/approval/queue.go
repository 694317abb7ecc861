// Package approval implements the persistent queue of policy-gated spends
// awaiting a decision. Entries expire after 24 hours; an entry queued with
// auto_action=approve is promoted on expiry instead of dying.
package approval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quackstro/openclaw-doge/pkg/logging"
)

// Status is the lifecycle state of a pending approval. It only ever moves
// forward: pending -> {approved, denied, expired} -> executed.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusExpired  Status = "expired"
	StatusExecuted Status = "executed"
)

// AutoAction decides what happens to an entry nobody resolves in time.
type AutoAction string

const (
	AutoApprove AutoAction = "approve"
	AutoDeny    AutoAction = "deny"
)

// DefaultTTL is how long an entry stays pending before expiry processing.
const DefaultTTL = 24 * time.Hour

// resolvedRetention is how many resolved entries cleanup keeps.
const resolvedRetention = 100

// autoResolver marks entries resolved by expiry processing rather than a
// person.
const autoResolver = "system:auto-expiry"

// PendingApproval is one queued spend awaiting a decision.
type PendingApproval struct {
	ID           string     `json:"id"`
	To           string     `json:"to"`
	AmountKoinu  uint64     `json:"amount_koinu"`
	Reason       string     `json:"reason"`
	Tier         string     `json:"tier"`
	Action       string     `json:"action"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	AutoAction   AutoAction `json:"auto_action"`
	DelayMinutes int        `json:"delay_minutes,omitempty"`
	Status       Status     `json:"status"`
	ResolvedBy   string     `json:"resolved_by,omitempty"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

// Request carries the fields for queueing a new approval.
type Request struct {
	To           string
	AmountKoinu  uint64
	Reason       string
	Tier         string
	Action       string
	AutoAction   AutoAction
	DelayMinutes int
}

// queueDocument is the on-disk shape.
type queueDocument struct {
	Version int                `json:"version"`
	Entries []*PendingApproval `json:"entries"`
}

// Queue is the single-writer persistent approval queue.
type Queue struct {
	mu      sync.Mutex
	path    string
	entries map[string]*PendingApproval
	log     *logging.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewQueue opens (or creates) the approval queue under dataDir.
func NewQueue(dataDir string, log *logging.Logger) (*Queue, error) {
	if log == nil {
		log = logging.GetDefault()
	}

	dir := filepath.Join(dataDir, "approvals")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create approvals directory: %w", err)
	}

	q := &Queue{
		path:    filepath.Join(dir, "queue.json"),
		entries: make(map[string]*PendingApproval),
		log:     log.Component("approval"),
		now:     time.Now,
	}

	data, err := os.ReadFile(q.path)
	if os.IsNotExist(err) {
		return q, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read approval queue: %w", err)
	}

	var doc queueDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse approval queue: %w", err)
	}
	for _, e := range doc.Entries {
		q.entries[e.ID] = e
	}
	return q, nil
}

// Queue adds a new pending entry and returns a copy of it.
func (q *Queue) Queue(req Request) (*PendingApproval, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now().UTC()
	expires := now.Add(DefaultTTL)
	if req.DelayMinutes > 0 {
		// Delay-approve entries auto-resolve on a shorter horizon.
		expires = now.Add(time.Duration(req.DelayMinutes) * time.Minute)
	}

	e := &PendingApproval{
		ID:           uuid.New().String(),
		To:           req.To,
		AmountKoinu:  req.AmountKoinu,
		Reason:       req.Reason,
		Tier:         req.Tier,
		Action:       req.Action,
		CreatedAt:    now,
		ExpiresAt:    expires,
		AutoAction:   req.AutoAction,
		DelayMinutes: req.DelayMinutes,
		Status:       StatusPending,
	}
	q.entries[e.ID] = e

	if err := q.persistLocked(); err != nil {
		delete(q.entries, e.ID)
		return nil, err
	}
	q.log.Info("Spend queued for approval", "id", e.ID, "to", e.To, "amount", e.AmountKoinu, "tier", e.Tier)
	return clone(e), nil
}

// Get returns an immutable copy of the entry.
func (q *Queue) Get(id string) (*PendingApproval, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok {
		return nil, false
	}
	return clone(e), true
}

// Pending returns all pending entries ordered by creation time.
func (q *Queue) Pending() []*PendingApproval {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []*PendingApproval
	for _, e := range q.entries {
		if e.Status == StatusPending {
			out = append(out, clone(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Approve resolves a pending entry. Resolving a non-pending entry is a
// benign no-op returning the current state with ok=false.
func (q *Queue) Approve(id, by string) (*PendingApproval, bool) {
	return q.resolve(id, StatusApproved, by)
}

// Deny resolves a pending entry negatively.
func (q *Queue) Deny(id, by string) (*PendingApproval, bool) {
	return q.resolve(id, StatusDenied, by)
}

// MarkExecuted promotes an approved entry once its spend has been
// broadcast.
func (q *Queue) MarkExecuted(id string) (*PendingApproval, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok || e.Status != StatusApproved {
		if ok {
			return clone(e), false
		}
		return nil, false
	}
	e.Status = StatusExecuted
	if err := q.persistLocked(); err != nil {
		q.log.Error("Failed to persist approval queue", "error", err)
	}
	return clone(e), true
}

// Expire processes entries whose deadline has passed. Each becomes expired,
// except that auto_action=approve entries are promoted to approved and
// returned for execution. Entries resolved manually before the lock was
// acquired are untouched: a manual decision wins a same-tick race.
func (q *Queue) Expire() []*PendingApproval {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now().UTC()
	var promoted []*PendingApproval
	changed := false

	for _, e := range q.entries {
		if e.Status != StatusPending || now.Before(e.ExpiresAt) {
			continue
		}
		resolvedAt := now
		e.ResolvedAt = &resolvedAt
		e.ResolvedBy = autoResolver
		changed = true

		if e.AutoAction == AutoApprove {
			e.Status = StatusApproved
			promoted = append(promoted, clone(e))
			q.log.Info("Approval auto-approved on expiry", "id", e.ID, "amount", e.AmountKoinu)
		} else {
			e.Status = StatusExpired
			q.log.Info("Approval expired", "id", e.ID)
		}
	}

	if changed {
		if err := q.persistLocked(); err != nil {
			q.log.Error("Failed to persist approval queue", "error", err)
		}
	}
	sort.Slice(promoted, func(i, j int) bool { return promoted[i].CreatedAt.Before(promoted[j].CreatedAt) })
	return promoted
}

// Cleanup retains all pending entries and the most recent 100 resolved
// entries by resolution time.
func (q *Queue) Cleanup() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	var resolved []*PendingApproval
	for _, e := range q.entries {
		if e.Status != StatusPending {
			resolved = append(resolved, e)
		}
	}
	if len(resolved) <= resolvedRetention {
		return 0
	}

	sort.Slice(resolved, func(i, j int) bool {
		ti, tj := resolved[i].ResolvedAt, resolved[j].ResolvedAt
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})

	removed := 0
	for _, e := range resolved[resolvedRetention:] {
		delete(q.entries, e.ID)
		removed++
	}
	if err := q.persistLocked(); err != nil {
		q.log.Error("Failed to persist approval queue", "error", err)
	}
	q.log.Debug("Approval queue cleaned", "removed", removed)
	return removed
}

func (q *Queue) resolve(id string, status Status, by string) (*PendingApproval, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok {
		return nil, false
	}
	if e.Status != StatusPending {
		return clone(e), false
	}

	now := q.now().UTC()
	e.Status = status
	e.ResolvedBy = by
	e.ResolvedAt = &now
	if err := q.persistLocked(); err != nil {
		q.log.Error("Failed to persist approval queue", "error", err)
	}
	return clone(e), true
}

// persistLocked writes the queue via write-temp + atomic rename. Caller
// holds q.mu.
func (q *Queue) persistLocked() error {
	doc := queueDocument{Version: 1, Entries: make([]*PendingApproval, 0, len(q.entries))}
	for _, e := range q.entries {
		doc.Entries = append(doc.Entries, e)
	}
	sort.Slice(doc.Entries, func(i, j int) bool { return doc.Entries[i].CreatedAt.Before(doc.Entries[j].CreatedAt) })

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal approval queue: %w", err)
	}

	tmp := q.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write approval queue: %w", err)
	}
	if err := os.Rename(tmp, q.path); err != nil {
		return fmt.Errorf("failed to replace approval queue: %w", err)
	}
	return nil
}

func clone(e *PendingApproval) *PendingApproval {
	cp := *e
	if e.ResolvedAt != nil {
		t := *e.ResolvedAt
		cp.ResolvedAt = &t
	}
	return &cp
}
