// Package audit maintains the append-only JSONL record of wallet actions.
// Writes never propagate failures: the audit trail must not be able to
// crash the wallet. Reads tail the file and skip malformed lines.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quackstro/openclaw-doge/pkg/logging"
)

// Action tags an audit entry. Unknown tags on read become ActionUnknown
// rather than a parse failure.
type Action string

const (
	ActionReceive          Action = "receive"
	ActionSend             Action = "send"
	ActionBroadcast        Action = "broadcast"
	ActionHTLCFund         Action = "htlc_fund"
	ActionHTLCClaim        Action = "htlc_claim"
	ActionHTLCRefund       Action = "htlc_refund"
	ActionApprovalQueued   Action = "approval_queued"
	ActionApprovalResolved Action = "approval_resolved"
	ActionAlert            Action = "alert"
	ActionUnknown          Action = "unknown"
)

var knownActions = map[Action]struct{}{
	ActionReceive: {}, ActionSend: {}, ActionBroadcast: {},
	ActionHTLCFund: {}, ActionHTLCClaim: {}, ActionHTLCRefund: {},
	ActionApprovalQueued: {}, ActionApprovalResolved: {}, ActionAlert: {},
}

// Initiator identifies who caused an action.
type Initiator string

const (
	InitiatorOwner    Initiator = "owner"
	InitiatorAgent    Initiator = "agent"
	InitiatorSystem   Initiator = "system"
	InitiatorExternal Initiator = "external"
)

// Entry is one audit record. Optional fields are omitted when empty.
type Entry struct {
	ID          string            `json:"id"`
	Timestamp   string            `json:"timestamp"` // RFC 3339
	Action      Action            `json:"action"`
	AmountKoinu uint64            `json:"amount,omitempty"`
	FeeKoinu    uint64            `json:"fee,omitempty"`
	Address     string            `json:"address,omitempty"`
	TxID        string            `json:"txid,omitempty"`
	Tier        string            `json:"tier,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	InitiatedBy Initiator         `json:"initiated_by"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// dedupeScanDepth is how many trailing entries receive-dedupe inspects.
const dedupeScanDepth = 1000

// Log is the single-appender audit log.
type Log struct {
	mu   sync.Mutex
	path string
	log  *logging.Logger
}

// NewLog opens (or creates) the audit log under dataDir.
func NewLog(dataDir string, log *logging.Logger) (*Log, error) {
	if log == nil {
		log = logging.GetDefault()
	}

	dir := filepath.Join(dataDir, "audit")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	return &Log{
		path: filepath.Join(dir, "audit.jsonl"),
		log:  log.Component("audit"),
	}, nil
}

// Append writes an entry, filling in id and timestamp. Failures are logged
// and swallowed.
func (l *Log) Append(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appendLocked(e)
}

func (l *Log) appendLocked(e Entry) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp == "" {
		e.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if e.InitiatedBy == "" {
		e.InitiatedBy = InitiatorSystem
	}

	data, err := json.Marshal(e)
	if err != nil {
		l.log.Error("Audit entry marshal failed", "error", err, "action", e.Action)
		return
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		l.log.Error("Audit write failed", "error", err, "action", e.Action)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		l.log.Error("Audit write failed", "error", err, "action", e.Action)
	}
}

// LogReceive records an incoming payment, deduplicated by txid: a receive
// already present in the last 1000 entries is not recorded again. Returns
// whether a new entry was written.
func (l *Log) LogReceive(txid string, amountKoinu uint64, address string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, e := range l.tailLocked(dedupeScanDepth) {
		if e.Action == ActionReceive && e.TxID == txid {
			return false
		}
	}

	l.appendLocked(Entry{
		Action:      ActionReceive,
		AmountKoinu: amountKoinu,
		Address:     address,
		TxID:        txid,
		InitiatedBy: InitiatorExternal,
	})
	return true
}

// Tail returns up to n trailing entries, oldest first. Malformed lines are
// skipped; unknown action tags are preserved under ActionUnknown.
func (l *Log) Tail(n int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tailLocked(n)
}

func (l *Log) tailLocked(n int) []Entry {
	f, err := os.Open(l.path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue // malformed lines are skipped, not rejected
		}
		if _, ok := knownActions[e.Action]; !ok {
			if e.Metadata == nil {
				e.Metadata = make(map[string]string)
			}
			e.Metadata["raw_action"] = string(e.Action)
			e.Action = ActionUnknown
		}
		entries = append(entries, e)
	}

	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries
}
