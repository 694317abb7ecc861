package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/quackstro/openclaw-doge/internal/provider"
	"github.com/quackstro/openclaw-doge/pkg/logging"
)

// ErrCacheCorruption is logged when the on-disk cache fails to parse; the
// store then starts empty rather than refusing to run.
var ErrCacheCorruption = errors.New("utxo cache corrupted")

// lockedForPending tags UTXOs locked by selection before a concrete txid is
// known.
const lockedForPending = "pending"

// cacheDocument is the on-disk shape of the UTXO cache.
type cacheDocument struct {
	Version            int       `json:"version"`
	Address            string    `json:"address"`
	UTXOs              []UTXO    `json:"utxos"`
	LastRefreshed      time.Time `json:"last_refreshed"`
	ConfirmedBalance   uint64    `json:"confirmed_balance"`
	UnconfirmedBalance uint64    `json:"unconfirmed_balance"`
}

// Store is the single-writer UTXO cache for one wallet address. All
// operations serialize through one mutex; readers receive copies.
type Store struct {
	mu            sync.Mutex
	path          string
	address       string
	utxos         map[Outpoint]*UTXO
	lastRefreshed time.Time
	log           *logging.Logger
}

// NewStore creates the store for an address under dataDir. Existing cache
// contents are loaded; a corrupt cache is treated as empty and warned
// about.
func NewStore(dataDir, address string, log *logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.GetDefault()
	}

	dir := filepath.Join(dataDir, "utxos")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create utxo directory: %w", err)
	}

	s := &Store{
		path:    filepath.Join(dir, "cache.json"),
		address: address,
		utxos:   make(map[Outpoint]*UTXO),
		log:     log.Component("utxo"),
	}
	s.load()
	return s, nil
}

// load reads the cache file. Missing file is a fresh start; a corrupt file
// is warned about and discarded.
func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		s.log.Warn("Failed to read utxo cache, starting empty", "error", err)
		return
	}

	var doc cacheDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		s.log.Warn("UTXO cache corrupted, starting empty", "error", fmt.Errorf("%w: %v", ErrCacheCorruption, err))
		return
	}

	for i := range doc.UTXOs {
		u := doc.UTXOs[i]
		s.utxos[u.Outpoint()] = &u
	}
	s.lastRefreshed = doc.LastRefreshed
}

// Address returns the wallet address this cache tracks.
func (s *Store) Address() string {
	return s.address
}

// LastRefreshed returns the time of the last accepted refresh.
func (s *Store) LastRefreshed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRefreshed
}

// Refresh merges the provider's current UTXO set into the cache. Lock
// metadata survives the merge for entries the network still reports.
//
// Collapse guard: a refresh that would empty a non-empty cache is discarded
// and logged; it is far more likely a provider outage than a real spend of
// every output at once.
func (s *Store) Refresh(ctx context.Context, chainData provider.ChainDataProvider) error {
	fresh, err := chainData.GetUTXOs(ctx, s.address)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(fresh) == 0 && len(s.utxos) > 0 {
		s.log.Warn("Refresh returned empty set for non-empty cache, discarding",
			"cached", len(s.utxos), "address", s.address)
		return nil
	}

	merged := make(map[Outpoint]*UTXO, len(fresh))
	for _, f := range fresh {
		u := &UTXO{
			TxID:          f.TxID,
			Vout:          f.Vout,
			AmountKoinu:   f.AmountKoinu,
			Script:        f.Script,
			Confirmations: f.Confirmations,
		}
		if prev, ok := s.utxos[u.Outpoint()]; ok && prev.Locked {
			u.Locked = prev.Locked
			u.LockedAt = prev.LockedAt
			u.LockedFor = prev.LockedFor
		}
		merged[u.Outpoint()] = u
	}

	s.utxos = merged
	s.lastRefreshed = time.Now().UTC()
	s.persistLocked()
	return nil
}

// Spendable returns unlocked UTXOs with at least minConf confirmations.
func (s *Store) Spendable(minConf uint32) []UTXO {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []UTXO
	for _, u := range s.utxos {
		if !u.Locked && u.Confirmations >= minConf {
			out = append(out, *u)
		}
	}
	sortUTXOs(out)
	return out
}

// Balance returns the balance snapshot. Locked UTXOs are excluded from all
// totals.
func (s *Store) Balance() Balance {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b Balance
	for _, u := range s.utxos {
		if u.Locked {
			continue
		}
		if u.Confirmations > 0 {
			b.ConfirmedKoinu += u.AmountKoinu
		} else {
			b.UnconfirmedKoinu += u.AmountKoinu
		}
		b.TotalKoinu += u.AmountKoinu
	}
	return b
}

// Add inserts or replaces a UTXO by (txid, vout).
func (s *Store) Add(u UTXO) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := u
	s.utxos[u.Outpoint()] = &cp
	s.persistLocked()
}

// MarkSpent re-tags a UTXO as consumed by inTxID after broadcast. The entry
// stays locked until a later refresh observes it gone from the network set.
func (s *Store) MarkSpent(txid string, vout uint32, inTxID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.utxos[Outpoint{TxID: txid, Vout: vout}]
	if !ok {
		return false
	}
	now := time.Now().UTC()
	u.Locked = true
	u.LockedAt = &now
	u.LockedFor = inTxID
	s.persistLocked()
	return true
}

// Unlock clears lock metadata on a UTXO, returning whether it was present.
// Amounts are never touched.
func (s *Store) Unlock(txid string, vout uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.utxos[Outpoint{TxID: txid, Vout: vout}]
	if !ok {
		return false
	}
	u.Locked = false
	u.LockedAt = nil
	u.LockedFor = ""
	s.persistLocked()
	return true
}

// SelectAndLock runs the selector against unlocked UTXOs and locks every
// chosen output before returning it. Locks are never released
// automatically: callers Unlock on failure or MarkSpent after broadcast.
func (s *Store) SelectAndLock(selector Selector, targetKoinu uint64) ([]UTXO, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []UTXO
	for _, u := range s.utxos {
		if !u.Locked {
			candidates = append(candidates, *u)
		}
	}
	sortUTXOs(candidates)

	selected, err := selector(candidates, targetKoinu)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for i := range selected {
		u, ok := s.utxos[selected[i].Outpoint()]
		if !ok {
			return nil, fmt.Errorf("selector returned unknown utxo %s", selected[i].Outpoint())
		}
		u.Locked = true
		u.LockedAt = &now
		u.LockedFor = lockedForPending

		selected[i].Locked = true
		selected[i].LockedAt = &now
		selected[i].LockedFor = lockedForPending
	}
	s.persistLocked()
	return selected, nil
}

// persistLocked writes the cache via write-temp + atomic rename. Caller
// holds s.mu. Persistence failures are logged, not propagated; the cache
// is reconstructible from the provider.
func (s *Store) persistLocked() {
	doc := cacheDocument{
		Version:       1,
		Address:       s.address,
		UTXOs:         make([]UTXO, 0, len(s.utxos)),
		LastRefreshed: s.lastRefreshed,
	}
	for _, u := range s.utxos {
		doc.UTXOs = append(doc.UTXOs, *u)
		if u.Locked {
			continue
		}
		if u.Confirmations > 0 {
			doc.ConfirmedBalance += u.AmountKoinu
		} else {
			doc.UnconfirmedBalance += u.AmountKoinu
		}
	}
	sortUTXOs(doc.UTXOs)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		s.log.Error("Failed to marshal utxo cache", "error", err)
		return
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		s.log.Error("Failed to write utxo cache", "error", err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.log.Error("Failed to replace utxo cache", "error", err)
	}
}

// sortUTXOs orders by (txid, vout) for deterministic output.
func sortUTXOs(utxos []UTXO) {
	sort.Slice(utxos, func(i, j int) bool {
		if utxos[i].TxID != utxos[j].TxID {
			return utxos[i].TxID < utxos[j].TxID
		}
		return utxos[i].Vout < utxos[j].Vout
	})
}
