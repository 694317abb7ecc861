// Package alerts tracks dismiss/snooze state for low-balance notifications
// and the recovery rule that re-arms them.
package alerts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/quackstro/openclaw-doge/pkg/logging"
)

// State is the persistent alert bookkeeping. Timestamps are unix
// milliseconds.
type State struct {
	Dismissed            bool   `json:"dismissed"`
	SnoozedUntil         int64  `json:"snoozed_until,omitempty"`
	LastAlertedBalance   uint64 `json:"last_alerted_balance,omitempty"`
	DismissedAtThreshold uint64 `json:"dismissed_at_threshold,omitempty"`
	LastNotifiedAt       int64  `json:"last_notified_at,omitempty"`
}

// Manager owns the alert state file and serializes mutations. Every
// mutation persists immediately.
type Manager struct {
	mu    sync.Mutex
	path  string
	state State
	log   *logging.Logger

	// now is swappable for tests; returns unix milliseconds.
	now func() int64
}

// NewManager opens (or creates) the alert state under dataDir.
func NewManager(dataDir string, log *logging.Logger) (*Manager, error) {
	if log == nil {
		log = logging.GetDefault()
	}

	dir := filepath.Join(dataDir, "alerts")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create alerts directory: %w", err)
	}

	m := &Manager{
		path: filepath.Join(dir, "state.json"),
		log:  log.Component("alerts"),
		now:  func() int64 { return time.Now().UnixMilli() },
	}

	data, err := os.ReadFile(m.path)
	if err == nil {
		if err := json.Unmarshal(data, &m.state); err != nil {
			m.log.Warn("Alert state corrupted, starting fresh", "error", err)
			m.state = State{}
		}
	}
	return m, nil
}

// State returns a copy of the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ShouldAlert reports whether a balance alert may fire now.
func (m *Manager) ShouldAlert() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shouldAlertLocked()
}

func (m *Manager) shouldAlertLocked() bool {
	if m.state.Dismissed {
		return false
	}
	return m.state.SnoozedUntil <= m.now()
}

// ShouldAlertWithInterval additionally rate-limits to one notification per
// the given number of hours.
func (m *Manager) ShouldAlertWithInterval(hours int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.shouldAlertLocked() {
		return false
	}
	if m.state.LastNotifiedAt == 0 {
		return true
	}
	return m.now()-m.state.LastNotifiedAt >= int64(hours)*3600*1000
}

// MarkNotified records that a notification fired for the given balance.
func (m *Manager) MarkNotified(balanceKoinu uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.LastNotifiedAt = m.now()
	m.state.LastAlertedBalance = balanceKoinu
	m.persistLocked()
}

// Dismiss suppresses alerts until the balance recovers to the threshold.
func (m *Manager) Dismiss(balanceKoinu, thresholdKoinu uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Dismissed = true
	m.state.DismissedAtThreshold = thresholdKoinu
	m.state.LastAlertedBalance = balanceKoinu
	m.persistLocked()
}

// Snooze suppresses alerts until the given unix-millisecond time.
func (m *Manager) Snooze(untilMillis int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.SnoozedUntil = untilMillis
	m.persistLocked()
}

// CheckRecovery clears the dismiss state when the balance has recovered to
// the dismissed-at threshold. Returns true exactly on the transition.
func (m *Manager) CheckRecovery(balanceKoinu uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Dismissed || m.state.DismissedAtThreshold == 0 {
		return false
	}
	if balanceKoinu < m.state.DismissedAtThreshold {
		return false
	}

	m.state.Dismissed = false
	m.state.DismissedAtThreshold = 0
	m.state.LastAlertedBalance = 0
	m.persistLocked()
	m.log.Info("Balance recovered, alerts re-armed", "balance", balanceKoinu)
	return true
}

// persistLocked writes the state via write-temp + atomic rename. Caller
// holds m.mu.
func (m *Manager) persistLocked() {
	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		m.log.Error("Failed to marshal alert state", "error", err)
		return
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		m.log.Error("Failed to write alert state", "error", err)
		return
	}
	if err := os.Rename(tmp, m.path); err != nil {
		m.log.Error("Failed to replace alert state", "error", err)
	}
}
