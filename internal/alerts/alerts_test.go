package alerts

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quackstro/openclaw-doge/pkg/logging"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	log := logging.New(&logging.Config{Level: "error", Output: io.Discard})
	m, err := NewManager(t.TempDir(), log)
	require.NoError(t, err)
	return m
}

// S6: dismiss suppresses, recovery above the threshold re-arms.
func TestDismissAndRecovery(t *testing.T) {
	m := newTestManager(t)

	require.True(t, m.ShouldAlert())

	m.Dismiss(1, 100)
	require.False(t, m.ShouldAlert())

	// Below the threshold: no recovery.
	require.False(t, m.CheckRecovery(99))
	require.False(t, m.ShouldAlert())

	// At/above the threshold: recovery fires once.
	require.True(t, m.CheckRecovery(150))
	require.True(t, m.ShouldAlert())

	// Only the transition returns true.
	require.False(t, m.CheckRecovery(150))

	st := m.State()
	require.False(t, st.Dismissed)
	require.Zero(t, st.DismissedAtThreshold)
	require.Zero(t, st.LastAlertedBalance)
}

func TestSnooze(t *testing.T) {
	m := newTestManager(t)
	m.now = func() int64 { return 1_000_000 }

	m.Snooze(2_000_000)
	require.False(t, m.ShouldAlert())

	m.now = func() int64 { return 2_000_000 }
	require.True(t, m.ShouldAlert())
}

func TestShouldAlertWithInterval(t *testing.T) {
	m := newTestManager(t)
	m.now = func() int64 { return 10 * 3600 * 1000 }

	// Never notified: fires.
	require.True(t, m.ShouldAlertWithInterval(6))

	m.MarkNotified(500)
	require.False(t, m.ShouldAlertWithInterval(6))

	// Five hours later: still inside the six-hour window.
	m.now = func() int64 { return 15 * 3600 * 1000 }
	require.False(t, m.ShouldAlertWithInterval(6))

	// Six hours later: fires again.
	m.now = func() int64 { return 16 * 3600 * 1000 }
	require.True(t, m.ShouldAlertWithInterval(6))
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	log := logging.New(&logging.Config{Level: "error", Output: io.Discard})

	m, err := NewManager(dir, log)
	require.NoError(t, err)
	m.Dismiss(5, 100)

	reopened, err := NewManager(dir, log)
	require.NoError(t, err)
	require.False(t, reopened.ShouldAlert())
	require.Equal(t, uint64(100), reopened.State().DismissedAtThreshold)

	require.True(t, reopened.CheckRecovery(200))

	again, err := NewManager(dir, log)
	require.NoError(t, err)
	require.True(t, again.ShouldAlert())
}
