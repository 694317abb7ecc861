package htlc

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sampleRecord(id string) *Record {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &Record{
		ID:             id,
		SessionID:      "sess-9",
		SkillCode:      "SUMM",
		State:          StateCreated,
		SecretHash:     "14141414141414141414141414141414141414",
		ProviderPubKey: "02",
		ConsumerPubKey: "03",
		TimeoutBlock:   500000,
		RedeemScript:   "63",
		P2SHAddress:    "9xxxx",
		AmountKoinu:    123456,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put(sampleRecord("r1")))

	r2 := sampleRecord("r2")
	r2.State = StateActive
	r2.FundingTxID = "ftx"
	require.NoError(t, s.Put(r2))
	require.NoError(t, s.Close())

	// File permissions are owner-only.
	info, err := os.Stat(filepath.Join(dir, "htlc", "records.json"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	records, err := reopened.List()
	require.NoError(t, err)
	require.Len(t, records, 2)

	got, ok, err := reopened.Get("r2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StateActive, got.State)
	require.Equal(t, "ftx", got.FundingTxID)
}

func TestFileStoreGetMissing(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := s.Get("nope")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStoreIsolation(t *testing.T) {
	s := NewMemoryStore()
	r := sampleRecord("r1")
	require.NoError(t, s.Put(r))

	// Mutating the caller's copy must not affect the stored record.
	r.State = StateClaimed
	got, ok, err := s.Get("r1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StateCreated, got.State)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s, err := NewSQLiteStore(dir)
	require.NoError(t, err)

	r := sampleRecord("r1")
	require.NoError(t, s.Put(r))

	// Update in place via Put.
	r.State = StateFundingPending
	r.FundingTxID = "ftx"
	require.NoError(t, s.Put(r))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	got, ok, err := reopened.Get("r1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StateFundingPending, got.State)
	require.Equal(t, "ftx", got.FundingTxID)
	require.Equal(t, r.AmountKoinu, got.AmountKoinu)
	require.True(t, got.CreatedAt.Equal(r.CreatedAt))

	records, err := reopened.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
}
