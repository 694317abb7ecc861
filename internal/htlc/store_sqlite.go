package htlc

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists records in a SQLite database. It is the store of
// choice for provider deployments where many sessions accumulate and the
// JSON file would be rewritten wholesale on every update.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the SQLite record store under dataDir.
func NewSQLiteStore(dataDir string) (*SQLiteStore, error) {
	dir := filepath.Join(dataDir, "htlc")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create htlc directory: %w", err)
	}
	dbPath := filepath.Join(dir, "records.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS htlc_records (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		skill_code TEXT NOT NULL,
		state TEXT NOT NULL,

		secret_hash TEXT NOT NULL,
		provider_pubkey TEXT NOT NULL,
		consumer_pubkey TEXT NOT NULL,
		timeout_block INTEGER NOT NULL,

		redeem_script TEXT NOT NULL,
		p2sh_address TEXT NOT NULL,
		amount_koinu INTEGER NOT NULL,

		funding_txid TEXT,
		claim_txid TEXT,
		refund_txid TEXT,

		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_htlc_records_state ON htlc_records(state);
	CREATE INDEX IF NOT EXISTS idx_htlc_records_session ON htlc_records(session_id);
	CREATE INDEX IF NOT EXISTS idx_htlc_records_timeout ON htlc_records(timeout_block);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Put(r *Record) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO htlc_records (
			id, session_id, skill_code, state,
			secret_hash, provider_pubkey, consumer_pubkey, timeout_block,
			redeem_script, p2sh_address, amount_koinu,
			funding_txid, claim_txid, refund_txid,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SessionID, r.SkillCode, string(r.State),
		r.SecretHash, r.ProviderPubKey, r.ConsumerPubKey, r.TimeoutBlock,
		r.RedeemScript, r.P2SHAddress, r.AmountKoinu,
		r.FundingTxID, r.ClaimTxID, r.RefundTxID,
		r.CreatedAt.UnixMilli(), r.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to store record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(id string) (*Record, bool, error) {
	row := s.db.QueryRow(`
		SELECT id, session_id, skill_code, state,
			secret_hash, provider_pubkey, consumer_pubkey, timeout_block,
			redeem_script, p2sh_address, amount_koinu,
			COALESCE(funding_txid, ''), COALESCE(claim_txid, ''), COALESCE(refund_txid, ''),
			created_at, updated_at
		FROM htlc_records WHERE id = ?`, id)

	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load record: %w", err)
	}
	return r, true, nil
}

func (s *SQLiteStore) List() ([]*Record, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, skill_code, state,
			secret_hash, provider_pubkey, consumer_pubkey, timeout_block,
			redeem_script, p2sh_address, amount_koinu,
			COALESCE(funding_txid, ''), COALESCE(claim_txid, ''), COALESCE(refund_txid, ''),
			created_at, updated_at
		FROM htlc_records ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var r Record
	var state string
	var createdAt, updatedAt int64

	err := row.Scan(
		&r.ID, &r.SessionID, &r.SkillCode, &state,
		&r.SecretHash, &r.ProviderPubKey, &r.ConsumerPubKey, &r.TimeoutBlock,
		&r.RedeemScript, &r.P2SHAddress, &r.AmountKoinu,
		&r.FundingTxID, &r.ClaimTxID, &r.RefundTxID,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.State = State(state)
	r.CreatedAt = time.UnixMilli(createdAt).UTC()
	r.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &r, nil
}
