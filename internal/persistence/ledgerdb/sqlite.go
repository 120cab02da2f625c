// Package ledgerdb holds the database-backed ledgers: a local sqlite store and
// a client for a hosted ledger service.
package ledgerdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"lorebound.gg/internal/catalog"
	"lorebound.gg/internal/ledger"
	"lorebound.gg/internal/mint"
	"lorebound.gg/internal/progression"
	"lorebound.gg/internal/session"
	"lorebound.gg/internal/tuning"
)

// SQLiteLedger stores players and mint receipts synchronously. Journal
// entries go through a bounded queue to a writer goroutine and are dropped
// when it falls behind; the JSONL journal remains the source of truth.
type SQLiteLedger struct {
	db *sql.DB

	ch   chan session.JournalEntry
	wg   sync.WaitGroup
	once sync.Once

	closed      atomic.Bool
	dropJournal atomic.Uint64
}

type IndexStats struct {
	QueueDepth       int    `json:"queue_depth"`
	QueueCapacity    int    `json:"queue_capacity"`
	DropJournalTotal uint64 `json:"drop_journal_total"`
}

// PlayerRow is the summary the admin tool lists.
type PlayerRow struct {
	WalletID  string `json:"wallet_id"`
	Level     int    `json:"level"`
	XP        int    `json:"xp"`
	Digest    string `json:"digest"`
	UpdatedAt string `json:"updated_at"`
}

func OpenSQLite(path string) (*SQLiteLedger, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteLedger{
		db: db,
		ch: make(chan session.JournalEntry, 16384),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS players (
			wallet_id TEXT PRIMARY KEY,
			level INTEGER NOT NULL,
			xp INTEGER NOT NULL,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS mints (
			receipt_id TEXT PRIMARY KEY,
			wallet_id TEXT NOT NULL,
			nft_id TEXT NOT NULL,
			uri TEXT NOT NULL,
			minted_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_mints_wallet ON mints(wallet_id, minted_at);`,
		`CREATE TABLE IF NOT EXISTS journal (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			wallet_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			event_type TEXT,
			digest TEXT NOT NULL,
			at TEXT NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (session_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_journal_wallet_at ON journal(wallet_id, at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteLedger) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteLedger) Load(ctx context.Context, walletID string) (progression.Player, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT json FROM players WHERE wallet_id = ?`, walletID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return progression.Player{}, ledger.ErrNotFound
	}
	if err != nil {
		return progression.Player{}, err
	}
	var p progression.Player
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return progression.Player{}, fmt.Errorf("player %s: %w", walletID, err)
	}
	return p, nil
}

// Save writes p unless the stored row already has the same digest.
func (s *SQLiteLedger) Save(ctx context.Context, walletID string, p progression.Player) error {
	digest := progression.Digest(p)
	raw, err := json.Marshal(p.Clone())
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var cur string
	err = tx.QueryRowContext(ctx, `SELECT digest FROM players WHERE wallet_id = ?`, walletID).Scan(&cur)
	switch {
	case err == nil && cur == digest:
		return nil
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO players(wallet_id,level,xp,digest,json,updated_at) VALUES(?,?,?,?,?,?)
		 ON CONFLICT(wallet_id) DO UPDATE SET level=excluded.level, xp=excluded.xp,
		 digest=excluded.digest, json=excluded.json, updated_at=excluded.updated_at`,
		walletID, p.Level, p.XP, digest, string(raw), time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return err
	}
	return tx.Commit()
}

// RecordMint stores a receipt. Recording the same receipt twice is a no-op.
func (s *SQLiteLedger) RecordMint(ctx context.Context, r mint.Receipt) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO mints(receipt_id,wallet_id,nft_id,uri,minted_at) VALUES(?,?,?,?,?)`,
		r.ID, r.WalletID, r.NFTID, r.URI, r.MintedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// Mints lists walletID's receipts, oldest first. An empty walletID lists all.
func (s *SQLiteLedger) Mints(ctx context.Context, walletID string) ([]mint.Receipt, error) {
	q := `SELECT receipt_id,wallet_id,nft_id,uri,minted_at FROM mints`
	var args []any
	if walletID != "" {
		q += ` WHERE wallet_id = ?`
		args = append(args, walletID)
	}
	q += ` ORDER BY minted_at, receipt_id`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []mint.Receipt
	for rows.Next() {
		var r mint.Receipt
		var at string
		if err := rows.Scan(&r.ID, &r.WalletID, &r.NFTID, &r.URI, &at); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339Nano, at); err == nil {
			r.MintedAt = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteLedger) Players(ctx context.Context, limit int) ([]PlayerRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT wallet_id,level,xp,digest,updated_at FROM players ORDER BY xp DESC, wallet_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PlayerRow
	for rows.Next() {
		var r PlayerRow
		if err := rows.Scan(&r.WalletID, &r.Level, &r.XP, &r.Digest, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertCatalog records the digests of the loaded content and tuning so a
// stored player can be traced to the rules it was earned under.
func (s *SQLiteLedger) UpsertCatalog(cat *catalog.Catalog, tune tuning.Tuning) error {
	if cat == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type row struct {
		name   string
		digest string
		data   []byte
	}
	var rows []row
	if b, err := json.Marshal(cat); err == nil {
		rows = append(rows, row{name: "catalog", digest: cat.Digest(), data: b})
	}
	for name, digest := range cat.Digests {
		b, _ := json.Marshal(map[string]string{"file": name})
		rows = append(rows, row{name: name, digest: digest, data: b})
	}
	if b, err := json.Marshal(tune); err == nil {
		sum := sha256.Sum256(b)
		rows = append(rows, row{name: "tuning", digest: hex.EncodeToString(sum[:]), data: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.Exec(r.name, r.digest, string(r.data), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CatalogDigest returns the digest recorded under name, or "" if none.
func (s *SQLiteLedger) CatalogDigest(ctx context.Context, name string) (string, error) {
	var d string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM catalogs WHERE name = ?`, name).Scan(&d)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return d, err
}

// WriteEntry queues e for the journal table.
func (s *SQLiteLedger) WriteEntry(e session.JournalEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- e:
	default:
		s.dropJournal.Add(1)
	}
	return nil
}

func (s *SQLiteLedger) Stats() IndexStats {
	return IndexStats{
		QueueDepth:       len(s.ch),
		QueueCapacity:    cap(s.ch),
		DropJournalTotal: s.dropJournal.Load(),
	}
}

// JournalCount reports how many journal rows walletID has.
func (s *SQLiteLedger) JournalCount(ctx context.Context, walletID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM journal WHERE wallet_id = ?`, walletID).Scan(&n)
	return n, err
}

func (s *SQLiteLedger) loop() {
	ctx := context.Background()
	insert, _ := s.db.Prepare(`INSERT OR REPLACE INTO journal(session_id,seq,wallet_id,kind,event_type,digest,at,raw_json) VALUES(?,?,?,?,?,?,?,?)`)
	defer func() {
		if insert != nil {
			_ = insert.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)
	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for e := range s.ch {
		begin()
		if tx == nil || insert == nil {
			s.dropJournal.Add(1)
			continue
		}
		raw, _ := json.Marshal(e)
		var evType string
		if e.Event != nil {
			evType = string(e.Event.Kind)
		}
		if _, err := tx.Stmt(insert).Exec(
			e.SessionID, int64(e.Seq), e.WalletID, e.Kind, evType, e.Digest,
			e.At.UTC().Format(time.RFC3339Nano), string(raw),
		); err != nil {
			_ = tx.Rollback()
			tx = nil
			continue
		}
		opCount++
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0 {
			commit()
		}
	}
	commit()
}
