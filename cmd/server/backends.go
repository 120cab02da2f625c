package main

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"lorebound.gg/internal/catalog"
	"lorebound.gg/internal/config"
	"lorebound.gg/internal/ledger"
	"lorebound.gg/internal/mint"
	"lorebound.gg/internal/persistence/archive"
	"lorebound.gg/internal/persistence/ledgerdb"
	persistlog "lorebound.gg/internal/persistence/log"
	"lorebound.gg/internal/persistence/r2s3"
	"lorebound.gg/internal/persistence/snapshot"
	"lorebound.gg/internal/session"
	"lorebound.gg/internal/tuning"
)

// backends is everything the session manager persists through.
type backends struct {
	ledger  ledger.Adapter
	minter  mint.Service
	journal session.JournalLogger

	sqlite *ledgerdb.SQLiteLedger
	files  *snapshot.FileLedger

	closers []func() error
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i]()
	}
}

func openBackends(env config.Env, dataDir string, cat *catalog.Catalog, tune tuning.Tuning, mirror *r2MirrorRuntime, logger *log.Logger) (*backends, error) {
	b := &backends{}
	var (
		index     session.JournalLogger
		recorders multiRecorder
	)

	switch env.Ledger {
	case "memory":
		b.ledger = ledger.NewMemory()
	case "sqlite":
		db, err := ledgerdb.OpenSQLite(filepath.Join(dataDir, "ledger", "ledger.sqlite"))
		if err != nil {
			return nil, fmt.Errorf("open sqlite ledger: %w", err)
		}
		b.closers = append(b.closers, db.Close)
		if err := db.UpsertCatalog(cat, tune); err != nil {
			logger.Printf("ledger: upsert catalog: %v", err)
		}
		b.ledger, b.sqlite, index = db, db, db
		recorders = append(recorders, db)
	case "file":
		fl := snapshot.NewFileLedger(dataDir, cat.Digest())
		fl.OnWrite(mirror.Enqueue)
		fl.OnStale(func(path string, snap snapshot.SnapshotV1) {
			archived, ok, err := archive.ArchiveStaleSnapshot(dataDir, path, snap, cat.Digest())
			if err != nil {
				logger.Printf("archive stale snapshot wallet=%s: %v", snap.Header.WalletID, err)
				return
			}
			if ok {
				logger.Printf("archived snapshot wallet=%s catalog=%s path=%s", snap.Header.WalletID, snap.CatalogDigest, archived)
				mirror.Enqueue(archived)
			}
		})
		b.ledger, b.files = fl, fl
	case "remote":
		r, err := ledgerdb.OpenRemote(ledgerdb.RemoteConfig{
			Endpoint: env.LedgerEndpoint,
			Token:    env.LedgerToken,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("open remote ledger: %w", err)
		}
		b.closers = append(b.closers, r.Close)
		b.ledger, index = r, r
		recorders = append(recorders, r)
	default:
		return nil, fmt.Errorf("unsupported ledger %q", env.Ledger)
	}

	audit := persistlog.NewMintAuditLogger(dataDir)
	audit.OnClose(mirror.Enqueue)
	b.closers = append(b.closers, audit.Close)
	recorders = append(recorders, audit)

	var journals multiJournal
	if tune.Journal.Enabled {
		jl := persistlog.NewJournalLogger(dataDir)
		jl.OnClose(mirror.Enqueue)
		b.closers = append(b.closers, jl.Close)
		journals = append(journals, jl)
	}
	if index != nil {
		journals = append(journals, index)
	}
	if len(journals) > 0 {
		b.journal = journals
	}

	switch env.Mint {
	case "local":
		b.minter = mint.NewLocal(env.MintBaseURI, recorders)
	case "bucket":
		client, err := r2s3.New(env.R2.Endpoint, env.R2.Bucket, env.R2.AccessKeyID, env.R2.SecretAccessKey)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("mint bucket: %w", err)
		}
		if env.R2.PublicBaseURL != "" {
			client.SetPublicBaseURL(env.R2.PublicBaseURL)
		}
		prefix := strings.Trim(env.R2.Prefix+"/nft", "/")
		b.minter = mint.NewBucket(client, prefix, recorders)
	case "none":
	default:
		b.Close()
		return nil, fmt.Errorf("unsupported mint %q", env.Mint)
	}
	return b, nil
}

// multiJournal fans journal entries out to the file journal and the ledger's
// index. A failing sink does not stop the others.
type multiJournal []session.JournalLogger

func (m multiJournal) WriteEntry(e session.JournalEntry) error {
	var first error
	for _, j := range m {
		if err := j.WriteEntry(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type multiRecorder []mint.Recorder

func (m multiRecorder) RecordMint(ctx context.Context, r mint.Receipt) error {
	var first error
	for _, rec := range m {
		if err := rec.RecordMint(ctx, r); err != nil && first == nil {
			first = err
		}
	}
	return first
}
