package main

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"lorebound.gg/internal/catalog"
	"lorebound.gg/internal/config"
	"lorebound.gg/internal/ledger"
	"lorebound.gg/internal/mint"
	"lorebound.gg/internal/persistence/snapshot"
	"lorebound.gg/internal/progression"
	"lorebound.gg/internal/session"
	"lorebound.gg/internal/tuning"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Load(filepath.Join("..", "..", "configs"))
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return cat
}

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

func TestOpenBackends_Memory(t *testing.T) {
	cat := testCatalog(t)
	tune := tuning.Defaults()
	tune.Journal.Enabled = false
	be, err := openBackends(config.Env{Ledger: "memory", Mint: "none"}, t.TempDir(), cat, tune, nil, quiet())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer be.Close()
	if _, ok := be.ledger.(*ledger.Memory); !ok {
		t.Fatalf("ledger=%T", be.ledger)
	}
	if be.minter != nil || be.journal != nil {
		t.Fatalf("minter=%v journal=%v, want none", be.minter, be.journal)
	}
}

func TestOpenBackends_SQLiteEndToEnd(t *testing.T) {
	cat := testCatalog(t)
	dir := t.TempDir()
	be, err := openBackends(config.Env{Ledger: "sqlite", Mint: "local", MintBaseURI: "lorebound://nft"}, dir, cat, tuning.Defaults(), nil, quiet())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if be.sqlite == nil || be.journal == nil {
		t.Fatalf("sqlite=%v journal=%v", be.sqlite, be.journal)
	}

	mgr := session.NewManager(session.Config{Logger: quiet()}, cat, be.ledger, be.minter)
	mgr.SetJournal(be.journal)
	store, err := mgr.Open(context.Background(), "w1")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, err := store.Dispatch(context.Background(), session.Event{Kind: session.EventGrantExperience, Amount: 150}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	mgr.Release("w1")
	mgr.Close()

	p, err := be.sqlite.Load(context.Background(), "w1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.XP != 150 || p.Level != 2 {
		t.Fatalf("player=%+v", p)
	}
	digest, err := be.sqlite.CatalogDigest(context.Background(), "catalog")
	if err != nil || digest == "" {
		t.Fatalf("catalog digest=%q err=%v", digest, err)
	}
	be.Close()

	if _, err := os.Stat(filepath.Join(dir, "journal")); err != nil {
		t.Fatalf("journal dir: %v", err)
	}
}

func TestOpenBackends_FileArchivesStaleSnapshots(t *testing.T) {
	cat := testCatalog(t)
	dir := t.TempDir()

	old := snapshot.NewFileLedger(dir, "0123456789abcdef-old")
	p := progression.NewPlayer("w1", cat.StartZone())
	p.XP, p.Level = 20, 1
	if err := old.Save(context.Background(), "w1", p); err != nil {
		t.Fatalf("seed: %v", err)
	}

	be, err := openBackends(config.Env{Ledger: "file", Mint: "none"}, dir, cat, tuning.Defaults(), nil, quiet())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer be.Close()
	got, err := be.ledger.Load(context.Background(), "w1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.XP != 20 {
		t.Fatalf("xp=%d", got.XP)
	}
	archived := filepath.Join(dir, "archives", "catalog_0123456789ab", "w1.snap.zst")
	if _, err := os.Stat(archived); err != nil {
		t.Fatalf("archived snapshot: %v", err)
	}
}

func TestOpenBackends_RejectsUnknown(t *testing.T) {
	cat := testCatalog(t)
	if _, err := openBackends(config.Env{Ledger: "carrier-pigeon", Mint: "none"}, t.TempDir(), cat, tuning.Defaults(), nil, quiet()); err == nil {
		t.Fatalf("expected error for unknown ledger")
	}
}

func TestMultiRecorderReachesEverySink(t *testing.T) {
	var a, b countRecorder
	rec := multiRecorder{&a, &b}
	m := mint.NewLocal("", rec)
	if _, err := m.Mint(context.Background(), "w", catalog.NFTDescriptor{ID: "x"}); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if a.n != 1 || b.n != 1 {
		t.Fatalf("recorded a=%d b=%d", a.n, b.n)
	}
}

type countRecorder struct{ n int }

func (c *countRecorder) RecordMint(ctx context.Context, r mint.Receipt) error {
	c.n++
	return nil
}
