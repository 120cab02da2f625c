package main

import (
	"context"
	"path/filepath"
	"testing"

	"lorebound.gg/internal/persistence/archive"
	"lorebound.gg/internal/persistence/ledgerdb"
	"lorebound.gg/internal/persistence/snapshot"
	"lorebound.gg/internal/progression"
)

func TestImportSnapshotsIntoSQLite(t *testing.T) {
	dir := t.TempDir()
	src := snapshot.NewFileLedger(dir, "cat")
	for i, w := range []string{"a", "b/c"} {
		p := progression.NewPlayer(w, "forest_echoes")
		p.XP = 10 * (i + 1)
		if err := src.Save(context.Background(), w, p); err != nil {
			t.Fatalf("seed %s: %v", w, err)
		}
	}
	db, err := ledgerdb.OpenSQLite(filepath.Join(dir, "ledger.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	n, err := importSnapshots(context.Background(), src, db)
	if err != nil || n != 2 {
		t.Fatalf("import n=%d err=%v", n, err)
	}
	p, err := db.Load(context.Background(), "b/c")
	if err != nil || p.XP != 20 {
		t.Fatalf("load: %+v err=%v", p, err)
	}
}

func TestReadArchiveMetas(t *testing.T) {
	dir := t.TempDir()
	fl := snapshot.NewFileLedger(dir, "old-digest-0000")
	p := progression.NewPlayer("w1", "forest_echoes")
	if err := fl.Save(context.Background(), "w1", p); err != nil {
		t.Fatalf("save: %v", err)
	}
	snap, err := snapshot.ReadSnapshot(fl.Path("w1"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, ok, err := archive.ArchiveStaleSnapshot(dir, fl.Path("w1"), snap, "new"); err != nil || !ok {
		t.Fatalf("archive ok=%v err=%v", ok, err)
	}

	metas, err := readArchiveMetas(filepath.Join(dir, "archives"))
	if err != nil {
		t.Fatalf("read metas: %v", err)
	}
	if len(metas) != 1 || metas[0].WalletID != "w1" || metas[0].CatalogDigest != "old-digest-0000" {
		t.Fatalf("metas=%+v", metas)
	}
}
