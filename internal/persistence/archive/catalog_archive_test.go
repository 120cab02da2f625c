package archive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"lorebound.gg/internal/persistence/snapshot"
	"lorebound.gg/internal/progression"
)

func writeSnap(t *testing.T, dir, catalogDigest string) (string, snapshot.SnapshotV1) {
	t.Helper()
	p := progression.NewPlayer("w1", "forest_echoes")
	p.XP = 400
	p.Level = progression.LevelFor(400)
	snap := snapshot.SnapshotV1{
		Header:        snapshot.Header{Version: snapshot.Version, WalletID: "w1", Digest: progression.Digest(p)},
		Player:        p,
		CatalogDigest: catalogDigest,
	}
	path := filepath.Join(dir, "players", "w1.snap.zst")
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path, snap
}

func TestArchiveStaleSnapshot(t *testing.T) {
	dir := t.TempDir()
	path, snap := writeSnap(t, dir, "0123456789abcdef0123")

	dst, archived, err := ArchiveStaleSnapshot(dir, path, snap, "ffff")
	if err != nil || !archived {
		t.Fatalf("archived=%v err=%v", archived, err)
	}
	want := filepath.Join(dir, "archives", "catalog_0123456789ab", "w1.snap.zst")
	if dst != want {
		t.Fatalf("dst=%s want=%s", dst, want)
	}
	got, err := snapshot.ReadSnapshot(dst)
	if err != nil || !got.Player.Equal(snap.Player) {
		t.Fatalf("archived snapshot unreadable: %v", err)
	}
	b, err := os.ReadFile(dst + ".meta.json")
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	var meta CatalogArchiveMeta
	if err := json.Unmarshal(b, &meta); err != nil || meta.WalletID != "w1" || meta.XP != 400 {
		t.Fatalf("meta=%+v err=%v", meta, err)
	}
}

func TestArchiveStaleSnapshot_CurrentCatalogSkipped(t *testing.T) {
	dir := t.TempDir()
	path, snap := writeSnap(t, dir, "same")
	if _, archived, err := ArchiveStaleSnapshot(dir, path, snap, "same"); err != nil || archived {
		t.Fatalf("archived=%v err=%v", archived, err)
	}
	path, snap = writeSnap(t, dir, "")
	if _, archived, _ := ArchiveStaleSnapshot(dir, path, snap, "x"); archived {
		t.Fatalf("snapshot without catalog digest archived")
	}
}

func TestArchiveStaleSnapshot_SecondCopySkipped(t *testing.T) {
	dir := t.TempDir()
	path, snap := writeSnap(t, dir, "0123456789abcdef0123")
	first, archived, err := ArchiveStaleSnapshot(dir, path, snap, "ffff")
	if err != nil || !archived {
		t.Fatalf("archived=%v err=%v", archived, err)
	}
	before, err := os.Stat(first + ".meta.json")
	if err != nil {
		t.Fatalf("meta: %v", err)
	}

	again, archived, err := ArchiveStaleSnapshot(dir, path, snap, "ffff")
	if err != nil || archived || again != first {
		t.Fatalf("dst=%s archived=%v err=%v", again, archived, err)
	}
	after, err := os.Stat(first + ".meta.json")
	if err != nil || !after.ModTime().Equal(before.ModTime()) {
		t.Fatalf("meta rewritten: %v", err)
	}
}
